package marker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joescharf/revgate/internal/git"
)

// DefaultRelDir is where markers live relative to the main repository root.
const DefaultRelDir = ".claude/markers"

// ResolveDir returns the markers directory for the repository containing
// path. Linked worktrees share the main checkout's directory: the
// worktree's .git file points at <main>/.git/worktrees/<name>, whose
// commondir file points back at <main>/.git. When that chain cannot be
// followed, the first entry of `git worktree list` names the main checkout.
// An absolute rel is returned unchanged.
func ResolveDir(ctx context.Context, client git.Client, path, rel string) (string, error) {
	if rel == "" {
		rel = DefaultRelDir
	}
	if filepath.IsAbs(rel) {
		return rel, nil
	}
	root, err := MainRepoRoot(ctx, client, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// MainRepoRoot returns the working tree root of the main checkout for the
// repository containing path.
func MainRepoRoot(ctx context.Context, client git.Client, path string) (string, error) {
	top, err := client.RepoRoot(ctx, path)
	if err != nil {
		return "", fmt.Errorf("repo root: %w", err)
	}

	dotGit := filepath.Join(top, ".git")
	info, err := os.Stat(dotGit)
	if err == nil && info.IsDir() {
		return top, nil
	}

	if root, err := rootFromGitFile(dotGit); err == nil {
		return root, nil
	}

	worktrees, err := client.WorktreeList(ctx, path)
	if err != nil {
		return "", fmt.Errorf("worktree list: %w", err)
	}
	if len(worktrees) == 0 {
		return "", errors.New("worktree list is empty")
	}
	return worktrees[0].Path, nil
}

func rootFromGitFile(dotGit string) (string, error) {
	gitDir, err := readGitFile(dotGit)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(filepath.Dir(dotGit), gitDir)
	}

	data, err := os.ReadFile(filepath.Join(gitDir, "commondir"))
	if err != nil {
		return "", err
	}
	common := strings.TrimSpace(string(data))
	if !filepath.IsAbs(common) {
		common = filepath.Join(gitDir, common)
	}
	common = filepath.Clean(common)
	if filepath.Base(common) != ".git" {
		return "", fmt.Errorf("common dir %s is not a .git directory", common)
	}
	return filepath.Dir(common), nil
}

// readGitFile returns the target of a "gitdir: <path>" file.
func readGitFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if dir, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "gitdir:"); ok {
			return strings.TrimSpace(dir), nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%s has no gitdir line", path)
}
