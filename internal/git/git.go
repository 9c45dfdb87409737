package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
)

// WorktreeInfo holds parsed worktree metadata from `git worktree list --porcelain`.
type WorktreeInfo struct {
	Path   string
	Branch string
	HEAD   string
}

// Client defines the git queries used to identify the work being gated.
// All methods take a path parameter: the gate may run from any directory
// inside a repository or one of its linked worktrees.
type Client interface {
	RepoRoot(ctx context.Context, path string) (string, error)
	CurrentBranch(ctx context.Context, path string) (string, error)
	HeadCommit(ctx context.Context, path string) (string, error)
	RevParse(ctx context.Context, path, ref string) (string, error)
	SymbolicRef(ctx context.Context, path, ref string) (string, error)
	BranchExists(ctx context.Context, path, branch string) bool
	DiffTo(ctx context.Context, path, base, head string, w io.Writer) error
	DiffNames(ctx context.Context, path, base, head string) ([]string, error)
	GitDir(ctx context.Context, path string) (string, error)
	CommonDir(ctx context.Context, path string) (string, error)
	WorktreeList(ctx context.Context, path string) ([]WorktreeInfo, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(ctx context.Context, path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.CommandContext(ctx, "git", fullArgs...).Output()
	if err != nil {
		return "", wrapErr(args, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func wrapErr(args []string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
	}
	return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
}

func (c *RealClient) RepoRoot(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "--show-toplevel")
}

// CurrentBranch returns the short branch name, or "HEAD" when detached.
func (c *RealClient) CurrentBranch(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
}

// HeadCommit returns the full hash of HEAD.
func (c *RealClient) HeadCommit(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "HEAD")
}

// RevParse resolves ref to a full commit hash.
func (c *RealClient) RevParse(ctx context.Context, path, ref string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
}

// SymbolicRef returns the short target of a symbolic ref, e.g.
// "origin/main" for refs/remotes/origin/HEAD.
func (c *RealClient) SymbolicRef(ctx context.Context, path, ref string) (string, error) {
	return gitCmd(ctx, path, "symbolic-ref", "--quiet", "--short", ref)
}

func (c *RealClient) BranchExists(ctx context.Context, path, branch string) bool {
	_, err := gitCmd(ctx, path, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// DiffTo streams `git diff base...head` into w without buffering it.
func (c *RealClient) DiffTo(ctx context.Context, path, base, head string, w io.Writer) error {
	args := []string{"diff", "--no-color", "--no-ext-diff", base + "..." + head}
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", path}, args...)...)
	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

// DiffNames lists the paths changed between base and head.
func (c *RealClient) DiffNames(ctx context.Context, path, base, head string) ([]string, error) {
	out, err := gitCmd(ctx, path, "diff", "--name-only", base+"..."+head)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// GitDir returns the absolute git dir; for a linked worktree this is
// <main>/.git/worktrees/<name>.
func (c *RealClient) GitDir(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "--absolute-git-dir")
}

// CommonDir returns the absolute git dir shared by all worktrees.
func (c *RealClient) CommonDir(ctx context.Context, path string) (string, error) {
	out, err := gitCmd(ctx, path, "rev-parse", "--git-common-dir")
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(path, out)
	}
	return filepath.Clean(out), nil
}

func (c *RealClient) WorktreeList(ctx context.Context, path string) ([]WorktreeInfo, error) {
	out, err := gitCmd(ctx, path, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeListPorcelain(out), nil
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ParseWorktreeListPorcelain parses the output of `git worktree list --porcelain`.
func ParseWorktreeListPorcelain(output string) []WorktreeInfo {
	var worktrees []WorktreeInfo
	var current WorktreeInfo

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.HEAD = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			branch := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(branch, "refs/heads/")
		case line == "":
			if current.Path != "" {
				worktrees = append(worktrees, current)
				current = WorktreeInfo{}
			}
		}
	}
	if current.Path != "" {
		worktrees = append(worktrees, current)
	}
	return worktrees
}
