package identity

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/revgate/internal/git"
)

func initTestRepo(t *testing.T, dir, branch string) {
	t.Helper()
	run(t, dir, "init", "-b", branch)
	run(t, dir, "config", "user.email", "test@test.com")
	run(t, dir, "config", "user.name", "Test")
	run(t, dir, "commit", "--allow-empty", "-m", "init")
}

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := exec.Command("git", append([]string{"-C", dir}, args...)...).CombinedOutput()
	require.NoError(t, err, string(out))
	return strings.TrimSpace(string(out))
}

func writeAndCommit(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	run(t, dir, "add", name)
	run(t, dir, "commit", "-m", "edit "+name)
}

func TestHashesMatch(t *testing.T) {
	full := "abc1234def5678901234567890abcdef12345678"
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"short prefix of full", "abc1234", full, true},
		{"full vs short", full, "abc1234d", true},
		{"case insensitive", "ABC1234", full, true},
		{"identical", full, full, true},
		{"different", "abc1235", full, false},
		{"too short", "abc12", full, false},
		{"empty", "", full, false},
		{"both empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HashesMatch(tt.a, tt.b))
		})
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("plan v1")
	assert.Len(t, a, HashLen)
	assert.Equal(t, a, ContentHash("plan v1"))
	assert.NotEqual(t, a, ContentHash("plan v2"))
}

func TestResolveBaseBranch(t *testing.T) {
	ctx := context.Background()
	client := git.NewClient()

	t.Run("main", func(t *testing.T) {
		dir := t.TempDir()
		initTestRepo(t, dir, "main")
		base, err := ResolveBaseBranch(ctx, client, dir)
		require.NoError(t, err)
		assert.Equal(t, "main", base)
	})

	t.Run("master", func(t *testing.T) {
		dir := t.TempDir()
		initTestRepo(t, dir, "master")
		base, err := ResolveBaseBranch(ctx, client, dir)
		require.NoError(t, err)
		assert.Equal(t, "master", base)
	})

	t.Run("origin HEAD wins", func(t *testing.T) {
		upstream := t.TempDir()
		initTestRepo(t, upstream, "trunk")
		clone := filepath.Join(t.TempDir(), "clone")
		out, err := exec.Command("git", "clone", "-q", upstream, clone).CombinedOutput()
		require.NoError(t, err, string(out))
		run(t, clone, "branch", "main")

		base, err := ResolveBaseBranch(ctx, client, clone)
		require.NoError(t, err)
		assert.Equal(t, "trunk", base)
	})

	t.Run("none", func(t *testing.T) {
		dir := t.TempDir()
		initTestRepo(t, dir, "develop")
		_, err := ResolveBaseBranch(ctx, client, dir)
		assert.ErrorIs(t, err, ErrNoBaseBranch)
	})
}

func TestResolver_DiffHashStableAcrossRebase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	initTestRepo(t, dir, "main")
	writeAndCommit(t, dir, "base.txt", "base\n")

	run(t, dir, "checkout", "-q", "-b", "feature")
	writeAndCommit(t, dir, "feature.txt", "feature work\n")

	r := NewResolver(git.NewClient())
	before, err := r.Current(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, "feature", before.Branch)
	assert.Equal(t, "main", before.Base)
	require.Len(t, before.DiffHash, HashLen)

	// Move main forward with an unrelated change and rebase onto it.
	run(t, dir, "checkout", "-q", "main")
	writeAndCommit(t, dir, "other.txt", "unrelated\n")
	run(t, dir, "checkout", "-q", "feature")
	run(t, dir, "rebase", "-q", "main")

	after, err := r.Current(ctx, dir)
	require.NoError(t, err)
	assert.NotEqual(t, before.Commit, after.Commit)
	assert.Equal(t, before.DiffHash, after.DiffHash)

	// A real change to the branch content changes the diff hash.
	writeAndCommit(t, dir, "feature.txt", "feature work v2\n")
	changed, err := r.Current(ctx, dir)
	require.NoError(t, err)
	assert.NotEqual(t, after.DiffHash, changed.DiffHash)
}

func TestResolver_EmptyDiffHasNoHash(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir, "main")
	id, err := NewResolver(git.NewClient()).Current(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "main", id.Branch)
	assert.NotEmpty(t, id.Commit)
	assert.Empty(t, id.DiffHash)
}

func TestResolver_ForRef(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	initTestRepo(t, dir, "main")
	run(t, dir, "checkout", "-q", "-b", "feature")
	writeAndCommit(t, dir, "f.txt", "x\n")
	want := run(t, dir, "rev-parse", "HEAD")
	run(t, dir, "checkout", "-q", "main")

	id, err := NewResolver(git.NewClient()).ForRef(ctx, dir, "feature")
	require.NoError(t, err)
	assert.Equal(t, "feature", id.Branch)
	assert.Equal(t, want, id.Commit)
	assert.NotEmpty(t, id.DiffHash)

	_, err = NewResolver(git.NewClient()).ForRef(ctx, dir, "missing")
	assert.Error(t, err)
}

func TestResolver_BaseOverride(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir, "main")
	run(t, dir, "branch", "release")
	r := &Resolver{Git: git.NewClient(), Base: "release"}
	id, err := r.Current(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "release", id.Base)
}
