package doctor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byName(checks []Check) map[string]Check {
	m := make(map[string]Check, len(checks))
	for _, c := range checks {
		m[c.Name] = c
	}
	return m
}

func fakeLookPath(found ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, f := range found {
			if f == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestChecker_EmptyRepo(t *testing.T) {
	root := t.TempDir()
	c := &Checker{LookPath: fakeLookPath()}

	checks := byName(c.Run(Options{
		RepoRoot:   root,
		MarkersDir: filepath.Join(root, ".claude", "markers"),
		MarkersRel: ".claude/markers",
		Tools:      []Tool{{Label: "git", Command: "git"}},
	}))

	assert.False(t, checks["git"].Passed)
	assert.True(t, checks["Markers dir"].Passed, "missing dir under a writable root is fine")
	assert.Contains(t, checks["Markers dir"].Detail, "created on first write")
	assert.False(t, checks["Markers ignored"].Passed)
	assert.False(t, checks["Host hook"].Passed)
}

func TestChecker_ConfiguredRepo(t *testing.T) {
	root := t.TempDir()
	markers := filepath.Join(root, ".claude", "markers")
	require.NoError(t, os.MkdirAll(markers, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("# local\n/.claude/\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".claude", "settings.json"),
		[]byte(`{"hooks":{"PreToolUse":[{"hooks":[{"type":"command","command":"revgate check"}]}]}}`), 0644))

	c := &Checker{LookPath: fakeLookPath("git", "codex")}
	checks := c.Run(Options{
		RepoRoot:   root,
		MarkersDir: markers,
		MarkersRel: ".claude/markers",
		Tools:      []Tool{{Label: "git", Command: "git"}, {Label: "Reviewer codex", Command: "codex"}},
	})

	for _, check := range checks {
		assert.True(t, check.Passed, "check %s should pass: %s", check.Name, check.Detail)
	}
	assert.True(t, Passed(checks))
	entries, err := os.ReadDir(markers)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch file removed")
}

func TestCheckIgnored(t *testing.T) {
	tests := []struct {
		name      string
		gitignore string
		rel       string
		want      bool
	}{
		{name: "exact", gitignore: ".claude/markers\n", rel: ".claude/markers", want: true},
		{name: "parent with slash", gitignore: ".claude/\n", rel: ".claude/markers", want: true},
		{name: "parent glob", gitignore: ".claude/*\n", rel: ".claude/markers", want: true},
		{name: "unrelated", gitignore: "node_modules\n", rel: ".claude/markers", want: false},
		{name: "outside repo", gitignore: "", rel: "../shared", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte(tt.gitignore), 0644))
			assert.Equal(t, tt.want, checkIgnored(root, tt.rel).Passed)
		})
	}
}

func TestCheckMarkersDir_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	c := checkMarkersDir(path)
	assert.False(t, c.Passed)
	assert.Contains(t, c.Detail, "not a directory")
}

func TestCheckHook_UserSettings(t *testing.T) {
	root, home := t.TempDir(), t.TempDir()
	assert.False(t, checkHook(root, home).Passed)

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".claude"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".claude", "settings.json"),
		[]byte(`{"hooks":{"PreToolUse":[{"hooks":[{"command":"revgate check"}]}]}}`), 0644))

	c := checkHook(root, home)
	assert.True(t, c.Passed)
	assert.Equal(t, filepath.Join(home, ".claude", "settings.json"), c.Detail)
	assert.False(t, checkHook(root, "").Passed)
}
