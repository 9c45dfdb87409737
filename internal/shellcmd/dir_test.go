package shellcmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Dir(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"git push", ""},
		{"git -C /work/wt push", "/work/wt"},
		{"git -C /work -C wt push", "/work/wt"},
		{`git -c core.x=1 -C "/my repo" --no-pager push`, "/my repo"},
		{"cd /work/wt && git push", "/work/wt"},
		{"cd /work; cd wt && git push origin HEAD", "/work/wt"},
		{"cd ../wt && git -C sub push", "../wt/sub"},
		{"cd /work && git -C /other push", "/other"},
		{"(cd /work/wt && git push)", "/work/wt"},
		{"(cd /work/wt && ls); git commit --amend --no-edit", ""},
		{"cd /work && (cd wt; ls) && git push", "/work"},
		{"cd /work && ((cd a && (cd b)) && git -C wt push)", "/work/wt"},
		{"{ cd /work/wt; git push; }", "/work/wt"},
		{"pushd /work/wt && git push", "/work/wt"},
		{"cd && git push", "~"},
		{"cd - && git push", "-"},
		{"cd -P /work && git push", "/work"},
		{"cd $WT && git push", "$WT"},
		{"cd /work && gh pr create --fill", "/work"},
		{"git status -C x && git push", ""},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			c := Classify(tt.cmd)
			require.True(t, c.IsTarget)
			got, ok := c.Extracted[KeyDir]
			if tt.want == "" {
				assert.False(t, ok, "dir %q", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_DirAppliesPerMatch(t *testing.T) {
	c := Classify("git commit --amend --no-edit && cd /work/wt && git push")
	require.Len(t, c.Matches, 2)
	assert.NotContains(t, c.Matches[0].Extracted, KeyDir)
	assert.Equal(t, "/work/wt", c.Matches[1].Extracted[KeyDir])
}

func TestClassify_SubshellIsTarget(t *testing.T) {
	c := Classify("(git push origin feature)")
	require.True(t, c.IsTarget)
	assert.Equal(t, ActionPush, c.Action)
	assert.Equal(t, "feature", c.Extracted[KeyBranch])

	c = Classify(`git log --format="$(echo x)" && echo done`)
	assert.False(t, c.IsTarget)
}

func TestGrouping(t *testing.T) {
	tests := []struct {
		sub    string
		opened int
		body   string
		closed int
	}{
		{"git push", 0, "git push", 0},
		{"(cd x", 1, "cd x", 0},
		{"( (git push))", 2, "git push", 2},
		{"git push $(git rev-parse HEAD)", 0, "git push $(git rev-parse HEAD)", 0},
		{"echo ')')", 0, "echo ')'", 1},
		{"{ cd x", 0, "cd x", 0},
	}
	for _, tt := range tests {
		t.Run(tt.sub, func(t *testing.T) {
			opened, body, closed := grouping(tt.sub)
			assert.Equal(t, tt.opened, opened)
			assert.Equal(t, tt.body, body)
			assert.Equal(t, tt.closed, closed)
		})
	}
}

func TestResolveDir(t *testing.T) {
	base := t.TempDir()
	sub := filepath.Join(base, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	file := filepath.Join(base, "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	got, err := ResolveDir(base, "")
	require.NoError(t, err)
	assert.Equal(t, base, got)

	got, err = ResolveDir(base, "sub")
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	got, err = ResolveDir("/elsewhere", sub)
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	t.Setenv("HOME", base)
	got, err = ResolveDir("/elsewhere", "~/sub")
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	for _, bad := range []string{"-", "-/sub", "$WT", "$(pwd)/sub", "~other", "missing", "f"} {
		_, err := ResolveDir(base, bad)
		assert.Error(t, err, bad)
	}
}
