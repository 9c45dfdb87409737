package shellcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFlagValue_Heredoc(t *testing.T) {
	cmd := "gh pr create --title \"Add X\" --body \"$(cat <<'EOF'\n## Summary\nUses \"quotes\" and it's fine\nEOF\n)\""

	body, ok := ExtractFlagValue(cmd, "--body", "-b")
	require.True(t, ok)
	assert.Equal(t, "## Summary\nUses \"quotes\" and it's fine", body)

	title, ok := ExtractFlagValue(cmd, "--title", "-t")
	require.True(t, ok)
	assert.Equal(t, "Add X", title)
}

func TestExtractFlagValue_HeredocCustomDelimiter(t *testing.T) {
	cmd := "gh pr create --body \"$(cat <<-END_OF_BODY\n\tline one\n\tEOF is not the end\n\tEND_OF_BODY\n)\""
	body, ok := ExtractFlagValue(cmd, "--body")
	require.True(t, ok)
	assert.Equal(t, "\tline one\n\tEOF is not the end", body)
}

func TestExtractFlagValue_Forms(t *testing.T) {
	tests := []struct {
		name  string
		cmd   string
		flags []string
		want  string
	}{
		{"double quoted with escapes", `gh pr create --title "say \"hi\" \$HOME"`, []string{"--title"}, `say "hi" $HOME`},
		{"single quoted", `gh pr create -t 'Quick fix'`, []string{"--title", "-t"}, "Quick fix"},
		{"ansi-c", `gh pr create -b $'line1\nline2'`, []string{"--body", "-b"}, "line1\nline2"},
		{"unquoted up to next flag", `gh pr create -B develop -H feat/x`, []string{"--base", "-B"}, "develop"},
		{"unquoted at end", `gh pr create -B develop -H feat/x`, []string{"--head", "-H"}, "feat/x"},
		{"equals form", `gh pr create --base=release`, []string{"--base"}, "release"},
		{"flag inside another value is ignored", `gh pr create --title "use --body here" --body "real"`, []string{"--body"}, "real"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractFlagValue(tt.cmd, tt.flags...)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFlagValue_PrefersHeredocOverDoubleQuote(t *testing.T) {
	// A naive double-quote scan would stop at the first inner quote.
	cmd := "gh pr create --body \"$(cat <<'MSG'\nsee \"docs\"\nMSG\n)\""
	got, ok := ExtractFlagValue(cmd, "--body")
	require.True(t, ok)
	assert.Equal(t, `see "docs"`, got)
}

func TestExtractFlagValue_Missing(t *testing.T) {
	_, ok := ExtractFlagValue("gh pr create --fill", "--title")
	assert.False(t, ok)
	_, ok = ExtractFlagValue("gh pr create")
	assert.False(t, ok)
}

func TestClassify_PRCreateExtraction(t *testing.T) {
	c := Classify(`gh pr create -t 'Quick fix' -b $'line1\nline2' -B develop -H feat/x`)
	require.True(t, c.IsTarget)
	assert.Equal(t, ActionPRCreate, c.Action)
	assert.Equal(t, "Quick fix", c.Extracted[KeyTitle])
	assert.Equal(t, "line1\nline2", c.Extracted[KeyBody])
	assert.Equal(t, "develop", c.Extracted[KeyBase])
	assert.Equal(t, "feat/x", c.Extracted[KeyBranch])
}

func TestPushTarget(t *testing.T) {
	tests := []struct {
		cmd        string
		wantRemote string
		wantBranch string
	}{
		{"git push", "", ""},
		{"git push origin", "origin", ""},
		{"git push -u origin feature/a", "origin", "feature/a"},
		{"git push origin +HEAD:refs/heads/feature/b", "origin", "feature/b"},
		{"git push origin HEAD", "origin", ""},
		{"git push -o ci.skip origin main", "origin", "main"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			remote, branch := PushTarget(tt.cmd)
			assert.Equal(t, tt.wantRemote, remote)
			assert.Equal(t, tt.wantBranch, branch)
		})
	}
}

func TestPushRefspec(t *testing.T) {
	tests := []struct {
		cmd, remote, src, dst string
	}{
		{"git push", "", "", ""},
		{"git push origin feature/a", "origin", "feature/a", "feature/a"},
		{"git push origin HEAD:release", "origin", "", "release"},
		{"git push -f origin local:refs/heads/remote", "origin", "local", "remote"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			remote, src, dst := PushRefspec(tt.cmd)
			assert.Equal(t, tt.remote, remote)
			assert.Equal(t, tt.src, src)
			assert.Equal(t, tt.dst, dst)
		})
	}
}
