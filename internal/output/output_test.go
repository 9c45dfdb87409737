package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would create %s", "file")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create file")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would create %s", "file")
	assert.Empty(t, errOut.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestOutcomeColor(t *testing.T) {
	assert.Contains(t, OutcomeColor("approve"), "approve")
	assert.Contains(t, OutcomeColor("blocked"), "blocked")
	assert.Equal(t, "unknown", OutcomeColor("unknown"))
}

func TestSeverityColor(t *testing.T) {
	assert.Contains(t, SeverityColor("critical"), "critical")
	assert.Contains(t, SeverityColor("medium"), "medium")
	assert.Contains(t, SeverityColor("info"), "info")
	assert.Equal(t, "", SeverityColor(""))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Kind", "Branch"})
	require.NotNil(t, table)

	table.Append([]string{"codex", "feature-x"})
	table.Append([]string{"gemini", "feature-y"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "codex") || strings.Contains(result, "CODEX"),
		"table output should contain marker kinds")
	assert.True(t, strings.Contains(result, "feature-y"),
		"table output should contain branches")
}

func TestField(t *testing.T) {
	u, out, _ := newTestUI()
	u.Field("Branch", "feature-x")
	u.Field("Cycles", 2)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Branch:     feature-x", strings.TrimSpace(lines[0]))
	assert.Equal(t, strings.Index(lines[0], "feature-x"), strings.Index(lines[1], "2"), "values aligned")
}

func TestCheck(t *testing.T) {
	u, out, _ := newTestUI()
	u.Check(true, "git", "/usr/bin/git")
	u.Check(false, "gh", "gh not found on PATH")

	assert.Contains(t, out.String(), "/usr/bin/git")
	assert.Contains(t, out.String(), "gh not found on PATH")
	assert.Contains(t, out.String(), successPrefix)
	assert.Contains(t, out.String(), errorPrefix)
}
