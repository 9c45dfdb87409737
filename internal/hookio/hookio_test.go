package hookio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/revgate/internal/shellcmd"
)

func TestDecode_Bash(t *testing.T) {
	p, err := Decode(strings.NewReader(`{
		"session_id": "s-1",
		"cwd": "/repo",
		"hook_event_name": "PreToolUse",
		"tool_name": "Bash",
		"tool_input": {"command": "git push origin feature", "description": "push"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "s-1", p.SessionID)
	assert.Equal(t, "/repo", p.Cwd)

	cmd, ok := p.Command()
	require.True(t, ok)
	assert.Equal(t, "git push origin feature", cmd)

	_, ok = p.Plan()
	assert.False(t, ok)
}

func TestDecode_Plan(t *testing.T) {
	p, err := Decode(strings.NewReader(`{"session_id":"s","tool_name":"ExitPlanMode","tool_input":{"plan":"# Plan\n1. do it"}}`))
	require.NoError(t, err)
	plan, ok := p.Plan()
	require.True(t, ok)
	assert.Equal(t, "# Plan\n1. do it", plan)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"tool_name": `))
	assert.Error(t, err)

	p, err := Decode(strings.NewReader(`{"tool_name":"Bash"}`))
	require.NoError(t, err)
	_, ok := p.Command()
	assert.False(t, ok, "missing command")
}

func TestStructuredPR(t *testing.T) {
	p, err := Decode(strings.NewReader(`{"tool_name":"mcp__github__create_pull_request","tool_input":{"head":"feature/x","base":"main","title":"Add x","body":"b"}}`))
	require.NoError(t, err)
	pr, ok := p.StructuredPR()
	require.True(t, ok)
	assert.Equal(t, &PRRequest{Action: shellcmd.ActionPRCreate, Head: "feature/x", Base: "main", Title: "Add x", Body: "b"}, pr)

	p, err = Decode(strings.NewReader(`{"tool_name":"mcp__github__merge_pull_request","tool_input":{"pull_number":42}}`))
	require.NoError(t, err)
	pr, ok = p.StructuredPR()
	require.True(t, ok)
	assert.Equal(t, shellcmd.ActionPRMerge, pr.Action)
	assert.Equal(t, "42", pr.Number)

	p = &Payload{ToolName: "Bash"}
	_, ok = p.StructuredPR()
	assert.False(t, ok)
}
