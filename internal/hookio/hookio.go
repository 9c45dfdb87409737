// Package hookio decodes the JSON payload a host sends when it asks whether
// a tool call may proceed. The schema belongs to the host; only the fields
// the gate reads are modelled.
package hookio

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joescharf/revgate/internal/shellcmd"
)

// Tool names with special handling.
const (
	ToolBash         = "Bash"
	ToolExitPlanMode = "ExitPlanMode"
)

// Payload is one tool-call check request.
type Payload struct {
	SessionID      string         `json:"session_id"`
	TranscriptPath string         `json:"transcript_path,omitempty"`
	Cwd            string         `json:"cwd"`
	HookEventName  string         `json:"hook_event_name"`
	ToolName       string         `json:"tool_name"`
	ToolInput      map[string]any `json:"tool_input"`
}

// Decode reads a payload from r.
func Decode(r io.Reader) (*Payload, error) {
	var p Payload
	dec := json.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode hook payload: %w", err)
	}
	if p.ToolInput == nil {
		p.ToolInput = map[string]any{}
	}
	return &p, nil
}

// Command returns the shell command of a Bash tool call.
func (p *Payload) Command() (string, bool) {
	if p.ToolName != ToolBash {
		return "", false
	}
	return p.str("command")
}

// Plan returns the plan text of an ExitPlanMode tool call.
func (p *Payload) Plan() (string, bool) {
	if p.ToolName != ToolExitPlanMode {
		return "", false
	}
	return p.str("plan")
}

// PRRequest is a pull request action issued through a structured tool
// rather than a shell command.
type PRRequest struct {
	Action shellcmd.Action
	Head   string
	Base   string
	Title  string
	Body   string
	Number string
}

// StructuredPR recognises create/merge pull request tools (for example an
// MCP GitHub server's "mcp__github__create_pull_request").
func (p *Payload) StructuredPR() (*PRRequest, bool) {
	var action shellcmd.Action
	switch {
	case strings.HasSuffix(p.ToolName, "create_pull_request"):
		action = shellcmd.ActionPRCreate
	case strings.HasSuffix(p.ToolName, "merge_pull_request"):
		action = shellcmd.ActionPRMerge
	default:
		return nil, false
	}
	pr := &PRRequest{Action: action}
	pr.Head, _ = p.str("head")
	pr.Base, _ = p.str("base")
	pr.Title, _ = p.str("title")
	pr.Body, _ = p.str("body")
	for _, key := range []string{"pull_number", "pullNumber", "number"} {
		if n, ok := p.str(key); ok {
			pr.Number = n
			break
		}
	}
	return pr, true
}

// str returns a tool input field as a string; JSON numbers are formatted
// without a fraction when integral.
func (p *Payload) str(key string) (string, bool) {
	switch v := p.ToolInput[key].(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}
