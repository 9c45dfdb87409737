package reviewer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript writes an executable shell script reviewer into a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script reviewers need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "reviewer.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestCommand_PromptOverStdin(t *testing.T) {
	script := writeScript(t, `echo "got: $(cat)"; echo LGTM`)
	c := &Command{ReviewerName: "echo", Path: script, Timeout: 10 * time.Second}

	out, err := c.Review(context.Background(), "review this plan")
	require.NoError(t, err)
	assert.Equal(t, "got: review this plan\nLGTM\n", out)
	assert.Equal(t, "echo", c.Name())
}

func TestCommand_LargePromptAndOutput(t *testing.T) {
	// Output larger than a pipe buffer must not deadlock.
	script := writeScript(t, `cat >/dev/null; i=0; while [ $i -lt 2000 ]; do echo "line $i of a long review output"; i=$((i+1)); done`)
	c := &Command{ReviewerName: "big", Path: script, Timeout: 20 * time.Second, MaxOutput: 1024}

	out, err := c.Review(context.Background(), strings.Repeat("x", 256*1024))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "[output truncated]"))
	assert.LessOrEqual(t, len(out), 1024+len("\n[output truncated]"))
}

func TestCommand_Unavailable(t *testing.T) {
	c := &Command{ReviewerName: "ghost", Path: "revgate-no-such-reviewer"}
	_, err := c.Review(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCommand_NonZeroExit(t *testing.T) {
	script := writeScript(t, `cat >/dev/null; echo partial; echo "429 Too Many Requests" >&2; exit 3`)
	c := &Command{ReviewerName: "flaky", Path: script, Timeout: 10 * time.Second}

	out, err := c.Review(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "429 Too Many Requests")
}

func TestCommand_TimeoutKillsProcessGroup(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process groups are unix only")
	}
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	// The child inherits stdout; without a group kill Run would block on it.
	script := writeScript(t, `sleep 30 & echo $! > `+pidFile+`; wait`)
	c := &Command{ReviewerName: "slow", Path: script, Timeout: 300 * time.Millisecond}

	start := time.Now()
	_, err := c.Review(context.Background(), "x")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommand_ParentCancel(t *testing.T) {
	script := writeScript(t, `sleep 30`)
	c := &Command{ReviewerName: "slow", Path: script, Timeout: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	_, err := c.Review(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnthropic_NoKeyIsUnavailable(t *testing.T) {
	a := NewAnthropic("claude", "", "", time.Second)
	_, err := a.Review(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "claude", a.Name())
}

func TestFromConfig(t *testing.T) {
	r, err := FromConfig(Spec{Name: "codex", Args: []string{"exec", "-"}})
	require.NoError(t, err)
	cmd, ok := r.(*Command)
	require.True(t, ok)
	assert.Equal(t, "codex", cmd.Path)
	assert.Equal(t, []string{"exec", "-"}, cmd.Args)
	assert.Equal(t, DefaultTimeout, cmd.Timeout)

	t.Setenv("REVGATE_TEST_KEY", "")
	r, err = FromConfig(Spec{Name: "claude", Type: TypeAnthropic, APIKeyEnv: "REVGATE_TEST_KEY", Timeout: time.Minute})
	require.NoError(t, err)
	a, ok := r.(*Anthropic)
	require.True(t, ok)
	assert.False(t, a.hasKey)
	assert.Equal(t, anthropic.Model(DefaultModel), a.model)

	_, err = FromConfig(Spec{Name: "x", Type: "carrier-pigeon"})
	assert.Error(t, err)
	_, err = FromConfig(Spec{})
	assert.Error(t, err)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd\n[output truncated]", b.String())
}
