package reviewer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultMaxOutput caps the bytes kept from each output stream.
const DefaultMaxOutput = 1 << 20

// Command is a reviewer backed by an external executable. The prompt is
// written to stdin so its size is not bound by argument limits.
type Command struct {
	ReviewerName string
	Path         string
	Args         []string
	Dir          string
	Timeout      time.Duration
	MaxOutput    int
}

func (c *Command) Name() string { return c.ReviewerName }

// Review runs the executable. Both output streams are drained while the
// process runs; on timeout or cancellation the whole process group is
// killed. The returned text is stdout, with stderr appended when the
// process failed.
func (c *Command) Review(ctx context.Context, prompt string) (string, error) {
	path, err := exec.LookPath(c.Path)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", c.ReviewerName, ErrUnavailable, err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	limit := c.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second
	killProcessGroup(cmd)

	err = cmd.Run()
	out := stdout.String()
	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return out, fmt.Errorf("%s: %w after %s", c.ReviewerName, ErrTimeout, c.Timeout)
	case ctx.Err() != nil:
		return out, fmt.Errorf("%s: %w", c.ReviewerName, ctx.Err())
	case err != nil:
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			out = strings.TrimRight(out, "\n") + "\n" + msg
		}
		return out, fmt.Errorf("%s: %w", c.ReviewerName, err)
	}
	return out, nil
}

// cappedBuffer keeps the first limit bytes written and discards the rest
// while still reporting full writes, so the pipe never backs up.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       strings.Builder
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
