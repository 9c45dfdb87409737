// Package reviewer runs external review processes. A reviewer receives a
// prompt and returns free text; interpreting that text is the verdict
// package's job.
package reviewer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	// ErrUnavailable means the reviewer cannot run at all (binary missing,
	// no API key). Callers treat it as an abstention.
	ErrUnavailable = errors.New("reviewer unavailable")
	// ErrTimeout means the reviewer was killed after its timeout.
	ErrTimeout = errors.New("reviewer timed out")
	// ErrRateLimited means the backing service refused the request for quota.
	ErrRateLimited = errors.New("reviewer rate limited")
)

// Reviewer reviews a prompt and returns its free-text output.
type Reviewer interface {
	Name() string
	Review(ctx context.Context, prompt string) (string, error)
}

// Reviewer types accepted in configuration.
const (
	TypeCommand   = "command"
	TypeAnthropic = "anthropic"
)

// DefaultTimeout bounds one review when the spec sets none.
const DefaultTimeout = 5 * time.Minute

// Spec is one reviewer entry from configuration.
type Spec struct {
	Name      string        `mapstructure:"name" yaml:"name"`
	Type      string        `mapstructure:"type" yaml:"type"`
	Command   string        `mapstructure:"command" yaml:"command"`
	Args      []string      `mapstructure:"args" yaml:"args"`
	Model     string        `mapstructure:"model" yaml:"model"`
	APIKeyEnv string        `mapstructure:"api_key_env" yaml:"api_key_env"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxOutput int           `mapstructure:"max_output" yaml:"max_output"`
}

// FromConfig builds a Reviewer from a spec. An empty type means command.
func FromConfig(spec Spec) (Reviewer, error) {
	if spec.Name == "" {
		return nil, errors.New("reviewer spec has no name")
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch spec.Type {
	case "", TypeCommand:
		path := spec.Command
		if path == "" {
			path = spec.Name
		}
		return &Command{
			ReviewerName: spec.Name,
			Path:         path,
			Args:         spec.Args,
			Timeout:      timeout,
			MaxOutput:    spec.MaxOutput,
		}, nil
	case TypeAnthropic:
		keyEnv := spec.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "ANTHROPIC_API_KEY"
		}
		return NewAnthropic(spec.Name, os.Getenv(keyEnv), spec.Model, timeout), nil
	default:
		return nil, fmt.Errorf("reviewer %s: unknown type %q", spec.Name, spec.Type)
	}
}
