package reviewer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used by Anthropic reviewers that name no model.
const DefaultModel = "claude-sonnet-4-5"

const reviewSystemPrompt = `You are a meticulous senior reviewer. Review the material you are given and answer in plain text.

Rules:
- Tag every finding on its own line with a severity badge: [CRITICAL], [HIGH], [MEDIUM], [LOW] or [INFO], followed by the finding
- Phrase anything you need clarified as a question ending with "?"
- If there is nothing at [MEDIUM] or above and no open question, end with a line reading exactly "APPROVED"
- Otherwise end with a line reading exactly "CHANGES REQUESTED"`

// Anthropic is an in-process reviewer backed by the Anthropic Messages API.
type Anthropic struct {
	ReviewerName string
	Timeout      time.Duration

	api       *anthropic.Client
	model     anthropic.Model
	hasKey    bool
	maxTokens int64
}

// NewAnthropic creates an Anthropic reviewer. Without an API key the
// reviewer reports ErrUnavailable instead of calling the API.
func NewAnthropic(name, apiKey, model string, timeout time.Duration) *Anthropic {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{
		ReviewerName: name,
		Timeout:      timeout,
		api:          &client,
		model:        anthropic.Model(model),
		hasKey:       apiKey != "",
		maxTokens:    4096,
	}
}

func (a *Anthropic) Name() string { return a.ReviewerName }

// Review sends the prompt as a single user message and returns the text of
// the reply.
func (a *Anthropic) Review(ctx context.Context, prompt string) (string, error) {
	if !a.hasKey {
		return "", fmt.Errorf("%s: %w: no API key", a.ReviewerName, ErrUnavailable)
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: reviewSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		switch {
		case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests:
			return "", fmt.Errorf("%s: %w: %v", a.ReviewerName, ErrRateLimited, err)
		case errors.Is(err, context.DeadlineExceeded):
			return "", fmt.Errorf("%s: %w after %s", a.ReviewerName, ErrTimeout, a.Timeout)
		}
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in API response")
	}
	return sb.String(), nil
}
