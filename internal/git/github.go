package git

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	State      string `json:"state"`
	Branch     string `json:"headRefName"`
	BaseBranch string `json:"baseRefName"`
	URL        string `json:"url"`
}

// GitHubClient wraps the gh CLI for pull request metadata.
type GitHubClient interface {
	// PullRequest looks up a PR by number, URL or branch; an empty selector
	// means the PR for the branch checked out in dir.
	PullRequest(ctx context.Context, dir, selector string) (*PullRequest, error)
}

// RealGitHubClient implements GitHubClient using the gh CLI.
type RealGitHubClient struct{}

// NewGitHubClient returns a new RealGitHubClient.
func NewGitHubClient() *RealGitHubClient {
	return &RealGitHubClient{}
}

func ghCmd(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("gh %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealGitHubClient) PullRequest(ctx context.Context, dir, selector string) (*PullRequest, error) {
	args := []string{"pr", "view"}
	if selector != "" {
		args = append(args, selector)
	}
	args = append(args, "--json", "number,title,state,headRefName,baseRefName,url")

	out, err := ghCmd(ctx, dir, args...)
	if err != nil {
		return nil, err
	}

	var pr PullRequest
	if err := json.Unmarshal([]byte(out), &pr); err != nil {
		return nil, fmt.Errorf("parse PR: %w", err)
	}
	return &pr, nil
}
