// Package review runs one reviewer against the current branch diff and
// records the outcome in the marker store.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/revgate/internal/git"
	"github.com/joescharf/revgate/internal/identity"
	"github.com/joescharf/revgate/internal/marker"
	"github.com/joescharf/revgate/internal/reviewer"
	"github.com/joescharf/revgate/internal/verdict"
)

// ErrEmptyDiff is returned when the branch has no changes against its base.
var ErrEmptyDiff = errors.New("nothing to review: branch has no changes against its base")

// Config holds review run configuration.
type Config struct {
	RateLimitTTL  time.Duration
	MaxDiffBytes  int
	Blocking      []verdict.Severity
	MigrationKind string
}

// DefaultConfig returns the default review config, reading from viper when available.
func DefaultConfig() Config {
	ttl := viper.GetDuration("gate.rate_limit_ttl")
	if ttl <= 0 {
		ttl = time.Hour
	}
	maxDiff := viper.GetInt("review.max_diff_bytes")
	if maxDiff <= 0 {
		maxDiff = 512 << 10
	}
	migrationKind := viper.GetString("gate.migration_kind")
	if !viper.IsSet("gate.migration_kind") {
		migrationKind = "migration"
	}
	return Config{
		RateLimitTTL:  ttl,
		MaxDiffBytes:  maxDiff,
		Blocking:      verdict.DefaultBlocking,
		MigrationKind: migrationKind,
	}
}

// Outcome is the result of one review run.
type Outcome struct {
	Kind        string
	Reviewer    string
	Identity    identity.Identity
	Verdict     verdict.Verdict
	Approved    bool
	RateLimited bool
	CycleCount  int
	// Marker is the marker written on approval.
	Marker *marker.Marker
	Output string
}

// Runner runs reviews for one repository.
type Runner struct {
	Git     git.Client
	Markers *marker.Store
	Config  Config
	Log     *zap.Logger
	Now     func() time.Time
	// Base overrides base branch resolution.
	Base string
	// DryRun reviews but records nothing.
	DryRun bool
}

// NewRunner creates a review runner with the given git client, marker store and config.
func NewRunner(client git.Client, markers *marker.Store, cfg Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Git: client, Markers: markers, Config: cfg, Log: log, Now: time.Now}
}

// Run reviews the branch checked out in dir with rev and records the result
// under kind:
//   - approved: marker written at the current identity with the cycle count
//     restarted, findings cleared
//   - rate limited: rate-limit side channel marked, cycle count untouched
//   - otherwise: cycle count bumped, highest open severity recorded
func (r *Runner) Run(ctx context.Context, dir, kind string, rev reviewer.Reviewer) (*Outcome, error) {
	resolver := &identity.Resolver{Git: r.Git, Base: r.Base}
	id, err := resolver.Current(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	baseRef := id.Base
	if !r.Git.BranchExists(ctx, dir, baseRef) {
		baseRef = "origin/" + id.Base
	}
	var diff strings.Builder
	if err := r.Git.DiffTo(ctx, dir, baseRef, "HEAD", &diff); err != nil {
		return nil, fmt.Errorf("diff against %s: %w", baseRef, err)
	}
	if diff.Len() == 0 {
		return nil, ErrEmptyDiff
	}

	prev, err := r.Markers.ReadFindings(kind, id.Branch)
	if err != nil {
		r.Log.Warn("read findings", zap.String("kind", kind), zap.Error(err))
	}

	log := r.Log.With(zap.String("kind", kind), zap.String("reviewer", rev.Name()),
		zap.String("branch", id.Branch), zap.String("commit", id.Commit))

	prompt := BuildReviewPrompt(kind, id, diff.String(), prev, r.Config)
	output, err := rev.Review(ctx, prompt)
	out := &Outcome{Kind: kind, Reviewer: rev.Name(), Identity: id, Output: output}

	if errors.Is(err, reviewer.ErrRateLimited) {
		out.RateLimited = true
		log.Warn("reviewer rate limited", zap.Error(err))
		return out, r.markRateLimited(kind)
	}
	if err != nil {
		log.Warn("review failed", zap.Error(err))
		return out, fmt.Errorf("%s review: %w", kind, err)
	}

	v := verdict.Parser{Blocking: r.Config.Blocking}.Parse(output)
	out.Verdict = v
	if v.RateLimited && !v.Approved {
		out.RateLimited = true
		log.Warn("reviewer output reports a rate limit")
		return out, r.markRateLimited(kind)
	}

	current, err := r.Markers.Read(kind, id.Branch)
	if err != nil {
		log.Warn("discarding unreadable marker", zap.Error(err))
		current = nil
	}
	cycles := 0
	if current != nil {
		cycles = current.CycleCount
	}

	if v.Approved {
		out.Approved = true
		m := marker.Marker{Branch: id.Branch, Commit: id.Commit, DiffHash: id.DiffHash}
		out.Marker = &m
		out.CycleCount = m.CycleCount
		if !r.DryRun {
			if err := r.Markers.Write(kind, m); err != nil {
				return out, fmt.Errorf("write marker: %w", err)
			}
			if err := r.Markers.ClearFindings(kind, id.Branch); err != nil {
				log.Warn("clear findings", zap.Error(err))
			}
			if err := r.Markers.ClearRateLimited(kind); err != nil {
				log.Warn("clear rate limit", zap.Error(err))
			}
		}
		log.Info("review approved", zap.Int("cycle_count", out.CycleCount), zap.String("diff_hash", id.DiffHash))
		return out, nil
	}

	out.CycleCount = cycles + 1
	if !r.DryRun {
		n, err := r.Markers.BumpCycle(kind, id.Branch)
		if err != nil {
			return out, fmt.Errorf("bump cycle: %w", err)
		}
		out.CycleCount = n
		f := marker.Findings{
			HighestSeverity: string(v.Highest()),
			Counts:          v.Counts(),
			Commit:          id.Commit,
			RecordedAt:      r.Now().UTC(),
		}
		if err := r.Markers.WriteFindings(kind, id.Branch, f); err != nil {
			log.Warn("write findings", zap.Error(err))
		}
	}
	log.Info("review not approved",
		zap.Int("cycle_count", out.CycleCount),
		zap.String("highest_severity", string(v.Highest())),
		zap.Strings("patterns", v.MatchedPatterns))
	return out, nil
}

func (r *Runner) markRateLimited(kind string) error {
	if r.DryRun {
		return nil
	}
	if err := r.Markers.MarkRateLimited(kind, r.Now().Add(r.Config.RateLimitTTL)); err != nil {
		return fmt.Errorf("mark rate limited: %w", err)
	}
	return nil
}
