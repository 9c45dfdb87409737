// Package planreview runs the plan convergence loop: each round fans a plan
// out to every configured reviewer, parses their verdicts and records the
// round in per-session state until all available reviewers approve, the
// iteration ceiling asks for a human, or the session times out.
package planreview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/revgate/internal/identity"
	"github.com/joescharf/revgate/internal/reviewer"
	"github.com/joescharf/revgate/internal/verdict"
)

// ForcedByTimeout marks a round approved by the absolute session timeout.
const ForcedByTimeout = "timeout"

// Finding is a verdict finding attributed to the reviewer that raised it.
type Finding struct {
	Reviewer string           `json:"reviewer"`
	Severity verdict.Severity `json:"severity"`
	Text     string           `json:"text"`
}

// RoundResult is the outcome of RunRound.
type RoundResult struct {
	Decision Result
	Reason   string
	Findings []Finding
	// State is the session after the round. After approval it is the final
	// state, already cleared from disk.
	State    *State
	ForcedBy string
	// Skipped is set when no reviewer ran this round.
	Skipped  bool
	Warnings []string
}

// Engine runs convergence rounds.
type Engine struct {
	Reviewers []reviewer.Reviewer
	Store     *StateStore
	Config    Config
	Clock     func() time.Time
	Log       *zap.Logger
	// DryRun runs reviewers but never writes or clears state.
	DryRun bool
}

// NewEngine returns an Engine. A nil logger logs nothing.
func NewEngine(reviewers []reviewer.Reviewer, store *StateStore, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Reviewers: reviewers, Store: store, Config: cfg, Clock: time.Now, Log: log}
}

type reviewOutcome struct {
	output string
	err    error
}

// RunRound runs one convergence round for sessionID over content. It returns
// an error only when state cannot be read or written or ctx is cancelled.
func (e *Engine) RunRound(ctx context.Context, sessionID, planFile, content string) (*RoundResult, error) {
	now := e.Clock()
	log := e.Log.With(zap.String("session", sessionID))

	st, err := e.Store.Load(sessionID)
	if errors.Is(err, ErrCorruptState) {
		log.Warn("discarding corrupt plan review state", zap.Error(err))
		st, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &State{SessionID: sessionID, StartedAt: now, UpdatedAt: now, Reviews: []Iteration{}}
	}
	if planFile != "" {
		st.PlanFile = planFile
	}

	if e.Config.Timeout > 0 && now.Sub(st.StartedAt) > e.Config.Timeout {
		log.Warn("plan review session timed out; approving",
			zap.Time("started_at", st.StartedAt), zap.Duration("timeout", e.Config.Timeout))
		if err := e.clear(sessionID); err != nil {
			return nil, err
		}
		return &RoundResult{
			Decision: Approved,
			Reason:   fmt.Sprintf("plan review open longer than %s; approving", e.Config.Timeout),
			State:    st,
			ForcedBy: ForcedByTimeout,
			Skipped:  true,
			Warnings: []string{"approved by session timeout without reviewer agreement"},
		}, nil
	}

	hash := identity.ContentHash(content)
	last := st.Last()
	unchanged := last != nil && last.Result == Blocked && last.PlanHash == hash

	if e.Config.MaxIterations > 0 && st.IterationCount >= e.Config.MaxIterations {
		if unchanged {
			log.Info("plan review ceiling reached", zap.Int("iterations", st.IterationCount))
			return &RoundResult{
				Decision: Blocked,
				Reason: fmt.Sprintf("plan review reached %d rounds without agreement; revise the plan or run: revgate plan-review reset --session %s",
					st.IterationCount, sessionID),
				Findings: lastFindings(last),
				State:    st,
				Skipped:  true,
			}, nil
		}
		log.Info("plan changed past the ceiling; resetting iteration count", zap.Int("iterations", st.IterationCount))
		st.IterationCount = 0
	} else if unchanged {
		return &RoundResult{
			Decision: Blocked,
			Reason:   "plan unchanged since the last blocked round; address the findings before requesting review again",
			Findings: lastFindings(last),
			State:    st,
			Skipped:  true,
		}, nil
	}

	round := len(st.Reviews) + 1
	prompt := BuildPrompt(st.PlanFile, content, round, last)
	outcomes := e.fanOut(ctx, prompt)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parser := verdict.Parser{Blocking: e.Config.Blocking}
	it := Iteration{
		Iteration: round,
		Timestamp: e.Clock(),
		PlanHash:  hash,
		Reviewers: make(map[string]*ReviewerResult, len(e.Reviewers)),
		Outputs:   make(map[string]string, len(e.Reviewers)),
	}
	res := &RoundResult{}
	var available int
	approved := true
	var questions, rejecting []string

	for i, r := range e.Reviewers {
		name := r.Name()
		out := outcomes[i]
		it.Outputs[name] = out.output
		if out.err != nil {
			log.Warn("reviewer abstained", zap.String("reviewer", name), zap.Error(out.err))
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s abstained: %v", name, out.err))
			it.Reviewers[name] = nil
			continue
		}
		v := parser.Parse(out.output)
		if v.RateLimited && !v.Approved {
			log.Warn("reviewer rate limited", zap.String("reviewer", name))
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s abstained: rate limited", name))
			it.Reviewers[name] = nil
			continue
		}
		available++
		it.Reviewers[name] = &ReviewerResult{
			Approved:        v.Approved,
			HasQuestions:    v.HasQuestions,
			MatchedPatterns: v.MatchedPatterns,
			Findings:        v.Findings,
		}
		for _, f := range v.Findings {
			res.Findings = append(res.Findings, Finding{Reviewer: name, Severity: f.Severity, Text: f.Text})
		}
		if v.HasQuestions {
			questions = append(questions, name)
		}
		if !v.Approved {
			approved = false
			rejecting = append(rejecting, name)
		}
		log.Debug("reviewer verdict", zap.String("reviewer", name),
			zap.Bool("approved", v.Approved), zap.Bool("has_questions", v.HasQuestions),
			zap.Strings("patterns", v.MatchedPatterns))
	}

	switch {
	case available == 0:
		res.Decision = Approved
		res.Reason = "no reviewer was available; approving"
		res.Warnings = append(res.Warnings, "plan approved without any review")
	case approved:
		res.Decision = Approved
		res.Reason = fmt.Sprintf("all %d available reviewers approved", available)
	default:
		res.Decision = Blocked
		res.Reason = blockedReason(rejecting, questions)
	}

	it.Result = res.Decision
	st.Reviews = append(st.Reviews, it)
	st.IterationCount++
	st.UpdatedAt = it.Timestamp
	res.State = st

	if res.Decision == Approved {
		if err := e.clear(sessionID); err != nil {
			return nil, err
		}
	} else {
		if e.Config.MaxIterations > 0 && st.IterationCount >= e.Config.MaxIterations {
			res.Reason += fmt.Sprintf("; iteration ceiling (%d) reached, a revised plan gets a fresh budget", e.Config.MaxIterations)
		}
		if !e.DryRun {
			if err := e.Store.Save(st); err != nil {
				return nil, fmt.Errorf("save state: %w", err)
			}
		}
	}

	log.Info("plan review round",
		zap.Int("iteration", it.Iteration),
		zap.Int("iteration_count", st.IterationCount),
		zap.String("plan_hash", hash),
		zap.String("result", string(res.Decision)),
		zap.Int("available", available),
		zap.Int("findings", len(res.Findings)),
		zap.String("reason", res.Reason),
	)
	return res, nil
}

// fanOut runs every reviewer concurrently. A failing reviewer does not
// cancel the others; its error is returned in its slot.
func (e *Engine) fanOut(ctx context.Context, prompt string) []reviewOutcome {
	outcomes := make([]reviewOutcome, len(e.Reviewers))
	var g errgroup.Group
	for i, r := range e.Reviewers {
		g.Go(func() error {
			rctx := ctx
			if e.Config.ReviewerTimeout > 0 {
				var cancel context.CancelFunc
				rctx, cancel = context.WithTimeout(ctx, e.Config.ReviewerTimeout)
				defer cancel()
			}
			out, err := r.Review(rctx, prompt)
			if err == nil && rctx.Err() != nil && ctx.Err() == nil {
				err = reviewer.ErrTimeout
			}
			outcomes[i] = reviewOutcome{output: out, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Engine) clear(sessionID string) error {
	if e.DryRun {
		return nil
	}
	if err := e.Store.Clear(sessionID); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

func blockedReason(rejecting, questions []string) string {
	sort.Strings(rejecting)
	reason := "not approved by " + strings.Join(rejecting, ", ")
	if len(questions) > 0 {
		sort.Strings(questions)
		reason += "; open questions from " + strings.Join(questions, ", ")
	}
	return reason
}

func lastFindings(it *Iteration) []Finding {
	if it == nil {
		return nil
	}
	names := make([]string, 0, len(it.Reviewers))
	for name := range it.Reviewers {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []Finding
	for _, name := range names {
		if r := it.Reviewers[name]; r != nil {
			for _, f := range r.Findings {
				out = append(out, Finding{Reviewer: name, Severity: f.Severity, Text: f.Text})
			}
		}
	}
	return out
}
