// Package gate decides whether a guarded action may proceed.
//
// Review gates (push, PR create, PR merge) require a review marker matching
// the work's commit or diff identity. The main-repo guard keeps history
// rewriting commands out of the main checkout.
package gate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/joescharf/revgate/internal/git"
	"github.com/joescharf/revgate/internal/identity"
	"github.com/joescharf/revgate/internal/marker"
	"github.com/joescharf/revgate/internal/shellcmd"
	"github.com/joescharf/revgate/internal/verdict"
)

// Outcome of an evaluation.
type Outcome string

const (
	Approve Outcome = "approve"
	Block   Outcome = "block"
)

// Path names the rule that decided an evaluation.
type Path string

const (
	PathExempt     Path = "exempt"
	PathBypass     Path = "bypass"
	PathCommit     Path = "commit"
	PathDiff       Path = "diff"
	PathFallback   Path = "fallback"
	PathCycleLimit Path = "cycle-limit"
	PathNoMarker   Path = "no-marker"
	PathStale      Path = "stale"
	PathFailOpen   Path = "fail-open"
	PathMainRepo   Path = "main-repo"
	PathWorktree   Path = "worktree"
	PathNotGated   Path = "not-gated"
	PathBadDir     Path = "unresolved-dir"
)

// Bypass sources that are not environment variables.
const (
	SourceProtectedBranch = "protected-branch"
	SourceRateLimit       = "rate-limit-fallback"
	SourceCycleLimit      = "cycle-limit"
)

// Request is one action to evaluate.
type Request struct {
	Action shellcmd.Action
	Dir    string
	// Branch is the branch whose work is being sent. Empty means the
	// branch checked out in Dir.
	Branch string
	// Base overrides base branch resolution for the diff hash.
	Base string
	// PR selects the pull request of a merge when Branch is empty.
	PR        string
	InlineEnv map[string]string
	// DirErr is set when the command moves to a directory that cannot be
	// resolved. Gated actions then block instead of judging the wrong tree.
	DirErr error
}

// Decision is the result of one evaluation.
type Decision struct {
	Outcome             Outcome
	Reason              string
	BypassSource        string
	Path                Path
	DetectedTargetFiles []string
	Warnings            []string

	Action   shellcmd.Action
	Kind     string
	Branch   string
	Commit   string
	DiffHash string
}

// Approved reports whether the action may proceed.
func (d Decision) Approved() bool { return d.Outcome == Approve }

// Evaluator applies Config to requests.
type Evaluator struct {
	Config Config
	Git    git.Client
	GitHub git.GitHubClient
	Log    *zap.Logger
	Now    func() time.Time
}

// New returns an Evaluator. A nil logger logs nothing.
func New(cfg Config, client git.Client, gh git.GitHubClient, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{Config: cfg, Git: client, GitHub: gh, Log: log, Now: time.Now}
}

// Evaluate decides req. It never returns an error: failures are folded into
// the decision, open for review gates and closed for the main-repo guard.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) Decision {
	var d Decision
	switch req.Action {
	case shellcmd.ActionPush, shellcmd.ActionPRCreate, shellcmd.ActionPRMerge:
		d = e.reviewGate(ctx, req)
	case shellcmd.ActionCommitAmend, shellcmd.ActionCommitAll, shellcmd.ActionBranchRename:
		d = e.mainRepoGuard(ctx, req)
	default:
		d = Decision{Outcome: Approve, Path: PathNotGated, Reason: "action is not gated"}
	}
	d.Action = req.Action

	e.Log.Info("gate decision",
		zap.String("action", string(d.Action)),
		zap.String("outcome", string(d.Outcome)),
		zap.String("path", string(d.Path)),
		zap.String("kind", d.Kind),
		zap.String("branch", d.Branch),
		zap.String("commit", d.Commit),
		zap.String("diff_hash", d.DiffHash),
		zap.String("bypass_source", d.BypassSource),
		zap.String("reason", d.Reason),
		zap.Strings("warnings", d.Warnings),
	)
	return d
}

func failOpen(what string, err error) Decision {
	return Decision{
		Outcome:  Approve,
		Path:     PathFailOpen,
		Reason:   fmt.Sprintf("could not %s; allowing", what),
		Warnings: []string{fmt.Sprintf("%s: %v", what, err)},
	}
}

func unresolvedDir(err error) Decision {
	return Decision{
		Outcome:  Block,
		Path:     PathBadDir,
		Reason:   "cannot tell which repository the command runs in; refusing",
		Warnings: []string{err.Error()},
	}
}

func (e *Evaluator) reviewGate(ctx context.Context, req Request) Decision {
	cfg := e.Config
	if name, ok := cfg.bypass(req.Action, req.InlineEnv); ok {
		return Decision{Outcome: Approve, Path: PathBypass, BypassSource: name, Reason: name + " is set"}
	}
	if req.DirErr != nil {
		return unresolvedDir(req.DirErr)
	}

	branch, base := req.Branch, req.Base
	if branch == "" && req.Action == shellcmd.ActionPRMerge && e.GitHub != nil {
		pr, err := e.GitHub.PullRequest(ctx, req.Dir, req.PR)
		if err != nil {
			return failOpen("look up pull request", err)
		}
		branch = pr.Branch
		if base == "" {
			base = pr.BaseBranch
		}
	}
	if branch == "" {
		current, err := e.Git.CurrentBranch(ctx, req.Dir)
		if err != nil {
			return failOpen("determine current branch", err)
		}
		branch = current
	}

	if cfg.protected(branch) {
		return Decision{
			Outcome:      Approve,
			Path:         PathExempt,
			BypassSource: SourceProtectedBranch,
			Branch:       branch,
			Reason:       fmt.Sprintf("%s is a protected base branch", branch),
		}
	}

	resolver := &identity.Resolver{Git: e.Git, Base: base}
	var id identity.Identity
	var err error
	if req.Branch == "" && req.Action != shellcmd.ActionPRMerge {
		id, err = resolver.Current(ctx, req.Dir)
	} else {
		id, err = resolver.ForRef(ctx, req.Dir, branch)
	}
	if err != nil {
		d := failOpen("resolve review identity", err)
		d.Branch = branch
		return d
	}

	dir, err := marker.ResolveDir(ctx, e.Git, req.Dir, cfg.MarkersDir)
	if err != nil {
		d := failOpen("resolve markers dir", err)
		d.Branch = branch
		return d
	}
	store := marker.NewStore(dir)

	d := e.checkKind(store, cfg.PrimaryKind, id)
	if d.Approved() && cfg.MigrationKind != "" && len(cfg.MigrationGlobs) > 0 {
		d = e.migrationGate(ctx, req.Dir, store, id, d)
	}
	return d
}

// checkKind applies the marker rules for one review kind: identity match,
// rate-limit fallback, cycle exhaustion, otherwise block.
func (e *Evaluator) checkKind(store *marker.Store, kind string, id identity.Identity) Decision {
	cfg := e.Config
	d := Decision{Kind: kind, Branch: id.Branch, Commit: id.Commit, DiffHash: id.DiffHash}

	m := e.readMarker(store, kind, id.Branch)
	if path, ok := matches(m, id); ok {
		d.Outcome, d.Path = Approve, path
		if path == PathDiff {
			d.Reason = fmt.Sprintf("%s review matches the current diff (rebase-skip)", kind)
		} else {
			d.Reason = fmt.Sprintf("%s review matches commit %s", kind, short(id.Commit))
		}
		return d
	}

	if cfg.FallbackKind != "" && cfg.FallbackKind != kind && store.RateLimited(kind, e.Now()) {
		fb := e.readMarker(store, cfg.FallbackKind, id.Branch)
		if _, ok := matches(fb, id); ok {
			d.Outcome, d.Path = Approve, PathFallback
			d.BypassSource = SourceRateLimit
			d.Reason = fmt.Sprintf("%s is rate limited; %s review matches", kind, cfg.FallbackKind)
			d.Warnings = append(d.Warnings, fmt.Sprintf("only the fallback reviewer (%s) ran", cfg.FallbackKind))
			return d
		}
	}

	if m != nil && cfg.CycleCeiling > 0 && m.CycleCount >= cfg.CycleCeiling {
		findings, err := store.ReadFindings(kind, id.Branch)
		if err != nil {
			e.Log.Warn("read findings", zap.String("kind", kind), zap.String("branch", id.Branch), zap.Error(err))
		}
		if findings == nil || !verdict.IsBlocking(verdict.Severity(findings.HighestSeverity), cfg.BlockingSeverities) {
			d.Outcome, d.Path = Approve, PathCycleLimit
			d.BypassSource = SourceCycleLimit
			d.Reason = fmt.Sprintf("%s review reached %d cycles with no blocking findings", kind, m.CycleCount)
			d.Warnings = append(d.Warnings, "review cycle ceiling reached; proceeding without a fresh approval")
			return d
		}
	}

	d.Outcome = Block
	if !m.Approved() {
		d.Path = PathNoMarker
		d.Reason = fmt.Sprintf("no %s review recorded for %s; run: revgate review %s", kind, id.Branch, kind)
	} else {
		d.Path = PathStale
		d.Reason = fmt.Sprintf("new commits since the last %s review of %s (reviewed %s, now %s); run: revgate review %s",
			kind, id.Branch, short(m.Commit), short(id.Commit), kind)
	}
	return d
}

// migrationGate additionally requires a MigrationKind review when the diff
// touches migration files.
func (e *Evaluator) migrationGate(ctx context.Context, dir string, store *marker.Store, id identity.Identity, d Decision) Decision {
	baseRef := id.Base
	if !e.Git.BranchExists(ctx, dir, baseRef) {
		baseRef = "origin/" + id.Base
	}
	names, err := e.Git.DiffNames(ctx, dir, baseRef, id.Commit)
	if err != nil {
		d.Warnings = append(d.Warnings, fmt.Sprintf("migration check skipped: %v", err))
		return d
	}

	var hits []string
	for _, name := range names {
		if matchesAny(name, e.Config.MigrationGlobs) {
			hits = append(hits, name)
		}
	}
	if len(hits) == 0 {
		return d
	}

	md := e.checkKind(store, e.Config.MigrationKind, id)
	md.DetectedTargetFiles = hits
	md.Warnings = append(d.Warnings, md.Warnings...)
	if md.Approved() {
		md.Reason = d.Reason + "; " + md.Reason
	}
	return md
}

func (e *Evaluator) mainRepoGuard(ctx context.Context, req Request) Decision {
	if name, ok := e.Config.bypass(req.Action, req.InlineEnv); ok {
		return Decision{Outcome: Approve, Path: PathBypass, BypassSource: name, Reason: name + " is set"}
	}
	if req.DirErr != nil {
		return unresolvedDir(req.DirErr)
	}

	gitDir, err := e.Git.GitDir(ctx, req.Dir)
	if err == nil {
		var common string
		common, err = e.Git.CommonDir(ctx, req.Dir)
		if err == nil {
			if samePath(gitDir, common) {
				return Decision{
					Outcome: Block,
					Path:    PathMainRepo,
					Reason:  fmt.Sprintf("%s is not allowed in the main checkout; run it from a linked worktree", req.Action),
				}
			}
			return Decision{Outcome: Approve, Path: PathWorktree, Reason: "inside a linked worktree"}
		}
	}
	return Decision{
		Outcome:  Block,
		Path:     PathMainRepo,
		Reason:   "cannot tell whether this is the main checkout; refusing",
		Warnings: []string{err.Error()},
	}
}

func (e *Evaluator) readMarker(store *marker.Store, kind, branch string) *marker.Marker {
	m, err := store.Read(kind, branch)
	if err != nil {
		// Corrupt or unreadable markers count as never reviewed.
		e.Log.Warn("read marker", zap.String("kind", kind), zap.String("branch", branch), zap.Error(err))
		return nil
	}
	return m
}

// matches reports whether m records the identity id, by commit first and
// by diff hash second.
func matches(m *marker.Marker, id identity.Identity) (Path, bool) {
	if !m.Approved() {
		return "", false
	}
	if identity.HashesMatch(m.Commit, id.Commit) {
		return PathCommit, true
	}
	if m.DiffHash != "" && id.DiffHash != "" && identity.HashesMatch(m.DiffHash, id.DiffHash) {
		return PathDiff, true
	}
	return "", false
}

func matchesAny(name string, globs []string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, name); err == nil && ok {
			return true
		}
	}
	return false
}

func samePath(a, b string) bool {
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errors.Join(errA, errB) != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return ra == rb
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	if hash == "" {
		return "none"
	}
	return hash
}
