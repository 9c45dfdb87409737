package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joescharf/revgate/internal/gate"
	"github.com/joescharf/revgate/internal/git"
	"github.com/joescharf/revgate/internal/hookio"
	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/planreview"
	"github.com/joescharf/revgate/internal/shellcmd"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate a host tool-call payload read from stdin",
	Long: `Reads a tool-call payload (JSON) on stdin and decides whether it may proceed.

Bash commands are classified and any push, PR create/merge or history-rewriting
command in them is gated. ExitPlanMode calls run one plan review round.
Exits 2 with the reason on stderr when the call is blocked. Malformed payloads
are allowed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkRun(cmd.Context(), cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkRun(ctx context.Context, in io.Reader) error {
	payload, err := hookio.Decode(in)
	if err != nil {
		logger.Warn("malformed hook payload; allowing", zap.Error(err))
		ui.VerboseLog("Malformed payload, allowing: %v", err)
		return nil
	}

	dir := payload.Cwd
	if workDir != "" || dir == "" {
		dir = currentDir()
	}

	if plan, ok := payload.Plan(); ok {
		return checkPlan(ctx, dir, payload.SessionID, plan)
	}

	var reqs []gate.Request
	if pr, ok := payload.StructuredPR(); ok {
		reqs = append(reqs, gate.Request{Action: pr.Action, Dir: dir, Branch: headBranch(pr.Head), Base: pr.Base, PR: pr.Number})
	} else if command, ok := payload.Command(); ok {
		for _, m := range shellcmd.Classify(command).Matches {
			reqs = append(reqs, gateRequest(m, dir))
		}
	}
	if len(reqs) == 0 {
		return nil
	}

	eval := gate.New(gateConfig(ctx, dir), git.NewClient(), git.NewGitHubClient(), logger)
	for _, req := range reqs {
		d := eval.Evaluate(ctx, req)
		recordDecision(ctx, req.Dir, d)
		for _, w := range d.Warnings {
			ui.Warning("%s", w)
		}
		if !d.Approved() {
			ui.Error("revgate blocked %s: %s", d.Action, d.Reason)
			if len(d.DetectedTargetFiles) > 0 {
				ui.Error("migration files: %v", d.DetectedTargetFiles)
			}
			exitCode = ExitBlock
			return nil
		}
		ui.VerboseLog("%s allowed (%s): %s", d.Action, d.Path, d.Reason)
	}
	return nil
}

func checkPlan(ctx context.Context, dir, sessionID, plan string) error {
	res, err := runPlanRound(ctx, dir, sessionID, "", plan)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.Warn("plan review failed; allowing", zap.Error(err))
		ui.Warning("Plan review failed, allowing: %v", err)
		return nil
	}
	for _, w := range res.Warnings {
		ui.Warning("%s", w)
	}
	if res.Decision == planreview.Blocked {
		ui.Error("Plan review blocked: %s", res.Reason)
		for _, f := range res.Findings {
			ui.Error("  [%s] %s (%s)", f.Severity, f.Text, f.Reviewer)
		}
		exitCode = ExitBlock
	}
	return nil
}

// recordDecision writes a gate decision to the audit store, best effort.
func recordDecision(ctx context.Context, dir string, d gate.Decision) {
	s := auditStore()
	if s == nil {
		return
	}
	e := &models.GateEvent{
		Action:              string(d.Action),
		Outcome:             models.GateOutcome(d.Outcome),
		Path:                string(d.Path),
		Reason:              d.Reason,
		BypassSource:        d.BypassSource,
		Kind:                d.Kind,
		Branch:              d.Branch,
		Commit:              d.Commit,
		DiffHash:            d.DiffHash,
		Dir:                 dir,
		Warnings:            d.Warnings,
		DetectedTargetFiles: d.DetectedTargetFiles,
	}
	if err := s.RecordGateEvent(ctx, e); err != nil {
		logger.Warn("record gate event", zap.Error(err))
	}
}
