package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/revgate/internal/identity"
	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/planreview"
	"github.com/joescharf/revgate/internal/reviewer"
	"github.com/joescharf/revgate/internal/verdict"
)

var (
	planSession string
	planFile    string
)

const defaultSession = "default"

var planReviewCmd = &cobra.Command{
	Use:   "plan-review",
	Short: "Run and inspect plan convergence sessions",
}

var planReviewRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one convergence round over a plan",
	Long: `Runs every configured plan reviewer concurrently over the plan read from
--plan-file (or stdin) and records the round in the session state.

Exits 2 when the round is blocked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return planReviewRunRun(cmd.Context(), cmd.InOrStdin())
	},
}

var planReviewStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted state of a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return planReviewStatusRun(cmd.Context())
	},
}

var planReviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions with persisted state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return planReviewListRun(cmd.Context())
	},
}

var planReviewResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Abandon a session and clear its state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return planReviewResetRun(cmd.Context())
	},
}

func init() {
	planReviewCmd.PersistentFlags().StringVar(&planSession, "session", defaultSession, "Session ID")
	planReviewRunCmd.Flags().StringVar(&planFile, "plan-file", "", "Plan file (default stdin)")

	planReviewCmd.AddCommand(planReviewRunCmd)
	planReviewCmd.AddCommand(planReviewStatusCmd)
	planReviewCmd.AddCommand(planReviewListCmd)
	planReviewCmd.AddCommand(planReviewResetCmd)
	rootCmd.AddCommand(planReviewCmd)
}

// planReviewers builds the reviewers named by plan_review.reviewers.
// Misconfigured reviewers are skipped with a warning.
func planReviewers(dir string) []reviewer.Reviewer {
	var out []reviewer.Reviewer
	for _, name := range viper.GetStringSlice("plan_review.reviewers") {
		r, err := buildReviewer(name, dir)
		if err != nil {
			logger.Warn("skipping plan reviewer", zap.String("reviewer", name), zap.Error(err))
			ui.Warning("Skipping plan reviewer %s: %v", name, err)
			continue
		}
		out = append(out, r)
	}
	return out
}

// runPlanRound runs one round for sessionID in the project containing dir
// and records it in the audit store.
func runPlanRound(ctx context.Context, dir, sessionID, file, content string) (*planreview.RoundResult, error) {
	if sessionID == "" {
		sessionID = defaultSession
	}
	projectDir := repoRootOrDir(ctx, dir)
	engine := planreview.NewEngine(planReviewers(projectDir), planreview.NewStateStore(projectDir), planreview.DefaultConfig(), logger)
	engine.DryRun = dryRun

	res, err := engine.RunRound(ctx, sessionID, file, content)
	if err != nil {
		return nil, err
	}

	if s := auditStore(); s != nil {
		round := &models.PlanRound{
			SessionID:    sessionID,
			PlanFile:     file,
			PlanHash:     identity.ContentHash(content),
			Result:       string(res.Decision),
			Reason:       res.Reason,
			ForcedBy:     res.ForcedBy,
			Skipped:      res.Skipped,
			FindingCount: len(res.Findings),
		}
		if last := res.State.Last(); last != nil {
			round.Iteration = last.Iteration
		}
		round.HighestSeverity = string(highestSeverity(res.Findings))
		if err := s.RecordPlanRound(ctx, round); err != nil {
			logger.Warn("record plan round", zap.Error(err))
		}
	}
	return res, nil
}

func highestSeverity(findings []planreview.Finding) verdict.Severity {
	var top verdict.Severity
	for _, f := range findings {
		if f.Severity.Rank() > top.Rank() {
			top = f.Severity
		}
	}
	return top
}

func planReviewRunRun(ctx context.Context, in io.Reader) error {
	var data []byte
	var err error
	if planFile != "" {
		data, err = os.ReadFile(planFile)
	} else {
		data, err = io.ReadAll(in)
	}
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}

	res, err := runPlanRound(ctx, currentDir(), planSession, planFile, string(data))
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		ui.Warning("%s", w)
	}
	if len(res.Findings) > 0 {
		table := ui.Table([]string{"Severity", "Reviewer", "Finding"})
		for _, f := range res.Findings {
			_ = table.Append([]string{output.SeverityColor(string(f.Severity)), f.Reviewer, f.Text})
		}
		_ = table.Render()
	}

	if res.Decision == planreview.Approved {
		ui.Success("Plan %s: %s", output.OutcomeColor(string(res.Decision)), res.Reason)
		return nil
	}
	ui.Error("Plan %s: %s", output.OutcomeColor(string(res.Decision)), res.Reason)
	exitCode = ExitBlock
	return nil
}

func planReviewStatusRun(ctx context.Context) error {
	projectDir := repoRootOrDir(ctx, currentDir())
	st, err := planreview.NewStateStore(projectDir).Load(planSession)
	if err != nil {
		return err
	}
	if st == nil {
		ui.Info("No plan review in progress for session %s", output.Cyan(planSession))
		return nil
	}

	cfg := planreview.DefaultConfig()
	ui.Info("Session %s", output.Cyan(st.SessionID))
	if st.PlanFile != "" {
		ui.Field("Plan file", st.PlanFile)
	}
	ui.Field("Iterations", fmt.Sprintf("%d / %d", st.IterationCount, cfg.MaxIterations))
	ui.Field("Started", fmt.Sprintf("%s (%s ago)", st.StartedAt.Local().Format(time.DateTime), time.Since(st.StartedAt).Round(time.Second)))
	ui.Field("Updated", st.UpdatedAt.Local().Format(time.DateTime))
	fmt.Fprintln(ui.Out)

	table := ui.Table([]string{"Round", "Result", "Plan hash", "Reviewer", "Verdict"})
	for _, it := range st.Reviews {
		for _, name := range slices.Sorted(maps.Keys(it.Reviewers)) {
			r := it.Reviewers[name]
			v := "abstained"
			if r != nil {
				v = "changes requested"
				switch {
				case r.Approved:
					v = "approved"
				case r.HasQuestions:
					v = "questions"
				}
			}
			_ = table.Append([]string{strconv.Itoa(it.Iteration), output.OutcomeColor(string(it.Result)), it.PlanHash, name, v})
		}
	}
	return table.Render()
}

func planReviewListRun(ctx context.Context) error {
	projectDir := repoRootOrDir(ctx, currentDir())
	states, err := planreview.NewStateStore(projectDir).List()
	if err != nil {
		return err
	}
	if len(states) == 0 {
		ui.Info("No plan review sessions in progress")
		return nil
	}

	table := ui.Table([]string{"Session", "Plan file", "Iterations", "Last result", "Updated"})
	for _, st := range states {
		last := ""
		if it := st.Last(); it != nil {
			last = output.OutcomeColor(string(it.Result))
		}
		_ = table.Append([]string{st.SessionID, st.PlanFile, strconv.Itoa(st.IterationCount), last,
			st.UpdatedAt.Local().Format(time.DateTime)})
	}
	return table.Render()
}

func planReviewResetRun(ctx context.Context) error {
	projectDir := repoRootOrDir(ctx, currentDir())
	states := planreview.NewStateStore(projectDir)
	if dryRun {
		ui.DryRunMsg("Would remove %s", states.Path(planSession))
		return nil
	}
	if err := states.Clear(planSession); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	logger.Info("plan review reset", zap.String("session", planSession))
	ui.Success("Cleared plan review session %s", output.Cyan(planSession))
	return nil
}
