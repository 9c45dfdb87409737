package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/revgate/internal/git"
	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/review"
)

var (
	reviewBase  string
	reviewPrint bool
)

var reviewCmd = &cobra.Command{
	Use:   "review [kind]",
	Short: "Review the current branch and record the outcome",
	Long: `Runs the reviewer configured under reviewers.<kind> against the diff of the
current branch, parses its verdict and records it.

An approval writes a marker for the current commit and diff hash. Otherwise
the review cycle count is bumped and the highest open severity recorded.
Kind defaults to gate.primary_kind.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := viper.GetString("gate.primary_kind")
		if len(args) > 0 {
			kind = args[0]
		}
		return reviewRun(cmd.Context(), kind)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewBase, "base", "", "Base branch (default origin/HEAD, main or master)")
	reviewCmd.Flags().BoolVar(&reviewPrint, "print", false, "Print the reviewer output")
	rootCmd.AddCommand(reviewCmd)
}

func reviewRun(ctx context.Context, kind string) error {
	dir := currentDir()
	rev, err := buildReviewer(kind, dir)
	if err != nil {
		return err
	}
	markers, err := markerStore(ctx, dir)
	if err != nil {
		return fmt.Errorf("resolve markers dir: %w", err)
	}

	cfg := review.DefaultConfig()
	cfg.Blocking = blockingSeverities()
	runner := review.NewRunner(git.NewClient(), markers, cfg, logger)
	runner.Base = reviewBase
	runner.DryRun = dryRun

	ui.Info("Running %s review...", output.Cyan(kind))
	out, err := runner.Run(ctx, dir, kind, rev)
	if out != nil {
		recordReviewRun(ctx, out, err)
		if reviewPrint && out.Output != "" {
			fmt.Fprintln(ui.Out, out.Output)
		}
	}
	if errors.Is(err, review.ErrEmptyDiff) {
		ui.Info("%v", err)
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case out.RateLimited:
		ui.Warning("%s is rate limited; the %s review can stand in until it recovers", kind, viper.GetString("gate.fallback_kind"))
	case out.Approved:
		if dryRun {
			ui.DryRunMsg("Would write marker %s", out.Marker.Format())
		}
		ui.Success("%s review %s %s at %s (cycle %d)", kind, output.OutcomeColor("approved"),
			output.Cyan(out.Identity.Branch), shortHash(out.Identity.Commit), out.CycleCount)
	default:
		for _, f := range out.Verdict.Findings {
			fmt.Fprintf(ui.Out, "  [%s] %s\n", output.SeverityColor(string(f.Severity)), f.Text)
		}
		ui.Error("%s review did not approve %s (cycle %d, highest severity %s)", kind,
			output.Cyan(out.Identity.Branch), out.CycleCount, orNone(string(out.Verdict.Highest())))
		exitCode = ExitBlock
	}
	return nil
}

func recordReviewRun(ctx context.Context, out *review.Outcome, runErr error) {
	s := auditStore()
	if s == nil {
		return
	}
	r := &models.ReviewRun{
		Kind:            out.Kind,
		Reviewer:        out.Reviewer,
		Branch:          out.Identity.Branch,
		Commit:          out.Identity.Commit,
		DiffHash:        out.Identity.DiffHash,
		Approved:        out.Approved,
		RateLimited:     out.RateLimited,
		CycleCount:      out.CycleCount,
		HighestSeverity: string(out.Verdict.Highest()),
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if err := s.RecordReviewRun(ctx, r); err != nil {
		logger.Warn("record review run", zap.Error(err))
	}
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
