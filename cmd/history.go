package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/store"
)

const historyTimeFormat = "2006-01-02 15:04"

var (
	historyBranch  string
	historyAction  string
	historySession string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded gate decisions, plan rounds and review runs",
}

var historyGateCmd = &cobra.Command{
	Use:   "gate",
	Short: "List gate decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		events, err := s.ListGateEvents(cmd.Context(), store.EventFilter{
			Branch: historyBranch, Action: historyAction, Limit: historyLimit,
		})
		if err != nil {
			return fmt.Errorf("list gate events: %w", err)
		}
		if len(events) == 0 {
			ui.Info("No gate decisions recorded")
			return nil
		}

		table := ui.Table([]string{"Time", "Action", "Outcome", "Path", "Branch", "Commit", "Reason"})
		for _, e := range events {
			_ = table.Append([]string{
				e.CreatedAt.Local().Format(historyTimeFormat),
				e.Action,
				output.OutcomeColor(string(e.Outcome)),
				e.Path,
				e.Branch,
				shortHash(e.Commit),
				truncate(e.Reason, 60),
			})
		}
		return table.Render()
	},
}

var historyPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "List plan review rounds",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		rounds, err := s.ListPlanRounds(cmd.Context(), historySession, historyLimit)
		if err != nil {
			return fmt.Errorf("list plan rounds: %w", err)
		}
		if len(rounds) == 0 {
			ui.Info("No plan review rounds recorded")
			return nil
		}

		table := ui.Table([]string{"Time", "Session", "Iteration", "Result", "Findings", "Highest", "Note"})
		for _, r := range rounds {
			note := r.ForcedBy
			if r.Skipped {
				note = "skipped"
			}
			_ = table.Append([]string{
				r.CreatedAt.Local().Format(historyTimeFormat),
				r.SessionID,
				strconv.Itoa(r.Iteration),
				output.OutcomeColor(r.Result),
				strconv.Itoa(r.FindingCount),
				output.SeverityColor(r.HighestSeverity),
				note,
			})
		}
		return table.Render()
	},
}

var historyReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List review runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		runs, err := s.ListReviewRuns(cmd.Context(), store.EventFilter{
			Branch: historyBranch, Action: historyAction, Limit: historyLimit,
		})
		if err != nil {
			return fmt.Errorf("list review runs: %w", err)
		}
		if len(runs) == 0 {
			ui.Info("No review runs recorded")
			return nil
		}

		table := ui.Table([]string{"Time", "Kind", "Reviewer", "Branch", "Commit", "Result", "Cycles", "Highest"})
		for _, r := range runs {
			result := output.OutcomeColor("blocked")
			switch {
			case r.Error != "":
				result = output.Red("error")
			case r.RateLimited:
				result = output.Yellow("rate-limited")
			case r.Approved:
				result = output.OutcomeColor("approved")
			}
			_ = table.Append([]string{
				r.CreatedAt.Local().Format(historyTimeFormat),
				r.Kind,
				r.Reviewer,
				r.Branch,
				shortHash(r.Commit),
				result,
				strconv.Itoa(r.CycleCount),
				output.SeverityColor(r.HighestSeverity),
			})
		}
		return table.Render()
	},
}

func init() {
	historyCmd.PersistentFlags().IntVar(&historyLimit, "limit", 20, "Maximum number of rows (0 for all)")
	historyGateCmd.Flags().StringVar(&historyBranch, "branch", "", "Filter by branch")
	historyGateCmd.Flags().StringVar(&historyAction, "action", "", "Filter by action (push, pr-create, ...)")
	historyPlanCmd.Flags().StringVar(&historySession, "session", "", "Filter by session ID")
	historyReviewCmd.Flags().StringVar(&historyBranch, "branch", "", "Filter by branch")
	historyReviewCmd.Flags().StringVar(&historyAction, "kind", "", "Filter by review kind")

	historyCmd.AddCommand(historyGateCmd)
	historyCmd.AddCommand(historyPlanCmd)
	historyCmd.AddCommand(historyReviewCmd)
	rootCmd.AddCommand(historyCmd)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
