package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/revgate/internal/git"
	"github.com/joescharf/revgate/internal/identity"
	"github.com/joescharf/revgate/internal/marker"
	"github.com/joescharf/revgate/internal/output"
)

var markerBranch string

var markerCmd = &cobra.Command{
	Use:   "marker",
	Short: "Inspect and maintain review markers",
}

var markerShowCmd = &cobra.Command{
	Use:   "show [kind]",
	Short: "Show the marker of a branch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return markerShowRun(cmd.Context(), kindArg(args))
	},
}

var markerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all markers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return markerListRun(cmd.Context())
	},
}

var markerClearCmd = &cobra.Command{
	Use:   "clear <kind>",
	Short: "Remove the marker and findings of a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return markerClearRun(cmd.Context(), args[0])
	},
}

var markerBumpCmd = &cobra.Command{
	Use:   "bump <kind>",
	Short: "Increment the review cycle count of a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return markerBumpRun(cmd.Context(), args[0])
	},
}

var markerWriteCmd = &cobra.Command{
	Use:   "write <kind>",
	Short: "Record an approval for the current commit and diff",
	Long: `Records a marker for the current identity without running a reviewer, for
review tooling that runs outside revgate. The cycle count restarts at zero.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return markerWriteRun(cmd.Context(), args[0])
	},
}

func init() {
	markerCmd.PersistentFlags().StringVar(&markerBranch, "branch", "", "Branch (default current branch)")
	markerCmd.AddCommand(markerShowCmd)
	markerCmd.AddCommand(markerListCmd)
	markerCmd.AddCommand(markerClearCmd)
	markerCmd.AddCommand(markerBumpCmd)
	markerCmd.AddCommand(markerWriteCmd)
	rootCmd.AddCommand(markerCmd)
}

func kindArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return viper.GetString("gate.primary_kind")
}

// markerTarget returns the marker store and branch the marker commands act on.
func markerTarget(ctx context.Context) (*marker.Store, string, error) {
	dir := currentDir()
	markers, err := markerStore(ctx, dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolve markers dir: %w", err)
	}
	branch := markerBranch
	if branch == "" {
		branch, err = git.NewClient().CurrentBranch(ctx, dir)
		if err != nil {
			return nil, "", fmt.Errorf("current branch: %w", err)
		}
	}
	return markers, branch, nil
}

func markerShowRun(ctx context.Context, kind string) error {
	markers, branch, err := markerTarget(ctx)
	if err != nil {
		return err
	}
	m, err := markers.Read(kind, branch)
	if err != nil {
		return err
	}
	if m == nil {
		ui.Info("No %s marker for %s", kind, output.Cyan(branch))
		return nil
	}

	ui.Field("File", markers.Path(kind, branch))
	ui.Field("Branch", m.Branch)
	ui.Field("Commit", orNone(m.Commit))
	ui.Field("Diff hash", orNone(m.DiffHash))
	ui.Field("Cycles", m.CycleCount)

	if f, err := markers.ReadFindings(kind, branch); err == nil && f != nil {
		ui.Field("Findings", fmt.Sprintf("highest %s %v", output.SeverityColor(f.HighestSeverity), f.Counts))
	}
	return nil
}

func markerListRun(ctx context.Context) error {
	markers, err := markerStore(ctx, currentDir())
	if err != nil {
		return fmt.Errorf("resolve markers dir: %w", err)
	}
	entries, err := markers.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		ui.Info("No markers in %s", markers.Dir)
		return nil
	}

	table := ui.Table([]string{"Kind", "Branch", "Commit", "Diff hash", "Cycles", "State"})
	for _, e := range entries {
		if e.Err != nil {
			_ = table.Append([]string{e.Kind, "", "", "", "", output.Red("corrupt")})
			continue
		}
		state := output.Yellow("cycles only")
		if e.Marker.Approved() {
			state = output.Green("approved")
		}
		_ = table.Append([]string{e.Kind, e.Marker.Branch, shortHash(e.Marker.Commit), e.Marker.DiffHash,
			strconv.Itoa(e.Marker.CycleCount), state})
	}
	return table.Render()
}

func markerClearRun(ctx context.Context, kind string) error {
	markers, branch, err := markerTarget(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would remove %s", markers.Path(kind, branch))
		return nil
	}
	if err := markers.Remove(kind, branch); err != nil {
		return err
	}
	logger.Info("marker cleared", zap.String("kind", kind), zap.String("branch", branch))
	ui.Success("Cleared %s marker for %s", kind, output.Cyan(branch))
	return nil
}

func markerBumpRun(ctx context.Context, kind string) error {
	markers, branch, err := markerTarget(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would bump the %s cycle count for %s", kind, branch)
		return nil
	}
	n, err := markers.BumpCycle(kind, branch)
	if err != nil {
		return err
	}
	logger.Info("marker cycle bumped", zap.String("kind", kind), zap.String("branch", branch), zap.Int("cycle_count", n))
	fmt.Fprintln(ui.Out, n)
	return nil
}

func markerWriteRun(ctx context.Context, kind string) error {
	markers, branch, err := markerTarget(ctx)
	if err != nil {
		return err
	}
	dir := currentDir()
	resolver := identity.NewResolver(git.NewClient())
	var id identity.Identity
	if markerBranch == "" {
		id, err = resolver.Current(ctx, dir)
	} else {
		id, err = resolver.ForRef(ctx, dir, branch)
	}
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}

	m := marker.Marker{Branch: id.Branch, Commit: id.Commit, DiffHash: id.DiffHash}
	if dryRun {
		ui.DryRunMsg("Would write %s: %s", markers.Path(kind, branch), m.Format())
		return nil
	}
	if err := markers.Write(kind, m); err != nil {
		return err
	}
	_ = markers.ClearFindings(kind, branch)
	logger.Info("marker written", zap.String("kind", kind), zap.String("branch", branch),
		zap.String("commit", id.Commit), zap.String("diff_hash", id.DiffHash))
	ui.Success("Wrote %s marker for %s at %s", kind, output.Cyan(branch), shortHash(id.Commit))
	return nil
}
