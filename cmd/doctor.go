package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/revgate/internal/doctor"
	"github.com/joescharf/revgate/internal/git"
	"github.com/joescharf/revgate/internal/marker"
	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/reviewer"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that this repository is set up for gating",
	Long:  "Checks for git, gh and the configured reviewer commands, a writable and ignored markers dir, and a host hook that runs 'revgate check'.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorRun(cmd *cobra.Command) error {
	ctx := cmd.Context()
	dir := currentDir()
	client := git.NewClient()

	root, err := marker.MainRepoRoot(ctx, client, dir)
	if err != nil {
		return fmt.Errorf("not in a git repository: %w", err)
	}
	rel := viper.GetString("markers.dir")
	markersDir, err := marker.ResolveDir(ctx, client, dir, rel)
	if err != nil {
		return fmt.Errorf("resolve markers dir: %w", err)
	}

	home, _ := os.UserHomeDir()
	checks := doctor.NewChecker().Run(doctor.Options{
		RepoRoot:   root,
		MarkersDir: markersDir,
		MarkersRel: rel,
		HomeDir:    home,
		Tools:      doctorTools(),
	})

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(filepath.Base(root)))
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
		ui.Check(c.Passed, c.Name, c.Detail)
	}
	fmt.Fprintf(ui.Out, "  Score: %d/%d\n", passed, len(checks))
	if !doctor.Passed(checks) {
		exitCode = ExitError
	}
	return nil
}

// doctorTools lists git, gh and every command reviewer the gate or plan
// review can invoke.
func doctorTools() []doctor.Tool {
	tools := []doctor.Tool{
		{Label: "git", Command: "git"},
		{Label: "gh", Command: "gh"},
	}
	kinds := []string{
		viper.GetString("gate.primary_kind"),
		viper.GetString("gate.fallback_kind"),
		viper.GetString("gate.migration_kind"),
	}
	kinds = append(kinds, viper.GetStringSlice("plan_review.reviewers")...)

	seen := map[string]bool{}
	for _, kind := range kinds {
		if kind == "" || seen[kind] {
			continue
		}
		seen[kind] = true
		var spec reviewer.Spec
		if err := viper.UnmarshalKey("reviewers."+kind, &spec); err != nil {
			continue
		}
		if spec.Type != "" && spec.Type != reviewer.TypeCommand {
			continue
		}
		command := spec.Command
		if command == "" {
			command = kind
		}
		tools = append(tools, doctor.Tool{Label: "Reviewer " + kind, Command: command})
	}
	return tools
}
