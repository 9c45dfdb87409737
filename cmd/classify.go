package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/revgate/internal/output"
	"github.com/joescharf/revgate/internal/shellcmd"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <command...>",
	Short: "Show how a shell command line is classified",
	Long: `Runs the command classifier on a shell command line and prints every
guarded sub-command with the values extracted from it. Nothing is evaluated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return classifyRun(strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func classifyRun(raw string) error {
	c := shellcmd.Classify(raw)
	if !c.IsTarget {
		ui.Info("Not a guarded command")
		return nil
	}

	for i, m := range c.Matches {
		fmt.Fprintf(ui.Out, "%d. %s  %s\n", i+1, output.Cyan(string(m.Action)), m.SubCommand)
		for _, k := range slices.Sorted(maps.Keys(m.Extracted)) {
			fmt.Fprintf(ui.Out, "     %-10s %q\n", k, m.Extracted[k])
		}
	}
	return nil
}
