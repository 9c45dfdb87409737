package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/revgate/internal/git"
	"github.com/joescharf/revgate/internal/identity"
)

var (
	identityBranch string
	identityBase   string
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the branch, commit and diff hash a marker is compared against",
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver := identity.NewResolver(git.NewClient())
		resolver.Base = identityBase
		dir := currentDir()

		var id identity.Identity
		var err error
		if identityBranch == "" {
			id, err = resolver.Current(cmd.Context(), dir)
		} else {
			id, err = resolver.ForRef(cmd.Context(), dir, identityBranch)
		}
		if err != nil {
			return fmt.Errorf("resolve identity: %w", err)
		}

		ui.Field("Branch", id.Branch)
		ui.Field("Commit", id.Commit)
		ui.Field("Base", id.Base)
		ui.Field("Diff hash", orNone(id.DiffHash))
		return nil
	},
}

func init() {
	identityCmd.Flags().StringVar(&identityBranch, "branch", "", "Branch (default current branch)")
	identityCmd.Flags().StringVar(&identityBase, "base", "", "Base branch (default origin HEAD, main or master)")
	rootCmd.AddCommand(identityCmd)
}
