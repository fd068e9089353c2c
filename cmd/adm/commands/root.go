package commands

import (
	"fmt"

	"osscprep/internal/version"

	"github.com/spf13/cobra"
)

// NewRootCommand assembles the adm command tree
func NewRootCommand(env *Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "OSSC question sourcing administration tool",
		Long: `OSSC question sourcing administration tool

Source questions, inspect topic resolution and the question bank, and
manage the sourcing event database from the command line.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			// Show help if no subcommand provided
			if err := cmd.Help(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(QuestionCommands(env))
	rootCmd.AddCommand(TopicCommands(env))
	rootCmd.AddCommand(BankCommands(env))
	rootCmd.AddCommand(DatabaseCommands(env))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get("adm"))
		},
	})
	return rootCmd
}
