package main

import (
	"github.com/spf13/cobra"

	"github.com/coresight/coresight/internal/repl"
)

var shellCmd = &cobra.Command{
	Use:     "shell",
	Aliases: []string{"repl"},
	Short:   "Start the interactive shell",
	Long: `Start an interactive shell for browsing users and tasks, assigning work
and running analytics reports.

Type 'help' in the shell for available commands.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		r, err := repl.New(&repl.Config{
			Store:    a.Store,
			Assigner: a.Matcher,
			Reporter: a.Analytics,
		})
		if err != nil {
			fatalf("failed to create shell: %v", err)
		}
		if err := r.Run(cmd.Context()); err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
