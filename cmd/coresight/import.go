package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Load users, projects, tasks and work sessions from YAML",
	Long: `Load a team snapshot from a YAML document with top-level keys
users, projects, tasks and sessions. Users and tasks are embedded on import.

Example:
  users:
    - id: u-alice
      name: Alice
      email: alice@example.com
      skills: [Go, PostgreSQL]
      hourly_rate: 50
  tasks:
    - title: Fix login redirect
      description: OAuth callback drops the return URL
      required_skills: [Go, OAuth]
      priority: high`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		defer f.Close()

		seed, err := ParseSeed(f)
		if err != nil {
			fatalf("%v", err)
		}

		a := mustApp(cmd)
		stats, err := seed.Load(cmd.Context(), a.Store, a.Embedder)
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Imported %d users, %d projects, %d tasks, %d sessions\n",
			green("✓"), stats.Users, stats.Projects, stats.Tasks, stats.Sessions)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
