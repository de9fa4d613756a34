package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coresight/coresight/internal/config"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/storage/sqlite"
)

var initNoConfig bool

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Initialize CoreSight in the current directory",
	Long: `Initialize CoreSight by creating a .coresight/ directory with a database.

This creates:
  - .coresight/ directory
  - .coresight/<project-name>.db (SQLite database)
  - .coresight/config.yaml (default configuration, unless --no-config)

If no project name is provided, the database is named coresight.db.

Example:
  cd ~/team
  coresight init                 # Creates .coresight/coresight.db
  coresight init platform        # Creates .coresight/platform.db`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		projectName := ""
		if len(args) > 0 {
			projectName = args[0]
		}

		cwd, err := os.Getwd()
		if err != nil {
			fatalf("failed to get current directory: %v", err)
		}

		dbFile, err := storage.InitProject(cwd, projectName)
		if err != nil {
			fatalf("%v", err)
		}

		// Opening applies the schema
		ctx := context.Background()
		db, err := sqlite.New(ctx, dbFile)
		if err != nil {
			fatalf("failed to initialize database: %v", err)
		}
		_ = db.Close()

		configFile := ""
		if !initNoConfig {
			configFile, err = writeDefaultConfig(cwd)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}

		fmt.Printf("\n%s Initialized CoreSight\n\n", green("✓"))
		fmt.Printf("  Database: %s\n", cyan(dbFile))
		if configFile != "" {
			fmt.Printf("  Config:   %s\n", cyan(configFile))
		}
		fmt.Println()

		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray("coresight import team.yaml     # Load users, projects and tasks"))
		fmt.Printf("  %s\n", gray("coresight process events.jsonl # Feed issues and commits"))
		fmt.Printf("  %s\n", gray("coresight analytics focus"))
		fmt.Println()
	},
}

// writeDefaultConfig writes the default configuration unless one exists.
func writeDefaultConfig(projectDir string) (string, error) {
	path := filepath.Join(projectDir, config.DefaultPath)
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to check %s: %w", path, err)
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func init() {
	initCmd.Flags().BoolVar(&initNoConfig, "no-config", false, "Do not write .coresight/config.yaml")
	rootCmd.AddCommand(initCmd)
}
