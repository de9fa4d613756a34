package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	dataDirName = ".coresight"
	// DefaultDatabasePath is used by init when no path is given
	DefaultDatabasePath = dataDirName + "/coresight.db"
)

// DiscoverDatabase returns the database path from CORESIGHT_DB_PATH, or
// the first .coresight/*.db in the current directory. Parent directories
// are not searched so a nested checkout never picks up an outer database.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("CORESIGHT_DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return discoverDatabaseInDir(dir)
}

func discoverDatabaseInDir(dir string) (string, error) {
	dataDir := filepath.Join(dir, dataDirName)

	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(dataDir)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					absPath, err := filepath.Abs(filepath.Join(dataDir, entry.Name()))
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf(
		"no %s/*.db found in %s\n"+
			"  Run 'coresight init' to create a database in this directory\n"+
			"  Or use --db flag to specify database path explicitly",
		dataDirName, dir)
}

// InitProject creates the .coresight directory and returns the database
// path to use. The database file itself is created on first open.
func InitProject(projectDir, name string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	dataDir := filepath.Join(projectDir, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", dataDirName, err)
	}

	if name == "" {
		name = "coresight"
	}
	if !strings.HasSuffix(name, ".db") {
		name += ".db"
	}

	dbPath := filepath.Join(dataDir, name)
	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}
	return dbPath, nil
}
