package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalDir returns the .relaysim directory for a project root.
func LocalDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".relaysim")
}

// GlobalDir returns ~/.relaysim.
func GlobalDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".relaysim"), nil
}
