// Package backup archives the schematic store to checksummed, compressed
// files and restores it from them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/relaysim/internal/store"
)

// filePrefix and fileSuffix frame every generated archive name.
const (
	filePrefix = "relaysim-backup-"
	fileSuffix = ".json.gz"
)

// DefaultDir returns <root>/.relaysim/backups.
func DefaultDir(root string) string {
	return filepath.Join(store.LocalDir(root), "backups")
}

// AllowedDirs returns the directories archives may be written to or read
// from: the project's backup directory and ~/.relaysim/backups.
func AllowedDirs(root string) ([]string, error) {
	global, err := store.GlobalDir()
	if err != nil {
		return nil, err
	}
	return []string{DefaultDir(root), filepath.Join(global, "backups")}, nil
}

// GeneratePath returns a timestamped archive path in dir.
func GeneratePath(dir string, now time.Time) string {
	return filepath.Join(dir, filePrefix+now.Format("20060102-150405")+fileSuffix)
}

// Backup writes every schematic in s to an archive at path.
func Backup(ctx context.Context, s store.SchematicStore, path string) (*Archive, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing schematics: %w", err)
	}

	a := &Archive{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
	}
	for _, r := range records {
		a.Schematics = append(a.Schematics, r.Document)
	}

	if err := Write(path, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RestoreMode controls how restore treats schematics already in the store.
type RestoreMode string

const (
	// RestoreMerge keeps stored schematics and skips archived ones with the same name.
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace empties the store before restoring.
	RestoreReplace RestoreMode = "replace"
)

// RestoreResult counts what a restore did.
type RestoreResult struct {
	Restored int      `json:"restored"`
	Skipped  []string `json:"skipped,omitempty"`
	Removed  int      `json:"removed"`
}

// Restore loads the archive at path into s. Every archived document is
// validated before the store is touched.
func Restore(ctx context.Context, s store.SchematicStore, path string, mode RestoreMode) (*RestoreResult, error) {
	if mode != RestoreMerge && mode != RestoreReplace {
		return nil, fmt.Errorf("unknown restore mode %q", mode)
	}

	a, err := Read(path)
	if err != nil {
		return nil, err
	}
	for _, doc := range a.Schematics {
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("archived schematic %q: %w", doc.Name, err)
		}
	}

	result := &RestoreResult{}

	if mode == RestoreReplace {
		existing, err := s.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing schematics: %w", err)
		}
		for _, r := range existing {
			if err := s.Delete(ctx, r.Name); err != nil {
				return nil, fmt.Errorf("removing %s: %w", r.Name, err)
			}
			result.Removed++
		}
	}

	for _, doc := range a.Schematics {
		if mode == RestoreMerge {
			_, err := s.Load(ctx, doc.Name)
			if err == nil {
				result.Skipped = append(result.Skipped, doc.Name)
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("checking %s: %w", doc.Name, err)
			}
		}
		if _, err := s.Save(ctx, doc); err != nil {
			return nil, fmt.Errorf("restoring %s: %w", doc.Name, err)
		}
		result.Restored++
	}

	return result, nil
}
