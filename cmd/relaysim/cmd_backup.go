package main

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/relaysim/internal/backup"
	"github.com/nvandessel/relaysim/internal/config"
	"github.com/nvandessel/relaysim/internal/pathutil"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive every stored schematic to a backup file",
		Long: `Write all stored schematics to a compressed, checksummed archive.

Default location: <root>/.relaysim/backups/relaysim-backup-YYYYMMDD-HHMMSS.json.gz
Archives outside the retention policy (backup.retention in the config) are
removed after each backup.

Examples:
  relaysim backup
  relaysim backup --output ~/.relaysim/backups/relaysim-backup-manual.json.gz
  relaysim backup list
  relaysim backup verify <file>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if output == "" {
				output = backup.GeneratePath(backup.DefaultDir(a.root), time.Now())
			} else if err := checkBackupPath(a.root, output); err != nil {
				return fmt.Errorf("backup path rejected: %w", err)
			}

			policy, err := retentionPolicy(a.config.Backup.Retention)
			if err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			archive, err := backup.Backup(cmd.Context(), s, output)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			deleted, err := backup.ApplyRetention(filepath.Dir(output), policy)
			if err != nil {
				a.logger.Warn("failed to apply backup retention", "error", err)
			}
			a.logger.Debug("backup written", "path", output, "schematics", len(archive.Schematics), "pruned", len(deleted))

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"path":       output,
					"schematics": len(archive.Schematics),
					"pruned":     deleted,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %d schematic(s)\n", len(archive.Schematics))
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", output)
			if len(deleted) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  Pruned %d old backup(s)\n", len(deleted))
			}
			return nil
		},
	}

	cmd.Flags().String("output", "", "Archive path (default: auto-generated in <root>/.relaysim/backups/)")
	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
	)
	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archives in the project backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			backups, err := backup.List(backup.DefaultDir(root))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if backups == nil {
					backups = []backup.Info{}
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"backups": backups,
					"count":   len(backups),
				})
			}
			if len(backups) == 0 {
				fmt.Fprintln(out, "No backups found.")
				return nil
			}
			for _, b := range backups {
				fmt.Fprintf(out, "%s  %3d schematic(s)  %6d bytes  %s\n",
					filepath.Base(b.Path), b.Schematics, b.Size, b.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check an archive's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			verr := backup.Verify(args[0])
			if jsonOut {
				result := map[string]any{"path": args[0], "valid": verr == nil}
				if verr != nil {
					result["error"] = verr.Error()
				}
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(result); err != nil {
					return err
				}
				return verr
			}
			if verr != nil {
				return fmt.Errorf("backup is corrupt: %w", verr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK %s\n", pathutil.RedactPath(args[0]))
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Load stored schematics from a backup archive",
		Long: `Restore schematics from an archive written by 'relaysim backup'.

Modes:
  merge   - keep stored schematics, skip archived ones with the same name (default)
  replace - remove every stored schematic first

Examples:
  relaysim restore .relaysim/backups/relaysim-backup-20260206-120000.json.gz
  relaysim restore backup.json.gz --mode replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			mode, _ := cmd.Flags().GetString("mode")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := checkBackupPath(a.root, args[0]); err != nil {
				return fmt.Errorf("restore path rejected: %w", err)
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := backup.Restore(cmd.Context(), s, args[0], backup.RestoreMode(mode))
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restore complete (mode: %s)\n", mode)
			fmt.Fprintf(cmd.OutOrStdout(), "  Restored: %d\n", result.Restored)
			if len(result.Skipped) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  Skipped (already stored): %v\n", result.Skipped)
			}
			if result.Removed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  Removed before restore: %d\n", result.Removed)
			}
			return nil
		},
	}

	cmd.Flags().String("mode", string(backup.RestoreMerge), "Restore mode: merge or replace")
	return cmd
}

// checkBackupPath rejects archive paths outside the backup directories.
func checkBackupPath(root, path string) error {
	dirs, err := backup.AllowedDirs(root)
	if err != nil {
		return err
	}
	return pathutil.ValidatePath(path, dirs)
}

// retentionPolicy builds the policy described by the config. With no
// rule configured every archive is kept.
func retentionPolicy(cfg config.RetentionConfig) (backup.Policy, error) {
	var policies backup.AnyPolicy
	if cfg.MaxCount > 0 {
		policies = append(policies, backup.CountPolicy{MaxCount: cfg.MaxCount})
	}
	if cfg.MaxAge != "" {
		d, err := backup.ParseDuration(cfg.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("invalid backup.retention.max_age: %w", err)
		}
		policies = append(policies, backup.AgePolicy{MaxAge: d})
	}
	if len(policies) == 0 {
		return backup.CountPolicy{MaxCount: math.MaxInt}, nil
	}
	return policies, nil
}
