package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/orgsim/internal/export"
)

func newExportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Manage CSV exports in the export directory",
	}
	cmd.AddCommand(
		newExportsListCmd(),
		newExportsPruneCmd(),
	)
	return cmd
}

func newExportsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List CSV exports, newest first",
		Long: `List the orgsim-*.csv files written by finished runs.

Examples:
  orgsim exports list
  orgsim exports list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.Export.Dir

			files, err := export.ListFiles(dir)
			if err != nil {
				return fmt.Errorf("failed to list exports: %w", err)
			}

			if jsonOut {
				type jsonEntry struct {
					Path       string `json:"path"`
					Size       int64  `json:"size_bytes"`
					FinishedAt string `json:"finished_at"`
				}
				entries := make([]jsonEntry, 0, len(files))
				for _, f := range files {
					entries = append(entries, jsonEntry{
						Path:       f.Path,
						Size:       f.Size,
						FinishedAt: f.FinishedAt.Format(time.RFC3339),
					})
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"exports":     entries,
					"total_count": len(entries),
					"directory":   dir,
				})
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintf(out, "No exports found in %s\n", dir)
				return nil
			}

			fmt.Fprintf(out, "Exports in %s:\n", dir)
			var totalSize int64
			for _, f := range files {
				totalSize += f.Size
				fmt.Fprintf(out, "  %s  %8s  %s\n",
					f.FinishedAt.Local().Format("2006-01-02 15:04"),
					humanize.Bytes(uint64(f.Size)),
					filepath.Base(f.Path),
				)
			}
			fmt.Fprintf(out, "Total: %d exports, %s\n", len(files), humanize.Bytes(uint64(totalSize)))
			return nil
		},
	}
}

func newExportsPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Apply the export retention policy now",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			policy, err := cfg.Export.Retention.Policy()
			if err != nil {
				return fmt.Errorf("invalid retention config: %w", err)
			}
			if policy == nil {
				return fmt.Errorf("no retention policy configured (set export.retention.max_count, max_age or max_size)")
			}

			deleted, err := policy.Prune(cfg.Export.Dir, time.Now())
			if err != nil {
				return fmt.Errorf("failed to apply retention: %w", err)
			}

			if jsonOut {
				if deleted == nil {
					deleted = []string{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"deleted":       deleted,
					"deleted_count": len(deleted),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d exports\n", len(deleted))
			return nil
		},
	}
}
