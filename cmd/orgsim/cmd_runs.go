package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/orgsim/internal/export"
	"github.com/nvandessel/orgsim/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse archived runs",
		Long: `List, show and delete runs saved to the SQLite run archive.

Examples:
  orgsim runs list
  orgsim runs show 3f1c...              # summary
  orgsim runs show 3f1c... --csv > run.csv
  orgsim runs delete 3f1c...`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
	)

	return cmd
}

// openArchive opens the archive named by the config, whether or not the
// archive sink is enabled.
func openArchive(cmd *cobra.Command) (*store.Archive, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a, err := store.Open(cfg.Export.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("open run archive: %w", err)
	}
	return a, nil
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			runs, err := archive.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"runs":        runs,
					"total_count": len(runs),
				})
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No archived runs.")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "  %s  %-10s %-9s %3d quarters  mean ROA %.3f  %d shocks  %s\n",
					r.ID, r.Preset, r.Model, r.TickCount, r.MeanPerformance, r.ShockCount,
					humanize.Time(r.FinishedAt))
			}
			fmt.Fprintf(out, "Total: %d runs\n", len(runs))
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			asCSV, _ := cmd.Flags().GetBool("csv")

			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			run, records, err := archive.LoadRun(cmd.Context(), args[0])
			if errors.Is(err, store.ErrRunNotFound) {
				return fmt.Errorf("run %s not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}

			out := cmd.OutOrStdout()
			switch {
			case asCSV:
				return export.EncodeCSV(out, records)
			case jsonOut:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"run":     run,
					"records": records,
				})
			}

			fmt.Fprintf(out, "Run %s\n", run.ID)
			fmt.Fprintf(out, "  preset:        %s\n", run.Preset)
			fmt.Fprintf(out, "  model:         %s\n", run.Model)
			fmt.Fprintf(out, "  shock policy:  %s\n", run.Policy)
			fmt.Fprintf(out, "  seed:          %d\n", run.Seed)
			fmt.Fprintf(out, "  finished:      %s (%s)\n", run.FinishedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(run.FinishedAt))
			fmt.Fprintf(out, "  quarters:      %d\n", run.TickCount)
			fmt.Fprintf(out, "  shocks:        %d\n", run.ShockCount)
			fmt.Fprintf(out, "  ROA:           mean %.3f  min %.3f  max %.3f\n", run.MeanPerformance, run.MinPerformance, run.MaxPerformance)
			fmt.Fprintf(out, "  final state:   E=%.3f O=%.3f\n", run.FinalEnvironment, run.FinalOrganization)
			return nil
		},
	}
	cmd.Flags().Bool("csv", false, "Print the history as CSV")
	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			if err := archive.DeleteRun(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, store.ErrRunNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				return fmt.Errorf("failed to delete run: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "deleted",
					"id":     args[0],
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}
