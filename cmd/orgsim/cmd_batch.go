package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/orgsim/internal/config"
	"github.com/nvandessel/orgsim/internal/export"
	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/simulation"
	"github.com/nvandessel/orgsim/internal/store"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the full tick budget without a timer and write CSV",
		Long: `Run every quarter back to back with fixed controls and write the
history as CSV to stdout or a file.

Examples:
  orgsim batch --seed 1 > run.csv
  orgsim batch --preset stochastic --modularity 1 --slack 0.3 --diversification 0.5 --out run.csv
  orgsim batch --json                 # summary only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out, _ := cmd.Flags().GetString("out")
			archive, _ := cmd.Flags().GetBool("archive")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applySimulationFlags(cmd, cfg)
			applyControlFlags(cmd, cfg)
			if !archive {
				cfg.Export.Sinks = nil
			} else {
				cfg.Export.Sinks = []string{config.SinkArchive}
			}

			a, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			result, err := runBatch(ctx, a)
			if err != nil {
				return err
			}

			if out != "" {
				if err := writeCSVFile(out, result.records); err != nil {
					return err
				}
			} else if !jsonOut {
				if err := export.EncodeCSV(cmd.OutOrStdout(), result.records); err != nil {
					return err
				}
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"summary": result.summary,
					"run_id":  result.runID,
					"out":     out,
				})
			}
			if out != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d quarters to %s (mean ROA %.3f)\n",
					result.summary.TickCount, out, result.summary.MeanPerformance)
			}
			if result.runID != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Archived as run %s\n", result.runID)
			}
			return nil
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().Float64("modularity", 0, "Modularity level")
	cmd.Flags().Float64("slack", 0, "Financial slack")
	cmd.Flags().Float64("diversification", 0, "Diversification (variants with the control only)")
	cmd.Flags().StringP("out", "o", "", "Write CSV to this file instead of stdout")
	cmd.Flags().Bool("archive", false, "Also save the run to the SQLite archive")

	return cmd
}

// applyControlFlags overrides the starting controls with explicit flags.
func applyControlFlags(cmd *cobra.Command, cfg *config.OrgsimConfig) {
	if cmd.Flags().Changed("modularity") {
		cfg.Controls.Defaults.Modularity, _ = cmd.Flags().GetFloat64("modularity")
	}
	if cmd.Flags().Changed("slack") {
		cfg.Controls.Defaults.Slack, _ = cmd.Flags().GetFloat64("slack")
	}
	if cmd.Flags().Changed("diversification") {
		cfg.Controls.Defaults.Diversification, _ = cmd.Flags().GetFloat64("diversification")
	}
}

type batchResult struct {
	records []models.TickRecord
	summary store.Run
	runID   string
}

// runBatch runs one session to completion with the configured controls
// held fixed, archiving it when the archive is open.
func runBatch(ctx context.Context, a *app) (batchResult, error) {
	bounds := a.cfg.Bounds(a.variant)
	if err := bounds.Check(a.cfg.Controls.Defaults); err != nil {
		return batchResult{}, err
	}
	inputs := simulation.StaticInputs(a.cfg.Controls.Defaults)

	sess, info, err := a.newSession(a.resolveSeed(), sessionSpec{inputs: inputs})
	if err != nil {
		return batchResult{}, err
	}
	sess, err = simulation.RunToCompletion(ctx, func() (*simulation.Session, error) { return sess, nil })
	if err != nil {
		return batchResult{}, err
	}

	res := batchResult{records: sess.History()}
	res.summary = store.Summarize(res.records)
	res.summary.RunInfo = info

	if a.archive != nil {
		res.runID, err = a.archive.SaveRun(ctx, info, res.records, time.Now())
		if err != nil {
			return res, fmt.Errorf("archive run: %w", err)
		}
		res.summary.ID = res.runID
	}
	return res, nil
}

// writeCSVFile writes records to path.
func writeCSVFile(path string, records []models.TickRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return export.EncodeCSV(f, records)
}
