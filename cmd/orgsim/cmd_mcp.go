package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/orgsim/internal/config"
	"github.com/nvandessel/orgsim/internal/mcp"
	"github.com/nvandessel/orgsim/internal/simulation"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the simulation over MCP (stdio)",
		Long: `Run a simulation in the background and expose it to MCP clients
over stdio. Tools: orgsim_status, orgsim_set_controls, orgsim_reset,
orgsim_history. The run keeps serving resets after it finishes.

Logs go to stderr; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applySimulationFlags(cmd, cfg)
			if cmd.Flags().Changed("interval") {
				cfg.Run.Interval, _ = cmd.Flags().GetDuration("interval")
			}
			noAudit, _ := cmd.Flags().GetBool("no-audit")

			a, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			panel, err := a.newPanel()
			if err != nil {
				return err
			}
			driver := simulation.NewDriver(a.factory(sessionSpec{inputs: panel, export: true}), simulation.DriverOptions{
				Interval: cfg.Run.Interval,
				Logger:   a.logger,
			})

			auditPath := filepath.Join(config.Dir(), "audit.jsonl")
			if noAudit {
				auditPath = ""
			}
			server, err := mcp.NewServer(&mcp.Config{
				Name:      "orgsim",
				Version:   version,
				Backend:   driver,
				Panel:     panel,
				AuditPath: auditPath,
				Logger:    a.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := driver.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				// The client disconnecting ends the session; stop the driver too.
				defer cancel()
				if err := server.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("mcp server: %w", err)
				}
				return nil
			})
			return g.Wait()
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().Duration("interval", 0, "Wall-clock time between ticks (default from config, 400ms)")
	cmd.Flags().Bool("no-audit", false, "Don't write the tool audit log")

	return cmd
}
