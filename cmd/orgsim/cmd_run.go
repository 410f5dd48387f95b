package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/orgsim/internal/config"
	"github.com/nvandessel/orgsim/internal/ratelimit"
	"github.com/nvandessel/orgsim/internal/simulation"
	"github.com/nvandessel/orgsim/internal/visualization"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation on a timer",
		Long: `Run the simulation one quarter per tick interval.

Without --serve the status line is printed every tick and the process exits
once the run finishes and its history is exported. With --serve a dashboard
shows the performance chart and the controls, and stays up for resets until
Ctrl-C.

Examples:
  orgsim run                          # classic preset, 100 quarters
  orgsim run --serve                  # live dashboard in the browser
  orgsim run --preset stochastic --seed 42 --interval 100ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			serve, _ := cmd.Flags().GetBool("serve")

			a, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if serve {
				return runDashboard(ctx, cmd, a)
			}
			return runConsole(ctx, cmd, a)
		},
	}

	addSimulationFlags(cmd)
	cmd.Flags().Duration("interval", 0, "Wall-clock time between ticks (default from config, 400ms)")
	cmd.Flags().Bool("serve", false, "Serve the live dashboard and keep running for resets")
	cmd.Flags().Bool("no-open", false, "Don't open the browser when serving")
	cmd.Flags().String("listen", "", "Dashboard listen address (default 127.0.0.1 with an OS-assigned port)")
	cmd.Flags().String("export-dir", "", "Directory for CSV exports")
	cmd.Flags().String("archive", "", "Path of the SQLite run archive")
	cmd.Flags().Bool("no-export", false, "Disable all export sinks")

	return cmd
}

// addSimulationFlags registers the flags shared by run and batch.
func addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().String("preset", "", fmt.Sprintf("Simulation preset %v", config.PresetNames()))
	cmd.Flags().Int("max-ticks", 0, "Number of quarters to simulate (default from config, 100)")
	cmd.Flags().Uint64("seed", 0, "Noise seed; 0 picks a fresh seed per run")
}

// applySimulationFlags copies explicitly set shared flags into cfg.
func applySimulationFlags(cmd *cobra.Command, cfg *config.OrgsimConfig) {
	if cmd.Flags().Changed("preset") {
		cfg.Simulation.Preset, _ = cmd.Flags().GetString("preset")
	}
	if cmd.Flags().Changed("max-ticks") {
		cfg.Run.MaxTicks, _ = cmd.Flags().GetInt("max-ticks")
	}
	if cmd.Flags().Changed("seed") {
		cfg.Run.Seed, _ = cmd.Flags().GetUint64("seed")
	}
}

// applyRunFlags copies explicitly set run flags into cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.OrgsimConfig) {
	applySimulationFlags(cmd, cfg)
	if cmd.Flags().Changed("interval") {
		cfg.Run.Interval, _ = cmd.Flags().GetDuration("interval")
	}
	if cmd.Flags().Changed("listen") {
		cfg.Server.Listen, _ = cmd.Flags().GetString("listen")
	}
	if noOpen, _ := cmd.Flags().GetBool("no-open"); noOpen {
		cfg.Server.OpenBrowser = false
	}
	if cmd.Flags().Changed("export-dir") {
		cfg.Export.Dir, _ = cmd.Flags().GetString("export-dir")
	}
	if cmd.Flags().Changed("archive") {
		cfg.Export.ArchivePath, _ = cmd.Flags().GetString("archive")
	}
	if noExport, _ := cmd.Flags().GetBool("no-export"); noExport {
		cfg.Export.Sinks = nil
	}
}

// runConsole ticks until the run stops, printing the status line.
func runConsole(ctx context.Context, cmd *cobra.Command, a *app) error {
	panel, err := a.newPanel()
	if err != nil {
		return err
	}
	status := &consoleStatus{w: cmd.OutOrStdout()}
	driver := simulation.NewDriver(a.factory(sessionSpec{inputs: panel, status: status, export: true}), simulation.DriverOptions{
		Interval:   a.cfg.Run.Interval,
		ExitOnStop: true,
		Logger:     a.logger,
	})

	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runDashboard runs the driver and the dashboard server until Ctrl-C or
// until either fails.
func runDashboard(ctx context.Context, cmd *cobra.Command, a *app) error {
	panel, err := a.newPanel()
	if err != nil {
		return err
	}
	board := visualization.NewBoard(a.cfg.Run.Window)
	driver := simulation.NewDriver(a.factory(sessionSpec{inputs: panel, chart: board, status: board, export: true}), simulation.DriverOptions{
		Interval: a.cfg.Run.Interval,
		Logger:   a.logger,
	})
	srv, err := visualization.NewServer(visualization.Options{
		Listen:   a.cfg.Server.Listen,
		Board:    board,
		Panel:    panel,
		Backend:  driver,
		Limiters: ratelimit.NewToolLimiters(),
		Poll:     a.cfg.Run.Interval,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := driver.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(gctx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return announce(gctx, cmd, srv, a.cfg.Server.OpenBrowser)
	})

	return g.Wait()
}

// announce waits for the server to listen, prints its URL and optionally
// opens the browser.
func announce(ctx context.Context, cmd *cobra.Command, srv *visualization.Server, openBrowser bool) error {
	deadline := time.Now().Add(3 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			return fmt.Errorf("server failed to start")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(10 * time.Millisecond):
		}
	}

	url := srv.URL()
	fmt.Fprintf(cmd.OutOrStdout(), "Dashboard running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if openBrowser {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}
	return nil
}
