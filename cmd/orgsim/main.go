package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/orgsim/internal/config"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orgsim",
		Short: "Organizational resilience simulator",
		Long: `orgsim simulates how an organization's structure adapts to a
turbulent environment.

Each quarter the environment may be hit by a shock, the organization moves
toward its desired configuration, and performance (ROA) is computed from the
gap between the two. Modularity, financial slack and diversification are the
levers; watch them play out live on the dashboard or run batches for analysis.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.orgsim/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newBatchCmd(),
		newPresetsCmd(),
		newRunsCmd(),
		newExportsCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig loads the file named by --config, or the default location.
func loadConfig(cmd *cobra.Command) (*config.OrgsimConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// configPath returns the file config set writes to.
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	return config.DefaultPath()
}
