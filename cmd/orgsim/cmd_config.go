package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/orgsim/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage orgsim configuration",
		Long: `View and modify orgsim configuration settings.

Configuration is stored in ~/.orgsim/config.yaml unless --config is given.

Examples:
  orgsim config list                            # Show all settings
  orgsim config get simulation.preset           # Get a specific setting
  orgsim config set simulation.preset stochastic
  orgsim config set export.retention.max_count 20`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

// configKeys lists the keys accepted by get and set, in display order.
var configKeys = []string{
	"simulation.preset",
	"run.interval",
	"run.max_ticks",
	"run.window",
	"run.seed",
	"controls.slack_max",
	"controls.defaults.modularity",
	"controls.defaults.slack",
	"controls.defaults.diversification",
	"export.sinks",
	"export.dir",
	"export.archive_path",
	"export.retention.max_count",
	"export.retention.max_age",
	"export.retention.max_size",
	"server.listen",
	"server.open_browser",
	"logging.level",
	"logging.trace_dir",
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration (%s):\n", configPath(cmd))
			section := ""
			for _, key := range configKeys {
				if s := key[:strings.Index(key, ".")]; s != section {
					section = s
					fmt.Fprintln(out)
				}
				value, _ := getConfigValue(cfg, key)
				fmt.Fprintf(out, "  %-36s %v\n", key+":", displayValue(value))
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				if jsonOut {
					json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
						"error": "key not found",
						"key":   key,
					})
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Unknown configuration key: %s\n", key)
				}
				return nil
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, displayValue(value))
			}

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]
			value := args[1]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			err = setConfigValue(cfg, key, value)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				if jsonOut {
					json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
						"error": err.Error(),
						"key":   key,
					})
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Error: %v\n", err)
				}
				return nil
			}

			if err := cfg.Save(configPath(cmd)); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			}

			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.OrgsimConfig, key string) (interface{}, bool) {
	switch key {
	case "simulation.preset":
		return cfg.Simulation.Preset, true
	case "run.interval":
		return cfg.Run.Interval.String(), true
	case "run.max_ticks":
		return cfg.Run.MaxTicks, true
	case "run.window":
		return cfg.Run.Window, true
	case "run.seed":
		return cfg.Run.Seed, true
	case "controls.slack_max":
		return cfg.Controls.SlackMax, true
	case "controls.defaults.modularity":
		return cfg.Controls.Defaults.Modularity, true
	case "controls.defaults.slack":
		return cfg.Controls.Defaults.Slack, true
	case "controls.defaults.diversification":
		return cfg.Controls.Defaults.Diversification, true
	case "export.sinks":
		return strings.Join(cfg.Export.Sinks, ","), true
	case "export.dir":
		return cfg.Export.Dir, true
	case "export.archive_path":
		return cfg.Export.ArchivePath, true
	case "export.retention.max_count":
		return cfg.Export.Retention.MaxCount, true
	case "export.retention.max_age":
		return cfg.Export.Retention.MaxAge, true
	case "export.retention.max_size":
		return cfg.Export.Retention.MaxSize, true
	case "server.listen":
		return cfg.Server.Listen, true
	case "server.open_browser":
		return cfg.Server.OpenBrowser, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "logging.trace_dir":
		return cfg.Logging.TraceDir, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key. Values
// are parsed here; cross-field checks are left to Validate.
func setConfigValue(cfg *config.OrgsimConfig, key, value string) error {
	switch key {
	case "simulation.preset":
		if _, err := config.LookupPreset(value); err != nil {
			return err
		}
		cfg.Simulation.Preset = value
	case "run.interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Run.Interval = d
	case "run.max_ticks":
		return setInt(&cfg.Run.MaxTicks, value)
	case "run.window":
		return setInt(&cfg.Run.Window, value)
	case "run.seed":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s (must be a non-negative integer)", value)
		}
		cfg.Run.Seed = n
	case "controls.slack_max":
		return setFloat(&cfg.Controls.SlackMax, value)
	case "controls.defaults.modularity":
		return setFloat(&cfg.Controls.Defaults.Modularity, value)
	case "controls.defaults.slack":
		return setFloat(&cfg.Controls.Defaults.Slack, value)
	case "controls.defaults.diversification":
		return setFloat(&cfg.Controls.Defaults.Diversification, value)
	case "export.sinks":
		var sinks []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sinks = append(sinks, s)
			}
		}
		cfg.Export.Sinks = sinks
	case "export.dir":
		cfg.Export.Dir = value
	case "export.archive_path":
		cfg.Export.ArchivePath = value
	case "export.retention.max_count":
		return setInt(&cfg.Export.Retention.MaxCount, value)
	case "export.retention.max_age":
		cfg.Export.Retention.MaxAge = value
	case "export.retention.max_size":
		cfg.Export.Retention.MaxSize = value
	case "server.listen":
		cfg.Server.Listen = value
	case "server.open_browser":
		cfg.Server.OpenBrowser = value == "true" || value == "1"
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.trace_dir":
		cfg.Logging.TraceDir = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %s", value)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %s", value)
	}
	*dst = f
	return nil
}

// displayValue renders empty strings as "(not set)".
func displayValue(v interface{}) interface{} {
	if s, ok := v.(string); ok && s == "" {
		return "(not set)"
	}
	return v
}
