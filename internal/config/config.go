// Package config provides unified configuration loading for orgsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/orgsim/internal/constants"
	"github.com/nvandessel/orgsim/internal/controls"
	"github.com/nvandessel/orgsim/internal/engine"
	"github.com/nvandessel/orgsim/internal/export"
	"github.com/nvandessel/orgsim/internal/logging"
	"github.com/nvandessel/orgsim/internal/models"
)

// Export sink names accepted in export.sinks.
const (
	SinkCSV     = "csv"
	SinkArchive = "archive"
)

// OrgsimConfig contains all orgsim configuration settings.
type OrgsimConfig struct {
	// Simulation selects the variant constants.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Run controls the loop.
	Run RunConfig `json:"run" yaml:"run"`

	// Controls bounds and seeds the control panel.
	Controls ControlsConfig `json:"controls" yaml:"controls"`

	// Export configures where finished runs go.
	Export ExportConfig `json:"export" yaml:"export"`

	// Server configures the dashboard.
	Server ServerConfig `json:"server" yaml:"server"`

	// Logging contains settings for operational logging and tick tracing.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig names a preset and optionally overrides parts of it.
// A non-nil override replaces the preset's section wholesale.
type SimulationConfig struct {
	Preset string `json:"preset" yaml:"preset"`

	Coefficients    *engine.Coefficients `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`
	Shocks          *ShockConfig         `json:"shocks,omitempty" yaml:"shocks,omitempty"`
	Performance     *engine.ModelParams  `json:"performance,omitempty" yaml:"performance,omitempty"`
	Diversification *bool                `json:"diversification,omitempty" yaml:"diversification,omitempty"`
}

// RunConfig configures the simulation loop.
type RunConfig struct {
	// Interval is the wall-clock time between ticks.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// MaxTicks is the tick budget.
	MaxTicks int `json:"max_ticks" yaml:"max_ticks"`

	// Window is the number of chart points kept visible.
	Window int `json:"window" yaml:"window"`

	// Seed seeds the noise source. 0 means unseeded.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Initial overrides the starting E/O pair.
	Initial *models.State `json:"initial,omitempty" yaml:"initial,omitempty"`
}

// ControlsConfig bounds the control panel and sets its starting values.
type ControlsConfig struct {
	ModularityLevels []float64            `json:"modularity_levels" yaml:"modularity_levels"`
	SlackMax         float64              `json:"slack_max" yaml:"slack_max"`
	Defaults         models.ControlInputs `json:"defaults" yaml:"defaults"`
}

// ExportConfig configures the export sinks invoked when a run stops.
type ExportConfig struct {
	// Sinks lists the enabled sinks: "csv", "archive". Empty disables export.
	Sinks []string `json:"sinks" yaml:"sinks"`

	// Dir is where CSV files are written.
	Dir string `json:"dir" yaml:"dir"`

	// ArchivePath is the SQLite run archive.
	ArchivePath string `json:"archive_path" yaml:"archive_path"`

	// Retention prunes old CSV files in Dir after each export.
	Retention export.RetentionConfig `json:"retention" yaml:"retention"`
}

// Enabled reports whether the named sink is enabled.
func (e ExportConfig) Enabled(sink string) bool {
	return slices.Contains(e.Sinks, sink)
}

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	// Listen is the address to bind. Port 0 lets the OS choose.
	Listen string `json:"listen" yaml:"listen"`

	// OpenBrowser opens the dashboard once the server is listening.
	OpenBrowser bool `json:"open_browser" yaml:"open_browser"`
}

// LoggingConfig configures orgsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" and "trace" also enable the tick trace in TraceDir.
	Level string `json:"level" yaml:"level"`

	// TraceDir holds ticks.jsonl. Empty disables tracing.
	TraceDir string `json:"trace_dir" yaml:"trace_dir"`

	// Rotation bounds the trace file.
	Rotation logging.RotationConfig `json:"rotation" yaml:"rotation"`
}

// Dir returns the orgsim home directory (~/.orgsim).
func Dir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".orgsim"
	}
	return filepath.Join(homeDir, ".orgsim")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns an OrgsimConfig with sensible defaults.
func Default() *OrgsimConfig {
	return &OrgsimConfig{
		Simulation: SimulationConfig{
			Preset: PresetClassic,
		},
		Run: RunConfig{
			Interval: constants.DefaultTickInterval,
			MaxTicks: constants.DefaultMaxTicks,
			Window:   constants.DefaultWindowSize,
		},
		Controls: ControlsConfig{
			ModularityLevels: slices.Clone(constants.DefaultModularityLevels),
			SlackMax:         constants.DefaultSlackMax,
		},
		Export: ExportConfig{
			Sinks:       []string{SinkCSV, SinkArchive},
			Dir:         ".",
			ArchivePath: filepath.Join(Dir(), "runs.db"),
		},
		Server: ServerConfig{
			Listen:      "127.0.0.1:0",
			OpenBrowser: true,
		},
		Logging: LoggingConfig{
			Level:    "info",
			TraceDir: Dir(),
			Rotation: logging.RotationConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.orgsim/config.yaml -> environment variables
func Load() (*OrgsimConfig, error) {
	return LoadPath("")
}

// LoadPath is Load with an explicit config file. An empty path means the
// default location, which may be absent; an explicit path must exist.
func LoadPath(path string) (*OrgsimConfig, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, statErr := os.Stat(path); statErr == nil || explicit {
		fileConfig, loadErr := LoadFromFile(path)
		if loadErr != nil {
			return nil, fmt.Errorf("loading config file: %w", loadErr)
		}
		config = fileConfig
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*OrgsimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Export.Dir = os.ExpandEnv(config.Export.Dir)
	config.Export.ArchivePath = os.ExpandEnv(config.Export.ArchivePath)
	config.Logging.TraceDir = os.ExpandEnv(config.Logging.TraceDir)

	return config, nil
}

// Save writes the configuration as YAML to path, creating its directory.
func (c *OrgsimConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Variant resolves the preset and applies the configured overrides.
func (c *OrgsimConfig) Variant() (Variant, error) {
	v, err := LookupPreset(c.Simulation.Preset)
	if err != nil {
		return Variant{}, err
	}
	if c.Simulation.Coefficients != nil {
		v.Coefficients = *c.Simulation.Coefficients
	}
	if c.Simulation.Shocks != nil {
		v.Shocks = *c.Simulation.Shocks
	}
	if c.Simulation.Performance != nil {
		v.Performance = *c.Simulation.Performance
	}
	if c.Simulation.Diversification != nil {
		v.Diversification = *c.Simulation.Diversification
	}
	return v, nil
}

// Bounds returns the control bounds for variant v.
func (c *OrgsimConfig) Bounds(v Variant) controls.Bounds {
	return controls.Bounds{
		ModularityLevels: slices.Clone(c.Controls.ModularityLevels),
		SlackMax:         c.Controls.SlackMax,
		Diversification:  v.Diversification,
	}
}

// InitialState returns the configured starting state or the defaults.
func (c *OrgsimConfig) InitialState() models.State {
	if c.Run.Initial != nil {
		return *c.Run.Initial
	}
	return models.State{
		Environment:  constants.DefaultEnvironment,
		Organization: constants.DefaultOrganization,
	}
}

// Validate checks that the configuration is valid.
func (c *OrgsimConfig) Validate() error {
	v, err := c.Variant()
	if err != nil {
		return err
	}
	if err := v.Shocks.Validate(); err != nil {
		return fmt.Errorf("simulation.shocks: %w", err)
	}
	if _, err := v.Shocks.Policy(); err != nil {
		return fmt.Errorf("simulation.shocks: %w", err)
	}
	if _, err := v.Model(); err != nil {
		return fmt.Errorf("simulation.performance: %w", err)
	}

	if c.Run.Interval <= 0 {
		return fmt.Errorf("run.interval must be positive, got %v", c.Run.Interval)
	}
	if c.Run.MaxTicks < 1 {
		return fmt.Errorf("run.max_ticks must be positive, got %d", c.Run.MaxTicks)
	}
	if c.Run.Window < 1 {
		return fmt.Errorf("run.window must be positive, got %d", c.Run.Window)
	}

	if c.Controls.SlackMax <= 0 {
		return fmt.Errorf("controls.slack_max must be positive, got %v", c.Controls.SlackMax)
	}
	if err := c.Bounds(v).Check(c.Controls.Defaults); err != nil {
		return fmt.Errorf("controls.defaults: %w", err)
	}
	if err := v.Shocks.CheckRange(c.Bounds(v)); err != nil {
		return fmt.Errorf("simulation.shocks: %w", err)
	}

	for _, s := range c.Export.Sinks {
		if s != SinkCSV && s != SinkArchive {
			return fmt.Errorf("invalid export sink: %s (valid: %s, %s)", s, SinkCSV, SinkArchive)
		}
	}

	if _, err := c.Export.Retention.Policy(); err != nil {
		return fmt.Errorf("export.retention: %w", err)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// envOverrides lists the environment variables, all prefixed ORGSIM_.
// Unset variables leave their pointer nil.
type envOverrides struct {
	Preset      *string        `env:"PRESET"`
	MaxTicks    *int           `env:"MAX_TICKS"`
	Interval    *time.Duration `env:"INTERVAL"`
	Seed        *uint64        `env:"SEED"`
	LogLevel    *string        `env:"LOG_LEVEL"`
	ExportDir   *string        `env:"EXPORT_DIR"`
	ArchivePath *string        `env:"ARCHIVE_PATH"`
	Listen      *string        `env:"LISTEN"`
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *OrgsimConfig) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: "ORGSIM_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.Preset != nil {
		config.Simulation.Preset = *o.Preset
	}
	if o.MaxTicks != nil {
		config.Run.MaxTicks = *o.MaxTicks
	}
	if o.Interval != nil {
		config.Run.Interval = *o.Interval
	}
	if o.Seed != nil {
		config.Run.Seed = *o.Seed
	}
	if o.LogLevel != nil {
		config.Logging.Level = *o.LogLevel
	}
	if o.ExportDir != nil {
		config.Export.Dir = *o.ExportDir
	}
	if o.ArchivePath != nil {
		config.Export.ArchivePath = *o.ArchivePath
	}
	if o.Listen != nil {
		config.Server.Listen = *o.Listen
	}
	return nil
}
