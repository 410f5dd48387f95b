// Package mcp provides an MCP (Model Context Protocol) server for orgsim.
package mcp

import (
	"github.com/nvandessel/orgsim/internal/controls"
	"github.com/nvandessel/orgsim/internal/models"
)

// StatusInput defines the input for the orgsim_status tool.
type StatusInput struct{}

// StatusOutput defines the output for the orgsim_status tool.
type StatusOutput struct {
	Phase           string               `json:"phase" jsonschema:"running or stopped"`
	Running         bool                 `json:"running" jsonschema:"whether the run still accepts ticks"`
	Tick            int                  `json:"tick" jsonschema:"number of completed ticks"`
	MaxTicks        int                  `json:"max_ticks" jsonschema:"tick budget of the run"`
	State           models.State         `json:"state" jsonschema:"current environment and organization values"`
	Gap             float64              `json:"gap" jsonschema:"organization minus environment"`
	LastPerformance *float64             `json:"last_performance,omitempty" jsonschema:"performance of the latest tick, absent before the first tick"`
	Inputs          models.ControlInputs `json:"inputs" jsonschema:"control values sampled on the next tick"`
	Exported        bool                 `json:"exported" jsonschema:"whether the history export has run"`
	ExportError     string               `json:"export_error,omitempty" jsonschema:"export failure, if any"`
	Summary         string               `json:"summary" jsonschema:"human-readable status line"`
}

// SetControlsInput defines the input for the orgsim_set_controls tool.
// Omitted fields keep their current value.
type SetControlsInput struct {
	Modularity      *float64 `json:"modularity,omitempty" jsonschema:"modularity level, one of the configured levels"`
	Diversification *float64 `json:"diversification,omitempty" jsonschema:"diversification in [0,1], only when the variant enables it"`
	Slack           *float64 `json:"slack,omitempty" jsonschema:"financial slack in [0, slack max]"`
}

// SetControlsOutput defines the output for the orgsim_set_controls tool.
type SetControlsOutput struct {
	Inputs  models.ControlInputs `json:"inputs" jsonschema:"control values after the update"`
	Bounds  controls.Bounds      `json:"bounds" jsonschema:"admissible control values"`
	Message string               `json:"message" jsonschema:"human-readable result message"`
}

// ResetInput defines the input for the orgsim_reset tool.
type ResetInput struct{}

// ResetOutput defines the output for the orgsim_reset tool.
type ResetOutput struct {
	Tick    int          `json:"tick" jsonschema:"tick count after the reset, always 0"`
	State   models.State `json:"state" jsonschema:"state after the reset"`
	Message string       `json:"message" jsonschema:"human-readable result message"`
}

// HistoryInput defines the input for the orgsim_history tool.
type HistoryInput struct {
	Last int `json:"last,omitempty" jsonschema:"number of most recent records to return (default 20, max 1000)"`
}

// HistoryOutput defines the output for the orgsim_history tool.
type HistoryOutput struct {
	Records []models.TickRecord `json:"records" jsonschema:"tick records, oldest first"`
	Count   int                 `json:"count" jsonschema:"number of records returned"`
	Total   int                 `json:"total" jsonschema:"number of records in the run so far"`
}
