// Package constants provides named constants used throughout the orgsim codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

import "time"

// Initial state constants
const (
	// DefaultEnvironment is E at construction and after every reset.
	DefaultEnvironment = 5.0

	// DefaultOrganization is O at construction and after every reset.
	DefaultOrganization = 4.0
)

// Loop constants
const (
	// DefaultMaxTicks is the tick budget after which a run stops and exports.
	DefaultMaxTicks = 100

	// DefaultTickInterval is the wall-clock time between ticks.
	DefaultTickInterval = 400 * time.Millisecond

	// DefaultWindowSize is the number of points the chart keeps visible.
	// Older points are dropped from the display only, never from history.
	DefaultWindowSize = 50
)

// Display constants
const (
	// ChartMin and ChartMax bound the performance axis on the dashboard.
	ChartMin = 0.0
	ChartMax = 2.0
)

// Control bounds
const (
	// DefaultSlackMax is the upper bound of the slack control.
	DefaultSlackMax = 1.0

	// DiversificationMax is the upper bound of the diversification control.
	DiversificationMax = 1.0
)

// DefaultModularityLevels are the selectable modularity values.
var DefaultModularityLevels = []float64{0, 0.5, 1}
