// Package env defines the stepping environment contract consumed by the
// session layer, plus a self-contained portfolio environment driven by
// recorded generation and load series.
package env

import "time"

// ActionSpace describes the action space of a single agent.
type ActionSpace struct {
	// Discrete is the number of discrete actions. Zero means the space is
	// continuous.
	Discrete int
	// Shape is the tensor shape of a continuous action.
	Shape []int
	// Dtype names the element type of a continuous action, e.g. "float32".
	Dtype string
	// Sample draws an arbitrary valid action. Used as a last resort when a
	// space declares neither a cardinality nor a shape. May be nil.
	Sample func() any
}

// Environment is the stepping contract every simulation backend must
// satisfy. Observations and info are agent-keyed trees of plain values.
type Environment interface {
	Reset() (obs map[string]any, info map[string]any, err error)
	Step(actions map[string]any) (obs map[string]any, rewards map[string]float64,
		terminations map[string]bool, truncations map[string]bool, info map[string]any, err error)
	Agents() []string
	ActionSpace(agent string) ActionSpace
	Close() error
}

// Telemetry is the optional capability interface for environments exposing
// portfolio scalars. Callers must assert for it; absence of the interface,
// or a false second return, means "not available" and is never an error.
type Telemetry interface {
	Timestep() int
	Equity() (float64, bool)
	Budget() (float64, bool)
	LastRevenue() (float64, bool)
}

// SeriesProvider is the optional capability interface for environments
// backed by aligned generation/load arrays.
type SeriesProvider interface {
	GenerationMW() []float64
	LoadMW() []float64
	PriceEURPerMWh() []float64
	Timestamps() []time.Time
}
