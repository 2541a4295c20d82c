package env

import (
	"fmt"
	"time"
)

// AgentManager is the single agent driving a PortfolioEnv.
const AgentManager = "manager"

// Series carries the aligned input columns of a portfolio simulation. Wind,
// solar, hydro and load are instantaneous MW; price is EUR/MWh. Timestamps
// are optional.
type Series struct {
	Wind       []float64
	Solar      []float64
	Hydro      []float64
	Load       []float64
	Price      []float64
	Timestamps []time.Time
}

// Len returns the number of rows.
func (s Series) Len() int { return len(s.Load) }

// Validate checks that all populated columns share the load column's length.
func (s Series) Validate() error {
	n := len(s.Load)
	for name, col := range map[string][]float64{
		"wind": s.Wind, "solar": s.Solar, "hydro": s.Hydro, "price": s.Price,
	} {
		if col != nil && len(col) != n {
			return fmt.Errorf("series %s has %d rows, load has %d", name, len(col), n)
		}
	}
	return nil
}

// PortfolioEnv is a single-agent environment stepping through recorded
// series. The reward is the net revenue of the step ((generation - load) *
// price) and the episode terminates once the data is exhausted.
type PortfolioEnv struct {
	series      Series
	t           int
	lastRevenue float64
}

// NewPortfolioEnv builds an environment over the given series.
func NewPortfolioEnv(series Series) (*PortfolioEnv, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}
	return &PortfolioEnv{series: series}, nil
}

// Agents returns the fixed single-agent roster.
func (e *PortfolioEnv) Agents() []string { return []string{AgentManager} }

// ActionSpace reports a one-dimensional continuous space for every agent.
func (e *PortfolioEnv) ActionSpace(string) ActionSpace {
	return ActionSpace{Shape: []int{1}, Dtype: "float32"}
}

// Reset rewinds the environment to the first row.
func (e *PortfolioEnv) Reset() (map[string]any, map[string]any, error) {
	e.t = 0
	e.lastRevenue = 0
	return map[string]any{AgentManager: e.observation(0)}, map[string]any{}, nil
}

// Step advances one row. Actions are accepted but ignored: the portfolio
// follows its recorded series.
func (e *PortfolioEnv) Step(map[string]any) (map[string]any, map[string]float64,
	map[string]bool, map[string]bool, map[string]any, error) {
	idx := e.t
	n := e.series.Len()

	generation, load, price := 0.0, 0.0, 0.0
	if idx < n {
		generation = e.at(e.series.Wind, idx) + e.at(e.series.Solar, idx) + e.at(e.series.Hydro, idx)
		load = e.at(e.series.Load, idx)
		price = e.at(e.series.Price, idx)
	}
	e.lastRevenue = (generation - load) * price

	e.t = idx + 1
	if e.t > n {
		e.t = n
	}

	obs := map[string]any{AgentManager: e.observation(e.t)}
	rewards := map[string]float64{AgentManager: e.lastRevenue}
	terminations := map[string]bool{AgentManager: e.t >= n}
	truncations := map[string]bool{AgentManager: false}
	return obs, rewards, terminations, truncations, map[string]any{}, nil
}

// Close releases nothing; the environment holds only slices.
func (e *PortfolioEnv) Close() error { return nil }

// Timestep implements Telemetry.
func (e *PortfolioEnv) Timestep() int { return e.t }

// Equity implements Telemetry. The portfolio env does not track equity.
func (e *PortfolioEnv) Equity() (float64, bool) { return 0, false }

// Budget implements Telemetry. The portfolio env does not track a budget.
func (e *PortfolioEnv) Budget() (float64, bool) { return 0, false }

// LastRevenue implements Telemetry.
func (e *PortfolioEnv) LastRevenue() (float64, bool) { return e.lastRevenue, true }

// GenerationMW implements SeriesProvider by summing the generation columns.
func (e *PortfolioEnv) GenerationMW() []float64 {
	n := e.series.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = e.at(e.series.Wind, i) + e.at(e.series.Solar, i) + e.at(e.series.Hydro, i)
	}
	return out
}

// LoadMW implements SeriesProvider.
func (e *PortfolioEnv) LoadMW() []float64 { return e.series.Load }

// PriceEURPerMWh implements SeriesProvider.
func (e *PortfolioEnv) PriceEURPerMWh() []float64 { return e.series.Price }

// Timestamps implements SeriesProvider. Nil when the data had no timestamp
// column.
func (e *PortfolioEnv) Timestamps() []time.Time { return e.series.Timestamps }

func (e *PortfolioEnv) observation(t int) map[string]any {
	n := e.series.Len()
	i := t
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	if n == 0 {
		return map[string]any{"t": 0}
	}
	return map[string]any{
		"t":     i,
		"wind":  e.at(e.series.Wind, i),
		"solar": e.at(e.series.Solar, i),
		"hydro": e.at(e.series.Hydro, i),
		"load":  e.at(e.series.Load, i),
		"price": e.at(e.series.Price, i),
	}
}

func (e *PortfolioEnv) at(col []float64, i int) float64 {
	if i < 0 || i >= len(col) {
		return 0
	}
	return col[i]
}
