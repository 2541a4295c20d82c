// Package forecast provides an Environment decorator that augments step
// info with short-horizon generation and load forecasts derived from the
// environment's own series.
package forecast

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/gridtwin/gridtwin/core/env"
)

// Horizon is a named look-ahead window measured in steps.
type Horizon struct {
	Name  string
	Steps int
}

// DefaultHorizons covers one hour and six hours of 10-minute steps.
var DefaultHorizons = []Horizon{
	{Name: "1h", Steps: 6},
	{Name: "6h", Steps: 36},
}

// Decorator wraps an Environment and attaches a "forecast" block to the
// info map of every reset and step. Forecasts are windowed means over the
// upcoming rows of the wrapped environment's series; environments without
// series support pass through untouched.
type Decorator struct {
	inner    env.Environment
	horizons []Horizon
}

// New wraps the environment. Nil or empty horizons fall back to
// DefaultHorizons.
func New(inner env.Environment, horizons []Horizon) *Decorator {
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}
	return &Decorator{inner: inner, horizons: horizons}
}

// Agents delegates to the wrapped environment.
func (d *Decorator) Agents() []string { return d.inner.Agents() }

// ActionSpace delegates to the wrapped environment.
func (d *Decorator) ActionSpace(agent string) env.ActionSpace { return d.inner.ActionSpace(agent) }

// Reset delegates and augments the returned info.
func (d *Decorator) Reset() (map[string]any, map[string]any, error) {
	obs, info, err := d.inner.Reset()
	if err != nil {
		return nil, nil, err
	}
	return obs, d.augment(info), nil
}

// Step delegates and augments the returned info.
func (d *Decorator) Step(actions map[string]any) (map[string]any, map[string]float64,
	map[string]bool, map[string]bool, map[string]any, error) {
	obs, rewards, terms, truncs, info, err := d.inner.Step(actions)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	return obs, rewards, terms, truncs, d.augment(info), nil
}

// Close releases the decorator itself. The wrapped environment is owned by
// the session and closed separately.
func (d *Decorator) Close() error { return nil }

// Timestep implements env.Telemetry by delegation.
func (d *Decorator) Timestep() int {
	if tel, ok := d.inner.(env.Telemetry); ok {
		return tel.Timestep()
	}
	return 0
}

// Equity implements env.Telemetry by delegation.
func (d *Decorator) Equity() (float64, bool) {
	if tel, ok := d.inner.(env.Telemetry); ok {
		return tel.Equity()
	}
	return 0, false
}

// Budget implements env.Telemetry by delegation.
func (d *Decorator) Budget() (float64, bool) {
	if tel, ok := d.inner.(env.Telemetry); ok {
		return tel.Budget()
	}
	return 0, false
}

// LastRevenue implements env.Telemetry by delegation.
func (d *Decorator) LastRevenue() (float64, bool) {
	if tel, ok := d.inner.(env.Telemetry); ok {
		return tel.LastRevenue()
	}
	return 0, false
}

// GenerationMW implements env.SeriesProvider by delegation.
func (d *Decorator) GenerationMW() []float64 {
	if sp, ok := d.inner.(env.SeriesProvider); ok {
		return sp.GenerationMW()
	}
	return nil
}

// LoadMW implements env.SeriesProvider by delegation.
func (d *Decorator) LoadMW() []float64 {
	if sp, ok := d.inner.(env.SeriesProvider); ok {
		return sp.LoadMW()
	}
	return nil
}

// PriceEURPerMWh implements env.SeriesProvider by delegation.
func (d *Decorator) PriceEURPerMWh() []float64 {
	if sp, ok := d.inner.(env.SeriesProvider); ok {
		return sp.PriceEURPerMWh()
	}
	return nil
}

// Timestamps implements env.SeriesProvider by delegation.
func (d *Decorator) Timestamps() []time.Time {
	if sp, ok := d.inner.(env.SeriesProvider); ok {
		return sp.Timestamps()
	}
	return nil
}

func (d *Decorator) augment(info map[string]any) map[string]any {
	sp, ok := d.inner.(env.SeriesProvider)
	if !ok {
		return info
	}
	tel, ok := d.inner.(env.Telemetry)
	if !ok {
		return info
	}

	t := tel.Timestep()
	gen := sp.GenerationMW()
	load := sp.LoadMW()

	block := make(map[string]any, len(d.horizons))
	for _, h := range d.horizons {
		block[h.Name] = map[string]any{
			"generation_mw": windowMean(gen, t, h.Steps),
			"load_mw":       windowMean(load, t, h.Steps),
		}
	}
	if info == nil {
		info = map[string]any{}
	}
	info["forecast"] = block
	return info
}

// windowMean averages series[from:from+steps], clipped to the series end.
// A window past the end of the data yields zero.
func windowMean(series []float64, from, steps int) float64 {
	if from < 0 {
		from = 0
	}
	to := from + steps
	if to > len(series) {
		to = len(series)
	}
	if from >= to {
		return 0
	}
	return stat.Mean(series[from:to], nil)
}
