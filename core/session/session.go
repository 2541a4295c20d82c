// Package session owns long-running simulation instances: an explicit
// registry creates, advances and releases sessions, each wrapping one
// stepping environment plus an optional forecast decorator.
package session

import (
	"sync"
	"time"

	"github.com/gridtwin/gridtwin/core/env"
)

// State is the lifecycle state of a session.
type State int

const (
	Active State = iota
	Closed
)

// Settings selects the data and options used when spawning an environment.
type Settings struct {
	// DataPath locates the CSV frame backing the environment.
	DataPath string `json:"data_path"`
	// InvestmentFreq is forwarded to the environment factory.
	InvestmentFreq int `json:"investment_freq"`
	// EnableForecasts attaches the forecast decorator to new sessions.
	EnableForecasts bool `json:"enable_forecasts"`
}

// merged overlays non-zero fields of s onto the defaults.
func (s Settings) merged(defaults Settings) Settings {
	out := defaults
	if s.DataPath != "" {
		out.DataPath = s.DataPath
	}
	if s.InvestmentFreq != 0 {
		out.InvestmentFreq = s.InvestmentFreq
	}
	if s.EnableForecasts {
		out.EnableForecasts = true
	}
	return out
}

// Session is the bookkeeping wrapper around one environment instance. All
// mutation goes through the registry under the session's own lock;
// concurrent calls against different sessions proceed independently.
type Session struct {
	ID string

	mu               sync.Mutex
	environment      env.Environment
	decorator        env.Environment
	overrides        map[string]float64
	lastObservation  map[string]any
	lastInfo         map[string]any
	lastRewards      map[string]float64
	lastTerminations map[string]bool
	lastTruncations  map[string]bool
	stepsTaken       int
	completedRows    int
	state            State
}

// active returns the environment the session steps through: the decorator
// when present, the bare environment otherwise. Callers hold s.mu.
func (s *Session) active() env.Environment {
	if s.decorator != nil {
		return s.decorator
	}
	return s.environment
}

// StepsTaken reports the cumulative number of environment steps.
func (s *Session) StepsTaken() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepsTaken
}

// Overrides returns a copy of the dispatch overrides the session was
// created with.
func (s *Session) Overrides() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overrides == nil {
		return nil
	}
	out := make(map[string]float64, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

// SeriesView is a window over the environment's aligned input series.
type SeriesView struct {
	Start      int
	End        int
	GenMW      []float64
	LoadMW     []float64
	Timestamps []time.Time
}

// SeriesWindow extracts up to limit rows of generation and load ending at
// the environment's current timestep. Right after an episode-end reset the
// window still covers the completed episode. The boolean is false when the
// environment does not expose its series.
func (s *Session) SeriesWindow(limit int) (SeriesView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.active().(env.SeriesProvider)
	if !ok {
		return SeriesView{}, false
	}
	load := sp.LoadMW()
	end := s.elapsedRowsLocked()
	if end < 1 {
		end = 1
	}
	if end > len(load) {
		end = len(load)
	}
	if limit < 1 {
		limit = 1
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	view := SeriesView{
		Start:  start,
		End:    end,
		GenMW:  sp.GenerationMW()[start:end],
		LoadMW: load[start:end],
	}
	if ts := sp.Timestamps(); len(ts) >= end {
		view.Timestamps = ts[start:end]
	}
	return view, true
}

// ElapsedSeries returns the generation and load series from the start of
// the episode to the current timestep, plus the step duration in hours
// inferred from timestamp spacing (default 10 minutes). After an
// episode-end reset the full completed episode stays visible until the
// next episode takes its first step.
func (s *Session) ElapsedSeries() (gen, load []float64, dtHours float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, spOK := s.active().(env.SeriesProvider)
	if !spOK {
		return nil, nil, 0, false
	}
	allLoad := sp.LoadMW()
	upto := s.elapsedRowsLocked()
	if upto > len(allLoad) {
		upto = len(allLoad)
	}
	if upto < 0 {
		upto = 0
	}

	dtHours = 1.0 / 6.0
	if ts := sp.Timestamps(); len(ts) > 1 {
		if delta := ts[1].Sub(ts[0]).Hours(); delta > 0 {
			dtHours = delta
		}
	}
	return sp.GenerationMW()[:upto], allLoad[:upto], dtHours, true
}

// elapsedRowsLocked is the row count series windows are cut at: the
// environment's timestep, or the completed episode's length when a reset
// just rewound the timestep to zero. Callers hold s.mu.
func (s *Session) elapsedRowsLocked() int {
	if t := s.timestepLocked(); t > 0 {
		return t
	}
	return s.completedRows
}

// timestepLocked reads the environment's timestep, falling back to the
// step counter. Callers hold s.mu.
func (s *Session) timestepLocked() int {
	if tel, ok := s.active().(env.Telemetry); ok {
		return tel.Timestep()
	}
	return s.stepsTaken
}
