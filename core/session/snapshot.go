package session

import (
	"reflect"

	"github.com/gridtwin/gridtwin/core/env"
)

// SnapshotMetrics is the telemetry block attached to every snapshot.
// Equity, Budget and LastRevenue are nil when the environment does not
// expose them; their absence is never an error.
type SnapshotMetrics struct {
	Timestep       int      `json:"timestep"`
	StepsTaken     int      `json:"steps_taken"`
	StepsRequested int      `json:"steps_requested,omitempty"`
	StepsExecuted  int      `json:"steps_executed,omitempty"`
	Equity         *float64 `json:"fund_nav"`
	Budget         *float64 `json:"budget"`
	LastRevenue    *float64 `json:"last_revenue"`
}

// Snapshot is a serialization-ready projection of a session's latest
// state.
type Snapshot struct {
	SessionID    string             `json:"session_id"`
	Observation  map[string]any     `json:"observation"`
	Rewards      map[string]float64 `json:"rewards"`
	Terminations map[string]bool    `json:"terminations"`
	Truncations  map[string]bool    `json:"truncations"`
	Info         map[string]any     `json:"info"`
	Metrics      SnapshotMetrics    `json:"metrics"`
}

// BuildSnapshot projects the session's cached state into a Snapshot.
func BuildSnapshot(s *Session) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildSnapshotLocked(s)
}

func buildSnapshotLocked(s *Session) Snapshot {
	snap := Snapshot{
		SessionID:    s.ID,
		Observation:  projectMap(s.lastObservation),
		Rewards:      copyFloatMap(s.lastRewards),
		Terminations: copyBoolMap(s.lastTerminations),
		Truncations:  copyBoolMap(s.lastTruncations),
		Info:         projectMap(s.lastInfo),
		Metrics: SnapshotMetrics{
			Timestep:   s.timestepLocked(),
			StepsTaken: s.stepsTaken,
		},
	}
	if tel, ok := s.active().(env.Telemetry); ok {
		snap.Metrics.Equity = optional(tel.Equity())
		snap.Metrics.Budget = optional(tel.Budget())
		snap.Metrics.LastRevenue = optional(tel.LastRevenue())
	}
	return snap
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func projectMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = projectValue(v)
	}
	return out
}

// projectValue converts a value tree into plain serializable types:
// numeric slices become []any of float64, numeric scalars become float64,
// maps and slices are projected recursively. Unknown types pass through.
func projectValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64, int:
		return x
	case map[string]any:
		return projectMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = projectValue(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = projectValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, ok := iter.Key().Interface().(string)
			if !ok {
				continue
			}
			out[key] = projectValue(iter.Value().Interface())
		}
		return out
	}
	return v
}
