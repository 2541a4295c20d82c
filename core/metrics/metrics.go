// Package metrics defines the observability contract of the simulation
// core. Implementations live in infra/metrics.
package metrics

import "time"

// SessionEvent records a session lifecycle transition.
type SessionEvent struct {
	SessionID string
	// Action is one of "created", "reset", "closed".
	Action string
	Time   time.Time
}

// StepBatchEvent records one Step call against a session.
type StepBatchEvent struct {
	SessionID      string
	StepsRequested int
	StepsExecuted  int
	Duration       time.Duration
	Time           time.Time
}

// DispatchRunEvent records one merit-order engine run.
type DispatchRunEvent struct {
	Steps              int
	TotalGenerationMWh float64
	TotalDemandMWh     float64
	GridImportMWh      float64
	Duration           time.Duration
	Time               time.Time
}

// Sink records simulation events for observability purposes.
type Sink interface {
	RecordSessionEvent(ev SessionEvent) error
	RecordStepBatch(ev StepBatchEvent) error
	RecordDispatchRun(ev DispatchRunEvent) error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) RecordSessionEvent(SessionEvent) error    { return nil }
func (NopSink) RecordStepBatch(StepBatchEvent) error     { return nil }
func (NopSink) RecordDispatchRun(DispatchRunEvent) error { return nil }
