package metrics

import coremetrics "github.com/gridtwin/gridtwin/core/metrics"

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSessionEvent forwards to all sinks, returning the first error.
func (m *MultiSink) RecordSessionEvent(ev coremetrics.SessionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSessionEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordStepBatch forwards to all sinks, returning the first error.
func (m *MultiSink) RecordStepBatch(ev coremetrics.StepBatchEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordStepBatch(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordDispatchRun forwards to all sinks, returning the first error.
func (m *MultiSink) RecordDispatchRun(ev coremetrics.DispatchRunEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatchRun(ev); err != nil {
			return err
		}
	}
	return nil
}
