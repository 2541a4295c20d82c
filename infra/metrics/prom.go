package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/gridtwin/gridtwin/core/metrics"
)

// PromSink records simulation events in Prometheus metrics.
type PromSink struct {
	sessionEvents *prometheus.CounterVec
	envSteps      prometheus.Counter
	stepLatency   prometheus.Histogram
	activeGauge   prometheus.Gauge
	dispatchRuns  prometheus.Counter
	gridImport    prometheus.Counter
}

// NewPromSink registers simulation metrics on the default Prometheus
// registerer. The metrics server is started separately with StartPromServer.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer. A
// nil registerer defaults to the global one.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	sessionEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulation_session_events_total",
		Help: "Session lifecycle transitions by action",
	}, []string{"action"})
	envSteps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulation_env_steps_total",
		Help: "Environment steps executed across all sessions",
	})
	stepLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "simulation_step_batch_seconds",
		Help:    "Duration of Step calls",
		Buckets: prometheus.DefBuckets,
	})
	activeGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulation_sessions_active",
		Help: "Number of active simulation sessions",
	})
	dispatchRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_runs_total",
		Help: "Merit-order engine runs",
	})
	gridImport := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_grid_import_mwh_total",
		Help: "Grid import energy accumulated over dispatch runs",
	})

	if err := reg.Register(sessionEvents); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			sessionEvents = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(envSteps); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			envSteps = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(stepLatency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			stepLatency = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(activeGauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			activeGauge = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(dispatchRuns); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			dispatchRuns = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(gridImport); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			gridImport = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		sessionEvents: sessionEvents,
		envSteps:      envSteps,
		stepLatency:   stepLatency,
		activeGauge:   activeGauge,
		dispatchRuns:  dispatchRuns,
		gridImport:    gridImport,
	}, nil
}

// RecordSessionEvent counts the transition and tracks the active gauge.
func (s *PromSink) RecordSessionEvent(ev coremetrics.SessionEvent) error {
	s.sessionEvents.WithLabelValues(ev.Action).Inc()
	switch ev.Action {
	case "created":
		s.activeGauge.Inc()
	case "closed":
		s.activeGauge.Dec()
	}
	return nil
}

// RecordStepBatch counts executed steps and observes the batch latency.
func (s *PromSink) RecordStepBatch(ev coremetrics.StepBatchEvent) error {
	s.envSteps.Add(float64(ev.StepsExecuted))
	s.stepLatency.Observe(ev.Duration.Seconds())
	return nil
}

// RecordDispatchRun counts engine runs and accumulates grid import.
func (s *PromSink) RecordDispatchRun(ev coremetrics.DispatchRunEvent) error {
	s.dispatchRuns.Inc()
	s.gridImport.Add(ev.GridImportMWh)
	return nil
}
