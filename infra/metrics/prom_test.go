package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/gridtwin/gridtwin/core/metrics"
)

func TestPromSinkRecordsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	now := time.Now()
	for _, action := range []string{"created", "created", "reset", "closed"} {
		if err := sink.RecordSessionEvent(coremetrics.SessionEvent{SessionID: "s", Action: action, Time: now}); err != nil {
			t.Fatalf("record %s: %v", action, err)
		}
	}

	expected := `
# HELP simulation_session_events_total Session lifecycle transitions by action
# TYPE simulation_session_events_total counter
simulation_session_events_total{action="closed"} 1
simulation_session_events_total{action="created"} 2
simulation_session_events_total{action="reset"} 1
`
	if err := testutil.CollectAndCompare(sink.sessionEvents, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}

	expectedActive := `
# HELP simulation_sessions_active Number of active simulation sessions
# TYPE simulation_sessions_active gauge
simulation_sessions_active 1
`
	if err := testutil.CollectAndCompare(sink.activeGauge, strings.NewReader(expectedActive)); err != nil {
		t.Errorf("unexpected gauge: %v", err)
	}
}

func TestPromSinkRecordsStepBatches(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	if err := sink.RecordStepBatch(coremetrics.StepBatchEvent{
		SessionID:      "s",
		StepsRequested: 10,
		StepsExecuted:  7,
		Duration:       30 * time.Millisecond,
		Time:           time.Now(),
	}); err != nil {
		t.Fatalf("record batch: %v", err)
	}

	expected := `
# HELP simulation_env_steps_total Environment steps executed across all sessions
# TYPE simulation_env_steps_total counter
simulation_env_steps_total 7
`
	if err := testutil.CollectAndCompare(sink.envSteps, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter: %v", err)
	}
	if c := testutil.CollectAndCount(sink.stepLatency); c == 0 {
		t.Errorf("latency not recorded")
	}
}

func TestPromSinkRecordsDispatchRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	if err := sink.RecordDispatchRun(coremetrics.DispatchRunEvent{GridImportMWh: 12.5, Time: time.Now()}); err != nil {
		t.Fatalf("record run: %v", err)
	}

	expected := `
# HELP dispatch_grid_import_mwh_total Grid import energy accumulated over dispatch runs
# TYPE dispatch_grid_import_mwh_total counter
dispatch_grid_import_mwh_total 12.5
`
	if err := testutil.CollectAndCompare(sink.gridImport, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter: %v", err)
	}
}

func TestPromSinkDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("first sink: %v", err)
	}
	// A second sink on the same registry adopts the existing collectors.
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("second sink: %v", err)
	}
}
