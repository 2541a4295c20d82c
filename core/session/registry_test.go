package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gridtwin/gridtwin/core/env"
	"github.com/gridtwin/gridtwin/core/metrics"
)

// fakeEnv is a scripted environment: it terminates every agent after
// doneAfter steps since the last reset and records the actions it was
// handed.
type fakeEnv struct {
	agents      []string
	space       env.ActionSpace
	doneAfter   int
	sinceReset  int
	resets      int
	closes      int
	closeErr    error
	lastActions map[string]any
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		agents:    []string{"manager"},
		space:     env.ActionSpace{Discrete: 3},
		doneAfter: 0,
	}
}

func (f *fakeEnv) Reset() (map[string]any, map[string]any, error) {
	f.resets++
	f.sinceReset = 0
	return map[string]any{"manager": []float32{1, 2}}, map[string]any{"episode": f.resets}, nil
}

func (f *fakeEnv) Step(actions map[string]any) (map[string]any, map[string]float64,
	map[string]bool, map[string]bool, map[string]any, error) {
	f.lastActions = actions
	f.sinceReset++
	done := f.doneAfter > 0 && f.sinceReset >= f.doneAfter
	return map[string]any{"manager": []float32{0}},
		map[string]float64{"manager": 1.5},
		map[string]bool{"manager": done},
		map[string]bool{"manager": false},
		map[string]any{"t": f.sinceReset},
		nil
}

func (f *fakeEnv) Agents() []string                   { return f.agents }
func (f *fakeEnv) ActionSpace(string) env.ActionSpace { return f.space }
func (f *fakeEnv) Close() error                       { f.closes++; return f.closeErr }

func factoryFor(f *fakeEnv) EnvFactory {
	return func(Settings, map[string]float64) (env.Environment, error) { return f, nil }
}

// recordingLogger captures error lines so tests can assert on cleanup
// reporting.
type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Debugf(string, ...any)         {}
func (l *recordingLogger) Debugw(string, map[string]any) {}
func (l *recordingLogger) Infof(string, ...any)          {}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}
func (l *recordingLogger) Errorf(format string, args ...any) {
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func TestRegistryCreateAndGet(t *testing.T) {
	f := newFakeEnv()
	r := NewRegistry(Settings{DataPath: "default.csv"}, factoryFor(f), nil, nil, nil, nil)

	s, err := r.Create(Settings{}, map[string]float64{"owned_battery_capacity_mwh": 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID == "" {
		t.Fatal("expected a session id")
	}
	if f.resets != 1 {
		t.Fatalf("expected initial reset, got %d", f.resets)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Len())
	}

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != s {
		t.Fatal("get returned a different session")
	}
	if ov := got.Overrides(); ov["owned_battery_capacity_mwh"] != 2 {
		t.Fatalf("overrides not kept: %v", ov)
	}
}

func TestRegistryCreateFactoryError(t *testing.T) {
	boom := errors.New("bad scenario")
	factory := func(Settings, map[string]float64) (env.Environment, error) { return nil, boom }
	r := NewRegistry(Settings{}, factory, nil, nil, nil, nil)

	_, err := r.Create(Settings{}, nil)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause not wrapped: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("failed create must not register a session")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(Settings{}, factoryFor(newFakeEnv()), nil, nil, nil, nil)
	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryStepClampsCount(t *testing.T) {
	f := newFakeEnv()
	r := NewRegistry(Settings{}, factoryFor(f), nil, nil, nil, nil)
	s, err := r.Create(Settings{}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, err := r.Step(s.ID, 0)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if snap.Metrics.StepsRequested != 1 || snap.Metrics.StepsExecuted != 1 {
		t.Fatalf("zero request must clamp to one: %+v", snap.Metrics)
	}

	snap, err = r.Step(s.ID, MaxStepsPerCall+50)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if snap.Metrics.StepsRequested != MaxStepsPerCall {
		t.Fatalf("oversized request must clamp to %d, got %d", MaxStepsPerCall, snap.Metrics.StepsRequested)
	}
	if s.StepsTaken() != 1+MaxStepsPerCall {
		t.Fatalf("expected %d cumulative steps, got %d", 1+MaxStepsPerCall, s.StepsTaken())
	}
}

func TestRegistryStepNeutralActions(t *testing.T) {
	f := newFakeEnv()
	f.space = env.ActionSpace{Shape: []int{2, 3}, Dtype: "float32"}
	r := NewRegistry(Settings{}, factoryFor(f), nil, nil, nil, nil)
	s, err := r.Create(Settings{}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := r.Step(s.ID, 1); err != nil {
		t.Fatalf("step: %v", err)
	}
	vec, ok := f.lastActions["manager"].([]float32)
	if !ok {
		t.Fatalf("expected []float32 action, got %T", f.lastActions["manager"])
	}
	if len(vec) != 6 {
		t.Fatalf("expected 6 elements, got %d", len(vec))
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("element %d not zero: %g", i, v)
		}
	}
}

func TestRegistryStepDiscreteNeutralAction(t *testing.T) {
	f := newFakeEnv()
	r := NewRegistry(Settings{}, factoryFor(f), nil, nil, nil, nil)
	s, err := r.Create(Settings{}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Step(s.ID, 1); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got, ok := f.lastActions["manager"].(int); !ok || got != 0 {
		t.Fatalf("expected discrete zero action, got %v", f.lastActions["manager"])
	}
}

func TestRegistryStepAutoReset(t *testing.T) {
	f := newFakeEnv()
	f.doneAfter = 2
	r := NewRegistry(Settings{}, factoryFor(f), nil, nil, nil, nil)
	s, err := r.Create(Settings{}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, err := r.Step(s.ID, 10)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if snap.Metrics.StepsRequested != 10 {
		t.Fatalf("requested count lost: %d", snap.Metrics.StepsRequested)
	}
	if snap.Metrics.StepsExecuted != 2 {
		t.Fatalf("episode end must stop the batch after 2 steps, got %d", snap.Metrics.StepsExecuted)
	}
	if f.resets != 2 {
		t.Fatalf("expected auto reset, got %d resets", f.resets)
	}
	if len(snap.Rewards) != 0 || len(snap.Terminations) != 0 || len(snap.Truncations) != 0 {
		t.Fatalf("cached maps must clear on reset: %+v", snap)
	}
	if snap.Info["episode"] != 2 {
		t.Fatalf("snapshot must carry the post-reset info, got %v", snap.Info)
	}
}

func TestRegistryCloseSession(t *testing.T) {
	f := newFakeEnv()
	r := NewRegistry(Settings{}, factoryFor(f), nil, nil, nil, nil)
	s, err := r.Create(Settings{}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r.CloseSession(s.ID)
	if f.closes != 1 {
		t.Fatalf("environment not closed: %d", f.closes)
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("closed session still reachable: %v", err)
	}

	// Unknown and repeated ids are quietly ignored.
	r.CloseSession(s.ID)
	r.CloseSession("unknown")
	if f.closes != 1 {
		t.Fatalf("repeat close must be a no-op, got %d", f.closes)
	}
}

// A session whose resources were already released must reject further
// stepping even while a stale table entry still resolves its id.
func TestRegistryStepReleasedSession(t *testing.T) {
	f := newFakeEnv()
	r := NewRegistry(Settings{}, factoryFor(f), nil, nil, nil, nil)
	s, err := r.Create(Settings{}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r.release(s)
	if _, err := r.Step(s.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("step on released session: %v, want ErrNotFound", err)
	}
	if _, err := r.Snapshot(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("snapshot on released session: %v, want ErrNotFound", err)
	}
	if f.sinceReset != 0 {
		t.Fatalf("released environment must not be stepped, got %d steps", f.sinceReset)
	}
}

func TestRegistryCleanupErrorLoggedNotReturned(t *testing.T) {
	f := newFakeEnv()
	f.closeErr = errors.New("socket already gone")
	log := &recordingLogger{}
	r := NewRegistry(Settings{}, factoryFor(f), nil, nil, nil, log)
	s, err := r.Create(Settings{}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r.CloseSession(s.ID)
	if len(log.errors) != 1 {
		t.Fatalf("expected one logged cleanup failure, got %v", log.errors)
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("session must be removed despite the cleanup failure")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	envs := []*fakeEnv{newFakeEnv(), newFakeEnv(), newFakeEnv()}
	i := 0
	factory := func(Settings, map[string]float64) (env.Environment, error) {
		e := envs[i]
		i++
		return e, nil
	}
	r := NewRegistry(Settings{}, factory, nil, nil, nil, nil)
	for range envs {
		if _, err := r.Create(Settings{}, nil); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("sessions remain after close: %d", r.Len())
	}
	for idx, e := range envs {
		if e.closes != 1 {
			t.Fatalf("environment %d not closed", idx)
		}
	}
}

func TestRegistryDecorator(t *testing.T) {
	f := newFakeEnv()
	decorated := false
	decorator := func(inner env.Environment) (env.Environment, error) {
		decorated = true
		return inner, nil
	}
	r := NewRegistry(Settings{EnableForecasts: true}, factoryFor(f), decorator, nil, nil, nil)
	if _, err := r.Create(Settings{}, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !decorated {
		t.Fatal("decorator not applied")
	}
}

func TestRegistrySinkEvents(t *testing.T) {
	f := newFakeEnv()
	sink := &recordingSink{}
	r := NewRegistry(Settings{}, factoryFor(f), nil, sink, nil, nil)
	s, err := r.Create(Settings{}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Step(s.ID, 3); err != nil {
		t.Fatalf("step: %v", err)
	}
	r.CloseSession(s.ID)

	if len(sink.sessions) != 2 || sink.sessions[0].Action != "created" || sink.sessions[1].Action != "closed" {
		t.Fatalf("unexpected session events: %+v", sink.sessions)
	}
	if len(sink.batches) != 1 || sink.batches[0].StepsExecuted != 3 {
		t.Fatalf("unexpected batch events: %+v", sink.batches)
	}
}

func TestSettingsMerged(t *testing.T) {
	defaults := Settings{DataPath: "a.csv", InvestmentFreq: 12}
	got := Settings{DataPath: "b.csv", EnableForecasts: true}.merged(defaults)
	want := Settings{DataPath: "b.csv", InvestmentFreq: 12, EnableForecasts: true}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if zero := (Settings{}).merged(defaults); zero != defaults {
		t.Fatalf("zero settings must fall back to defaults, got %+v", zero)
	}
}

type recordingSink struct {
	sessions []metrics.SessionEvent
	batches  []metrics.StepBatchEvent
	runs     []metrics.DispatchRunEvent
}

func (s *recordingSink) RecordSessionEvent(ev metrics.SessionEvent) error {
	s.sessions = append(s.sessions, ev)
	return nil
}

func (s *recordingSink) RecordStepBatch(ev metrics.StepBatchEvent) error {
	s.batches = append(s.batches, ev)
	return nil
}

func (s *recordingSink) RecordDispatchRun(ev metrics.DispatchRunEvent) error {
	s.runs = append(s.runs, ev)
	return nil
}
