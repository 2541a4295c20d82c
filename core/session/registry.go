package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridtwin/gridtwin/core/env"
	"github.com/gridtwin/gridtwin/core/logger"
	"github.com/gridtwin/gridtwin/core/metrics"
	"github.com/gridtwin/gridtwin/internal/eventbus"
)

// MaxStepsPerCall bounds the number of environment steps a single Step
// call may execute.
const MaxStepsPerCall = 100

// EnvFactory builds an Environment from resolved settings and scenario
// overrides. A strict factory returns the construction error; a degraded
// factory may substitute a minimal environment. The choice between the two
// belongs to whoever constructs the registry.
type EnvFactory func(settings Settings, overrides map[string]float64) (env.Environment, error)

// DecoratorFactory wraps a freshly built environment, e.g. with the
// forecast decorator. Called only when the session settings ask for it.
type DecoratorFactory func(e env.Environment) (env.Environment, error)

// Registry is the table of active simulation sessions. It carries its own
// construction and shutdown lifecycle and is passed by reference to
// consumers; there is no ambient singleton.
type Registry struct {
	defaults  Settings
	factory   EnvFactory
	decorator DecoratorFactory
	log       logger.Logger
	sink      metrics.Sink
	bus       *eventbus.Bus[metrics.SessionEvent]

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry constructs a registry. The factory is required; decorator,
// sink, bus and log may be nil.
func NewRegistry(defaults Settings, factory EnvFactory, decorator DecoratorFactory,
	sink metrics.Sink, bus *eventbus.Bus[metrics.SessionEvent], log logger.Logger) *Registry {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Registry{
		defaults:  defaults,
		factory:   factory,
		decorator: decorator,
		log:       log,
		sink:      sink,
		bus:       bus,
		sessions:  make(map[string]*Session),
	}
}

// Create builds an environment from the merged settings, optionally wraps
// it with the decorator, resets it and registers the session under a fresh
// id. Construction failures surface as *ConfigurationError.
func (r *Registry) Create(settings Settings, overrides map[string]float64) (*Session, error) {
	resolved := settings.merged(r.defaults)

	e, err := r.factory(resolved, overrides)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	var decorator env.Environment
	if resolved.EnableForecasts && r.decorator != nil {
		decorator, err = r.decorator(e)
		if err != nil {
			if cerr := e.Close(); cerr != nil {
				r.log.Warnf("environment close after failed decoration: %v", cerr)
			}
			return nil, &ConfigurationError{Err: err}
		}
	}

	s := &Session{
		ID:          uuid.NewString(),
		environment: e,
		decorator:   decorator,
		overrides:   overrides,
		state:       Active,
	}
	obs, info, err := s.active().Reset()
	if err != nil {
		r.release(s)
		return nil, &ConfigurationError{Err: fmt.Errorf("initial reset: %w", err)}
	}
	s.lastObservation = obs
	s.lastInfo = info

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.publish(metrics.SessionEvent{SessionID: s.ID, Action: "created", Time: time.Now()})
	r.log.Infof("session %s created (data=%s forecasts=%t)", s.ID, resolved.DataPath, resolved.EnableForecasts)
	return s, nil
}

// Get returns the session or ErrNotFound. A restart that cleared the
// registry makes every previous id unknown; that is expected, not a bug.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Step advances the session by up to n environment steps (clamped to
// [1,MaxStepsPerCall]) and returns the snapshot captured at loop end. When
// every agent reports termination or truncation the environment is reset
// immediately, cached reward and termination maps are cleared and the
// remaining requested steps are skipped; the snapshot metrics report both
// requested and executed counts.
func (r *Registry) Step(id string, n int) (Snapshot, error) {
	s, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	if n < 1 {
		n = 1
	}
	if n > MaxStepsPerCall {
		n = MaxStepsPerCall
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	start := time.Now()
	executed := 0
	for i := 0; i < n; i++ {
		active := s.active()
		actions := neutralActions(active)
		obs, rewards, terminations, truncations, info, err := active.Step(actions)
		if err != nil {
			return Snapshot{}, fmt.Errorf("step session %s: %w", id, err)
		}

		s.lastObservation = obs
		s.lastRewards = rewards
		s.lastTerminations = terminations
		s.lastTruncations = truncations
		s.lastInfo = info
		s.stepsTaken++
		executed++

		if allDone(active.Agents(), terminations, truncations) {
			s.completedRows = s.timestepLocked()
			obs, info, err := active.Reset()
			if err != nil {
				return Snapshot{}, fmt.Errorf("reset session %s: %w", id, err)
			}
			s.lastObservation = obs
			s.lastInfo = info
			s.lastRewards = map[string]float64{}
			s.lastTerminations = map[string]bool{}
			s.lastTruncations = map[string]bool{}
			r.publish(metrics.SessionEvent{SessionID: id, Action: "reset", Time: time.Now()})
			break
		}
	}

	if err := r.sink.RecordStepBatch(metrics.StepBatchEvent{
		SessionID:      id,
		StepsRequested: n,
		StepsExecuted:  executed,
		Duration:       time.Since(start),
		Time:           time.Now(),
	}); err != nil {
		r.log.Warnf("record step batch: %v", err)
	}

	snap := buildSnapshotLocked(s)
	snap.Metrics.StepsRequested = n
	snap.Metrics.StepsExecuted = executed
	return snap, nil
}

// Snapshot returns the current snapshot without advancing the session.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	s, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return buildSnapshotLocked(s), nil
}

// CloseSession removes the session and releases its resources. Each
// release is attempted independently; failures are logged, never returned.
// Closing an unknown id is a no-op.
func (r *Registry) CloseSession(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	r.release(s)
	r.publish(metrics.SessionEvent{SessionID: id, Action: "closed", Time: time.Now()})
}

// CloseAll disposes of every tracked session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		r.release(s)
		r.publish(metrics.SessionEvent{SessionID: s.ID, Action: "closed", Time: time.Now()})
	}
}

// Close shuts the registry down, closing all sessions best-effort.
func (r *Registry) Close() error {
	r.CloseAll()
	return nil
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// release attempts every resource release independently and logs the
// collected failures as one CleanupError.
func (r *Registry) release(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failures []error
	if s.decorator != nil {
		if err := s.decorator.Close(); err != nil {
			failures = append(failures, fmt.Errorf("decorator: %w", err))
		}
	}
	if err := s.environment.Close(); err != nil {
		failures = append(failures, fmt.Errorf("environment: %w", err))
	}
	s.state = Closed

	if len(failures) > 0 {
		r.log.Errorf("%v", &CleanupError{SessionID: s.ID, Failures: failures})
	}
}

func (r *Registry) publish(ev metrics.SessionEvent) {
	if err := r.sink.RecordSessionEvent(ev); err != nil {
		r.log.Warnf("record session event: %v", err)
	}
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

// neutralActions builds a no-op action for every agent: the zero action
// for discrete spaces, a zero vector for continuous ones, and the space's
// own sampler as a last resort.
func neutralActions(e env.Environment) map[string]any {
	actions := make(map[string]any)
	for _, agent := range e.Agents() {
		actions[agent] = neutralAction(e.ActionSpace(agent))
	}
	return actions
}

func neutralAction(space env.ActionSpace) any {
	switch {
	case space.Discrete > 0:
		return 0
	case len(space.Shape) > 0:
		n := 1
		for _, d := range space.Shape {
			n *= d
		}
		if space.Dtype == "float32" {
			return make([]float32, n)
		}
		return make([]float64, n)
	case space.Sample != nil:
		return space.Sample()
	default:
		return 0
	}
}

func allDone(agents []string, terminations, truncations map[string]bool) bool {
	for _, agent := range agents {
		if !terminations[agent] && !truncations[agent] {
			return false
		}
	}
	return true
}

// nopLogger keeps the registry usable without an injected logger.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
