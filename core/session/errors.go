package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports an unknown or expired session id. It is expected
// after a process restart cleared the in-memory registry; callers recover
// by creating a new session.
var ErrNotFound = errors.New("unknown simulation session")

// ConfigurationError marks an environment construction failure caused by
// the supplied settings, e.g. a bad data path. It is surfaced to the
// caller; any degraded fallback is the caller's choice of factory, not a
// hidden behaviour of the registry.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("environment construction failed: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CleanupError aggregates release failures for a session's owned
// resources. It is logged by the registry, never propagated: a failing
// release does not stop the remaining releases.
type CleanupError struct {
	SessionID string
	Failures  []error
}

func (e *CleanupError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, err := range e.Failures {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("session %s cleanup: %s", e.SessionID, strings.Join(msgs, "; "))
}
