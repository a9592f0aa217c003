package audit

import "fmt"

// ValidationError reports a candidate entry rejected before hashing: it
// never reached the chain or the store.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "audit: invalid entry: " + e.Reason
}

// PersistenceError reports a durable-write failure after retries were
// exhausted. The chain head was not advanced, so the failed position is
// reused by the next append.
type PersistenceError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit: %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IntegrityViolation reports that the persisted chain does not reproduce its
// own hashes. It means tampering or corruption and must never be folded into
// a generic error path.
type IntegrityViolation struct {
	Index    int64
	Reason   string
	Expected string
	Actual   string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("audit: integrity violation at index %d: %s", e.Index, e.Reason)
}

// ConfigurationError reports an unusable configuration, such as an unknown
// digest algorithm or an unreachable store. It is raised during
// construction, never deferred to the first append.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("audit: configuration %s: %s", e.Field, e.Reason)
}
