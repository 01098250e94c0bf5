package reconcile

import "fmt"

// ConfigurationError reports an invalid engine configuration. It is
// returned by New before any reconciliation runs.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("reconcile: invalid configuration: %s %s", e.Field, e.Reason)
}

// ReconciliationError wraps a failure in a reconciliation step. Op names the
// step: search, merge, create or update.
type ReconciliationError struct {
	Op  string
	Err error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile: %s: %v", e.Op, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}
