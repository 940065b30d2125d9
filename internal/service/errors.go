package service

import "fmt"

// syncError is a sentinel that carries its metric class.
type syncError struct {
	msg   string
	class string
}

func (e *syncError) Error() string      { return e.msg }
func (e *syncError) ErrorClass() string { return e.class }

var (
	// ErrTrackerUnavailable means the key-value layer behind the liveness tracker or the
	// session cache failed. A pass that sees it aborts before any sweep.
	ErrTrackerUnavailable error = &syncError{msg: "liveness tracker unavailable", class: "tracker_unavailable"}

	// ErrSourceUnavailable means a page could not be fetched after all retries.
	ErrSourceUnavailable error = &syncError{msg: "listing source unavailable", class: "source_unavailable"}

	// ErrDeleteGuardTripped means the sweep found more stale identifiers than the configured
	// fraction of the bootstrapped set, so no deletes were issued.
	ErrDeleteGuardTripped error = &syncError{msg: "mass deletion guard tripped", class: "delete_guard_tripped"}

	// ErrPassInProgress is returned when RunPass is called while another pass is running.
	ErrPassInProgress error = &syncError{msg: "reconciliation pass already in progress", class: "pass_in_progress"}
)

// trackerError tags a key-value failure with ErrTrackerUnavailable while keeping the cause.
func trackerError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTrackerUnavailable, op, err)
}
