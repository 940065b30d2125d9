package model

import "time"

// Store names used in outcomes, logs and metric tags.
const (
	StoreRelational = "relational"
	StoreDocument   = "document"
)

// StoreResult is the outcome of one operation against one store.
type StoreResult struct {
	Store string
	// Affected is the number of rows or documents removed by a delete.
	Affected int64
	Err      error
}

// OK reports whether the store operation succeeded.
func (r StoreResult) OK() bool { return r.Err == nil }

// WriteOutcome reports the status of each store independently for one canonical record.
type WriteOutcome struct {
	JobIdentifier Identifier
	Relational    StoreResult
	Document      StoreResult
}

// OK reports whether both stores accepted the record.
func (o WriteOutcome) OK() bool { return o.Relational.OK() && o.Document.OK() }

// Results returns both store results in a stable order.
func (o WriteOutcome) Results() []StoreResult {
	return []StoreResult{o.Relational, o.Document}
}

// DeleteOutcome reports a stale-identifier delete against each store independently.
type DeleteOutcome struct {
	Requested  int
	Relational StoreResult
	Document   StoreResult
}

// Results returns both store results in a stable order.
func (o DeleteOutcome) Results() []StoreResult {
	return []StoreResult{o.Relational, o.Document}
}

// PassPhase is a state of the reconciliation state machine.
type PassPhase string

const (
	PhaseInit     PassPhase = "init"
	PhaseCrawling PassPhase = "crawling"
	PhaseSweeping PassPhase = "sweeping"
	PhaseDone     PassPhase = "done"
)

// PassReport summarizes one reconciliation pass.
type PassReport struct {
	PassID        string
	Resumed       bool
	Phase         PassPhase
	Bootstrapped  int
	Pages         int
	Listings      int
	NewListings   int
	Written       int
	WriteFailures map[string]int
	Stale         []Identifier
	Deleted       map[string]int64
	DeleteErrors  map[string]error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Duration returns how long the pass ran.
func (r *PassReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Completed reports whether the pass reached the Done phase.
func (r *PassReport) Completed() bool { return r.Phase == PhaseDone }
