// Package types provides the shared vocabulary of the gate checkpoint protocol.
// It exists so the mailbox, ledger, approval and alignment packages can agree on
// decisions, statuses and failure kinds without importing each other.
package types

// =============================================================================
// DECISIONS
// =============================================================================

// Decision is the human's verdict on a gate.
type Decision string

const (
	DecisionProceed Decision = "proceed"
	DecisionModify  Decision = "modify"
	DecisionStop    Decision = "stop"
)

// Decisions lists every recognised decision in display order.
var Decisions = []Decision{DecisionProceed, DecisionModify, DecisionStop}

// Valid reports whether d is one of the recognised decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionProceed, DecisionModify, DecisionStop:
		return true
	}
	return false
}

// ParseDecision maps raw user input onto a Decision.
// The second return value is false for empty or unrecognised input.
func ParseDecision(raw string) (Decision, bool) {
	d := Decision(raw)
	if !d.Valid() {
		return "", false
	}
	return d, true
}

// LedgerStatus maps a decision onto the ledger status it produces.
// Unrecognised decisions report false so callers leave the status untouched.
func (d Decision) LedgerStatus() (LedgerStatus, bool) {
	switch d {
	case DecisionProceed:
		return StatusProceeding, true
	case DecisionModify:
		return StatusModifying, true
	case DecisionStop:
		return StatusPaused, true
	}
	return "", false
}

// =============================================================================
// LEDGER STATUS
// =============================================================================

// LedgerStatus is the lifecycle state recorded in the vision ledger.
type LedgerStatus string

const (
	StatusInProgress LedgerStatus = "in_progress"
	StatusProceeding LedgerStatus = "proceeding"
	StatusModifying  LedgerStatus = "modifying"
	StatusPaused     LedgerStatus = "paused"
)

// =============================================================================
// GATE STATE
// =============================================================================

// GateState is the per-request lifecycle of the mailbox.
// There is no transition back to NoRequest; a new request overwrites the slot.
type GateState string

const (
	StateNoRequest GateState = "no_request"
	StatePending   GateState = "pending"
	StateResolved  GateState = "resolved"
)
