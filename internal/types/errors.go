package types

import (
	"errors"
	"fmt"
)

// FailureKind classifies the degraded outcomes a gate operation can report.
type FailureKind int

const (
	// MissingArtifact: no request/response file present. Reported as "no gate active".
	MissingArtifact FailureKind = iota + 1
	// MalformedArtifact: the file exists but cannot be parsed.
	MalformedArtifact
	// PortConflict: the preferred approval port is taken.
	PortConflict
	// ApprovalTimeout: no human submission arrived before the deadline.
	ApprovalTimeout
	// IntegrationFailure: the ledger could not be loaded, merged or saved.
	IntegrationFailure
)

func (k FailureKind) String() string {
	switch k {
	case MissingArtifact:
		return "missing_artifact"
	case MalformedArtifact:
		return "malformed_artifact"
	case PortConflict:
		return "port_conflict"
	case ApprovalTimeout:
		return "approval_timeout"
	case IntegrationFailure:
		return "integration_failure"
	}
	return fmt.Sprintf("failure_kind(%d)", int(k))
}

// GateError is the error type returned across package boundaries.
type GateError struct {
	Kind FailureKind
	Op   string // operation that failed, e.g. "read_response"
	Path string // artifact path, if any
	Err  error
}

func (e *GateError) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GateError) Unwrap() error {
	return e.Err
}

// NewError builds a GateError.
func NewError(kind FailureKind, op, path string, err error) *GateError {
	return &GateError{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the failure kind carried by err, or 0 if err is not a GateError.
func KindOf(err error) FailureKind {
	var ge *GateError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return 0
}

// IsKind reports whether err carries the given failure kind anywhere in its chain.
func IsKind(err error, kind FailureKind) bool {
	return err != nil && KindOf(err) == kind
}
