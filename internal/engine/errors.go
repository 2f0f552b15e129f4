// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// FAILURE TAXONOMY
// =============================================================================

// FailureKind classifies every failure the engine can surface.
type FailureKind string

const (
	// IntentRejected: an edit/retry precondition failed. Nothing mutated.
	IntentRejected FailureKind = "intent_rejected"

	// TransportFailure: the network channel could not be opened or kept.
	TransportFailure FailureKind = "transport_failure"

	// ServerReportedError: the backend sent an explicit error unit,
	// possibly with partial content.
	ServerReportedError FailureKind = "server_reported_error"

	// TimedOut: the stream deadline elapsed with no terminal unit.
	TimedOut FailureKind = "timed_out"

	// ReferenceNotFound: an identifier-reconciliation target was missing.
	// Non-fatal; logged and swallowed.
	ReferenceNotFound FailureKind = "reference_not_found"

	// InvariantViolation: a logic fault (double active attempt, switch
	// race). Logged loudly, never silently corrected.
	InvariantViolation FailureKind = "invariant_violation"
)

// OperationError is a classified, user-surfaceable failure.
type OperationError struct {
	Kind   FailureKind
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying error.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// opError builds an OperationError.
func opError(kind FailureKind, detail string, err error) *OperationError {
	return &OperationError{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the failure kind from an error, defaulting to
// TransportFailure for unclassified failures.
func KindOf(err error) FailureKind {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return TransportFailure
}

// =============================================================================
// ENGINE STATE ERRORS
// =============================================================================

var (
	// ErrClosed is returned for operations on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrStreamActive is returned when an operation needs the view to be
	// quiescent but a stream session is still receiving.
	ErrStreamActive = errors.New("a response is still streaming")
)
