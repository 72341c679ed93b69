// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package apperr defines the error taxonomy shared by the gateway client,
// the reconciliation engine, and the import orchestrator.
//
// The rules of propagation: validation and scheduling errors never reach the
// network layer; transient network errors are reconciled locally before they
// may escalate; "already in progress" is an idempotency signal, not a failure.
package apperr

import (
	"errors"
	"fmt"

	"github.com/pitwall-app/pitwall/internal/logging"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrAlreadyInProgress signals the backend is already importing the
	// event. Treated as success-in-flight, never surfaced as a failure.
	ErrAlreadyInProgress = errors.New("import already in progress")

	// ErrCircuitOpen signals the discovery circuit breaker rejected the
	// call. Treated as a benign "try later", not an error to surface.
	ErrCircuitOpen = errors.New("discovery circuit open")

	// ErrSessionNotFound signals an unknown or expired search session id.
	ErrSessionNotFound = errors.New("search session not found")
)

// ValidationError reports bad filter input, attributed to a single field so
// the UI can surface it inline.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidation creates a ValidationError for the given field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ScheduledEventError reports an import attempt on an event whose date is in
// the future. Raised before any network call is made.
type ScheduledEventError struct {
	EventID   string
	EventName string
}

func (e *ScheduledEventError) Error() string {
	return fmt.Sprintf("event %q is scheduled in the future and cannot be imported yet", e.EventName)
}

// NotFoundError reports that a track or event disappeared server-side.
// Callers clear the stale selection and any persisted cache entry.
type NotFoundError struct {
	Kind string // "track" or "event"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// TransientNetworkError wraps a connection-level failure that may mask a
// backend operation which actually completed. The orchestrator re-queries
// authoritative state before letting this escalate.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network failure during %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// JobFailedError reports a terminal ingestion job failure.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ingestion job %s failed", e.JobID)
	}
	return fmt.Sprintf("ingestion job %s failed: %s", e.JobID, e.Message)
}

// PollTimeoutError reports an exhausted polling budget (attempts, wall clock,
// or consecutive errors) without observing a terminal state.
type PollTimeoutError struct {
	EventID string
	Reason  string
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("polling for event %s gave up: %s", e.EventID, e.Reason)
}

// ServerError is the catch-all for unexpected backend failures. It carries a
// generated correlation id so users can reference the failure in support
// requests.
type ServerError struct {
	CorrelationID string
	Status        int
	Err           error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error [%s]: %v", e.CorrelationID, e.Err)
}

func (e *ServerError) Unwrap() error { return e.Err }

// NewServer wraps err as a ServerError with a fresh correlation id.
func NewServer(status int, err error) *ServerError {
	return &ServerError{
		CorrelationID: logging.GenerateCorrelationID(),
		Status:        status,
		Err:           err,
	}
}

// IsBenignImportSignal reports whether err should be treated as a successful
// import handoff rather than a failure.
func IsBenignImportSignal(err error) bool {
	return errors.Is(err, ErrAlreadyInProgress)
}
