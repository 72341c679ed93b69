// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package gateway is the typed client for the black-box results backend.
// It normalizes the backend's heterogeneous response envelopes (success/error
// wrappers, snake_case/camelCase key variants) into canonical model types at
// this boundary; nothing above it branches on casing.
package gateway

import (
	"context"
	"time"

	"github.com/pitwall-app/pitwall/internal/models"
)

// Backend is the interface the engine and orchestrator consume. Implemented
// by Client for production and by mocks in tests.
type Backend interface {
	// ListTracks fetches the track catalog.
	ListTracks(ctx context.Context) ([]models.Track, error)

	// SearchEvents queries the local database for events at a track.
	SearchEvents(ctx context.Context, trackID string, start, end *time.Time) (*EventSearchResult, error)

	// DiscoverEvents asks the external provider for events not yet known
	// locally. Timeouts and circuit-open conditions surface as an empty
	// result, not an error.
	DiscoverEvents(ctx context.Context, req DiscoverRequest) (*DiscoveryResult, error)

	// GetEvent reads one event's authoritative ingest state. Cheap; this
	// is the polling primitive.
	GetEvent(ctx context.Context, id string) (*EventStatusRecord, error)

	// SubmitImport starts an import. The backend either completes
	// synchronously (Result set) or queues a job (JobID set).
	SubmitImport(ctx context.Context, req ImportRequest) (*ImportSubmission, error)

	// GetJob reads a queued ingestion job's status.
	GetJob(ctx context.Context, jobID string) (*JobStatus, error)

	// SearchPracticeDays queries the local database for practice days.
	SearchPracticeDays(ctx context.Context, trackID string, start, end *time.Time) ([]models.PracticeDay, error)

	// DiscoverPracticeDays asks the provider for practice days not yet
	// known locally.
	DiscoverPracticeDays(ctx context.Context, req DiscoverRequest) (*PracticeDiscoveryResult, error)
}

// EventSearchResult is the normalized local-database search response.
type EventSearchResult struct {
	Track  *models.Track
	Events []models.Event
}

// DiscoverRequest carries the provider discovery parameters. ExistingSourceIDs
// lets the backend skip provider-side work for events already known locally.
type DiscoverRequest struct {
	TrackID           string
	TrackSlug         string
	Start             *time.Time
	End               *time.Time
	ExistingSourceIDs []string
}

// DiscoveryResult is the normalized provider discovery response. NewEvents
// carry provider pseudo-ids; ExistingEvents echo events the provider matched
// to local rows.
type DiscoveryResult struct {
	NewEvents      []models.Event
	ExistingEvents []models.Event
}

// PracticeDiscoveryResult is the practice-day variant of DiscoveryResult.
type PracticeDiscoveryResult struct {
	NewPracticeDays      []models.PracticeDay
	ExistingPracticeDays []models.PracticeDay
}

// EventStatusRecord is the normalized single-event read used for polling.
type EventStatusRecord struct {
	ID             string
	IngestDepth    string
	LastIngestedAt *time.Time
	Status         string // optional backend marker, e.g. "in_progress"
}

// InProgress reports whether the backend marked the event as actively
// ingesting.
func (r *EventStatusRecord) InProgress() bool {
	return r.Status == "in_progress"
}

// ImportRequest identifies the event to import: by local id, or by provider
// source id plus track for events with no local row yet.
type ImportRequest struct {
	EventID       string
	SourceEventID string
	TrackID       string
	Depth         string
	Practice      bool
}

// ImportResult is the synchronous-completion import payload.
type ImportResult struct {
	EventID         string
	IngestDepth     string
	RacesIngested   int
	ResultsIngested int
	LapsIngested    int
	Status          string
}

// ImportSubmission is the normalized import submit response: exactly one of
// Result (synchronous completion or in-progress marker) or JobID (queued).
type ImportSubmission struct {
	Result *ImportResult
	JobID  string
}

// Queued reports whether the backend queued an asynchronous job.
func (s *ImportSubmission) Queued() bool {
	return s.JobID != ""
}

// Job states reported by the ingestion job endpoint.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// JobStatus is the normalized ingestion job read.
type JobStatus struct {
	Status       string
	Result       *ImportResult
	ErrorMessage string
}

// Terminal reports whether the job reached an end state.
func (j *JobStatus) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
