// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package gateway

import (
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pitwall-app/pitwall/internal/models"
)

// The backend emits both snake_case and camelCase key variants depending on
// which internal service produced the payload. Wire structs declare both
// spellings and normalization picks whichever is set. This is the only place
// in the codebase aware of the dual shapes.

// pick returns the first non-empty string.
func pick(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// pickInt returns the first non-zero int.
func pickInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// parseDate accepts the backend's date spellings: bare ISO date or RFC3339.
// Unparseable dates degrade to nil rather than failing the whole payload.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// envelope is the backend's optional response wrapper. Some endpoints wrap
// payloads in {success, data, error}; others return the payload bare.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *wireError      `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// unwrapEnvelope returns the payload bytes and any embedded error code and
// message. A body without an envelope wrapper is returned as-is.
func unwrapEnvelope(body []byte) (payload []byte, code, message string) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return body, "", ""
	}

	if env.Error != nil {
		return nil, env.Error.Code, env.Error.Message
	}
	if env.Success != nil && !*env.Success {
		return nil, pick(env.Code, "unknown_error"), env.Message
	}
	if env.Data != nil {
		return env.Data, "", ""
	}
	return body, "", ""
}

// isInProgressCode recognizes the backend's "already in progress" codes.
func isInProgressCode(code string) bool {
	c := strings.ToLower(code)
	return strings.Contains(c, "in_progress") || strings.Contains(c, "already")
}

type wireTrack struct {
	ID                 string `json:"id"`
	TrackName          string `json:"trackName"`
	TrackNameAlt       string `json:"track_name"`
	SourceTrackSlug    string `json:"sourceTrackSlug"`
	SourceTrackSlugAlt string `json:"source_track_slug"`
}

func (w *wireTrack) normalize() models.Track {
	return models.Track{
		ID:              w.ID,
		TrackName:       pick(w.TrackName, w.TrackNameAlt),
		SourceTrackSlug: pick(w.SourceTrackSlug, w.SourceTrackSlugAlt),
	}
}

type wireEvent struct {
	ID               string `json:"id"`
	EventName        string `json:"eventName"`
	EventNameAlt     string `json:"event_name"`
	EventDate        string `json:"eventDate"`
	EventDateAlt     string `json:"event_date"`
	IngestDepth      string `json:"ingestDepth"`
	IngestDepthAlt   string `json:"ingest_depth"`
	SourceEventID    string `json:"sourceEventId"`
	SourceEventIDAlt string `json:"source_event_id"`
}

func (w *wireEvent) normalize() models.Event {
	sourceID := pick(w.SourceEventID, w.SourceEventIDAlt)
	id := w.ID
	if id == "" && sourceID != "" {
		// Provider-only event with no local row yet.
		id = models.PseudoID(sourceID)
	}
	return models.Event{
		ID:            id,
		EventName:     pick(w.EventName, w.EventNameAlt),
		EventDate:     parseDate(pick(w.EventDate, w.EventDateAlt)),
		IngestDepth:   pick(w.IngestDepth, w.IngestDepthAlt),
		SourceEventID: sourceID,
	}
}

type wireEventSearch struct {
	Track  *wireTrack  `json:"track"`
	Events []wireEvent `json:"events"`
}

func (w *wireEventSearch) normalize() *EventSearchResult {
	out := &EventSearchResult{Events: make([]models.Event, 0, len(w.Events))}
	if w.Track != nil {
		t := w.Track.normalize()
		out.Track = &t
	}
	for i := range w.Events {
		out.Events = append(out.Events, w.Events[i].normalize())
	}
	return out
}

type wireDiscovery struct {
	NewEvents         []wireEvent `json:"new_events"`
	NewEventsAlt      []wireEvent `json:"newEvents"`
	ExistingEvents    []wireEvent `json:"existing_events"`
	ExistingEventsAlt []wireEvent `json:"existingEvents"`
}

func (w *wireDiscovery) normalize() *DiscoveryResult {
	newEvents := w.NewEvents
	if len(newEvents) == 0 {
		newEvents = w.NewEventsAlt
	}
	existing := w.ExistingEvents
	if len(existing) == 0 {
		existing = w.ExistingEventsAlt
	}

	out := &DiscoveryResult{
		NewEvents:      make([]models.Event, 0, len(newEvents)),
		ExistingEvents: make([]models.Event, 0, len(existing)),
	}
	for i := range newEvents {
		out.NewEvents = append(out.NewEvents, newEvents[i].normalize())
	}
	for i := range existing {
		out.ExistingEvents = append(out.ExistingEvents, existing[i].normalize())
	}
	return out
}

type wireStatusRecord struct {
	ID                string `json:"id"`
	IngestDepth       string `json:"ingest_depth"`
	IngestDepthAlt    string `json:"ingestDepth"`
	LastIngestedAt    string `json:"last_ingested_at"`
	LastIngestedAtAlt string `json:"lastIngestedAt"`
	Status            string `json:"status"`
}

func (w *wireStatusRecord) normalize() *EventStatusRecord {
	return &EventStatusRecord{
		ID:             w.ID,
		IngestDepth:    pick(w.IngestDepth, w.IngestDepthAlt),
		LastIngestedAt: parseDate(pick(w.LastIngestedAt, w.LastIngestedAtAlt)),
		Status:         w.Status,
	}
}

type wireImportResult struct {
	EventID            string `json:"event_id"`
	EventIDAlt         string `json:"eventId"`
	IngestDepth        string `json:"ingest_depth"`
	IngestDepthAlt     string `json:"ingestDepth"`
	RacesIngested      int    `json:"races_ingested"`
	RacesIngestedAlt   int    `json:"racesIngested"`
	ResultsIngested    int    `json:"results_ingested"`
	ResultsIngestedAlt int    `json:"resultsIngested"`
	LapsIngested       int    `json:"laps_ingested"`
	LapsIngestedAlt    int    `json:"lapsIngested"`
	Status             string `json:"status"`
	JobID              string `json:"job_id"`
	JobIDAlt           string `json:"jobId"`
}

func (w *wireImportResult) normalize() *ImportSubmission {
	if jobID := pick(w.JobID, w.JobIDAlt); jobID != "" {
		return &ImportSubmission{JobID: jobID}
	}
	return &ImportSubmission{Result: &ImportResult{
		EventID:         pick(w.EventID, w.EventIDAlt),
		IngestDepth:     pick(w.IngestDepth, w.IngestDepthAlt),
		RacesIngested:   pickInt(w.RacesIngested, w.RacesIngestedAlt),
		ResultsIngested: pickInt(w.ResultsIngested, w.ResultsIngestedAlt),
		LapsIngested:    pickInt(w.LapsIngested, w.LapsIngestedAlt),
		Status:          w.Status,
	}}
}

type wireJob struct {
	Status          string            `json:"status"`
	Result          *wireImportResult `json:"result"`
	ErrorMessage    string            `json:"error_message"`
	ErrorMessageAlt string            `json:"errorMessage"`
}

func (w *wireJob) normalize() *JobStatus {
	out := &JobStatus{
		Status:       w.Status,
		ErrorMessage: pick(w.ErrorMessage, w.ErrorMessageAlt),
	}
	if w.Result != nil {
		if sub := w.Result.normalize(); sub.Result != nil {
			out.Result = sub.Result
		}
	}
	return out
}

type wirePracticeDay struct {
	ID                  string `json:"id"`
	Label               string `json:"label"`
	LabelAlt            string `json:"practice_label"`
	PracticeDate        string `json:"practiceDate"`
	PracticeDateAlt     string `json:"practice_date"`
	IngestDepth         string `json:"ingestDepth"`
	IngestDepthAlt      string `json:"ingest_depth"`
	SourcePracticeID    string `json:"sourcePracticeId"`
	SourcePracticeIDAlt string `json:"source_practice_id"`
}

func (w *wirePracticeDay) normalize() models.PracticeDay {
	sourceID := pick(w.SourcePracticeID, w.SourcePracticeIDAlt)
	id := w.ID
	if id == "" && sourceID != "" {
		id = models.PseudoID(sourceID)
	}
	return models.PracticeDay{
		ID:               id,
		Label:            pick(w.Label, w.LabelAlt),
		PracticeDate:     parseDate(pick(w.PracticeDate, w.PracticeDateAlt)),
		IngestDepth:      pick(w.IngestDepth, w.IngestDepthAlt),
		SourcePracticeID: sourceID,
	}
}

type wirePracticeSearch struct {
	PracticeDays    []wirePracticeDay `json:"practice_days"`
	PracticeDaysAlt []wirePracticeDay `json:"practiceDays"`
}

func (w *wirePracticeSearch) normalize() []models.PracticeDay {
	days := w.PracticeDays
	if len(days) == 0 {
		days = w.PracticeDaysAlt
	}
	out := make([]models.PracticeDay, 0, len(days))
	for i := range days {
		out = append(out, days[i].normalize())
	}
	return out
}

type wirePracticeDiscovery struct {
	NewDays         []wirePracticeDay `json:"new_practice_days"`
	NewDaysAlt      []wirePracticeDay `json:"newPracticeDays"`
	ExistingDays    []wirePracticeDay `json:"existing_practice_days"`
	ExistingDaysAlt []wirePracticeDay `json:"existingPracticeDays"`
}

func (w *wirePracticeDiscovery) normalize() *PracticeDiscoveryResult {
	newDays := w.NewDays
	if len(newDays) == 0 {
		newDays = w.NewDaysAlt
	}
	existing := w.ExistingDays
	if len(existing) == 0 {
		existing = w.ExistingDaysAlt
	}

	out := &PracticeDiscoveryResult{
		NewPracticeDays:      make([]models.PracticeDay, 0, len(newDays)),
		ExistingPracticeDays: make([]models.PracticeDay, 0, len(existing)),
	}
	for i := range newDays {
		out.NewPracticeDays = append(out.NewPracticeDays, newDays[i].normalize())
	}
	for i := range existing {
		out.ExistingPracticeDays = append(out.ExistingPracticeDays, existing[i].normalize())
	}
	return out
}
