// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package gateway

import (
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/pitwall-app/pitwall/internal/models"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *time.Time
	}{
		{"empty", "", nil},
		{"bare date", "2026-03-14", timePtr(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))},
		{"rfc3339", "2026-03-14T09:30:00Z", timePtr(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))},
		{"no zone", "2026-03-14T09:30:00", timePtr(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))},
		{"garbage", "not-a-date", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDate(tt.input)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("parseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("parseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestWireEventNormalize(t *testing.T) {
	t.Run("camelCase keys", func(t *testing.T) {
		var w wireEvent
		mustUnmarshal(t, `{"id":"evt-1","eventName":"Club Race","eventDate":"2026-01-10","ingestDepth":"results_full","sourceEventId":"500"}`, &w)
		e := w.normalize()
		if e.ID != "evt-1" || e.EventName != "Club Race" || e.IngestDepth != "results_full" || e.SourceEventID != "500" {
			t.Errorf("unexpected event %+v", e)
		}
		if e.EventDate == nil {
			t.Error("date should parse")
		}
	})

	t.Run("snake_case keys", func(t *testing.T) {
		var w wireEvent
		mustUnmarshal(t, `{"id":"evt-1","event_name":"Club Race","event_date":"2026-01-10","ingest_depth":"results_full","source_event_id":"500"}`, &w)
		e := w.normalize()
		if e.EventName != "Club Race" || e.IngestDepth != "results_full" || e.SourceEventID != "500" {
			t.Errorf("unexpected event %+v", e)
		}
	})

	t.Run("provider-only event gets pseudo-id", func(t *testing.T) {
		var w wireEvent
		mustUnmarshal(t, `{"event_name":"Provider Race","source_event_id":"777"}`, &w)
		e := w.normalize()
		if e.ID != models.PseudoID("777") {
			t.Errorf("expected pseudo-id, got %q", e.ID)
		}
	})
}

func TestWireDiscoveryNormalize(t *testing.T) {
	var w wireDiscovery
	mustUnmarshal(t, `{"new_events":[{"source_event_id":"1"}],"existingEvents":[{"id":"evt-2"}]}`, &w)
	d := w.normalize()
	if len(d.NewEvents) != 1 || d.NewEvents[0].ID != "liverc-1" {
		t.Errorf("unexpected new events %+v", d.NewEvents)
	}
	if len(d.ExistingEvents) != 1 || d.ExistingEvents[0].ID != "evt-2" {
		t.Errorf("unexpected existing events %+v", d.ExistingEvents)
	}
}

func TestWireImportResultNormalize(t *testing.T) {
	t.Run("job submission", func(t *testing.T) {
		var w wireImportResult
		mustUnmarshal(t, `{"job_id":"job-42"}`, &w)
		sub := w.normalize()
		if sub.JobID != "job-42" || sub.Result != nil {
			t.Errorf("expected queued submission, got %+v", sub)
		}
	})

	t.Run("synchronous result", func(t *testing.T) {
		var w wireImportResult
		mustUnmarshal(t, `{"eventId":"evt-9","ingestDepth":"laps_full","racesIngested":4,"results_ingested":120,"laps_ingested":3400}`, &w)
		sub := w.normalize()
		if sub.JobID != "" || sub.Result == nil {
			t.Fatalf("expected inline result, got %+v", sub)
		}
		r := sub.Result
		if r.EventID != "evt-9" || r.IngestDepth != "laps_full" {
			t.Errorf("unexpected result %+v", r)
		}
		if r.RacesIngested != 4 || r.ResultsIngested != 120 || r.LapsIngested != 3400 {
			t.Errorf("counts not normalized: %+v", r)
		}
	})
}

func TestWireJobNormalize(t *testing.T) {
	var w wireJob
	mustUnmarshal(t, `{"status":"completed","result":{"event_id":"evt-3","ingest_depth":"laps_full"},"errorMessage":""}`, &w)
	j := w.normalize()
	if j.Status != "completed" || j.Result == nil || j.Result.EventID != "evt-3" {
		t.Errorf("unexpected job %+v", j)
	}
}

func TestUnwrapEnvelope(t *testing.T) {
	t.Run("bare payload passes through", func(t *testing.T) {
		body := []byte(`[{"id":"track-1"}]`)
		payload, code, _ := unwrapEnvelope(body)
		if code != "" {
			t.Errorf("unexpected code %q", code)
		}
		if string(payload) != string(body) {
			t.Errorf("payload altered: %s", payload)
		}
	})

	t.Run("data envelope unwraps", func(t *testing.T) {
		payload, code, _ := unwrapEnvelope([]byte(`{"success":true,"data":{"events":[]}}`))
		if code != "" {
			t.Errorf("unexpected code %q", code)
		}
		if string(payload) != `{"events":[]}` {
			t.Errorf("unexpected payload %s", payload)
		}
	})

	t.Run("error envelope yields code", func(t *testing.T) {
		payload, code, msg := unwrapEnvelope([]byte(`{"error":{"code":"import_in_progress","message":"already running"}}`))
		if payload != nil {
			t.Error("error envelope should have no payload")
		}
		if code != "import_in_progress" || msg != "already running" {
			t.Errorf("unexpected code %q msg %q", code, msg)
		}
	})

	t.Run("failure without error object", func(t *testing.T) {
		_, code, _ := unwrapEnvelope([]byte(`{"success":false,"message":"boom"}`))
		if code != "unknown_error" {
			t.Errorf("unexpected code %q", code)
		}
	})
}

func TestIsInProgressCode(t *testing.T) {
	for _, code := range []string{"import_in_progress", "IN_PROGRESS", "ALREADY_RUNNING", "already_queued"} {
		if !isInProgressCode(code) {
			t.Errorf("%q should be an in-progress code", code)
		}
	}
	for _, code := range []string{"", "not_found", "validation_error"} {
		if isInProgressCode(code) {
			t.Errorf("%q should not be an in-progress code", code)
		}
	}
}

func mustUnmarshal(t *testing.T, raw string, out any) {
	t.Helper()
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}
