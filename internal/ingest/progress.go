// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package ingest

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/pitwall-app/pitwall/internal/logging"
	"github.com/pitwall-app/pitwall/internal/models"
)

// TopicImportEvents is the in-process pub/sub topic the orchestrator
// publishes on and the WebSocket hub subscribes to.
const TopicImportEvents = "import.events"

// Event types published on TopicImportEvents.
const (
	EventProgress        = "import_progress"
	EventCompleted       = "import_completed"
	EventFailed          = "import_failed"
	EventPromoted        = "import_promoted"
	EventDiscoveryMerged = "discovery_merged"
)

// Notification is the payload published for every import state change.
type Notification struct {
	Type      string               `json:"type"`
	SessionID string               `json:"sessionId"`
	EventID   string               `json:"eventId"`
	OldID     string               `json:"oldId,omitempty"`
	Status    models.EventStatus   `json:"status,omitempty"`
	Stage     string               `json:"stage,omitempty"`
	Counts    *models.ImportCounts `json:"counts,omitempty"`
	Error     string               `json:"error,omitempty"`
	Merged    int                  `json:"merged,omitempty"`
}

// notifier publishes import notifications on the in-process bus. Publishing
// is best-effort: a failed publish is logged, never propagated, since the
// import itself must not depend on anyone listening.
type notifier struct {
	publisher message.Publisher
}

func (n *notifier) publish(note Notification) {
	if n.publisher == nil {
		return
	}
	payload, err := json.Marshal(note)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to encode import notification")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("session_id", note.SessionID)
	if err := n.publisher.Publish(TopicImportEvents, msg); err != nil {
		logging.Warn().Err(err).Str("event_id", note.EventID).Msg("Failed to publish import notification")
	}
}

// stageForElapsed maps wall-clock time since submit onto a human-readable
// stage label. Cosmetic only, the authoritative signal is ingest depth.
func stageForElapsed(elapsed time.Duration) string {
	switch {
	case elapsed < 10*time.Second:
		return "Starting import..."
	case elapsed < 30*time.Second:
		return "Importing races..."
	case elapsed < 90*time.Second:
		return "Importing results..."
	case elapsed < 3*time.Minute:
		return "Importing laps..."
	default:
		return "Still working, large event..."
	}
}
