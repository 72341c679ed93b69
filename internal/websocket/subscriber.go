// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package websocket

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/pitwall-app/pitwall/internal/ingest"
	"github.com/pitwall-app/pitwall/internal/logging"
)

// Subscriber bridges the in-process import notification topic to the hub:
// every notification the orchestrator publishes is forwarded as a frame to
// the owning session's clients.
type Subscriber struct {
	hub        *Hub
	subscriber message.Subscriber
}

// NewSubscriber creates the bridge.
func NewSubscriber(hub *Hub, sub message.Subscriber) *Subscriber {
	return &Subscriber{hub: hub, subscriber: sub}
}

// Serve consumes the import notification topic until the context ends.
// Implements suture.Service.
func (s *Subscriber) Serve(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, ingest.TopicImportEvents)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			s.forward(msg)
		}
	}
}

func (s *Subscriber) forward(msg *message.Message) {
	defer msg.Ack()

	var note ingest.Notification
	if err := json.Unmarshal(msg.Payload, &note); err != nil {
		logging.Warn().Err(err).Msg("Dropping malformed import notification")
		return
	}

	s.hub.Send(note.SessionID, Message{
		Type: frameType(note.Type),
		Data: note,
	})
}

// frameType maps notification types onto frame types. They currently match
// one to one; the indirection keeps the wire protocol stable if the internal
// names change.
func frameType(noteType string) string {
	switch noteType {
	case ingest.EventCompleted:
		return MessageTypeImportCompleted
	case ingest.EventFailed:
		return MessageTypeImportFailed
	case ingest.EventPromoted:
		return MessageTypeImportPromoted
	case ingest.EventDiscoveryMerged:
		return MessageTypeDiscoveryMerged
	default:
		return MessageTypeImportProgress
	}
}
