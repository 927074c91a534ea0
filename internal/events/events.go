// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package events publishes run lifecycle events over an in-process pub/sub
// bus. Consumers (dashboard push, future notification sinks) subscribe by
// topic; the engine never blocks on a slow consumer.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Topics for run lifecycle events.
const (
	TopicRunStarted   = "run.started"
	TopicRunCompleted = "run.completed"
	TopicRunFailed    = "run.failed"
)

// RunEvent is the payload published on every run lifecycle topic.
type RunEvent struct {
	RunID      uuid.UUID `json:"run_id"`
	QueueID    uuid.UUID `json:"queue_id"`
	InstanceID uuid.UUID `json:"instance_id"`

	ItemsSearched int `json:"items_searched"`
	ItemsFound    int `json:"items_found"`

	// Error is a redacted summary, set only on run.failed.
	Error string `json:"error,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Bus is an in-process publisher/subscriber for run events.
type Bus struct {
	channel *gochannel.GoChannel
}

// NewBus creates the event bus. Messages published with no subscriber are
// dropped rather than buffered.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		channel: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, logger),
	}
}

// PublishRun serializes and publishes a run event on the given topic.
func (b *Bus) PublishRun(topic string, event RunEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize run event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("queue_id", event.QueueID.String())
	return b.channel.Publish(topic, msg)
}

// Subscribe returns a channel of messages for the topic. The subscription
// lives until the bus closes.
func (b *Bus) Subscribe(topic string) (<-chan *message.Message, error) {
	return b.channel.Subscribe(context.Background(), topic)
}

// Close shuts the bus down and terminates all subscriptions.
func (b *Bus) Close() error {
	return b.channel.Close()
}

// DecodeRun deserializes a run event payload.
func DecodeRun(msg *message.Message) (RunEvent, error) {
	var event RunEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return RunEvent{}, fmt.Errorf("failed to decode run event: %w", err)
	}
	return event, nil
}
