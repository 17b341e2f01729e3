package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/reverside/timetracker/types"
)

const jsonContentType = "application/json"

// EventPublisher publishes timesheet workflow events as JSON on one channel.
type EventPublisher struct {
	mq      *MQ
	channel string
}

func NewEventPublisher(m *MQ, channel string) *EventPublisher {
	return &EventPublisher{mq: m, channel: channel}
}

// Publish assigns an id and timestamp when missing and sends the event.
func (p *EventPublisher) Publish(ctx context.Context, event types.TimesheetEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = p.mq.Publish(ctx, p.channel, data, map[string]string{
		AttrContentType: jsonContentType,
		AttrEventType:   string(event.Type),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// DecodeEvent parses a message produced by EventPublisher.
func DecodeEvent(msg Message) (types.TimesheetEvent, error) {
	var event types.TimesheetEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.TimesheetEvent{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		return types.TimesheetEvent{}, fmt.Errorf("decode event %s: missing type", msg.ID)
	}
	return event, nil
}

// EventHandler processes one decoded event.
type EventHandler func(ctx context.Context, event types.TimesheetEvent) error

// EventHandlerFunc adapts fn to a message Handler. Messages that cannot be
// decoded are logged and acknowledged so they are not redelivered.
func EventHandlerFunc(logger *slog.Logger, fn EventHandler) Handler {
	return func(ctx context.Context, msg Message) error {
		event, err := DecodeEvent(msg)
		if err != nil {
			logger.Warn("dropping undecodable message", "message_id", msg.ID, "error", err)
			return nil
		}
		return fn(ctx, event)
	}
}
