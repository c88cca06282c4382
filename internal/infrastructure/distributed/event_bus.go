// Package distributed coordinates recording store changes across instances.
package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"screencast/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventsChannel = "screencast:events"

// Event is a recording store change broadcast on the bus.
type Event struct {
	Type        domain.RecordingEventType `json:"type"`
	InstanceID  string                    `json:"instance_id"`
	Timestamp   time.Time                 `json:"timestamp"`
	RecordingID domain.RecordingID        `json:"recording_id"`
}

// EventBus publishes and receives recording events over Redis pub/sub. It
// implements ports.RecordingEventPublisher.
type EventBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    eventsChannel,
		logger:     logger,
	}
}

func (eb *EventBus) PublishRecordingEvent(ctx context.Context, eventType domain.RecordingEventType, id domain.RecordingID) error {
	return eb.Publish(ctx, &Event{Type: eventType, RecordingID: id})
}

// Publish stamps the event with this instance and the current time.
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"recording_id", event.RecordingID,
	)
	return nil
}

// Subscribe calls handler for every event from other instances until ctx is
// done.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eb.channel, err)
	}
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}
			if event.InstanceID == eb.instanceID {
				continue
			}
			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}
