package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"configurator-service/internal/models"
	"configurator-service/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// EventProducer writes a keyed event to the event bus
type EventProducer interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// ErrPublisherOpen is returned while the publisher breaker rejects writes
var ErrPublisherOpen = gobreaker.ErrOpenState

// EventPublisher handles publishing domain events. Writes go through a
// circuit breaker that opens after five consecutive failures.
type EventPublisher struct {
	producer EventProducer
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   *zap.Logger
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventProducer) *EventPublisher {
	logger := util.GetLogger()

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &EventPublisher{producer: producer, breaker: breaker, logger: logger}
}

func (ep *EventPublisher) publish(ctx context.Context, key, eventType string, event interface{}) error {
	_, err := ep.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, ep.producer.PublishEvent(ctx, key, event)
	})
	if err != nil {
		util.EventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	util.EventsPublishedTotal.WithLabelValues(eventType, "ok").Inc()
	return nil
}

func sessionKey(sessionID string) string {
	return "session-" + sessionID
}

// PublishSessionStarted publishes SessionStarted event
func (ep *EventPublisher) PublishSessionStarted(ctx context.Context, event *models.SessionStartedEvent) error {
	return ep.publish(ctx, sessionKey(event.SessionID), event.EventType, event)
}

// PublishSessionEnded publishes SessionEnded event
func (ep *EventPublisher) PublishSessionEnded(ctx context.Context, event *models.SessionEndedEvent) error {
	return ep.publish(ctx, sessionKey(event.SessionID), event.EventType, event)
}

// PublishConfigurationAdded publishes ConfigurationAdded event
func (ep *EventPublisher) PublishConfigurationAdded(ctx context.Context, event *models.ConfigurationAddedEvent) error {
	return ep.publish(ctx, sessionKey(event.SessionID), event.EventType, event)
}

// PublishReservationRejected publishes ReservationRejected event
func (ep *EventPublisher) PublishReservationRejected(ctx context.Context, event *models.ReservationRejectedEvent) error {
	return ep.publish(ctx, sessionKey(event.SessionID), event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onSessionStarted func(context.Context, *models.SessionStartedEvent) error
	onSessionEnded   func(context.Context, *models.SessionEndedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnSessionStarted registers a handler for SessionStarted events
func (eh *EventHandler) OnSessionStarted(handler func(context.Context, *models.SessionStartedEvent) error) {
	eh.onSessionStarted = handler
}

// OnSessionEnded registers a handler for SessionEnded events
func (eh *EventHandler) OnSessionEnded(handler func(context.Context, *models.SessionEndedEvent) error) {
	eh.onSessionEnded = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeSessionStarted:
		if eh.onSessionStarted != nil {
			var event models.SessionStartedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SessionStarted event: %w", err)
			}
			return eh.onSessionStarted(ctx, &event)
		}

	case models.EventTypeSessionEnded:
		if eh.onSessionEnded != nil {
			var event models.SessionEndedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SessionEnded event: %w", err)
			}
			return eh.onSessionEnded(ctx, &event)
		}
	}

	return nil
}
