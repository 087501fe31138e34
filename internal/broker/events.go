package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pos-checkout/internal/checkout"
	"pos-checkout/internal/models"
	"pos-checkout/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrMalformedMessage marks payloads that can never be handled
var ErrMalformedMessage = errors.New("malformed message")

// Publisher writes keyed events
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// BreakerSettings tunes the publisher's circuit breaker
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// DefaultBreakerSettings trips after 5 consecutive failures and half-opens after 30s
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// EventPublisher publishes sale events. While Kafka keeps failing the breaker
// opens and publishes fail fast.
type EventPublisher struct {
	producer Publisher
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   *zap.Logger
}

var _ checkout.EventSink = (*EventPublisher)(nil)

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher, settings BreakerSettings) *EventPublisher {
	logger := util.GetLogger()
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-sale-events",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &EventPublisher{producer: producer, breaker: breaker, logger: logger}
}

// PublishSaleCompleted publishes SaleCompleted event
func (ep *EventPublisher) PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	return ep.publish(ctx, saleKey(event.SaleID, event.UserID), event.EventType, event)
}

// PublishSaleCompensated publishes SaleCompensated event
func (ep *EventPublisher) PublishSaleCompensated(ctx context.Context, event *models.SaleCompensatedEvent) error {
	return ep.publish(ctx, saleKey(event.SaleID, event.UserID), event.EventType, event)
}

func (ep *EventPublisher) publish(ctx context.Context, key, eventType string, event interface{}) error {
	_, err := ep.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, ep.producer.PublishEvent(ctx, key, event)
	})

	switch {
	case err == nil:
		util.EventsPublishedTotal.WithLabelValues(eventType, "ok").Inc()
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		util.EventsPublishedTotal.WithLabelValues(eventType, "rejected").Inc()
	default:
		util.EventsPublishedTotal.WithLabelValues(eventType, "failed").Inc()
	}
	return fmt.Errorf("publish %s: %w", eventType, err)
}

// State reports the breaker state
func (ep *EventPublisher) State() gobreaker.State {
	return ep.breaker.State()
}

// saleKey keeps every event of one sale on one partition. Events for sales
// that never got an id are keyed by cashier.
func saleKey(saleID, userID string) string {
	if saleID == "" {
		return fmt.Sprintf("user-%s", userID)
	}
	return fmt.Sprintf("sale-%s", saleID)
}

// EventHandler handles incoming events
type EventHandler struct {
	onSaleCompleted   func(context.Context, *models.SaleCompletedEvent) error
	onSaleCompensated func(context.Context, *models.SaleCompensatedEvent) error
	logger            *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnSaleCompleted registers a handler for SaleCompleted events
func (eh *EventHandler) OnSaleCompleted(handler func(context.Context, *models.SaleCompletedEvent) error) {
	eh.onSaleCompleted = handler
}

// OnSaleCompensated registers a handler for SaleCompensated events
func (eh *EventHandler) OnSaleCompensated(handler func(context.Context, *models.SaleCompensatedEvent) error) {
	eh.onSaleCompensated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %v", ErrMalformedMessage, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeSaleCompleted:
		if eh.onSaleCompleted != nil {
			var event models.SaleCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: SaleCompleted event: %v", ErrMalformedMessage, err)
			}
			return eh.onSaleCompleted(ctx, &event)
		}

	case models.EventTypeSaleCompensated:
		if eh.onSaleCompensated != nil {
			var event models.SaleCompensatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: SaleCompensated event: %v", ErrMalformedMessage, err)
			}
			return eh.onSaleCompensated(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
