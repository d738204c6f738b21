package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"enkaji-payments/internal/models"
	"enkaji-payments/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is the subset of Producer the event publisher needs
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing payment domain events
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// PublishPaymentSubmitted publishes PaymentSubmitted event
func (ep *EventPublisher) PublishPaymentSubmitted(ctx context.Context, event *models.PaymentSubmittedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishIPNReceived publishes IPNReceived event
func (ep *EventPublisher) PublishIPNReceived(ctx context.Context, event *models.IPNReceivedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentOutcome publishes PaymentCompleted or PaymentFailed event
func (ep *EventPublisher) PublishPaymentOutcome(ctx context.Context, event *models.PaymentOutcomeEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishIPNOrphaned publishes IPNOrphaned event
func (ep *EventPublisher) PublishIPNOrphaned(ctx context.Context, event *models.IPNOrphanedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.PesapalMerchantRef), event)
}

// PublishSinkEvent publishes a security or audit event
func (ep *EventPublisher) PublishSinkEvent(ctx context.Context, event *models.SinkEvent) error {
	return ep.producer.PublishEvent(ctx, event.EventType, event)
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	onIPNReceived func(context.Context, *models.IPNReceivedEvent) error
	logger        *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnIPNReceived registers a handler for IPNReceived events
func (eh *EventHandler) OnIPNReceived(handler func(context.Context, *models.IPNReceivedEvent) error) {
	eh.onIPNReceived = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		// poison message: log and let the consumer commit past it
		eh.logger.Error("Failed to unmarshal base event", zap.Error(err))
		return nil
	}

	switch baseEvent.EventType {
	case models.EventTypeIPNReceived:
		if eh.onIPNReceived != nil {
			var event models.IPNReceivedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal IPNReceived event: %w", err)
			}
			return eh.onIPNReceived(ctx, &event)
		}

	default:
		eh.logger.Debug("Ignoring event", zap.String("type", baseEvent.EventType), zap.String("id", baseEvent.EventID))
	}

	return nil
}
