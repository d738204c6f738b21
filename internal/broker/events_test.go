package broker

import (
	"context"
	"encoding/json"
	"testing"

	"enkaji-payments/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	keys   []string
	events []interface{}
}

func (r *recordingProducer) PublishEvent(_ context.Context, key string, event interface{}) error {
	r.keys = append(r.keys, key)
	r.events = append(r.events, event)
	return nil
}

func TestEventPublisherKeysByOrder(t *testing.T) {
	producer := &recordingProducer{}
	ep := NewEventPublisher(producer)
	ctx := context.Background()

	require.NoError(t, ep.PublishPaymentSubmitted(ctx, &models.PaymentSubmittedEvent{OrderID: "ORD123"}))
	require.NoError(t, ep.PublishIPNOrphaned(ctx, &models.IPNOrphanedEvent{PesapalMerchantRef: "ORD9"}))

	assert.Equal(t, []string{"order-ORD123", "order-ORD9"}, producer.keys)
}

func TestHandleMessageRoutesIPNReceived(t *testing.T) {
	eh := NewEventHandler()

	var got *models.IPNReceivedEvent
	eh.OnIPNReceived(func(_ context.Context, e *models.IPNReceivedEvent) error {
		got = e
		return nil
	})

	value, err := json.Marshal(models.IPNReceivedEvent{
		BaseEvent:       models.BaseEvent{EventID: "e1", EventType: models.EventTypeIPNReceived},
		OrderID:         "ORD123",
		OrderTrackingID: "T1",
	})
	require.NoError(t, err)

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, "T1", got.OrderTrackingID)
}

func TestHandleMessageSkipsOtherAndMalformedEvents(t *testing.T) {
	eh := NewEventHandler()
	called := false
	eh.OnIPNReceived(func(context.Context, *models.IPNReceivedEvent) error {
		called = true
		return nil
	})

	assert.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"PAYMENT_SUBMITTED"}`)}))
	assert.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte(`not json`)}))
	assert.False(t, called)
}
