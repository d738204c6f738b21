package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"enkaji-payments/internal/broker"
	"enkaji-payments/internal/models"
	"enkaji-payments/internal/pesapal"
	"enkaji-payments/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replayConsumer hands every message to the handler once and records errors
type replayConsumer struct {
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (c *replayConsumer) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range c.messages {
		c.errs = append(c.errs, handler(ctx, msg))
	}
	return nil
}

func (c *replayConsumer) Close() error {
	c.closed = true
	return nil
}

type statusProcessor struct {
	status  *pesapal.TransactionStatus
	err     error
	queried []string
}

func (p *statusProcessor) SubmitOrder(context.Context, pesapal.SubmitOrderRequest) (*pesapal.SubmitOrderResponse, error) {
	return nil, errors.New("not used")
}

func (p *statusProcessor) GetTransactionStatus(_ context.Context, trackingID string) (*pesapal.TransactionStatus, error) {
	p.queried = append(p.queried, trackingID)
	return p.status, p.err
}

func message(t *testing.T, event models.IPNReceivedEvent) kafka.Message {
	t.Helper()
	event.EventType = models.EventTypeIPNReceived
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("order-" + event.OrderID), Value: value}
}

func TestStatusVerifierWorkerQueriesPendingNotifications(t *testing.T) {
	processor := &statusProcessor{status: &pesapal.TransactionStatus{StatusCode: pesapal.StatusCodeInvalid}}
	consumer := &replayConsumer{messages: []kafka.Message{
		message(t, models.IPNReceivedEvent{OrderID: "ORD1", OrderTrackingID: "T1", Status: "0"}),
		message(t, models.IPNReceivedEvent{OrderID: "ORD2", OrderTrackingID: "T2", Status: "200", Transitioned: true}),
		{Value: []byte(`{"event_type":"PAYMENT_SUBMITTED"}`)},
	}}

	w := NewStatusVerifierWorker(consumer, service.NewStatusVerifier(processor, service.NewReconciler(nil, nil, nil)))
	require.NoError(t, w.Start(context.Background()))

	assert.Equal(t, []string{"T1"}, processor.queried)
	assert.Equal(t, []error{nil, nil, nil}, consumer.errs)

	require.NoError(t, w.Stop())
	assert.True(t, consumer.closed)
}

func TestStatusVerifierWorkerReturnsVerificationErrors(t *testing.T) {
	processor := &statusProcessor{err: errors.New("pesapal unavailable")}
	consumer := &replayConsumer{messages: []kafka.Message{
		message(t, models.IPNReceivedEvent{OrderID: "ORD1", OrderTrackingID: "T1", Status: "0"}),
	}}

	w := NewStatusVerifierWorker(consumer, service.NewStatusVerifier(processor, service.NewReconciler(nil, nil, nil)))
	require.NoError(t, w.Start(context.Background()))

	require.Len(t, consumer.errs, 1)
	assert.Error(t, consumer.errs[0])
}
