package audit

import (
	"context"
	"errors"
	"testing"

	"enkaji-payments/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubPublisher struct {
	events []*models.SinkEvent
	err    error
}

func (s *stubPublisher) PublishSinkEvent(_ context.Context, e *models.SinkEvent) error {
	s.events = append(s.events, e)
	return s.err
}

func TestKafkaSinkPublishesTypedEvents(t *testing.T) {
	pub := &stubPublisher{}
	sink := NewKafkaSink(pub, zap.NewNop())

	sink.LogSecurityEvent(context.Background(), Event{Action: "invalid_token"})
	sink.LogAuditEvent(context.Background(), Event{Action: "payment_submitted", Resource: "order", Fields: map[string]string{"order_id": "ORD123"}})

	if assert.Len(t, pub.events, 2) {
		assert.Equal(t, models.EventTypeSecurity, pub.events[0].EventType)
		assert.Equal(t, models.EventTypeAudit, pub.events[1].EventType)
		assert.Equal(t, "ORD123", pub.events[1].Fields["order_id"])
		assert.NotEmpty(t, pub.events[1].EventID)
	}
}

func TestKafkaSinkSwallowsPublishErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := NewKafkaSink(&stubPublisher{err: errors.New("broker down")}, zap.New(core))

	sink.LogAuditEvent(context.Background(), Event{Action: "payment_submitted"})

	assert.Equal(t, 1, logs.Len())
}

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, b}

	m.LogAuditEvent(context.Background(), Event{Action: "x"})
	m.LogSecurityEvent(context.Background(), Event{Action: "y"})

	assert.Equal(t, []string{"x"}, a.Actions())
	assert.Equal(t, []string{"x"}, b.Actions())
	assert.Len(t, b.Security, 1)
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.LogSecurityEvent(context.Background(), Event{Action: "invalid_token", Actor: "1.2.3.4"})
	sink.LogAuditEvent(context.Background(), Event{Action: "payment_submitted"})

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zap.WarnLevel, entries[0].Level)
		assert.Equal(t, "invalid_token", entries[0].ContextMap()["action"])
		assert.Equal(t, zap.InfoLevel, entries[1].Level)
	}
}
