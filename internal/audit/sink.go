// Package audit provides the security/audit event sink injected into the
// payment handlers and services.
package audit

import (
	"context"
	"sync"
	"time"

	"enkaji-payments/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event describes something worth keeping beyond the request log
type Event struct {
	Action   string
	Resource string
	Actor    string
	Fields   map[string]string
}

// EventSink receives security and audit events
type EventSink interface {
	LogSecurityEvent(ctx context.Context, e Event)
	LogAuditEvent(ctx context.Context, e Event)
}

// ZapSink writes events to a structured logger
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a sink on top of logger
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) LogSecurityEvent(_ context.Context, e Event) {
	s.logger.Warn("security event", eventFields(e)...)
}

func (s *ZapSink) LogAuditEvent(_ context.Context, e Event) {
	s.logger.Info("audit event", eventFields(e)...)
}

func eventFields(e Event) []zap.Field {
	fields := make([]zap.Field, 0, len(e.Fields)+3)
	fields = append(fields,
		zap.String("action", e.Action),
		zap.String("resource", e.Resource),
		zap.String("actor", e.Actor))
	for k, v := range e.Fields {
		fields = append(fields, zap.String(k, v))
	}
	return fields
}

// SinkPublisher is implemented by broker.EventPublisher
type SinkPublisher interface {
	PublishSinkEvent(ctx context.Context, event *models.SinkEvent) error
}

// KafkaSink forwards events to the payment events topic. Publishing failures
// are logged and never reach the caller.
type KafkaSink struct {
	publisher SinkPublisher
	logger    *zap.Logger
}

// NewKafkaSink creates a sink publishing through publisher
func NewKafkaSink(publisher SinkPublisher, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{publisher: publisher, logger: logger}
}

func (s *KafkaSink) LogSecurityEvent(ctx context.Context, e Event) {
	s.publish(ctx, models.EventTypeSecurity, e)
}

func (s *KafkaSink) LogAuditEvent(ctx context.Context, e Event) {
	s.publish(ctx, models.EventTypeAudit, e)
}

func (s *KafkaSink) publish(ctx context.Context, eventType string, e Event) {
	event := &models.SinkEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		Action:   e.Action,
		Resource: e.Resource,
		Actor:    e.Actor,
		Fields:   e.Fields,
	}
	if err := s.publisher.PublishSinkEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish sink event",
			zap.String("type", eventType),
			zap.String("action", e.Action),
			zap.Error(err))
	}
}

// Multi fans every event out to all sinks in order
type Multi []EventSink

func (m Multi) LogSecurityEvent(ctx context.Context, e Event) {
	for _, s := range m {
		s.LogSecurityEvent(ctx, e)
	}
}

func (m Multi) LogAuditEvent(ctx context.Context, e Event) {
	for _, s := range m {
		s.LogAuditEvent(ctx, e)
	}
}

// Recorder keeps events in memory; used by tests
type Recorder struct {
	mu       sync.Mutex
	Security []Event
	Audit    []Event
}

func (r *Recorder) LogSecurityEvent(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Security = append(r.Security, e)
}

func (r *Recorder) LogAuditEvent(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Audit = append(r.Audit, e)
}

// Actions returns the audit actions recorded so far
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]string, 0, len(r.Audit))
	for _, e := range r.Audit {
		actions = append(actions, e.Action)
	}
	return actions
}
