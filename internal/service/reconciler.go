package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"enkaji-payments/internal/audit"
	"enkaji-payments/internal/models"
	"enkaji-payments/internal/pesapal"
	"enkaji-payments/internal/store"
	"enkaji-payments/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the terminal result a processor reported, if any
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePaid
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaid:
		return "paid"
	case OutcomeFailed:
		return "failed"
	}
	return "none"
}

// Processor status values carried in notifications
const (
	IPNStatusPaid   = "200"
	IPNStatusFailed = "1"
)

// OutcomeFromIPNStatus maps a notification status: "200" is paid, "1" is
// failed and every other value carries no outcome.
func OutcomeFromIPNStatus(status string) Outcome {
	switch status {
	case IPNStatusPaid:
		return OutcomePaid
	case IPNStatusFailed:
		return OutcomeFailed
	}
	return OutcomeNone
}

// OutcomeFromStatusCode maps a GetTransactionStatus status_code
func OutcomeFromStatusCode(code int) Outcome {
	switch code {
	case pesapal.StatusCodeCompleted:
		return OutcomePaid
	case pesapal.StatusCodeFailed:
		return OutcomeFailed
	}
	return OutcomeNone
}

// Reconciliation sources
const (
	SourceIPN         = "ipn"
	SourceStatusQuery = "status_query"
)

// ReconcileInput is one processor-reported outcome for an order
type ReconcileInput struct {
	OrderID       string
	TrackingID    string
	TransactionID string
	Outcome       Outcome
	Description   string
	Source        string
	IPNID         string
}

// ReconcileResult reports what reconciliation did
type ReconcileResult struct {
	Transitioned  bool
	Orphaned      bool
	Superseded    bool
	OrderStatus   string
	PaymentStatus string
}

// Reconciler maps processor outcomes onto Order and PesapalPayment state
type Reconciler struct {
	store     PaymentStore
	publisher EventPublisher
	sink      audit.EventSink
	logger    *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(store PaymentStore, publisher EventPublisher, sink audit.EventSink) *Reconciler {
	return &Reconciler{
		store:     store,
		publisher: publisher,
		sink:      sink,
		logger:    util.GetLogger(),
	}
}

// superseded reports whether the outcome belongs to an earlier attempt than
// the one the payment row currently tracks.
func superseded(in ReconcileInput, payment *models.PesapalPayment) bool {
	return in.TrackingID != "" && payment.OrderTrackingID != "" && in.TrackingID != payment.OrderTrackingID
}

// decide returns the update for the locked rows. A PAID order is final. Only
// a paid outcome may come from a superseded attempt, since the money arrived.
// An ambiguous outcome leaves a FAILED or COMPLETED payment row as it is
// instead of moving it back to PENDING.
func decide(in ReconcileInput, order *models.Order, payment *models.PesapalPayment) *store.PaymentUpdate {
	if payment == nil || order.PaymentStatus == models.PaymentStatusPaid {
		return nil
	}
	if in.Outcome != OutcomePaid && superseded(in, payment) {
		return nil
	}

	txID := in.TransactionID
	if txID == "" {
		txID = payment.PesapalTransactionID.String
	}
	description := in.Description
	if description == "" {
		description = payment.PaymentStatusDescription
	}

	switch in.Outcome {
	case OutcomePaid:
		return &store.PaymentUpdate{
			PesapalTransactionID: txID,
			Status:               models.PesapalStatusCompleted,
			Description:          description,
			OrderStatus:          models.OrderStatusConfirmed,
			OrderPaymentStatus:   models.PaymentStatusPaid,
		}

	case OutcomeFailed:
		if order.PaymentStatus == models.PaymentStatusFailed && payment.Status == models.PesapalStatusFailed {
			return nil
		}
		return &store.PaymentUpdate{
			PesapalTransactionID: txID,
			Status:               models.PesapalStatusFailed,
			Description:          description,
			OrderStatus:          models.OrderStatusCancelled,
			OrderPaymentStatus:   models.PaymentStatusFailed,
		}
	}

	if payment.Status != models.PesapalStatusPending {
		return nil
	}
	if txID == payment.PesapalTransactionID.String && description == payment.PaymentStatusDescription {
		return nil
	}
	return &store.PaymentUpdate{
		PesapalTransactionID: txID,
		Status:               models.PesapalStatusPending,
		Description:          description,
	}
}

// Apply reconciles one outcome. Unknown orders and orders without a payment
// attempt are reported as orphaned rather than as errors.
func (r *Reconciler) Apply(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Apply")
	defer span.End()
	span.SetAttributes(util.OrderAttr(in.OrderID))

	result := &ReconcileResult{}
	update, err := r.store.Reconcile(ctx, in.OrderID, func(order *models.Order, payment *models.PesapalPayment) (*store.PaymentUpdate, error) {
		result.OrderStatus = order.Status
		result.PaymentStatus = order.PaymentStatus
		if payment == nil {
			result.Orphaned = true
			return nil, nil
		}
		result.Superseded = superseded(in, payment)
		return decide(in, order, payment), nil
	})
	if errors.Is(err, store.ErrNotFound) {
		r.orphaned(ctx, in, "unknown_order")
		return &ReconcileResult{Orphaned: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile order %s: %w", in.OrderID, err)
	}

	if result.Orphaned {
		r.orphaned(ctx, in, "no_payment")
		return result, nil
	}

	if result.Superseded {
		r.supersededAttempt(ctx, in, update != nil && update.OrderStatus != "")
	}

	if update == nil || update.OrderStatus == "" {
		util.ReconciliationsTotal.WithLabelValues("unchanged", in.Source).Inc()
		r.logger.Info("Reconciliation left order unchanged",
			zap.String("order_id", in.OrderID),
			zap.String("outcome", in.Outcome.String()),
			zap.String("order_status", result.OrderStatus),
			zap.String("payment_status", result.PaymentStatus),
			zap.String("source", in.Source))
		return result, nil
	}

	result.Transitioned = true
	result.OrderStatus = update.OrderStatus
	result.PaymentStatus = update.OrderPaymentStatus
	util.ReconciliationsTotal.WithLabelValues(in.Outcome.String(), in.Source).Inc()

	r.logger.Info("Order payment reconciled",
		zap.String("order_id", in.OrderID),
		zap.String("order_status", update.OrderStatus),
		zap.String("payment_status", update.OrderPaymentStatus),
		zap.String("transaction_id", update.PesapalTransactionID),
		zap.String("source", in.Source))

	eventType := models.EventTypePaymentCompleted
	if in.Outcome == OutcomeFailed {
		eventType = models.EventTypePaymentFailed
	}
	event := &models.PaymentOutcomeEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		OrderID:              in.OrderID,
		PesapalTransactionID: update.PesapalTransactionID,
		OrderStatus:          update.OrderStatus,
		PaymentStatus:        update.OrderPaymentStatus,
		Source:               in.Source,
	}
	if err := r.publisher.PublishPaymentOutcome(ctx, event); err != nil {
		r.logger.Error("Failed to publish payment outcome event", zap.String("order_id", in.OrderID), zap.Error(err))
	}

	r.sink.LogAuditEvent(ctx, audit.Event{
		Action:   "payment_reconciled",
		Resource: "order",
		Actor:    "pesapal",
		Fields: map[string]string{
			"order_id":       in.OrderID,
			"payment_status": update.OrderPaymentStatus,
			"source":         in.Source,
		},
	})

	return result, nil
}

func (r *Reconciler) orphaned(ctx context.Context, in ReconcileInput, reason string) {
	util.IPNOrphanedTotal.WithLabelValues(reason).Inc()
	r.logger.Warn("Orphaned payment notification",
		zap.String("order_id", in.OrderID),
		zap.String("reason", reason),
		zap.String("ipn_id", in.IPNID),
		zap.String("source", in.Source))

	event := &models.IPNOrphanedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeIPNOrphaned,
			Timestamp: time.Now(),
		},
		IPNID:              in.IPNID,
		PesapalMerchantRef: in.OrderID,
		Reason:             reason,
	}
	if err := r.publisher.PublishIPNOrphaned(ctx, event); err != nil {
		r.logger.Error("Failed to publish orphaned notification event", zap.Error(err))
	}

	r.sink.LogAuditEvent(ctx, audit.Event{
		Action:   "ipn_orphaned",
		Resource: "pesapal_ipn",
		Actor:    "pesapal",
		Fields: map[string]string{
			"order_id": in.OrderID,
			"ipn_id":   in.IPNID,
			"reason":   reason,
		},
	})
}

func (r *Reconciler) supersededAttempt(ctx context.Context, in ReconcileInput, applied bool) {
	r.logger.Warn("Payment outcome for a superseded attempt",
		zap.String("order_id", in.OrderID),
		zap.String("tracking_id", in.TrackingID),
		zap.String("outcome", in.Outcome.String()),
		zap.Bool("applied", applied),
		zap.String("source", in.Source))

	r.sink.LogAuditEvent(ctx, audit.Event{
		Action:   "payment_attempt_superseded",
		Resource: "pesapal_payment",
		Actor:    "pesapal",
		Fields: map[string]string{
			"order_id":    in.OrderID,
			"tracking_id": in.TrackingID,
			"outcome":     in.Outcome.String(),
			"applied":     strconv.FormatBool(applied),
		},
	})
}
