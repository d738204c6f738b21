package service

import (
	"context"
	"fmt"

	"enkaji-payments/internal/models"
	"enkaji-payments/internal/util"

	"go.uber.org/zap"
)

// StatusVerifier asks Pesapal for the transaction status when a notification
// did not carry a usable outcome.
type StatusVerifier struct {
	processor  Processor
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewStatusVerifier creates a new status verifier
func NewStatusVerifier(processor Processor, reconciler *Reconciler) *StatusVerifier {
	return &StatusVerifier{
		processor:  processor,
		reconciler: reconciler,
		logger:     util.GetLogger(),
	}
}

// VerifyIPN handles an IPNReceived event. Events that already transitioned
// the order, or whose status was itself terminal, need no query.
func (v *StatusVerifier) VerifyIPN(ctx context.Context, event *models.IPNReceivedEvent) error {
	if event.Transitioned || event.OrderTrackingID == "" || event.OrderID == "" {
		return nil
	}
	if OutcomeFromIPNStatus(event.Status) != OutcomeNone {
		return nil
	}

	ctx, span := util.StartSpan(ctx, "StatusVerifier.VerifyIPN")
	defer span.End()
	span.SetAttributes(util.OrderAttr(event.OrderID))

	status, err := v.processor.GetTransactionStatus(ctx, event.OrderTrackingID)
	if err != nil {
		return fmt.Errorf("failed to query transaction status for order %s: %w", event.OrderID, err)
	}

	if status.MerchantReference != "" && status.MerchantReference != event.OrderID {
		v.logger.Warn("Transaction status names a different order",
			zap.String("order_id", event.OrderID),
			zap.String("merchant_reference", status.MerchantReference),
			zap.String("tracking_id", event.OrderTrackingID))
		return nil
	}

	outcome := OutcomeFromStatusCode(status.StatusCode)
	v.logger.Info("Verified transaction status",
		zap.String("order_id", event.OrderID),
		zap.Int("status_code", status.StatusCode),
		zap.String("outcome", outcome.String()))

	if outcome == OutcomeNone {
		return nil
	}

	_, err = v.reconciler.Apply(ctx, ReconcileInput{
		OrderID:       event.OrderID,
		TrackingID:    event.OrderTrackingID,
		TransactionID: status.ConfirmationCode,
		Outcome:       outcome,
		Description:   status.PaymentStatusDescription,
		Source:        SourceStatusQuery,
		IPNID:         event.IPNID,
	})
	return err
}
