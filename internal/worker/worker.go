package worker

import (
	"context"

	"enkaji-payments/internal/broker"
	"enkaji-payments/internal/service"
	"enkaji-payments/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer is implemented by broker.Consumer
type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StatusVerifierWorker re-checks notifications that carried no final outcome
// against Pesapal's transaction status endpoint.
type StatusVerifierWorker struct {
	consumer     Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStatusVerifierWorker creates a new status verifier worker
func NewStatusVerifierWorker(consumer Consumer, verifier *service.StatusVerifier) *StatusVerifierWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnIPNReceived(verifier.VerifyIPN)

	return &StatusVerifierWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *StatusVerifierWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting status verifier worker")
	return w.consumer.StartConsuming(ctx, w.handle)
}

func (w *StatusVerifierWorker) handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := util.StartSpan(ctx, "StatusVerifierWorker.handle")
	defer span.End()
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *StatusVerifierWorker) Stop() error {
	w.logger.Info("Stopping status verifier worker")
	return w.consumer.Close()
}
