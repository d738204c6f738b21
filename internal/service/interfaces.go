package service

import (
	"context"
	"time"

	"enkaji-payments/internal/models"
	"enkaji-payments/internal/pesapal"
	"enkaji-payments/internal/store"
)

// PaymentStore is the persistence the payment core needs; *store.Store implements it
type PaymentStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	UpsertPaymentForOrder(ctx context.Context, payment *models.PesapalPayment) error
	GetPaymentByOrderID(ctx context.Context, orderID string) (*models.PesapalPayment, error)
	CreateIPN(ctx context.Context, ipn *models.PesapalIPN) error
	ListIPNsByMerchantRef(ctx context.Context, merchantRef string, limit int) ([]models.PesapalIPN, error)
	Reconcile(ctx context.Context, orderID string, decide store.DecideFunc) (*store.PaymentUpdate, error)
}

// Processor is the external payment processor; *pesapal.Client implements it
type Processor interface {
	SubmitOrder(ctx context.Context, req pesapal.SubmitOrderRequest) (*pesapal.SubmitOrderResponse, error)
	GetTransactionStatus(ctx context.Context, orderTrackingID string) (*pesapal.TransactionStatus, error)
}

// Locker guards one order against concurrent submissions
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// IdempotencyCache remembers notification deliveries that were fully reconciled
type IdempotencyCache interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// EventPublisher publishes payment events; *broker.EventPublisher implements it
type EventPublisher interface {
	PublishPaymentSubmitted(ctx context.Context, event *models.PaymentSubmittedEvent) error
	PublishIPNReceived(ctx context.Context, event *models.IPNReceivedEvent) error
	PublishPaymentOutcome(ctx context.Context, event *models.PaymentOutcomeEvent) error
	PublishIPNOrphaned(ctx context.Context, event *models.IPNOrphanedEvent) error
}
