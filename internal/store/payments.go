package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"enkaji-payments/internal/models"

	"github.com/google/uuid"
)

// UpsertPaymentForOrder records the current payment attempt for an order.
// The row is keyed on order_id; a completed payment is never overwritten.
func (s *Store) UpsertPaymentForOrder(ctx context.Context, payment *models.PesapalPayment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}

	query := `
		INSERT INTO pesapal_payments (id, order_id, order_tracking_id, payment_method, phone_number,
			amount, currency, status, payment_status_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id) DO UPDATE SET
			order_tracking_id          = EXCLUDED.order_tracking_id,
			pesapal_transaction_id     = NULL,
			payment_method             = EXCLUDED.payment_method,
			phone_number               = EXCLUDED.phone_number,
			amount                     = EXCLUDED.amount,
			currency                   = EXCLUDED.currency,
			status                     = EXCLUDED.status,
			payment_status_description = EXCLUDED.payment_status_description,
			updated_at                 = NOW()
		WHERE pesapal_payments.status <> $10
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		payment.ID, payment.OrderID, payment.OrderTrackingID, payment.PaymentMethod, payment.PhoneNumber,
		payment.Amount, payment.Currency, payment.Status, payment.PaymentStatusDescription,
		models.PesapalStatusCompleted,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %s: %w", payment.OrderID, ErrPaymentCompleted)
	}
	return err
}

// GetPaymentByOrderID retrieves the payment attempt for an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.PesapalPayment, error) {
	var payment models.PesapalPayment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM pesapal_payments WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment for order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
