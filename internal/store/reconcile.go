package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"enkaji-payments/internal/models"
)

// PaymentUpdate is the state a reconciliation decided to write.
// Empty order fields leave the order row untouched.
type PaymentUpdate struct {
	PesapalTransactionID string
	Status               string
	Description          string
	OrderStatus          string
	OrderPaymentStatus   string
}

// DecideFunc inspects the locked rows and returns the update to apply, or nil
// to leave both rows as they are. payment is nil when the order has no attempt.
type DecideFunc func(order *models.Order, payment *models.PesapalPayment) (*PaymentUpdate, error)

// Reconcile locks the order row and its payment attempt, asks decide what to
// write and applies the payment and order updates in one transaction.
func (s *Store) Reconcile(ctx context.Context, orderID string, decide DecideFunc) (*PaymentUpdate, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	var payment *models.PesapalPayment
	var row models.PesapalPayment
	err = tx.GetContext(ctx, &row, "SELECT * FROM pesapal_payments WHERE order_id = $1 FOR UPDATE", orderID)
	switch {
	case err == nil:
		payment = &row
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}

	update, err := decide(&order, payment)
	if err != nil || update == nil {
		return nil, err
	}

	if payment != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE pesapal_payments
			SET pesapal_transaction_id = NULLIF($1, ''), status = $2,
				payment_status_description = $3, updated_at = NOW()
			WHERE id = $4`,
			update.PesapalTransactionID, update.Status, update.Description, payment.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update payment: %w", err)
		}
	}

	if update.OrderStatus != "" {
		_, err = tx.ExecContext(ctx,
			"UPDATE orders SET status = $1, payment_status = $2, updated_at = NOW() WHERE id = $3",
			update.OrderStatus, update.OrderPaymentStatus, orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to update order: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return update, nil
}
