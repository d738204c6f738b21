package store

import (
	"context"

	"enkaji-payments/internal/models"

	"github.com/google/uuid"
)

// CreateIPN appends a notification to the ledger. Rows are never updated.
func (s *Store) CreateIPN(ctx context.Context, ipn *models.PesapalIPN) error {
	if ipn.ID == "" {
		ipn.ID = uuid.New().String()
	}

	query := `
		INSERT INTO pesapal_ipns (id, pesapal_transaction_id, pesapal_tracking_id, pesapal_merchant_ref,
			notification_type, payment_method, amount, currency, status, status_description, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING processed_at`

	return s.db.QueryRowxContext(ctx, query,
		ipn.ID, ipn.PesapalTransactionID, ipn.PesapalTrackingID, ipn.PesapalMerchantRef,
		ipn.NotificationType, ipn.PaymentMethod, ipn.Amount, ipn.Currency, ipn.Status,
		ipn.StatusDescription, ipn.RawData,
	).Scan(&ipn.ProcessedAt)
}

// ListIPNsByMerchantRef returns the ledger for one order, newest first
func (s *Store) ListIPNsByMerchantRef(ctx context.Context, merchantRef string, limit int) ([]models.PesapalIPN, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var ipns []models.PesapalIPN
	err := s.db.SelectContext(ctx, &ipns,
		`SELECT * FROM pesapal_ipns WHERE pesapal_merchant_ref = $1
		 ORDER BY processed_at DESC LIMIT $2`, merchantRef, limit)
	return ipns, err
}
