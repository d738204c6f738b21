package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a customer order created at checkout
type Order struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	Currency      string          `db:"currency" json:"currency"`
	CustomerEmail string          `db:"customer_email" json:"customer_email"`
	CustomerPhone string          `db:"customer_phone" json:"customer_phone"`
	FirstName     string          `db:"first_name" json:"first_name"`
	LastName      string          `db:"last_name" json:"last_name"`
	Status        string          `db:"status" json:"status"`
	PaymentStatus string          `db:"payment_status" json:"payment_status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// PesapalPayment tracks the processor-side payment attempt for an order
type PesapalPayment struct {
	ID                       string          `db:"id" json:"id"`
	OrderID                  string          `db:"order_id" json:"order_id"`
	OrderTrackingID          string          `db:"order_tracking_id" json:"order_tracking_id"`
	PesapalTransactionID     sql.NullString  `db:"pesapal_transaction_id" json:"-"`
	PaymentMethod            string          `db:"payment_method" json:"payment_method"`
	PhoneNumber              string          `db:"phone_number" json:"phone_number,omitempty"`
	Amount                   decimal.Decimal `db:"amount" json:"amount"`
	Currency                 string          `db:"currency" json:"currency"`
	Status                   string          `db:"status" json:"status"`
	PaymentStatusDescription string          `db:"payment_status_description" json:"payment_status_description"`
	CreatedAt                time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time       `db:"updated_at" json:"updated_at"`
}

// PesapalIPN is the append-only ledger row for an inbound notification
type PesapalIPN struct {
	ID                   string              `db:"id" json:"id"`
	PesapalTransactionID string              `db:"pesapal_transaction_id" json:"pesapal_transaction_id"`
	PesapalTrackingID    string              `db:"pesapal_tracking_id" json:"pesapal_tracking_id"`
	PesapalMerchantRef   string              `db:"pesapal_merchant_ref" json:"pesapal_merchant_ref"`
	NotificationType     string              `db:"notification_type" json:"notification_type"`
	PaymentMethod        string              `db:"payment_method" json:"payment_method"`
	Amount               decimal.NullDecimal `db:"amount" json:"amount"`
	Currency             string              `db:"currency" json:"currency"`
	Status               string              `db:"status" json:"status"`
	StatusDescription    string              `db:"status_description" json:"status_description"`
	RawData              string              `db:"raw_data" json:"raw_data"`
	ProcessedAt          time.Time           `db:"processed_at" json:"processed_at"`
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
)

// Order payment statuses
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
)

// PesapalPayment statuses
const (
	PesapalStatusPending   = "PENDING"
	PesapalStatusCompleted = "COMPLETED"
	PesapalStatusFailed    = "FAILED"
)

// Payment methods accepted at checkout
const (
	PaymentMethodCard   = "CARD"
	PaymentMethodMpesa  = "MPESA"
	PaymentMethodAirtel = "AIRTEL"
	PaymentMethodBank   = "BANK"
)

// IsValidPaymentMethod reports whether method is one of the checkout methods
func IsValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCard, PaymentMethodMpesa, PaymentMethodAirtel, PaymentMethodBank:
		return true
	}
	return false
}

// IsMobileMoney reports whether method needs a phone number and an STK prompt
func IsMobileMoney(method string) bool {
	return method == PaymentMethodMpesa || method == PaymentMethodAirtel
}
