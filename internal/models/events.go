package models

import "time"

// Event types
const (
	EventTypePaymentSubmitted = "PAYMENT_SUBMITTED"
	EventTypeIPNReceived      = "IPN_RECEIVED"
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
	EventTypeIPNOrphaned      = "IPN_ORPHANED"
	EventTypeSecurity         = "SECURITY"
	EventTypeAudit            = "AUDIT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentSubmittedEvent published when Pesapal accepted an order request
type PaymentSubmittedEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	OrderTrackingID string `json:"order_tracking_id"`
	PaymentMethod   string `json:"payment_method"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

// IPNReceivedEvent published after a notification was ingested.
// Transitioned is false when the notification carried no terminal outcome.
type IPNReceivedEvent struct {
	BaseEvent
	IPNID           string `json:"ipn_id"`
	OrderID         string `json:"order_id"`
	OrderTrackingID string `json:"order_tracking_id"`
	Status          string `json:"status"`
	Transitioned    bool   `json:"transitioned"`
}

// PaymentOutcomeEvent published when an order reaches PAID or FAILED
type PaymentOutcomeEvent struct {
	BaseEvent
	OrderID              string `json:"order_id"`
	PesapalTransactionID string `json:"pesapal_transaction_id"`
	OrderStatus          string `json:"order_status"`
	PaymentStatus        string `json:"payment_status"`
	Source               string `json:"source"`
}

// IPNOrphanedEvent published when a notification names an order with no payment attempt
type IPNOrphanedEvent struct {
	BaseEvent
	IPNID              string `json:"ipn_id"`
	PesapalMerchantRef string `json:"pesapal_merchant_ref"`
	Reason             string `json:"reason"`
}

// SinkEvent carries security and audit events emitted through the event sink
type SinkEvent struct {
	BaseEvent
	Action   string            `json:"action"`
	Resource string            `json:"resource,omitempty"`
	Actor    string            `json:"actor,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}
