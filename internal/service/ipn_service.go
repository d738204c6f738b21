package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"enkaji-payments/internal/audit"
	"enkaji-payments/internal/models"
	"enkaji-payments/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Notification is the interpreted view of an inbound IPN body
type Notification struct {
	MerchantRef       string
	TrackingID        string
	TransactionID     string
	NotificationType  string
	PaymentMethod     string
	Amount            decimal.NullDecimal
	InvalidAmount     string
	Currency          string
	Status            string
	StatusDescription string
}

// IngestResult is the acknowledgement returned to Pesapal, plus what happened
type IngestResult struct {
	Success                bool   `json:"success"`
	OrderNotificationType  string `json:"orderNotificationType"`
	OrderTrackingID        string `json:"orderTrackingId"`
	OrderMerchantReference string `json:"orderMerchantReference"`
	Status                 int    `json:"status"`

	IPNID        string `json:"-"`
	Duplicate    bool   `json:"-"`
	Orphaned     bool   `json:"-"`
	Transitioned bool   `json:"-"`
}

// ParseNotification decodes an IPN body. Numbers are kept verbatim so a
// numeric status of 200 compares equal to "200". Only a body that is not a
// JSON object is an error; an unreadable amount is left null and reported
// in InvalidAmount.
func ParseNotification(raw []byte) (*Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%w: body is not an object", ErrMalformedNotification)
	}

	n := &Notification{
		MerchantRef:       field(body, "pesapalMerchantRef", "OrderMerchantReference"),
		TrackingID:        field(body, "pesapalTrackingId", "OrderTrackingId", "pesapal_transaction_tracking_id"),
		NotificationType:  field(body, "OrderNotificationType", "orderNotificationType"),
		PaymentMethod:     field(body, "paymentMethod", "payment_method"),
		Currency:          field(body, "currency"),
		Status:            field(body, "status"),
		StatusDescription: field(body, "statusDescription", "status_description"),
	}
	n.TransactionID = field(body, "pesapalTransactionId", "pesapal_transaction_tracking_id")
	if n.TransactionID == "" {
		n.TransactionID = n.TrackingID
	}

	if amount := field(body, "amount"); amount != "" {
		if d, err := decimal.NewFromString(amount); err == nil {
			n.Amount = decimal.NewNullDecimal(d)
		} else {
			n.InvalidAmount = amount
		}
	}
	return n, nil
}

// field returns the first non-empty value among keys, rendered as a string
func field(body map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := body[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case bool:
			s = fmt.Sprint(t)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// DeliveryKey identifies one exact notification delivery
func DeliveryKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return "ipn:" + hex.EncodeToString(sum[:])
}

// IPNService ingests Pesapal instant payment notifications
type IPNService struct {
	store      PaymentStore
	reconciler *Reconciler
	cache      IdempotencyCache
	publisher  EventPublisher
	sink       audit.EventSink
	dedupTTL   time.Duration
	logger     *zap.Logger
}

// NewIPNService creates a new IPN service
func NewIPNService(
	store PaymentStore,
	reconciler *Reconciler,
	cache IdempotencyCache,
	publisher EventPublisher,
	sink audit.EventSink,
	dedupTTL time.Duration,
) *IPNService {
	if dedupTTL <= 0 {
		dedupTTL = 72 * time.Hour
	}
	return &IPNService{
		store:      store,
		reconciler: reconciler,
		cache:      cache,
		publisher:  publisher,
		sink:       sink,
		dedupTTL:   dedupTTL,
		logger:     util.GetLogger(),
	}
}

// Ingest records the notification in the ledger and reconciles the order it
// names. A returned error means Pesapal should retry the delivery.
func (s *IPNService) Ingest(ctx context.Context, raw []byte) (*IngestResult, error) {
	ctx, span := util.StartSpan(ctx, "IPNService.Ingest")
	defer span.End()

	util.IPNReceivedTotal.Inc()

	n, err := ParseNotification(raw)
	if err != nil {
		util.IPNFailuresTotal.WithLabelValues("parse").Inc()
		s.logger.Error("Failed to parse payment notification", zap.Error(err))
		return nil, err
	}
	if n.InvalidAmount != "" {
		util.IPNInvalidFieldsTotal.WithLabelValues("amount").Inc()
		s.logger.Warn("Payment notification amount is not a number, storing it as null",
			zap.String("merchant_ref", n.MerchantRef),
			zap.String("amount", n.InvalidAmount))
	}

	ipn := &models.PesapalIPN{
		PesapalTransactionID: n.TransactionID,
		PesapalTrackingID:    n.TrackingID,
		PesapalMerchantRef:   n.MerchantRef,
		NotificationType:     n.NotificationType,
		PaymentMethod:        n.PaymentMethod,
		Amount:               n.Amount,
		Currency:             n.Currency,
		Status:               n.Status,
		StatusDescription:    n.StatusDescription,
		RawData:              string(raw),
	}
	if err := s.store.CreateIPN(ctx, ipn); err != nil {
		util.IPNFailuresTotal.WithLabelValues("persist").Inc()
		s.logger.Error("Failed to persist payment notification",
			zap.String("merchant_ref", n.MerchantRef), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNotificationPersist, err)
	}

	result := &IngestResult{
		Success:                true,
		OrderNotificationType:  n.NotificationType,
		OrderTrackingID:        n.TrackingID,
		OrderMerchantReference: n.MerchantRef,
		Status:                 200,
		IPNID:                  ipn.ID,
	}

	if n.MerchantRef == "" {
		s.logger.Warn("Payment notification without merchant reference",
			zap.String("ipn_id", ipn.ID),
			zap.String("tracking_id", n.TrackingID),
			zap.String("status", n.Status))
		s.sink.LogSecurityEvent(ctx, audit.Event{
			Action:   "ipn_missing_merchant_ref",
			Resource: "pesapal_ipn",
			Actor:    "pesapal",
			Fields: map[string]string{
				"ipn_id":      ipn.ID,
				"tracking_id": n.TrackingID,
			},
		})
		return result, nil
	}
	span.SetAttributes(util.OrderAttr(n.MerchantRef))

	key := DeliveryKey(raw)
	seen, err := s.cache.CheckIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency check failed, reconciling anyway", zap.Error(err))
	}
	if seen {
		util.IPNDuplicateTotal.Inc()
		s.logger.Info("Duplicate payment notification",
			zap.String("order_id", n.MerchantRef),
			zap.String("ipn_id", ipn.ID))
		result.Duplicate = true
		return result, nil
	}

	rec, err := s.reconciler.Apply(ctx, ReconcileInput{
		OrderID:       n.MerchantRef,
		TrackingID:    n.TrackingID,
		TransactionID: n.TransactionID,
		Outcome:       OutcomeFromIPNStatus(n.Status),
		Description:   n.StatusDescription,
		Source:        SourceIPN,
		IPNID:         ipn.ID,
	})
	if err != nil {
		util.IPNFailuresTotal.WithLabelValues("reconcile").Inc()
		s.logger.Error("Failed to reconcile payment notification",
			zap.String("order_id", n.MerchantRef), zap.Error(err))
		return nil, err
	}
	result.Orphaned = rec.Orphaned
	result.Transitioned = rec.Transitioned

	if err := s.cache.SetIdempotencyKey(ctx, key, ipn.ID, s.dedupTTL); err != nil {
		s.logger.Warn("Failed to store idempotency key", zap.String("order_id", n.MerchantRef), zap.Error(err))
	}

	if !rec.Orphaned {
		event := &models.IPNReceivedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeIPNReceived,
				Timestamp: time.Now(),
			},
			IPNID:           ipn.ID,
			OrderID:         n.MerchantRef,
			OrderTrackingID: n.TrackingID,
			Status:          n.Status,
			Transitioned:    rec.Transitioned,
		}
		if err := s.publisher.PublishIPNReceived(ctx, event); err != nil {
			s.logger.Error("Failed to publish IPNReceived event", zap.Error(err))
		}
	}

	return result, nil
}
