package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"enkaji-payments/internal/models"
	"enkaji-payments/internal/pesapal"
	"enkaji-payments/internal/store"
	"enkaji-payments/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minPhoneDigits = 10

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	digitsPattern   = regexp.MustCompile(`^[0-9]+$`)
)

// PaymentConfig holds the processor settings the submitter needs
type PaymentConfig struct {
	CallbackURL      string
	NotificationID   string
	DefaultCurrency  string
	CountryCode      string
	ProcessorTimeout time.Duration
	SubmitLockTTL    time.Duration
}

// SubmitPaymentRequest is the body of POST /payment/submit-order.
// UserID is filled from the caller's token, never from the body.
type SubmitPaymentRequest struct {
	OrderID       string `json:"orderId"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	UserID        string `json:"-"`
	AnyOrder      bool   `json:"-"`
}

// SubmitPaymentResponse covers both the redirect flow and the mobile-money
// pending acknowledgement.
type SubmitPaymentResponse struct {
	Status          string `json:"status,omitempty"`
	Method          string `json:"method,omitempty"`
	OrderTrackingID string `json:"order_tracking_id"`
	RedirectURL     string `json:"redirect_url"`
	Message         string `json:"message,omitempty"`
}

// PaymentStatusResponse is what the checkout form polls while processing
type PaymentStatusResponse struct {
	OrderID                  string `json:"order_id"`
	OrderStatus              string `json:"order_status"`
	PaymentStatus            string `json:"payment_status"`
	PesapalStatus            string `json:"pesapal_status,omitempty"`
	PaymentMethod            string `json:"payment_method,omitempty"`
	OrderTrackingID          string `json:"order_tracking_id,omitempty"`
	PaymentStatusDescription string `json:"payment_status_description,omitempty"`
}

// PaymentService submits payment intents to Pesapal
type PaymentService struct {
	store     PaymentStore
	processor Processor
	locker    Locker
	publisher EventPublisher
	cfg       PaymentConfig
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store PaymentStore,
	processor Processor,
	locker Locker,
	publisher EventPublisher,
	cfg PaymentConfig,
) *PaymentService {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "KES"
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "KE"
	}
	if cfg.ProcessorTimeout <= 0 {
		cfg.ProcessorTimeout = 30 * time.Second
	}
	if cfg.SubmitLockTTL <= 0 {
		cfg.SubmitLockTTL = time.Minute
	}
	return &PaymentService{
		store:     store,
		processor: processor,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// NormalizePhone strips spaces, dashes and a leading plus sign
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	return strings.NewReplacer(" ", "", "-", "").Replace(phone)
}

// validate normalizes req in place and rejects it before any side effect
func (ps *PaymentService) validate(req *SubmitPaymentRequest) error {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return &ValidationError{Field: "orderId", Message: "is required"}
	}

	req.PaymentMethod = strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if !models.IsValidPaymentMethod(req.PaymentMethod) {
		return &ValidationError{Field: "paymentMethod", Message: "must be one of CARD, MPESA, AIRTEL, BANK"}
	}

	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = ps.cfg.DefaultCurrency
	}
	if !currencyPattern.MatchString(req.Currency) {
		return &ValidationError{Field: "currency", Message: "must be a 3-letter ISO code"}
	}

	if !models.IsMobileMoney(req.PaymentMethod) {
		req.PhoneNumber = ""
		return nil
	}
	req.PhoneNumber = NormalizePhone(req.PhoneNumber)
	if req.PhoneNumber == "" {
		return &ValidationError{Field: "phoneNumber", Message: "is required for mobile money"}
	}
	if !digitsPattern.MatchString(req.PhoneNumber) || len(req.PhoneNumber) < minPhoneDigits {
		return &ValidationError{Field: "phoneNumber", Message: fmt.Sprintf("must have at least %d digits", minPhoneDigits)}
	}
	return nil
}

// SubmitOrder creates the processor-side order for an existing Order. The
// local Order is never mutated here; only the payment attempt row is written,
// and only after Pesapal accepted the request.
func (ps *PaymentService) SubmitOrder(ctx context.Context, req *SubmitPaymentRequest) (*SubmitPaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.SubmitOrder")
	defer span.End()

	if err := ps.validate(req); err != nil {
		util.PaymentSubmissionsTotal.WithLabelValues(req.PaymentMethod, "invalid").Inc()
		return nil, err
	}
	span.SetAttributes(util.OrderAttr(req.OrderID))

	order, err := ps.store.GetOrderByID(ctx, req.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if !req.AnyOrder && order.UserID != req.UserID {
		return nil, ErrForbidden
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, ErrAlreadyPaid
	}

	lockKey := "submit:" + order.ID
	token, err := ps.locker.AcquireLock(ctx, lockKey, ps.cfg.SubmitLockTTL)
	if err != nil {
		ps.logger.Warn("Submit lock unavailable, continuing without it",
			zap.String("order_id", order.ID), zap.Error(err))
	} else if token == "" {
		return nil, ErrSubmitInProgress
	} else {
		defer func() {
			if err := ps.locker.ReleaseLock(context.Background(), lockKey, token); err != nil {
				ps.logger.Warn("Failed to release submit lock", zap.String("order_id", order.ID), zap.Error(err))
			}
		}()
	}

	ps.logger.Info("Submitting payment",
		zap.String("order_id", order.ID),
		zap.String("method", req.PaymentMethod),
		zap.String("amount", order.TotalAmount.StringFixed(2)),
		zap.String("currency", req.Currency))

	resp, err := ps.callProcessor(ctx, order, req)
	if err != nil {
		return nil, err
	}

	payment := &models.PesapalPayment{
		OrderID:                  order.ID,
		OrderTrackingID:          resp.OrderTrackingID,
		PaymentMethod:            req.PaymentMethod,
		PhoneNumber:              req.PhoneNumber,
		Amount:                   order.TotalAmount,
		Currency:                 req.Currency,
		Status:                   models.PesapalStatusPending,
		PaymentStatusDescription: "Awaiting payment",
	}
	if err := ps.store.UpsertPaymentForOrder(ctx, payment); err != nil {
		if errors.Is(err, store.ErrPaymentCompleted) {
			return nil, ErrAlreadyPaid
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	util.PaymentSubmissionsTotal.WithLabelValues(req.PaymentMethod, "accepted").Inc()

	event := &models.PaymentSubmittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentSubmitted,
			Timestamp: time.Now(),
		},
		OrderID:         order.ID,
		OrderTrackingID: resp.OrderTrackingID,
		PaymentMethod:   req.PaymentMethod,
		Amount:          order.TotalAmount.StringFixed(2),
		Currency:        req.Currency,
	}
	if err := ps.publisher.PublishPaymentSubmitted(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentSubmitted event", zap.Error(err))
	}

	if models.IsMobileMoney(req.PaymentMethod) {
		return &SubmitPaymentResponse{
			Status:          models.PesapalStatusPending,
			Method:          req.PaymentMethod,
			OrderTrackingID: resp.OrderTrackingID,
			RedirectURL:     resp.RedirectURL,
			Message:         "Approve the payment prompt sent to " + req.PhoneNumber,
		}, nil
	}
	return &SubmitPaymentResponse{
		OrderTrackingID: resp.OrderTrackingID,
		RedirectURL:     resp.RedirectURL,
	}, nil
}

func (ps *PaymentService) callProcessor(ctx context.Context, order *models.Order, req *SubmitPaymentRequest) (*pesapal.SubmitOrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, ps.cfg.ProcessorTimeout)
	defer cancel()

	phone := req.PhoneNumber
	if phone == "" {
		phone = order.CustomerPhone
	}
	amount, _ := order.TotalAmount.Round(2).Float64()

	resp, err := ps.processor.SubmitOrder(ctx, pesapal.SubmitOrderRequest{
		ID:             order.ID,
		Currency:       req.Currency,
		Amount:         amount,
		Description:    fmt.Sprintf("Enkaji order %s", order.ID),
		CallbackURL:    ps.cfg.CallbackURL,
		NotificationID: ps.cfg.NotificationID,
		BillingAddress: pesapal.BillingAddress{
			EmailAddress: order.CustomerEmail,
			PhoneNumber:  phone,
			CountryCode:  ps.cfg.CountryCode,
			FirstName:    order.FirstName,
			LastName:     order.LastName,
		},
	})
	if err != nil {
		if pesapal.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			util.PaymentSubmissionsTotal.WithLabelValues(req.PaymentMethod, "timeout").Inc()
			ps.logger.Warn("Pesapal submit timed out", zap.String("order_id", order.ID), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrProcessorTimeout, err)
		}
		util.PaymentSubmissionsTotal.WithLabelValues(req.PaymentMethod, "rejected").Inc()
		ps.logger.Warn("Pesapal rejected submit", zap.String("order_id", order.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProcessorRejected, err)
	}
	if resp.OrderTrackingID == "" {
		util.PaymentSubmissionsTotal.WithLabelValues(req.PaymentMethod, "rejected").Inc()
		return nil, fmt.Errorf("%w: response without order tracking id", ErrProcessorRejected)
	}
	return resp, nil
}

// GetPaymentStatus reports the order's payment state to its owner or an admin
func (ps *PaymentService) GetPaymentStatus(ctx context.Context, orderID, userID string, anyOrder bool) (*PaymentStatusResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GetPaymentStatus")
	defer span.End()

	order, err := ps.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if !anyOrder && order.UserID != userID {
		return nil, ErrForbidden
	}

	resp := &PaymentStatusResponse{
		OrderID:       order.ID,
		OrderStatus:   order.Status,
		PaymentStatus: order.PaymentStatus,
	}

	payment, err := ps.store.GetPaymentByOrderID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	resp.PesapalStatus = payment.Status
	resp.PaymentMethod = payment.PaymentMethod
	resp.OrderTrackingID = payment.OrderTrackingID
	resp.PaymentStatusDescription = payment.PaymentStatusDescription
	return resp, nil
}

// PaymentLedger lists the raw notifications received for an order
func (ps *PaymentService) PaymentLedger(ctx context.Context, orderID string, limit int) ([]models.PesapalIPN, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.PaymentLedger")
	defer span.End()

	ipns, err := ps.store.ListIPNsByMerchantRef(ctx, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return ipns, nil
}
