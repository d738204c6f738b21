package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"enkaji-payments/internal/models"
	"enkaji-payments/internal/pesapal"
	"enkaji-payments/internal/store"
	"enkaji-payments/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	util.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

type fakeStore struct {
	mu       sync.Mutex
	orders   map[string]models.Order
	payments map[string]models.PesapalPayment
	ipns     []models.PesapalIPN

	ipnErr       error
	reconcileErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[string]models.Order),
		payments: make(map[string]models.PesapalPayment),
	}
}

func (f *fakeStore) addOrder(id, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id] = models.Order{
		ID:            id,
		UserID:        userID,
		TotalAmount:   decimal.RequireFromString("1500.00"),
		Currency:      "KES",
		CustomerEmail: "buyer@example.co.ke",
		CustomerPhone: "254712345678",
		FirstName:     "Wanjiru",
		LastName:      "Kamau",
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
}

func (f *fakeStore) addPayment(orderID, trackingID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[orderID] = models.PesapalPayment{
		ID:              uuid.New().String(),
		OrderID:         orderID,
		OrderTrackingID: trackingID,
		PaymentMethod:   models.PaymentMethodMpesa,
		Amount:          decimal.RequireFromString("1500.00"),
		Currency:        "KES",
		Status:          models.PesapalStatusPending,
	}
}

func (f *fakeStore) order(id string) models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeStore) payment(orderID string) (models.PesapalPayment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	return p, ok
}

func (f *fakeStore) ipnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ipns)
}

func (f *fakeStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	return &o, nil
}

func (f *fakeStore) UpsertPaymentForOrder(_ context.Context, p *models.PesapalPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.payments[p.OrderID]
	if ok && existing.Status == models.PesapalStatusCompleted {
		return store.ErrPaymentCompleted
	}
	if ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = uuid.New().String()
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	f.payments[p.OrderID] = *p
	return nil
}

func (f *fakeStore) GetPaymentByOrderID(_ context.Context, orderID string) (*models.PesapalPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("payment for order %s: %w", orderID, store.ErrNotFound)
	}
	return &p, nil
}

func (f *fakeStore) CreateIPN(_ context.Context, ipn *models.PesapalIPN) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ipnErr != nil {
		return f.ipnErr
	}
	ipn.ID = uuid.New().String()
	ipn.ProcessedAt = time.Now()
	f.ipns = append(f.ipns, *ipn)
	return nil
}

func (f *fakeStore) ListIPNsByMerchantRef(_ context.Context, ref string, limit int) ([]models.PesapalIPN, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PesapalIPN
	for i := len(f.ipns) - 1; i >= 0 && len(out) < limit; i-- {
		if f.ipns[i].PesapalMerchantRef == ref {
			out = append(out, f.ipns[i])
		}
	}
	return out, nil
}

// Reconcile holds the mutex for the whole decision, like the row locks do
func (f *fakeStore) Reconcile(_ context.Context, orderID string, decide store.DecideFunc) (*store.PaymentUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reconcileErr != nil {
		return nil, f.reconcileErr
	}

	order, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, store.ErrNotFound)
	}
	var payment *models.PesapalPayment
	if p, ok := f.payments[orderID]; ok {
		payment = &p
	}

	update, err := decide(&order, payment)
	if err != nil || update == nil {
		return nil, err
	}
	if payment != nil {
		payment.PesapalTransactionID = sql.NullString{String: update.PesapalTransactionID, Valid: update.PesapalTransactionID != ""}
		payment.Status = update.Status
		payment.PaymentStatusDescription = update.Description
		f.payments[orderID] = *payment
	}
	if update.OrderStatus != "" {
		order.Status = update.OrderStatus
		order.PaymentStatus = update.OrderPaymentStatus
		f.orders[orderID] = order
	}
	return update, nil
}

type fakeProcessor struct {
	mu       sync.Mutex
	requests []pesapal.SubmitOrderRequest
	submit   func(ctx context.Context, req pesapal.SubmitOrderRequest) (*pesapal.SubmitOrderResponse, error)
	status   *pesapal.TransactionStatus
	queries  int
}

func (p *fakeProcessor) SubmitOrder(ctx context.Context, req pesapal.SubmitOrderRequest) (*pesapal.SubmitOrderResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.submit != nil {
		return p.submit(ctx, req)
	}
	return &pesapal.SubmitOrderResponse{
		OrderTrackingID:   "T-" + req.ID,
		MerchantReference: req.ID,
		RedirectURL:       "https://pay.pesapal.com/iframe?OrderTrackingId=T-" + req.ID,
		Status:            "200",
	}, nil
}

func (p *fakeProcessor) GetTransactionStatus(_ context.Context, trackingID string) (*pesapal.TransactionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries++
	if p.status == nil {
		return nil, errors.New("no status configured")
	}
	st := *p.status
	return &st, nil
}

func (p *fakeProcessor) submitted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]string
	err   error
	calls int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return "", l.err
	}
	if _, ok := l.held[key]; ok {
		return "", nil
	}
	token := uuid.New().String()
	l.held[key] = token
	return token, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type fakeCache struct {
	mu   sync.Mutex
	keys map[string]interface{}
	err  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{keys: make(map[string]interface{})}
}

func (c *fakeCache) CheckIdempotencyKey(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.keys[key]
	return ok, nil
}

func (c *fakeCache) SetIdempotencyKey(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.keys[key] = value
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	submitted []*models.PaymentSubmittedEvent
	received  []*models.IPNReceivedEvent
	outcomes  []*models.PaymentOutcomeEvent
	orphaned  []*models.IPNOrphanedEvent
}

func (p *fakePublisher) PublishPaymentSubmitted(_ context.Context, e *models.PaymentSubmittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, e)
	return nil
}

func (p *fakePublisher) PublishIPNReceived(_ context.Context, e *models.IPNReceivedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, e)
	return nil
}

func (p *fakePublisher) PublishPaymentOutcome(_ context.Context, e *models.PaymentOutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, e)
	return nil
}

func (p *fakePublisher) PublishIPNOrphaned(_ context.Context, e *models.IPNOrphanedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orphaned = append(p.orphaned, e)
	return nil
}

func (p *fakePublisher) outcomeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outcomes)
}
