package service

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"enkaji-payments/internal/models"
	"enkaji-payments/internal/pesapal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentFixture struct {
	store     *fakeStore
	processor *fakeProcessor
	locker    *fakeLocker
	publisher *fakePublisher
	svc       *PaymentService
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		store:     newFakeStore(),
		processor: &fakeProcessor{},
		locker:    newFakeLocker(),
		publisher: &fakePublisher{},
	}
	f.svc = NewPaymentService(f.store, f.processor, f.locker, f.publisher, PaymentConfig{
		CallbackURL:      "https://api.enkaji.co.ke/payment/callback",
		NotificationID:   "ipn-1",
		ProcessorTimeout: time.Second,
	})
	f.store.addOrder("ORD123", "u1")
	return f
}

func TestSubmitCardReturnsRedirect(t *testing.T) {
	f := newPaymentFixture()

	resp, err := f.svc.SubmitOrder(context.Background(), &SubmitPaymentRequest{
		OrderID:       "ORD123",
		PaymentMethod: "card",
		UserID:        "u1",
	})
	require.NoError(t, err)

	assert.Equal(t, "T-ORD123", resp.OrderTrackingID)
	assert.Contains(t, resp.RedirectURL, "OrderTrackingId=T-ORD123")
	assert.Empty(t, resp.Status)

	require.Len(t, f.processor.requests, 1)
	sent := f.processor.requests[0]
	assert.Equal(t, "ORD123", sent.ID)
	assert.Equal(t, "KES", sent.Currency)
	assert.Equal(t, 1500.0, sent.Amount)
	assert.Equal(t, "ipn-1", sent.NotificationID)
	assert.Equal(t, "https://api.enkaji.co.ke/payment/callback", sent.CallbackURL)
	assert.Equal(t, "KE", sent.BillingAddress.CountryCode)
	assert.Equal(t, "254712345678", sent.BillingAddress.PhoneNumber)

	payment, ok := f.store.payment("ORD123")
	require.True(t, ok)
	assert.Equal(t, models.PesapalStatusPending, payment.Status)
	assert.Equal(t, "T-ORD123", payment.OrderTrackingID)
	assert.Equal(t, models.PaymentMethodCard, payment.PaymentMethod)

	order := f.store.order("ORD123")
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)

	require.Len(t, f.publisher.submitted, 1)
	assert.Equal(t, "1500.00", f.publisher.submitted[0].Amount)
	assert.Empty(t, f.locker.held, "lock released after submission")
}

func TestSubmitMobileMoneyReturnsPending(t *testing.T) {
	f := newPaymentFixture()

	resp, err := f.svc.SubmitOrder(context.Background(), &SubmitPaymentRequest{
		OrderID:       "ORD123",
		PaymentMethod: models.PaymentMethodMpesa,
		PhoneNumber:   "+254 712-345-000",
		UserID:        "u1",
	})
	require.NoError(t, err)

	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, models.PaymentMethodMpesa, resp.Method)
	assert.NotEmpty(t, resp.Message)
	assert.Equal(t, "254712345000", f.processor.requests[0].BillingAddress.PhoneNumber)

	payment, _ := f.store.payment("ORD123")
	assert.Equal(t, "254712345000", payment.PhoneNumber)
}

func TestSubmitMobileMoneyWithoutPhone(t *testing.T) {
	for _, method := range []string{models.PaymentMethodMpesa, models.PaymentMethodAirtel} {
		for _, phone := range []string{"", "   ", "07123", "0712abc345"} {
			f := newPaymentFixture()

			_, err := f.svc.SubmitOrder(context.Background(), &SubmitPaymentRequest{
				OrderID:       "ORD123",
				PaymentMethod: method,
				PhoneNumber:   phone,
				UserID:        "u1",
			})

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "%s %q", method, phone)
			assert.Equal(t, "phoneNumber", verr.Field)
			assert.ErrorIs(t, err, ErrValidation)

			_, created := f.store.payment("ORD123")
			assert.False(t, created)
			assert.Equal(t, 0, f.processor.submitted())
			assert.Equal(t, 0, f.locker.calls)
		}
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   SubmitPaymentRequest
		field string
	}{
		{"missing order", SubmitPaymentRequest{PaymentMethod: "CARD"}, "orderId"},
		{"unknown method", SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "PAYPAL"}, "paymentMethod"},
		{"bad currency", SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "BANK", Currency: "KSHS"}, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture()
			req := tt.req
			req.UserID = "u1"

			_, err := f.svc.SubmitOrder(context.Background(), &req)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 0, f.processor.submitted())
		})
	}
}

func TestSubmitOrderChecks(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	_, err := f.svc.SubmitOrder(ctx, &SubmitPaymentRequest{OrderID: "NOPE", PaymentMethod: "CARD", UserID: "u1"})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.SubmitOrder(ctx, &SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "CARD", UserID: "u2"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.SubmitOrder(ctx, &SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "CARD", UserID: "admin", AnyOrder: true})
	assert.NoError(t, err)

	o := f.store.orders["ORD123"]
	o.PaymentStatus = models.PaymentStatusPaid
	f.store.orders["ORD123"] = o
	_, err = f.svc.SubmitOrder(ctx, &SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "CARD", UserID: "u1"})
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, 1, f.processor.submitted())
}

func TestSubmitInProgress(t *testing.T) {
	f := newPaymentFixture()
	f.locker.held["submit:ORD123"] = "other"

	_, err := f.svc.SubmitOrder(context.Background(), &SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "CARD", UserID: "u1"})
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	assert.Equal(t, 0, f.processor.submitted())
}

func TestSubmitLockUnavailableProceeds(t *testing.T) {
	f := newPaymentFixture()
	f.locker.err = errors.New("redis down")

	_, err := f.svc.SubmitOrder(context.Background(), &SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "CARD", UserID: "u1"})
	assert.NoError(t, err)
}

func TestSubmitProcessorRejected(t *testing.T) {
	f := newPaymentFixture()
	f.processor.submit = func(context.Context, pesapal.SubmitOrderRequest) (*pesapal.SubmitOrderResponse, error) {
		return nil, &pesapal.APIError{HTTPStatus: 400, ErrorType: "api_error", Code: "invalid_amount"}
	}

	_, err := f.svc.SubmitOrder(context.Background(), &SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "CARD", UserID: "u1"})
	assert.ErrorIs(t, err, ErrProcessorRejected)
	assert.NotErrorIs(t, err, ErrProcessorTimeout)

	_, created := f.store.payment("ORD123")
	assert.False(t, created)
	assert.Equal(t, models.PaymentStatusPending, f.store.order("ORD123").PaymentStatus)
	assert.Empty(t, f.publisher.submitted)
	assert.Empty(t, f.locker.held)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestSubmitProcessorTimeout(t *testing.T) {
	f := newPaymentFixture()
	f.processor.submit = func(ctx context.Context, _ pesapal.SubmitOrderRequest) (*pesapal.SubmitOrderResponse, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil, timeoutErr{}
	}

	_, err := f.svc.SubmitOrder(context.Background(), &SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "BANK", UserID: "u1"})
	assert.ErrorIs(t, err, ErrProcessorTimeout)

	_, created := f.store.payment("ORD123")
	assert.False(t, created)
}

func TestResubmitKeepsOnePaymentRow(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	_, err := f.svc.SubmitOrder(ctx, &SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "CARD", UserID: "u1"})
	require.NoError(t, err)
	first, _ := f.store.payment("ORD123")

	_, err = f.svc.SubmitOrder(ctx, &SubmitPaymentRequest{OrderID: "ORD123", PaymentMethod: "AIRTEL", PhoneNumber: "0733123456", UserID: "u1"})
	require.NoError(t, err)
	second, _ := f.store.payment("ORD123")

	assert.Len(t, f.store.payments, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.PaymentMethodAirtel, second.PaymentMethod)
}

func TestGetPaymentStatus(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	st, err := f.svc.GetPaymentStatus(ctx, "ORD123", "u1", false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, st.PaymentStatus)
	assert.Empty(t, st.PesapalStatus)

	f.store.addPayment("ORD123", "T1")
	st, err = f.svc.GetPaymentStatus(ctx, "ORD123", "u1", false)
	require.NoError(t, err)
	assert.Equal(t, "T1", st.OrderTrackingID)
	assert.Equal(t, models.PesapalStatusPending, st.PesapalStatus)

	_, err = f.svc.GetPaymentStatus(ctx, "ORD123", "u2", false)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetPaymentStatus(ctx, "NOPE", "u1", true)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "254712345678", NormalizePhone(" +254 712-345-678 "))
	assert.Equal(t, "0712345678", NormalizePhone("0712345678"))
}
