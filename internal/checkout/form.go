// Package checkout drives the payment form a buyer walks through: pick a
// method, give a phone number for mobile money, submit, then wait.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"enkaji-payments/internal/models"
	"enkaji-payments/internal/service"
)

// Step is where the form currently is
type Step string

const (
	StepMethod     Step = "METHOD"
	StepPhone      Step = "PHONE"
	StepProcessing Step = "PROCESSING"
	StepComplete   Step = "COMPLETE"
	StepError      Step = "ERROR"
)

const minPhoneLength = 10

var (
	ErrInvalidMethod = errors.New("unsupported payment method")
	ErrPhoneTooShort = fmt.Errorf("phone number needs at least %d digits", minPhoneLength)
	ErrWrongStep     = errors.New("action not allowed at this step")
)

// Submitter sends the payment intent; *Client implements it
type Submitter interface {
	SubmitPayment(ctx context.Context, req service.SubmitPaymentRequest) (*service.SubmitPaymentResponse, error)
}

// StatusChecker reads the order's payment state; *Client implements it
type StatusChecker interface {
	PaymentStatus(ctx context.Context, orderID string) (*service.PaymentStatusResponse, error)
}

// Form holds one checkout attempt. Retries are manual: after an error the
// caller decides whether to Retry or pick another method.
type Form struct {
	mu        sync.Mutex
	orderID   string
	currency  string
	submitter Submitter

	step     Step
	method   string
	phone    string
	response *service.SubmitPaymentResponse
	lastErr  error
}

// NewForm starts a form for orderID at the method step
func NewForm(orderID, currency string, submitter Submitter) *Form {
	return &Form{
		orderID:   orderID,
		currency:  currency,
		submitter: submitter,
		step:      StepMethod,
	}
}

// Step returns the current step
func (f *Form) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Method returns the selected payment method
func (f *Form) Method() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.method
}

// Err returns the error that moved the form to StepError
func (f *Form) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Response returns the submitter's answer once the form completed
func (f *Form) Response() *service.SubmitPaymentResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.response
}

// SelectMethod picks the payment method. Mobile money continues to the phone
// step; other methods can be submitted right away.
func (f *Form) SelectMethod(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepMethod && f.step != StepPhone && f.step != StepError {
		return ErrWrongStep
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if !models.IsValidPaymentMethod(method) {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	f.method = method
	f.phone = ""
	f.lastErr = nil
	if models.IsMobileMoney(method) {
		f.step = StepPhone
	} else {
		f.step = StepMethod
	}
	return nil
}

// EnterPhone records the mobile-money number after a length check
func (f *Form) EnterPhone(phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepPhone {
		return ErrWrongStep
	}
	phone = service.NormalizePhone(phone)
	if len(phone) < minPhoneLength {
		return ErrPhoneTooShort
	}
	f.phone = phone
	return nil
}

// CanSubmit reports whether Submit would send a request
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canSubmit()
}

func (f *Form) canSubmit() bool {
	switch f.step {
	case StepMethod:
		return f.method != "" && !models.IsMobileMoney(f.method)
	case StepPhone:
		return f.phone != ""
	}
	return false
}

// Submit sends the payment intent and moves to COMPLETE or ERROR
func (f *Form) Submit(ctx context.Context) (*service.SubmitPaymentResponse, error) {
	f.mu.Lock()
	if !f.canSubmit() {
		f.mu.Unlock()
		return nil, ErrWrongStep
	}
	f.step = StepProcessing
	req := service.SubmitPaymentRequest{
		OrderID:       f.orderID,
		Currency:      f.currency,
		PaymentMethod: f.method,
		PhoneNumber:   f.phone,
	}
	f.mu.Unlock()

	resp, err := f.submitter.SubmitPayment(ctx, req)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.step = StepError
		f.lastErr = err
		return nil, err
	}
	f.step = StepComplete
	f.response = resp
	return resp, nil
}

// Retry returns from ERROR to the step the failed submission came from
func (f *Form) Retry() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepError {
		return ErrWrongStep
	}
	f.lastErr = nil
	if models.IsMobileMoney(f.method) {
		f.step = StepPhone
	} else {
		f.step = StepMethod
	}
	return nil
}

// Message is the text shown for the current step
func (f *Form) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.step {
	case StepMethod:
		return "Choose a payment method: CARD, MPESA, AIRTEL or BANK"
	case StepPhone:
		return fmt.Sprintf("Enter the %s phone number to receive the payment prompt", f.method)
	case StepProcessing:
		return "Processing payment..."
	case StepComplete:
		if f.response != nil && f.response.Status == models.PesapalStatusPending {
			return "Check your phone and approve the payment prompt"
		}
		if f.response != nil {
			return "Continue to Pesapal to complete payment: " + f.response.RedirectURL
		}
		return "Payment submitted"
	case StepError:
		return "Payment failed: " + errorText(f.lastErr)
	}
	return ""
}

func errorText(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// WaitForOutcome polls the order until it is PAID or FAILED, or ctx ends
func WaitForOutcome(ctx context.Context, checker StatusChecker, orderID string, interval time.Duration) (*service.PaymentStatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := checker.PaymentStatus(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if st.PaymentStatus == models.PaymentStatusPaid || st.PaymentStatus == models.PaymentStatusFailed {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}
