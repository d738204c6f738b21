package pesapal

import "fmt"

// BillingAddress identifies the payer. Pesapal requires either the email
// or the phone number.
type BillingAddress struct {
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

// SubmitOrderRequest is the body of Transactions/SubmitOrderRequest
type SubmitOrderRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         float64        `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress BillingAddress `json:"billing_address"`
}

// SubmitOrderResponse is returned once Pesapal created its side of the order
type SubmitOrderResponse struct {
	OrderTrackingID   string    `json:"order_tracking_id"`
	MerchantReference string    `json:"merchant_reference"`
	RedirectURL       string    `json:"redirect_url"`
	Error             *APIError `json:"error"`
	Status            string    `json:"status"`
}

// TransactionStatus is the body of Transactions/GetTransactionStatus
type TransactionStatus struct {
	PaymentMethod            string    `json:"payment_method"`
	Amount                   float64   `json:"amount"`
	CreatedDate              string    `json:"created_date"`
	ConfirmationCode         string    `json:"confirmation_code"`
	PaymentStatusDescription string    `json:"payment_status_description"`
	Description              string    `json:"description"`
	Message                  string    `json:"message"`
	PaymentAccount           string    `json:"payment_account"`
	CallBackURL              string    `json:"call_back_url"`
	StatusCode               int       `json:"status_code"`
	MerchantReference        string    `json:"merchant_reference"`
	Currency                 string    `json:"currency"`
	Error                    *APIError `json:"error"`
	Status                   string    `json:"status"`
}

// Transaction status codes reported by GetTransactionStatus
const (
	StatusCodeInvalid   = 0
	StatusCodeCompleted = 1
	StatusCodeFailed    = 2
	StatusCodeReversed  = 3
)

// IPNRegistration describes a registered notification URL
type IPNRegistration struct {
	URL                 string    `json:"url"`
	CreatedDate         string    `json:"created_date"`
	IPNID               string    `json:"ipn_id"`
	NotificationType    int       `json:"notification_type"`
	IPNNotificationType string    `json:"ipn_notification_type_description"`
	IPNStatus           int       `json:"ipn_status"`
	Error               *APIError `json:"error"`
	Status              string    `json:"status"`
}

// APIError is the error object Pesapal embeds in responses
type APIError struct {
	HTTPStatus int    `json:"-"`
	ErrorType  string `json:"error_type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pesapal: http %d: %s %s: %s", e.HTTPStatus, e.ErrorType, e.Code, e.Message)
}

// empty reports whether Pesapal sent an error object with nothing in it
func (e *APIError) empty() bool {
	return e == nil || (e.ErrorType == "" && e.Code == "" && e.Message == "")
}

type tokenRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

type tokenResponse struct {
	Token      string    `json:"token"`
	ExpiryDate string    `json:"expiryDate"`
	Error      *APIError `json:"error"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
}

type registerIPNRequest struct {
	URL                 string `json:"url"`
	IPNNotificationType string `json:"ipn_notification_type"`
}
