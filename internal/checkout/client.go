package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"enkaji-payments/internal/service"
)

// APIError is a non-2xx answer from the payment API
type APIError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment api: http %d: %s", e.StatusCode, e.Message)
}

// Client calls the payment endpoints with the buyer's bearer token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SubmitPayment posts to /payment/submit-order
func (c *Client) SubmitPayment(ctx context.Context, req service.SubmitPaymentRequest) (*service.SubmitPaymentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var resp service.SubmitPaymentResponse
	if err := c.do(ctx, http.MethodPost, "/payment/submit-order", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PaymentStatus reads /payment/orders/:orderId/status
func (c *Client) PaymentStatus(ctx context.Context, orderID string) (*service.PaymentStatusResponse, error) {
	var resp service.PaymentStatusResponse
	path := "/payment/orders/" + url.PathEscape(orderID) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    e.Error,
			Retryable:  resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusConflict,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
