// Package pesapal is a client for the Pesapal v3 merchant API.
package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"enkaji-payments/internal/util"

	"go.uber.org/zap"
)

// tokens are refreshed this long before Pesapal's stated expiry
const tokenSkew = 30 * time.Second

// Client talks to the Pesapal API with a cached bearer token
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	httpClient     *http.Client
	logger         *zap.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
	now      func() time.Time
}

// NewClient creates a new Pesapal client
func NewClient(baseURL, consumerKey, consumerSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         util.GetLogger().Named("pesapal"),
		now:            time.Now,
	}
}

// IsTimeout reports whether err came from a deadline rather than a Pesapal answer
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RequestToken returns a valid access token, fetching a new one when the
// cached token is missing or about to expire.
func (c *Client) RequestToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(tokenSkew).Before(c.tokenExp) {
		return c.token, nil
	}

	var out tokenResponse
	err := c.do(ctx, "auth", http.MethodPost, "/api/Auth/RequestToken", "", tokenRequest{
		ConsumerKey:    c.consumerKey,
		ConsumerSecret: c.consumerSecret,
	}, &out)
	if err != nil {
		return "", err
	}
	if !out.Error.empty() {
		return "", out.Error
	}
	if out.Token == "" {
		return "", &APIError{HTTPStatus: http.StatusOK, ErrorType: "auth_error", Message: "empty token: " + out.Message}
	}

	c.token = out.Token
	c.tokenExp, err = time.Parse(time.RFC3339Nano, out.ExpiryDate)
	if err != nil {
		c.tokenExp = c.now().Add(5 * time.Minute)
	}
	return c.token, nil
}

// SubmitOrder creates the Pesapal side of an order and returns its redirect URL
func (c *Client) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	token, err := c.RequestToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("pesapal auth: %w", err)
	}

	var out SubmitOrderResponse
	if err := c.do(ctx, "submit_order", http.MethodPost, "/api/Transactions/SubmitOrderRequest", token, req, &out); err != nil {
		return nil, err
	}
	if !out.Error.empty() {
		out.Error.HTTPStatus = http.StatusOK
		return nil, out.Error
	}
	if out.OrderTrackingID == "" {
		return nil, &APIError{HTTPStatus: http.StatusOK, ErrorType: "api_error", Message: "missing order_tracking_id"}
	}
	return &out, nil
}

// GetTransactionStatus queries the outcome of a tracked order
func (c *Client) GetTransactionStatus(ctx context.Context, orderTrackingID string) (*TransactionStatus, error) {
	token, err := c.RequestToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("pesapal auth: %w", err)
	}

	path := "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(orderTrackingID)
	var out TransactionStatus
	if err := c.do(ctx, "transaction_status", http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	if !out.Error.empty() && out.StatusCode == StatusCodeInvalid {
		out.Error.HTTPStatus = http.StatusOK
		return nil, out.Error
	}
	return &out, nil
}

// RegisterIPN registers ipnURL and returns the notification id to send with orders
func (c *Client) RegisterIPN(ctx context.Context, ipnURL, notificationType string) (*IPNRegistration, error) {
	token, err := c.RequestToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("pesapal auth: %w", err)
	}
	if notificationType == "" {
		notificationType = http.MethodPost
	}

	var out IPNRegistration
	err = c.do(ctx, "register_ipn", http.MethodPost, "/api/URLSetup/RegisterIPN", token, registerIPNRequest{
		URL:                 ipnURL,
		IPNNotificationType: notificationType,
	}, &out)
	if err != nil {
		return nil, err
	}
	if !out.Error.empty() {
		out.Error.HTTPStatus = http.StatusOK
		return nil, out.Error
	}
	return &out, nil
}

// ListIPNs returns the notification URLs registered for the merchant
func (c *Client) ListIPNs(ctx context.Context) ([]IPNRegistration, error) {
	token, err := c.RequestToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("pesapal auth: %w", err)
	}

	var out []IPNRegistration
	if err := c.do(ctx, "list_ipns", http.MethodGet, "/api/URLSetup/GetIpnList", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do sends one JSON request. Non-2xx answers come back as *APIError.
func (c *Client) do(ctx context.Context, op, method, path, token string, body, out interface{}) error {
	start := time.Now()
	defer func() {
		util.PesapalRequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		reason := "transport"
		if IsTimeout(err) {
			reason = "timeout"
		}
		util.PesapalRequestErrors.WithLabelValues(op, reason).Inc()
		return fmt.Errorf("pesapal %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		util.PesapalRequestErrors.WithLabelValues(op, "read").Inc()
		return fmt.Errorf("pesapal %s: read body: %w", op, err)
	}

	c.logger.Debug("Pesapal response",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		util.PesapalRequestErrors.WithLabelValues(op, "http_status").Inc()
		apiErr := &APIError{HTTPStatus: resp.StatusCode, ErrorType: "http_error", Message: strings.TrimSpace(string(respBody))}
		var wrapped struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &wrapped) == nil && !wrapped.Error.empty() {
			apiErr = wrapped.Error
			apiErr.HTTPStatus = resp.StatusCode
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		util.PesapalRequestErrors.WithLabelValues(op, "decode").Inc()
		return fmt.Errorf("pesapal %s: decode response: %w", op, err)
	}
	return nil
}
