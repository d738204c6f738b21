package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"enkaji-payments/internal/audit"
	"enkaji-payments/internal/auth"
	"enkaji-payments/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxIPNBodyBytes = 1 << 20

// submitOrder handles POST /payment/submit-order
func (h *Handler) submitOrder(c *gin.Context) {
	var req service.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	principal := principalFrom(c)
	req.UserID = principal.UserID
	req.AnyOrder = principal.Can(auth.CapViewAnyPayment)

	resp, err := h.payments.SubmitOrder(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err, req.OrderID)
		return
	}

	h.sink.LogAuditEvent(c.Request.Context(), audit.Event{
		Action:   "payment_submitted",
		Resource: "order",
		Actor:    principal.UserID,
		Fields: map[string]string{
			"order_id":          req.OrderID,
			"method":            req.PaymentMethod,
			"order_tracking_id": resp.OrderTrackingID,
		},
	})

	c.JSON(http.StatusOK, resp)
}

// ipnCallback handles POST /payment/callback from Pesapal. Anything other
// than a 200 makes Pesapal retry the delivery.
func (h *Handler) ipnCallback(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxIPNBodyBytes))
	if err != nil {
		h.logger.Error("Failed to read payment notification body", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "unreadable body"})
		return
	}

	result, err := h.ipns.Ingest(c.Request.Context(), raw)
	if err != nil {
		h.logger.Error("Payment notification not acknowledged", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "notification not processed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// redirectCallback handles GET /payment/callback, the browser return from
// the Pesapal checkout page. It never touches stored state.
func (h *Handler) redirectCallback(c *gin.Context) {
	trackingID := c.Query("OrderTrackingId")
	merchantRef := c.Query("OrderMerchantReference")

	c.Redirect(http.StatusFound, RedirectTarget(h.frontendURL, trackingID, merchantRef))
}

// RedirectTarget is the order page when both parameters are present and the
// orders listing otherwise.
func RedirectTarget(frontendURL, trackingID, merchantRef string) string {
	if trackingID == "" || merchantRef == "" {
		return frontendURL + "/orders"
	}
	return frontendURL + "/orders/" + url.PathEscape(merchantRef) + "?payment=completed"
}

// paymentStatus handles GET /payment/orders/:orderId/status
func (h *Handler) paymentStatus(c *gin.Context) {
	principal := principalFrom(c)
	orderID := c.Param("orderId")

	resp, err := h.payments.GetPaymentStatus(c.Request.Context(), orderID, principal.UserID, principal.Can(auth.CapViewAnyPayment))
	if err != nil {
		h.writeError(c, err, orderID)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// paymentLedger handles GET /admin/payments/:orderId/ipns
func (h *Handler) paymentLedger(c *gin.Context) {
	orderID := c.Param("orderId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	ipns, err := h.payments.PaymentLedger(c.Request.Context(), orderID, limit)
	if err != nil {
		h.writeError(c, err, orderID)
		return
	}

	h.sink.LogAuditEvent(c.Request.Context(), audit.Event{
		Action:   "payment_ledger_viewed",
		Resource: "pesapal_ipn",
		Actor:    principalFrom(c).UserID,
		Fields:   map[string]string{"order_id": orderID},
	})

	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"ipns":     ipns,
	})
}

// writeError maps service errors onto HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error, orderID string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, service.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, service.ErrForbidden):
		h.sink.LogSecurityEvent(c.Request.Context(), audit.Event{
			Action:   "order_access_denied",
			Resource: "order",
			Actor:    principalFrom(c).UserID,
			Fields:   map[string]string{"order_id": orderID},
		})
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, service.ErrAlreadyPaid), errors.Is(err, service.ErrSubmitInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrProcessorTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Payment processor did not respond, please try again", "retryable": true})
	case errors.Is(err, service.ErrProcessorRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment could not be started, please try another method"})
	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
