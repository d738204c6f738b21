package api

import (
	"context"
	"net/http"
	"time"

	"enkaji-payments/internal/audit"
	"enkaji-payments/internal/auth"
	"enkaji-payments/internal/models"
	"enkaji-payments/internal/service"
	"enkaji-payments/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PaymentAPI is implemented by service.PaymentService
type PaymentAPI interface {
	SubmitOrder(ctx context.Context, req *service.SubmitPaymentRequest) (*service.SubmitPaymentResponse, error)
	GetPaymentStatus(ctx context.Context, orderID, userID string, anyOrder bool) (*service.PaymentStatusResponse, error)
	PaymentLedger(ctx context.Context, orderID string, limit int) ([]models.PesapalIPN, error)
}

// Ingestor is implemented by service.IPNService
type Ingestor interface {
	Ingest(ctx context.Context, raw []byte) (*service.IngestResult, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	payments    PaymentAPI
	ipns        Ingestor
	verifier    *auth.Verifier
	sink        audit.EventSink
	frontendURL string
	deps        map[string]Pinger
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	payments PaymentAPI,
	ipns Ingestor,
	verifier *auth.Verifier,
	sink audit.EventSink,
	frontendURL string,
	deps map[string]Pinger,
) *Handler {
	return &Handler{
		payments:    payments,
		ipns:        ipns,
		verifier:    verifier,
		sink:        sink,
		frontendURL: frontendURL,
		deps:        deps,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	payment := router.Group("/payment")
	{
		payment.POST("/callback", h.ipnCallback)
		payment.GET("/callback", h.redirectCallback)

		authed := payment.Group("", h.authMiddleware())
		authed.POST("/submit-order", h.requireCapability(auth.CapPay), h.submitOrder)
		authed.GET("/orders/:orderId/status", h.requireCapability(auth.CapViewOwnPayment), h.paymentStatus)
	}

	admin := router.Group("/admin", h.authMiddleware(), h.requireCapability(auth.CapViewPaymentLedger))
	{
		admin.GET("/payments/:orderId/ipns", h.paymentLedger)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}
