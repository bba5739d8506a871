// Package handler implements the HTTP API (spec §6): gin handlers wiring
// the Routing Engine, Health Aggregator, State Store, Adapter Registry and
// Priority Source to the outside world (the /ws push route is mounted
// separately by cmd/server). Generalized from the teacher's internal/handler
// (net/http ServeMux + hand-rolled writeJSON/writeError) to gin, matching
// the rest of the example pack's HTTP surface (huzzle-app-coding-rl-envs,
// r3e-network-service_layer both build their REST layers on gin).
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/health"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/logging"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/metrics"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/priority"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/processor"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/store"
)

const (
	defaultTransactionLimit = 20
	maxTransactionLimit     = 100
	defaultLogLimit         = 50
	maxLogLimit             = 200
)

// Engine is the subset of engine.Engine the handlers call.
type Engine interface {
	ProcessPayment(ctx context.Context, req model.PaymentRequest) (model.PaymentResult, error)
}

// Aggregator is the subset of health.Aggregator the handlers call.
type Aggregator interface {
	Snapshot(ctx context.Context) (health.Snapshot, error)
	CheckAll(ctx context.Context, lookup func(string) (health.Checker, error)) (map[string]model.HealthCheckResult, error)
}

// Registry resolves a processor type to its adapter, for live health checks.
type Registry interface {
	Lookup(processorType string) (processor.Adapter, error)
}

// PrioritySource reports the current priority-ordered candidate list.
type PrioritySource interface {
	GetPriorities(ctx context.Context) ([]priority.Candidate, error)
}

// Handler holds every collaborator the API surface depends on.
type Handler struct {
	engine   Engine
	agg      Aggregator
	store    store.Store
	registry Registry
	priority PrioritySource
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// New creates a Handler. met may be nil, in which case payment outcomes are
// not recorded as Prometheus metrics.
func New(eng Engine, agg Aggregator, st store.Store, reg Registry, prio PrioritySource, logger *logging.Logger, met *metrics.Metrics) *Handler {
	return &Handler{engine: eng, agg: agg, store: st, registry: reg, priority: prio, logger: logger, metrics: met}
}

// RegisterRoutes mounts every endpoint from spec §6 under the given group.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/health", h.GetHealth)
	r.POST("/api/payments", h.ProcessPayment)
	r.GET("/api/payments/:id", h.GetPayment)
	r.GET("/api/processors", h.ListProcessors)
	r.POST("/api/processors/:id/toggle", h.ToggleProcessor)
	r.GET("/api/transactions", h.ListTransactions)
	r.POST("/api/health-check", h.RunHealthChecks)
	r.GET("/api/metrics", h.GetMetrics)
	r.GET("/api/priorities", h.GetPriorities)
	r.GET("/api/logs", h.GetLogs)
}

// GetHealth handles GET /api/health.
func (h *Handler) GetHealth(c *gin.Context) {
	snap, err := h.agg.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error("health_snapshot_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to build health snapshot")
		return
	}
	c.JSON(http.StatusOK, snap)
}

// paymentRequestBody is the wire shape of POST /api/payments, per spec §6.
type paymentRequestBody struct {
	Amount   string         `json:"amount"`
	Currency string         `json:"currency"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ProcessPayment handles POST /api/payments.
func (h *Handler) ProcessPayment(c *gin.Context) {
	var body paymentRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req := model.PaymentRequest{Amount: body.Amount, Currency: body.Currency, Metadata: body.Metadata}
	result, err := h.engine.ProcessPayment(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, model.ErrInvalidAmount) || errors.Is(err, model.ErrInvalidCurrency) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("process_payment_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to process payment")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordPayment(result.Success, result.TotalProcessingTime)
	}

	if result.Success {
		c.JSON(http.StatusCreated, gin.H{
			"success":        true,
			"transactionId":  result.Transaction.ID,
			"amount":         result.Transaction.Amount.String(),
			"currency":       result.Transaction.Currency,
			"status":         string(result.Transaction.Status),
			"processorUsed":  result.ProcessorUsed,
			"processingTime": result.TotalProcessingTime.Milliseconds(),
			"createdAt":      result.Transaction.CreatedAt,
		})
		return
	}

	details := ""
	if result.Transaction.FailureReason != nil {
		details = *result.Transaction.FailureReason
	}
	c.JSON(http.StatusPaymentRequired, gin.H{
		"success":             false,
		"transactionId":       result.Transaction.ID,
		"error":               "Payment processing failed",
		"details":             details,
		"attemptedProcessors": result.AttemptedProcessors,
		"processingTime":      result.TotalProcessingTime.Milliseconds(),
	})
}

// GetPayment handles GET /api/payments/:id.
func (h *Handler) GetPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid transaction id")
		return
	}

	txn, err := h.store.GetTransaction(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, "transaction not found: "+id.String())
			return
		}
		h.logger.Error("get_transaction_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to look up transaction")
		return
	}
	c.JSON(http.StatusOK, txn)
}

// ListProcessors handles GET /api/processors.
func (h *Handler) ListProcessors(c *gin.Context) {
	processors, err := h.store.GetAllProcessors(c.Request.Context())
	if err != nil {
		h.logger.Error("list_processors_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to list processors")
		return
	}
	c.JSON(http.StatusOK, gin.H{"processors": processors})
}

// ToggleProcessor handles POST /api/processors/:id/toggle.
func (h *Handler) ToggleProcessor(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid processor id")
		return
	}

	current, err := h.store.GetProcessor(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, "processor not found: "+id.String())
			return
		}
		h.logger.Error("get_processor_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to look up processor")
		return
	}

	flipped := !current.Enabled
	updated, err := h.store.UpdateProcessor(c.Request.Context(), id, store.ProcessorUpdate{Enabled: &flipped})
	if err != nil {
		h.logger.Error("toggle_processor_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to toggle processor")
		return
	}

	h.logger.Info("processor_toggled", "processor", updated.Name, "enabled", updated.Enabled)
	c.JSON(http.StatusOK, updated)
}

// ListTransactions handles GET /api/transactions?limit=&offset=.
func (h *Handler) ListTransactions(c *gin.Context) {
	limit := queryInt(c, "limit", defaultTransactionLimit)
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}
	if limit < 0 {
		limit = 0
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	txns, err := h.store.GetTransactions(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list_transactions_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	total, err := h.store.GetTotalTransactionCount(c.Request.Context())
	if err != nil {
		h.logger.Error("count_transactions_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to count transactions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"limit":        limit,
		"offset":       offset,
		"total":        total,
	})
}

// RunHealthChecks handles POST /api/health-check.
func (h *Handler) RunHealthChecks(c *gin.Context) {
	results, err := h.agg.CheckAll(c.Request.Context(), func(processorType string) (health.Checker, error) {
		return h.registry.Lookup(processorType)
	})
	if err != nil {
		h.logger.Error("health_check_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to run health checks")
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// GetMetrics handles GET /api/metrics: KPIs, recent transactions, processor
// states, composed in one response per spec §6.
func (h *Handler) GetMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.store.GetSystemStats(ctx)
	if err != nil {
		h.logger.Error("get_metrics_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to compute metrics")
		return
	}
	recent, err := h.store.GetTransactions(ctx, defaultTransactionLimit, 0)
	if err != nil {
		h.logger.Error("get_metrics_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to compute metrics")
		return
	}
	processors, err := h.store.GetAllProcessors(ctx)
	if err != nil {
		h.logger.Error("get_metrics_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to compute metrics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":              stats,
		"recentTransactions": recent,
		"processors":         processors,
	})
}

// GetPriorities handles GET /api/priorities.
func (h *Handler) GetPriorities(c *gin.Context) {
	candidates, err := h.priority.GetPriorities(c.Request.Context())
	if err != nil {
		h.logger.Error("get_priorities_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to fetch priorities")
		return
	}
	c.JSON(http.StatusOK, gin.H{"priorities": candidates})
}

// GetLogs handles GET /api/logs?limit=&level=.
func (h *Handler) GetLogs(c *gin.Context) {
	limit := queryInt(c, "limit", defaultLogLimit)
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	if limit < 0 {
		limit = 0
	}

	var level *model.LogLevel
	if raw := c.Query("level"); raw != "" {
		l := model.LogLevel(raw)
		level = &l
	}

	logs, err := h.store.GetSystemLogs(c.Request.Context(), limit, level)
	if err != nil {
		h.logger.Error("get_logs_failed", "error", err.Error())
		writeError(c, http.StatusInternalServerError, "failed to fetch logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}
