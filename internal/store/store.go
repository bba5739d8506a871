// Package store implements the single State Store interface described in
// spec §4.4: processors, transactions, health metrics and system logs,
// behind one interface so the backend can be swapped without touching the
// engine. Generalizes the teacher's internal/orchestrator.PaymentStore
// (which only held PaymentResult rows) to all four entities.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/priority"
)

// SystemStats are the aggregate KPIs spec §4.4/§8 (I7) requires.
type SystemStats struct {
	TotalTransactions int
	SuccessRate       float64 // percentage, one decimal place
	AvgResponseTime   int64   // ms, rounded to nearest integer
	ActiveProcessors  int
}

// Store is the single interface every component reads/writes state through.
type Store interface {
	// Processors
	CreateProcessor(ctx context.Context, p model.Processor) error
	GetProcessor(ctx context.Context, id uuid.UUID) (model.Processor, error)
	GetAllProcessors(ctx context.Context) ([]model.Processor, error)
	GetActiveProcessors(ctx context.Context) ([]model.Processor, error)
	UpdateProcessor(ctx context.Context, id uuid.UUID, update ProcessorUpdate) (model.Processor, error)
	ListProcessorCandidates(ctx context.Context) ([]priority.Candidate, error)

	// Transactions
	CreateTransaction(ctx context.Context, t model.Transaction) error
	UpdateTransaction(ctx context.Context, id uuid.UUID, update TransactionUpdate) (model.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (model.Transaction, error)
	GetTransactions(ctx context.Context, limit, offset int) ([]model.Transaction, error)
	GetTotalTransactionCount(ctx context.Context) (int, error)

	// Health metrics
	CreateHealthMetric(ctx context.Context, m model.HealthMetric) error
	GetLatestHealthMetrics(ctx context.Context) ([]model.HealthMetric, error)

	// System logs
	CreateSystemLog(ctx context.Context, log model.SystemLog) error
	GetSystemLogs(ctx context.Context, limit int, level *model.LogLevel) ([]model.SystemLog, error)

	// Aggregate stats
	GetSystemStats(ctx context.Context) (SystemStats, error)
}

// ProcessorUpdate is a partial update to a Processor row; nil fields are
// left unchanged.
type ProcessorUpdate struct {
	Enabled             *bool
	CircuitBreakerOpen  *bool
	ConsecutiveFailures *int
	LastFailureTime     **time.Time
}

// TransactionUpdate is a partial, single-shot finalizing update to a
// Transaction row (spec invariant 2: a transaction leaves pending exactly
// once).
type TransactionUpdate struct {
	Status                 model.TransactionStatus
	ProcessorID            *uuid.UUID
	ProcessorTransactionID *string
	FailureReason          *string
	ProcessingTimeMS       *int64
	AttemptedProcessors    []string
}

// ErrNotFound is returned when a lookup by ID finds no row.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }
