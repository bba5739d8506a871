// Package model defines the entities shared by every component of the
// routing engine: processors, transactions, health samples and system logs.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Processor is a configured payment backend.
type Processor struct {
	ID       uuid.UUID      `json:"id" db:"id"`
	Name     string         `json:"name" db:"name"`
	Type     string         `json:"type" db:"type"`
	Priority int            `json:"priority" db:"priority"`
	Enabled  bool           `json:"enabled" db:"enabled"`
	Config   map[string]any `json:"config" db:"-"`

	// SuccessRate and ResponseTime are declared baselines, informational
	// only — they never derive from observed traffic (invariant 5).
	SuccessRate  float64 `json:"success_rate" db:"success_rate"`
	ResponseTime int     `json:"response_time" db:"response_time"`

	// CircuitBreakerOpen and ConsecutiveFailures are owned by the breaker;
	// the processor row only mirrors their current value.
	CircuitBreakerOpen  bool       `json:"circuit_breaker_open" db:"circuit_breaker_open"`
	ConsecutiveFailures int        `json:"consecutive_failures" db:"consecutive_failures"`
	LastFailureTime     *time.Time `json:"last_failure_time,omitempty" db:"last_failure_time"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

// Transaction is a single routing attempt, from creation to terminal state.
type Transaction struct {
	ID       uuid.UUID         `json:"id" db:"id"`
	Amount   decimal.Decimal   `json:"amount" db:"amount"`
	Currency string            `json:"currency" db:"currency"`
	Status   TransactionStatus `json:"status" db:"status"`

	ProcessorID            *uuid.UUID `json:"processor_id,omitempty" db:"processor_id"`
	ProcessorTransactionID *string    `json:"processor_transaction_id,omitempty" db:"processor_transaction_id"`
	FailureReason          *string    `json:"failure_reason,omitempty" db:"failure_reason"`
	ProcessingTimeMS       *int64     `json:"processing_time_ms,omitempty" db:"processing_time_ms"`

	AttemptedProcessors []string       `json:"attempted_processors" db:"-"`
	Metadata            map[string]any `json:"metadata,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HealthMetric is a point-in-time sample of one processor's recent traffic.
type HealthMetric struct {
	ID                uuid.UUID `json:"id" db:"id"`
	ProcessorID       uuid.UUID `json:"processor_id" db:"processor_id"`
	Timestamp         time.Time `json:"timestamp" db:"timestamp"`
	SuccessCount      int       `json:"success_count" db:"success_count"`
	FailureCount      int       `json:"failure_count" db:"failure_count"`
	AvgResponseTime   float64   `json:"avg_response_time" db:"avg_response_time"`
	TotalTransactions int       `json:"total_transactions" db:"total_transactions"`
}

// LogLevel filters both the stdout sink and the stored SystemLog rows.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// logLevelRank orders levels from least to most severe, for filtering.
var logLevelRank = map[LogLevel]int{
	LogDebug: 0,
	LogInfo:  1,
	LogWarn:  2,
	LogError: 3,
}

// Allowed reports whether a log line at level l passes a minimum-level filter.
func (l LogLevel) Allowed(minimum LogLevel) bool {
	return logLevelRank[l] >= logLevelRank[minimum]
}

// SystemLog is one append-only structured log line.
type SystemLog struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	Level         LogLevel       `json:"level" db:"level"`
	Message       string         `json:"message" db:"message"`
	Service       string         `json:"service" db:"service"`
	TransactionID *uuid.UUID     `json:"transaction_id,omitempty" db:"transaction_id"`
	ProcessorID   *uuid.UUID     `json:"processor_id,omitempty" db:"processor_id"`
	Metadata      map[string]any `json:"metadata,omitempty" db:"-"`
	Timestamp     time.Time      `json:"timestamp" db:"timestamp"`
}

// PaymentRequest is the caller-supplied input to the routing engine.
// Amount arrives as a string so it can be validated against the spec's
// decimal pattern before being parsed into a fixed-point value.
type PaymentRequest struct {
	Amount   string         `json:"amount"`
	Currency string         `json:"currency"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PaymentResult is what the routing engine returns for one ProcessPayment call.
type PaymentResult struct {
	Success             bool
	Transaction         Transaction
	ProcessorUsed       string
	AttemptedProcessors []string
	TotalProcessingTime time.Duration
}

// AdapterResult is what a Processor Adapter returns for one authorization
// attempt. TransactionID is present iff Success; ErrorMessage/ErrorCode are
// present iff !Success.
type AdapterResult struct {
	Success        bool
	TransactionID  string
	ProcessingTime time.Duration
	ErrorMessage   string
	ErrorCode      string
}

// HealthCheckResult is what a Processor Adapter returns for a live health probe.
type HealthCheckResult struct {
	Healthy      bool
	ResponseTime time.Duration
	Error        string
}
