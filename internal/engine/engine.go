// Package engine implements the Routing Engine (spec §4.1/C7): the waterfall
// that tries priority-ordered processor candidates until one succeeds, or the
// list is exhausted. Generalized from the teacher's internal/orchestrator,
// which retried up to config.MaxRetries and stopped early on a hard decline —
// this engine has no attempt cap beyond the candidate list and treats every
// failure kind identically for routing purposes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/breaker"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/logging"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/priority"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/processor"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/store"
)

const (
	reasonNoProcessors     = "no payment processors available"
	reasonAllFailed        = "all payment processors failed"
	reasonDeadlineTemplate = "deadline exceeded after %d attempts"
	reasonSystemTemplate   = "system error: %s"
)

// Breaker is the subset of breaker.Breaker the engine depends on.
type Breaker interface {
	CheckProcessor(id uuid.UUID, name string) bool
	RecordSuccess(id uuid.UUID, name string)
	RecordFailure(id uuid.UUID, name string)
	Snapshot(id uuid.UUID) (open bool, consecutiveFailures int, lastFailure *time.Time)
}

// Registry is the subset of processor.Registry the engine depends on.
type Registry interface {
	Lookup(processorType string) (processor.Adapter, error)
}

// Engine orchestrates the waterfall.
type Engine struct {
	priority priority.Source
	registry Registry
	breaker  Breaker
	store    store.Store
	logger   *logging.Logger
}

// New creates an Engine from its four collaborators.
func New(src priority.Source, registry Registry, cb Breaker, st store.Store, logger *logging.Logger) *Engine {
	return &Engine{priority: src, registry: registry, breaker: cb, store: st, logger: logger}
}

// ProcessPayment executes the waterfall for one request and returns the
// terminal Result, per spec §4.1.
func (e *Engine) ProcessPayment(ctx context.Context, req model.PaymentRequest) (result model.PaymentResult, err error) {
	amount, currErr := model.ParseAmount(req.Amount)
	if currErr != nil {
		return model.PaymentResult{}, currErr
	}
	currency, currErr := model.NormalizeCurrency(req.Currency)
	if currErr != nil {
		return model.PaymentResult{}, currErr
	}

	txn := model.Transaction{
		ID:                  uuid.New(),
		Amount:              amount,
		Currency:            currency,
		Status:              model.TransactionPending,
		AttemptedProcessors: []string{},
		Metadata:            req.Metadata,
	}
	if err := e.store.CreateTransaction(ctx, txn); err != nil {
		return model.PaymentResult{}, fmt.Errorf("create transaction: %w", err)
	}

	log := e.logger.For(&txn.ID, nil)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("system_error", "panic", fmt.Sprintf("%v", r))
			finalized, finalizeErr := e.finalizeFailed(ctx, txn.ID, txn.AttemptedProcessors,
				fmt.Sprintf(reasonSystemTemplate, r), start)
			if finalizeErr != nil {
				err = finalizeErr
				return
			}
			result = model.PaymentResult{
				Success:             false,
				Transaction:         finalized,
				AttemptedProcessors: txn.AttemptedProcessors,
				TotalProcessingTime: time.Since(start),
			}
		}
	}()

	candidates, priErr := e.priority.GetPriorities(ctx)
	if priErr != nil {
		log.Error("priority_source_error", "error", priErr.Error())
		finalized, err := e.finalizeFailed(ctx, txn.ID, txn.AttemptedProcessors, reasonNoProcessors, start)
		return toResult(false, finalized, txn.AttemptedProcessors, start), err
	}
	if len(candidates) == 0 {
		log.Warn("no_eligible_processors")
		finalized, err := e.finalizeFailed(ctx, txn.ID, txn.AttemptedProcessors, reasonNoProcessors, start)
		return toResult(false, finalized, txn.AttemptedProcessors, start), err
	}

	for attemptNum, candidate := range candidates {
		if ctx.Err() != nil {
			reason := fmt.Sprintf(reasonDeadlineTemplate, len(txn.AttemptedProcessors))
			log.Warn("deadline_exceeded", "attempts", len(txn.AttemptedProcessors))
			finalized, err := e.finalizeFailed(ctx, txn.ID, txn.AttemptedProcessors, reason, start)
			return toResult(false, finalized, txn.AttemptedProcessors, start), err
		}

		proc, procErr := e.store.GetProcessor(ctx, candidate.ProcessorID)
		if procErr != nil {
			log.Error("configuration_error", "processor", candidate.Name, "error", procErr.Error())
			continue
		}

		if !proc.Enabled {
			log.Warn("processor_skipped_disabled", "processor", candidate.Name)
			continue
		}

		if !e.breaker.CheckProcessor(candidate.ProcessorID, candidate.Name) {
			log.Warn("processor_skipped_circuit_open", "processor", candidate.Name)
			continue
		}

		txn.AttemptedProcessors = append(txn.AttemptedProcessors, candidate.Name)

		adapter, lookupErr := e.registry.Lookup(proc.Type)
		if lookupErr != nil {
			log.Error("configuration_error", "processor", candidate.Name, "type", proc.Type, "error", lookupErr.Error())
			continue
		}

		log.Info("payment_attempt", "processor", candidate.Name, "attempt", attemptNum+1)

		callStart := time.Now()
		adapterResult := e.invokeAdapter(ctx, adapter, amount, currency, req.Metadata)
		latency := time.Since(callStart)

		if adapterResult.Success {
			e.breaker.RecordSuccess(candidate.ProcessorID, candidate.Name)
			e.mirrorBreakerState(ctx, candidate.ProcessorID, candidate.Name, log)
			_ = e.store.CreateHealthMetric(ctx, model.HealthMetric{
				ProcessorID:       candidate.ProcessorID,
				SuccessCount:      1,
				AvgResponseTime:   float64(latency.Milliseconds()),
				TotalTransactions: 1,
			})

			log.Info("payment_approved", "processor", candidate.Name, "attempts", attemptNum+1)

			totalTime := time.Since(start)
			ms := totalTime.Milliseconds()
			winnerID := candidate.ProcessorID
			finalized, updErr := e.store.UpdateTransaction(ctx, txn.ID, store.TransactionUpdate{
				Status:                 model.TransactionSuccess,
				ProcessorID:            &winnerID,
				ProcessorTransactionID: &adapterResult.TransactionID,
				ProcessingTimeMS:       &ms,
				AttemptedProcessors:    txn.AttemptedProcessors,
			})
			if updErr != nil {
				log.Error("storage_error", "error", updErr.Error())
			}

			return model.PaymentResult{
				Success:             true,
				Transaction:         finalized,
				ProcessorUsed:       candidate.Name,
				AttemptedProcessors: txn.AttemptedProcessors,
				TotalProcessingTime: totalTime,
			}, nil
		}

		e.breaker.RecordFailure(candidate.ProcessorID, candidate.Name)
		e.mirrorBreakerState(ctx, candidate.ProcessorID, candidate.Name, log)
		_ = e.store.CreateHealthMetric(ctx, model.HealthMetric{
			ProcessorID:       candidate.ProcessorID,
			FailureCount:      1,
			AvgResponseTime:   float64(latency.Milliseconds()),
			TotalTransactions: 1,
		})

		if adapterResult.ErrorCode == errorCodeAdapterFault {
			log.Error("adapter_fault", "processor", candidate.Name, "error", adapterResult.ErrorMessage)
		} else {
			log.Warn("retriable_failure", "processor", candidate.Name, "error", adapterResult.ErrorMessage)
		}
	}

	log.Warn("all_processors_failed", "attempted", len(txn.AttemptedProcessors))
	finalized, err := e.finalizeFailed(ctx, txn.ID, txn.AttemptedProcessors, reasonAllFailed, start)
	return toResult(false, finalized, txn.AttemptedProcessors, start), err
}

const errorCodeAdapterFault = "adapter_fault"

// invokeAdapter calls the adapter and converts a panic in the call path into
// a failed AdapterResult rather than letting it escape — spec §7 item 3/7.
func (e *Engine) invokeAdapter(ctx context.Context, adapter processor.Adapter, amount decimal.Decimal, currency string, metadata map[string]any) (res model.AdapterResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.AdapterResult{
				Success:      false,
				ErrorMessage: fmt.Sprintf("adapter panic: %v", r),
				ErrorCode:    errorCodeAdapterFault,
			}
		}
	}()
	return adapter.ProcessPayment(ctx, amount, currency, metadata)
}

// mirrorBreakerState copies the breaker's post-transition view of one
// processor back onto its Processor row, per spec §3/§4.4: CircuitBreakerOpen
// and ConsecutiveFailures are owned by the breaker, the row only mirrors them,
// but every reader of a Processor row (GetActiveProcessors, the health
// aggregator, the processors list endpoint) reads the row, not the breaker.
func (e *Engine) mirrorBreakerState(ctx context.Context, id uuid.UUID, name string, log logging.WithContext) {
	open, failures, lastFailure := e.breaker.Snapshot(id)
	_, err := e.store.UpdateProcessor(ctx, id, store.ProcessorUpdate{
		CircuitBreakerOpen:  &open,
		ConsecutiveFailures: &failures,
		LastFailureTime:     &lastFailure,
	})
	if err != nil {
		log.Error("storage_error", "processor", name, "error", err.Error())
	}
}

func (e *Engine) finalizeFailed(ctx context.Context, id uuid.UUID, attempted []string, reason string, start time.Time) (model.Transaction, error) {
	ms := time.Since(start).Milliseconds()
	finalized, err := e.store.UpdateTransaction(ctx, id, store.TransactionUpdate{
		Status:              model.TransactionFailed,
		FailureReason:       &reason,
		ProcessingTimeMS:    &ms,
		AttemptedProcessors: attempted,
	})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("finalize failed transaction: %w", err)
	}
	return finalized, nil
}

func toResult(success bool, txn model.Transaction, attempted []string, start time.Time) model.PaymentResult {
	return model.PaymentResult{
		Success:             success,
		Transaction:         txn,
		AttemptedProcessors: attempted,
		TotalProcessingTime: time.Since(start),
	}
}

// ErrNoProcessors is returned by nothing directly but documents the reason
// string used when the candidate list is empty; kept for callers matching on
// FailureReason rather than a typed error.
var ErrNoProcessors = errors.New(reasonNoProcessors)
