package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/breaker"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/logging"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/priority"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/processor"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/store"
)

// deterministicAdapter always returns the same outcome. Generalized from the
// teacher's deterministicProcessor.
type deterministicAdapter struct {
	success   bool
	errorCode string
	mu        sync.Mutex
	callCount int
}

func (a *deterministicAdapter) ProcessPayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]any) model.AdapterResult {
	a.mu.Lock()
	a.callCount++
	a.mu.Unlock()
	if a.success {
		return model.AdapterResult{Success: true, TransactionID: "tx-" + uuid.NewString(), ProcessingTime: time.Millisecond}
	}
	return model.AdapterResult{Success: false, ErrorMessage: "declined", ErrorCode: a.errorCode}
}

func (a *deterministicAdapter) HealthCheck(ctx context.Context) model.HealthCheckResult {
	return model.HealthCheckResult{Healthy: a.success}
}

func (a *deterministicAdapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.callCount
}

// sequenceAdapter returns successive AdapterResults on successive calls,
// repeating the last once exhausted. Generalized from sequenceProcessor.
type sequenceAdapter struct {
	mu      sync.Mutex
	results []model.AdapterResult
	idx     int
}

func (a *sequenceAdapter) ProcessPayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]any) model.AdapterResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.results[a.idx]
	if a.idx < len(a.results)-1 {
		a.idx++
	}
	return r
}

func (a *sequenceAdapter) HealthCheck(ctx context.Context) model.HealthCheckResult {
	return model.HealthCheckResult{Healthy: true}
}

type testHarness struct {
	store    *store.Memory
	breaker  *breaker.Breaker
	registry *processor.Registry
	engine   *Engine
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	st := store.NewMemory()
	cb := breaker.New(breaker.Config{FailureThreshold: 3, ResetTimeout: time.Minute})
	registry := processor.NewRegistry()
	src := priority.NewLocal(st)
	logger := logging.New(model.LogDebug, "engine-test")
	t.Cleanup(func() { _ = logger.Close() })

	eng := New(src, registry, cb, st, logger)
	return &testHarness{store: st, breaker: cb, registry: registry, engine: eng}
}

func (h *testHarness) addProcessor(t *testing.T, name string, priorityValue int, adapterType string, adapter processor.Adapter) model.Processor {
	t.Helper()
	p := model.Processor{ID: uuid.New(), Name: name, Type: adapterType, Priority: priorityValue, Enabled: true}
	require.NoError(t, h.store.CreateProcessor(context.Background(), p))
	h.registry.Register(adapterType, adapter)
	return p
}

func TestProcessPayment_S1_HappyPathThroughPrimary(t *testing.T) {
	h := newHarness(t)
	h.addProcessor(t, "P1", 1, "p1", &deterministicAdapter{success: true})
	h.addProcessor(t, "P2", 2, "p2", &deterministicAdapter{success: true})

	result, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "P1", result.ProcessorUsed)
	assert.Equal(t, []string{"P1"}, result.AttemptedProcessors)
	assert.Equal(t, model.TransactionSuccess, result.Transaction.Status)
}

func TestProcessPayment_S2_WaterfallToSecondary(t *testing.T) {
	h := newHarness(t)
	p1 := h.addProcessor(t, "P1", 1, "p1", &deterministicAdapter{success: false})
	p2 := h.addProcessor(t, "P2", 2, "p2", &deterministicAdapter{success: true})
	_ = p2

	result, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "P2", result.ProcessorUsed)
	assert.Equal(t, []string{"P1", "P2"}, result.AttemptedProcessors)

	statuses := h.breaker.GetCircuitBreakerStatus()
	require.Len(t, statuses, 2, "both P1 and P2 passed through the breaker")
	open, failures, _ := h.breaker.Snapshot(p1.ID)
	assert.Equal(t, 1, failures)
	assert.False(t, open)
}

func TestProcessPayment_S3_CircuitOpensAfterThreshold(t *testing.T) {
	h := newHarness(t)
	h.addProcessor(t, "P1", 1, "p1", &deterministicAdapter{success: false})
	h.addProcessor(t, "P2", 2, "p2", &deterministicAdapter{success: true})

	for i := 0; i < 3; i++ {
		result, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
		require.NoError(t, err)
		assert.Contains(t, result.AttemptedProcessors, "P1")
	}

	fourth, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)
	assert.NotContains(t, fourth.AttemptedProcessors, "P1", "circuit should be open by the fourth call")
	assert.Equal(t, "P2", fourth.ProcessorUsed)
}

func TestProcessPayment_S4_CircuitHalfOpensAfterCooldown(t *testing.T) {
	st := store.NewMemory()
	cb := breaker.New(breaker.Config{FailureThreshold: 1, ResetTimeout: 20 * time.Millisecond})
	registry := processor.NewRegistry()
	src := priority.NewLocal(st)
	logger := logging.New(model.LogDebug, "engine-test")
	defer logger.Close()
	eng := New(src, registry, cb, st, logger)

	adapter := &deterministicAdapter{success: false}
	p1 := model.Processor{ID: uuid.New(), Name: "P1", Type: "p1", Priority: 1, Enabled: true}
	require.NoError(t, st.CreateProcessor(context.Background(), p1))
	registry.Register("p1", adapter)

	_, err := eng.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)
	require.True(t, cb.GetCircuitBreakerStatus()[0].IsOpen)

	time.Sleep(30 * time.Millisecond)
	adapter.success = true

	result, err := eng.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "P1", result.ProcessorUsed)

	status := cb.GetCircuitBreakerStatus()[0]
	assert.False(t, status.IsOpen)
	assert.Equal(t, 0, status.ConsecutiveFailures)
}

func TestProcessPayment_S5_AllFail(t *testing.T) {
	h := newHarness(t)
	h.addProcessor(t, "P1", 1, "p1", &deterministicAdapter{success: false})
	h.addProcessor(t, "P2", 2, "p2", &deterministicAdapter{success: false})

	result, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []string{"P1", "P2"}, result.AttemptedProcessors)
	assert.Equal(t, model.TransactionFailed, result.Transaction.Status)
	require.NotNil(t, result.Transaction.FailureReason)
	assert.Equal(t, reasonAllFailed, *result.Transaction.FailureReason)
}

func TestProcessPayment_S6_OperatorToggleMidStream(t *testing.T) {
	h := newHarness(t)
	p1 := h.addProcessor(t, "P1", 1, "p1", &deterministicAdapter{success: true})
	h.addProcessor(t, "P2", 2, "p2", &deterministicAdapter{success: true})

	disabled := false
	_, err := h.store.UpdateProcessor(context.Background(), p1.ID, store.ProcessorUpdate{Enabled: &disabled})
	require.NoError(t, err)

	result, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)

	assert.NotContains(t, result.AttemptedProcessors, "P1")
	assert.Equal(t, "P2", result.ProcessorUsed)
}

// fixedPrioritySource returns a captured candidate list unconditionally,
// simulating a priority snapshot taken before a concurrent disable.
type fixedPrioritySource struct{ candidates []priority.Candidate }

func (f fixedPrioritySource) GetPriorities(ctx context.Context) ([]priority.Candidate, error) {
	return f.candidates, nil
}

func TestProcessPayment_DisabledAfterSnapshotSkippedWithoutAttempt(t *testing.T) {
	st := store.NewMemory()
	cb := breaker.New(breaker.Config{FailureThreshold: 3, ResetTimeout: time.Minute})
	registry := processor.NewRegistry()
	logger := logging.New(model.LogDebug, "engine-test")
	defer logger.Close()

	p1 := model.Processor{ID: uuid.New(), Name: "P1", Type: "p1", Priority: 1, Enabled: true}
	p2 := model.Processor{ID: uuid.New(), Name: "P2", Type: "p2", Priority: 2, Enabled: true}
	require.NoError(t, st.CreateProcessor(context.Background(), p1))
	require.NoError(t, st.CreateProcessor(context.Background(), p2))
	registry.Register("p1", &deterministicAdapter{success: true})
	registry.Register("p2", &deterministicAdapter{success: true})

	// Snapshot taken while both are still enabled.
	src := fixedPrioritySource{candidates: []priority.Candidate{
		{ProcessorID: p1.ID, Name: "P1", Priority: 1, Enabled: true},
		{ProcessorID: p2.ID, Name: "P2", Priority: 2, Enabled: true},
	}}

	// P1 is disabled after the snapshot but before its turn in the loop.
	disabled := false
	_, err := st.UpdateProcessor(context.Background(), p1.ID, store.ProcessorUpdate{Enabled: &disabled})
	require.NoError(t, err)

	eng := New(src, registry, cb, st, logger)
	result, err := eng.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "P2", result.ProcessorUsed)
	assert.NotContains(t, result.AttemptedProcessors, "P1", "a processor disabled after the priority snapshot must not be recorded as attempted")
	statuses := cb.GetCircuitBreakerStatus()
	require.Len(t, statuses, 1, "a disabled candidate must not reach the breaker either")
	assert.Equal(t, p2.ID, statuses[0].ProcessorID)
}

func TestProcessPayment_BreakerTripMirrorsOntoProcessorRow(t *testing.T) {
	h := newHarness(t)
	p1 := h.addProcessor(t, "P1", 1, "p1", &deterministicAdapter{success: false})
	h.addProcessor(t, "P2", 2, "p2", &deterministicAdapter{success: true})

	for i := 0; i < 3; i++ {
		_, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
		require.NoError(t, err)
	}

	row, err := h.store.GetProcessor(context.Background(), p1.ID)
	require.NoError(t, err)
	assert.True(t, row.CircuitBreakerOpen, "processor row must mirror the breaker's open state")
	assert.Equal(t, 3, row.ConsecutiveFailures)
	assert.NotNil(t, row.LastFailureTime)

	active, err := h.store.GetActiveProcessors(context.Background())
	require.NoError(t, err)
	for _, p := range active {
		assert.NotEqual(t, p1.ID, p.ID, "GetActiveProcessors must exclude the now-open-circuit processor")
	}
}

func TestProcessPayment_NoEligibleProcessors(t *testing.T) {
	h := newHarness(t)
	result, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.NotNil(t, result.Transaction.FailureReason)
	assert.Equal(t, reasonNoProcessors, *result.Transaction.FailureReason)
}

func TestProcessPayment_MissingAdapterSkipsCandidateWithoutBreakerUpdate(t *testing.T) {
	h := newHarness(t)
	p1 := model.Processor{ID: uuid.New(), Name: "P1", Type: "unregistered", Priority: 1, Enabled: true}
	require.NoError(t, h.store.CreateProcessor(context.Background(), p1))
	h.addProcessor(t, "P2", 2, "p2", &deterministicAdapter{success: true})

	result, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, "P2", result.ProcessorUsed)
	open, failures, lastFailure := h.breaker.Snapshot(p1.ID)
	assert.False(t, open)
	assert.Zero(t, failures)
	assert.Nil(t, lastFailure, "missing-adapter candidate must not update the breaker")
}

func TestProcessPayment_I2_SuccessfulTransactionReferencesWinningProcessor(t *testing.T) {
	h := newHarness(t)
	p1 := h.addProcessor(t, "P1", 1, "p1", &deterministicAdapter{success: false})
	p2 := h.addProcessor(t, "P2", 2, "p2", &deterministicAdapter{success: true})
	_ = p1

	result, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)

	require.NotNil(t, result.Transaction.ProcessorID)
	assert.Equal(t, p2.ID, *result.Transaction.ProcessorID)
	assert.Equal(t, result.AttemptedProcessors[len(result.AttemptedProcessors)-1], "P2")
}

func TestProcessPayment_I6_RoundTripThroughStore(t *testing.T) {
	h := newHarness(t)
	h.addProcessor(t, "P1", 1, "p1", &deterministicAdapter{success: true})

	result, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)

	fetched, err := h.store.GetTransaction(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Transaction.Status, fetched.Status)
	assert.Equal(t, result.Transaction.ProcessorTransactionID, fetched.ProcessorTransactionID)
}

func TestProcessPayment_InvalidAmountRejectedBeforeCreatingTransaction(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.ProcessPayment(context.Background(), model.PaymentRequest{Amount: "not-a-number", Currency: "USD"})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	count, err := h.store.GetTotalTransactionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestProcessPayment_DeadlineExceededFinalizesFailedWithAttemptCount(t *testing.T) {
	h := newHarness(t)
	h.addProcessor(t, "P1", 1, "p1", &deterministicAdapter{success: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.engine.ProcessPayment(ctx, model.PaymentRequest{Amount: "10.00", Currency: "USD"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Transaction.FailureReason)
	assert.Contains(t, *result.Transaction.FailureReason, "deadline exceeded")
}
