package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
)

func newTestProcessor(priority int) model.Processor {
	return model.Processor{
		ID:       uuid.New(),
		Name:     "PayFlow",
		Type:     "mock_gateway",
		Priority: priority,
		Enabled:  true,
	}
}

func TestMemory_CreateAndGetProcessor(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := newTestProcessor(1)

	require.NoError(t, m.CreateProcessor(ctx, p))

	got, err := m.GetProcessor(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemory_GetProcessor_MissingReturnsErrNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.GetProcessor(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_GetAllProcessors_OrderedByPriorityThenID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	low := newTestProcessor(2)
	high := newTestProcessor(1)
	require.NoError(t, m.CreateProcessor(ctx, low))
	require.NoError(t, m.CreateProcessor(ctx, high))

	all, err := m.GetAllProcessors(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, high.ID, all[0].ID)
	assert.Equal(t, low.ID, all[1].ID)
}

func TestMemory_GetActiveProcessors_ExcludesDisabledAndOpenCircuits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	active := newTestProcessor(1)
	disabled := newTestProcessor(2)
	disabled.Enabled = false
	open := newTestProcessor(3)
	open.CircuitBreakerOpen = true

	for _, p := range []model.Processor{active, disabled, open} {
		require.NoError(t, m.CreateProcessor(ctx, p))
	}

	got, err := m.GetActiveProcessors(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}

func TestMemory_UpdateProcessor_OnlyTouchesSetFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := newTestProcessor(1)
	require.NoError(t, m.CreateProcessor(ctx, p))

	open := true
	updated, err := m.UpdateProcessor(ctx, p.ID, ProcessorUpdate{CircuitBreakerOpen: &open})
	require.NoError(t, err)
	assert.True(t, updated.CircuitBreakerOpen)
	assert.True(t, updated.Enabled, "Enabled must be left untouched")
}

func TestMemory_TransactionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	txn := model.Transaction{
		ID:       uuid.New(),
		Amount:   decimal.NewFromFloat(42.50),
		Currency: "USD",
		Status:   model.TransactionPending,
	}
	require.NoError(t, m.CreateTransaction(ctx, txn))

	got, err := m.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionPending, got.Status)
	assert.NotNil(t, got.AttemptedProcessors)

	processingTime := int64(120)
	updated, err := m.UpdateTransaction(ctx, txn.ID, TransactionUpdate{
		Status:              model.TransactionSuccess,
		ProcessingTimeMS:    &processingTime,
		AttemptedProcessors: []string{"PayFlow"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionSuccess, updated.Status)
	assert.Equal(t, []string{"PayFlow"}, updated.AttemptedProcessors)
}

func TestMemory_GetTransactions_MostRecentFirstAndPaginated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, m.CreateTransaction(ctx, model.Transaction{
			ID: id, Amount: decimal.NewFromInt(10), Currency: "USD", Status: model.TransactionPending,
		}))
	}

	page, err := m.GetTransactions(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	rest, err := m.GetTransactions(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].ID)
}

func TestMemory_CreateHealthMetric_RejectsUnknownProcessor(t *testing.T) {
	m := NewMemory()
	err := m.CreateHealthMetric(context.Background(), model.HealthMetric{ProcessorID: uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_GetLatestHealthMetrics_OneRowPerProcessor(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := newTestProcessor(1)
	require.NoError(t, m.CreateProcessor(ctx, p))

	older := model.HealthMetric{ProcessorID: p.ID, Timestamp: time.Now().Add(-time.Hour), SuccessCount: 1}
	newer := model.HealthMetric{ProcessorID: p.ID, Timestamp: time.Now(), SuccessCount: 9}
	require.NoError(t, m.CreateHealthMetric(ctx, older))
	require.NoError(t, m.CreateHealthMetric(ctx, newer))

	latest, err := m.GetLatestHealthMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 9, latest[0].SuccessCount)
}

func TestMemory_GetSystemLogs_FiltersByLevelMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.CreateSystemLog(ctx, model.SystemLog{Level: model.LogInfo, Message: "first"}))
	require.NoError(t, m.CreateSystemLog(ctx, model.SystemLog{Level: model.LogError, Message: "second"}))

	errLevel := model.LogError
	errLogs, err := m.GetSystemLogs(ctx, 10, &errLevel)
	require.NoError(t, err)
	require.Len(t, errLogs, 1)
	assert.Equal(t, "second", errLogs[0].Message)

	all, err := m.GetSystemLogs(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Message, "most recent first")
}

func TestMemory_GetSystemStats_ComputesSuccessRateAndAvgResponseTime(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := newTestProcessor(1)
	require.NoError(t, m.CreateProcessor(ctx, p))

	fastTime := int64(100)
	slowTime := int64(300)
	require.NoError(t, m.CreateTransaction(ctx, model.Transaction{ID: uuid.New(), Amount: decimal.NewFromInt(10), Currency: "USD", Status: model.TransactionSuccess}))
	require.NoError(t, m.CreateTransaction(ctx, model.Transaction{ID: uuid.New(), Amount: decimal.NewFromInt(10), Currency: "USD", Status: model.TransactionFailed}))

	id1 := uuid.New()
	require.NoError(t, m.CreateTransaction(ctx, model.Transaction{ID: id1, Amount: decimal.NewFromInt(10), Currency: "USD", Status: model.TransactionPending}))
	_, err := m.UpdateTransaction(ctx, id1, TransactionUpdate{Status: model.TransactionSuccess, ProcessingTimeMS: &fastTime})
	require.NoError(t, err)

	id2 := uuid.New()
	require.NoError(t, m.CreateTransaction(ctx, model.Transaction{ID: id2, Amount: decimal.NewFromInt(10), Currency: "USD", Status: model.TransactionPending}))
	_, err = m.UpdateTransaction(ctx, id2, TransactionUpdate{Status: model.TransactionFailed, ProcessingTimeMS: &slowTime})
	require.NoError(t, err)

	stats, err := m.GetSystemStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalTransactions)
	assert.Equal(t, 50.0, stats.SuccessRate)
	assert.Equal(t, int64(200), stats.AvgResponseTime)
	assert.Equal(t, 1, stats.ActiveProcessors)
}

func TestMemory_ListProcessorCandidates_MapsFromStoredProcessors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := newTestProcessor(1)
	require.NoError(t, m.CreateProcessor(ctx, p))

	candidates, err := m.ListProcessorCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, p.ID, candidates[0].ProcessorID)
	assert.Equal(t, p.Priority, candidates[0].Priority)
}
