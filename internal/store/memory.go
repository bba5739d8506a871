package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/priority"
)

// Memory is the default, map-backed State Store. Generalized from the
// teacher's orchestrator.PaymentStore: same sync.RWMutex + map discipline,
// extended to cover processors, health metrics and system logs.
type Memory struct {
	mu sync.RWMutex

	processors   map[uuid.UUID]model.Processor
	transactions map[uuid.UUID]model.Transaction
	txnOrder     []uuid.UUID // insertion order, for GetTransactions' createdAt DESC
	metrics      []model.HealthMetric
	logs         []model.SystemLog
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		processors:   make(map[uuid.UUID]model.Processor),
		transactions: make(map[uuid.UUID]model.Transaction),
	}
}

func (m *Memory) CreateProcessor(ctx context.Context, p model.Processor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.processors[p.ID] = p
	return nil
}

func (m *Memory) GetProcessor(ctx context.Context, id uuid.UUID) (model.Processor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.processors[id]
	if !ok {
		return model.Processor{}, fmt.Errorf("processor %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func sortProcessors(ps []model.Processor) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Priority != ps[j].Priority {
			return ps[i].Priority < ps[j].Priority
		}
		return ps[i].ID.String() < ps[j].ID.String()
	})
}

func (m *Memory) GetAllProcessors(ctx context.Context) ([]model.Processor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Processor, 0, len(m.processors))
	for _, p := range m.processors {
		out = append(out, p)
	}
	sortProcessors(out)
	return out, nil
}

// GetActiveProcessors returns enabled processors whose circuit is closed,
// ordered by (priority, id) — spec invariant 5 / I5.
func (m *Memory) GetActiveProcessors(ctx context.Context) ([]model.Processor, error) {
	all, _ := m.GetAllProcessors(ctx)
	out := make([]model.Processor, 0, len(all))
	for _, p := range all {
		if p.Enabled && !p.CircuitBreakerOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) ListProcessorCandidates(ctx context.Context) ([]priority.Candidate, error) {
	all, _ := m.GetAllProcessors(ctx)
	out := make([]priority.Candidate, 0, len(all))
	for _, p := range all {
		out = append(out, priority.Candidate{
			ProcessorID: p.ID,
			Name:        p.Name,
			Priority:    p.Priority,
			Enabled:     p.Enabled,
		})
	}
	return out, nil
}

func (m *Memory) UpdateProcessor(ctx context.Context, id uuid.UUID, update ProcessorUpdate) (model.Processor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.processors[id]
	if !ok {
		return model.Processor{}, fmt.Errorf("processor %s: %w", id, ErrNotFound)
	}

	if update.Enabled != nil {
		p.Enabled = *update.Enabled
	}
	if update.CircuitBreakerOpen != nil {
		p.CircuitBreakerOpen = *update.CircuitBreakerOpen
	}
	if update.ConsecutiveFailures != nil {
		p.ConsecutiveFailures = *update.ConsecutiveFailures
	}
	if update.LastFailureTime != nil {
		p.LastFailureTime = *update.LastFailureTime
	}
	p.UpdatedAt = time.Now().UTC()

	m.processors[id] = p
	return p, nil
}

func (m *Memory) CreateTransaction(ctx context.Context, t model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.AttemptedProcessors == nil {
		t.AttemptedProcessors = []string{}
	}
	m.transactions[t.ID] = t
	m.txnOrder = append(m.txnOrder, t.ID)
	return nil
}

func (m *Memory) UpdateTransaction(ctx context.Context, id uuid.UUID, update TransactionUpdate) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transactions[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}

	t.Status = update.Status
	if update.ProcessorID != nil {
		t.ProcessorID = update.ProcessorID
	}
	if update.ProcessorTransactionID != nil {
		t.ProcessorTransactionID = update.ProcessorTransactionID
	}
	if update.FailureReason != nil {
		t.FailureReason = update.FailureReason
	}
	if update.ProcessingTimeMS != nil {
		t.ProcessingTimeMS = update.ProcessingTimeMS
	}
	if update.AttemptedProcessors != nil {
		t.AttemptedProcessors = update.AttemptedProcessors
	}
	t.UpdatedAt = time.Now().UTC()

	m.transactions[id] = t
	return t, nil
}

func (m *Memory) GetTransaction(ctx context.Context, id uuid.UUID) (model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transactions[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// GetTransactions returns transactions ordered by createdAt DESC, paginated.
func (m *Memory) GetTransactions(ctx context.Context, limit, offset int) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ordered := make([]model.Transaction, 0, len(m.txnOrder))
	for i := len(m.txnOrder) - 1; i >= 0; i-- {
		ordered = append(ordered, m.transactions[m.txnOrder[i]])
	}

	if offset >= len(ordered) {
		return []model.Transaction{}, nil
	}
	end := offset + limit
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[offset:end], nil
}

func (m *Memory) GetTotalTransactionCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transactions), nil
}

func (m *Memory) CreateHealthMetric(ctx context.Context, metric model.HealthMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.processors[metric.ProcessorID]; !ok {
		return fmt.Errorf("health metric references unknown processor %s: %w", metric.ProcessorID, ErrNotFound)
	}
	if metric.ID == uuid.Nil {
		metric.ID = uuid.New()
	}
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now().UTC()
	}
	m.metrics = append(m.metrics, metric)
	return nil
}

// GetLatestHealthMetrics returns the most recent sample per processor.
func (m *Memory) GetLatestHealthMetrics(ctx context.Context) ([]model.HealthMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[uuid.UUID]model.HealthMetric)
	for _, metric := range m.metrics {
		current, ok := latest[metric.ProcessorID]
		if !ok || metric.Timestamp.After(current.Timestamp) {
			latest[metric.ProcessorID] = metric
		}
	}

	out := make([]model.HealthMetric, 0, len(latest))
	for _, v := range latest {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessorID.String() < out[j].ProcessorID.String() })
	return out, nil
}

func (m *Memory) CreateSystemLog(ctx context.Context, log model.SystemLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	m.logs = append(m.logs, log)
	return nil
}

// GetSystemLogs returns the most recent logs, most recent first, optionally
// filtered to one level.
func (m *Memory) GetSystemLogs(ctx context.Context, limit int, level *model.LogLevel) ([]model.SystemLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.SystemLog, 0, limit)
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if level != nil && m.logs[i].Level != *level {
			continue
		}
		out = append(out, m.logs[i])
	}
	return out, nil
}

func (m *Memory) GetSystemStats(ctx context.Context) (SystemStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := SystemStats{TotalTransactions: len(m.transactions)}

	var successCount int
	var totalResponseTime int64
	var responseSamples int
	for _, t := range m.transactions {
		if t.Status == model.TransactionSuccess {
			successCount++
		}
		if t.ProcessingTimeMS != nil {
			totalResponseTime += *t.ProcessingTimeMS
			responseSamples++
		}
	}

	if stats.TotalTransactions > 0 {
		rate := 100 * float64(successCount) / float64(stats.TotalTransactions)
		stats.SuccessRate = math.Round(rate*10) / 10
	}
	if responseSamples > 0 {
		stats.AvgResponseTime = int64(math.Round(float64(totalResponseTime) / float64(responseSamples)))
	}

	for _, p := range m.processors {
		if p.Enabled && !p.CircuitBreakerOpen {
			stats.ActiveProcessors++
		}
	}

	return stats, nil
}
