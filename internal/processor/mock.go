package processor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
)

// OutcomeDistribution defines the probability of each response type for a
// simulated adapter. ApprovalRate + DeclineRate + ErrorRate should sum to 1.0.
type OutcomeDistribution struct {
	ApprovalRate float64
	DeclineRate  float64
	ErrorRate    float64
}

// MockConfig holds configuration for creating a simulated adapter.
type MockConfig struct {
	ProcessorName string
	ErrorCode     string // returned on the ErrorRate branch
	Outcomes      OutcomeDistribution
	MinLatency    time.Duration
	MaxLatency    time.Duration
	// CallTimeout bounds how long ProcessPayment may run before it is
	// treated as a failure, per spec §4.3.
	CallTimeout time.Duration
}

// MockAdapter simulates a payment backend with configurable latency and
// outcome distribution. Generalized from the teacher's MockProcessor: the
// same latency-simulation-then-roll-the-dice shape, now behind the spec's
// Adapter contract instead of the teacher's payment-method-aware Processor
// contract (routing in this system dispatches by processor type, not by a
// declared list of supported payment methods).
type MockAdapter struct {
	config MockConfig
	rng    *rand.Rand
	mu     sync.Mutex
}

// NewMockAdapter creates a new simulated adapter from the given config.
func NewMockAdapter(cfg MockConfig) *MockAdapter {
	return &MockAdapter{
		config: cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ProcessPayment simulates one authorization attempt.
func (a *MockAdapter) ProcessPayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]any) model.AdapterResult {
	start := time.Now()

	timeout := a.config.CallTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	latency := a.simulateLatency()
	select {
	case <-time.After(latency):
	case <-callCtx.Done():
		return model.AdapterResult{
			Success:        false,
			ProcessingTime: time.Since(start),
			ErrorMessage:   "call deadline exceeded",
			ErrorCode:      "timeout",
		}
	}

	roll := a.roll()
	dist := a.config.Outcomes

	switch {
	case roll < dist.ApprovalRate:
		return model.AdapterResult{
			Success:        true,
			TransactionID:  a.generateTransactionID(),
			ProcessingTime: time.Since(start),
		}
	case roll < dist.ApprovalRate+dist.DeclineRate:
		return model.AdapterResult{
			Success:        false,
			ProcessingTime: time.Since(start),
			ErrorMessage:   "payment declined",
			ErrorCode:      "declined",
		}
	default:
		return model.AdapterResult{
			Success:        false,
			ProcessingTime: time.Since(start),
			ErrorMessage:   "processor error",
			ErrorCode:      a.errorCode(),
		}
	}
}

// HealthCheck simulates a live probe, independent of routing traffic.
func (a *MockAdapter) HealthCheck(ctx context.Context) model.HealthCheckResult {
	start := time.Now()
	latency := a.simulateLatency()

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return model.HealthCheckResult{Healthy: false, ResponseTime: time.Since(start), Error: "health check cancelled"}
	}

	roll := a.roll()
	healthy := roll < a.config.Outcomes.ApprovalRate+a.config.Outcomes.DeclineRate
	result := model.HealthCheckResult{Healthy: healthy, ResponseTime: time.Since(start)}
	if !healthy {
		result.Error = "processor unhealthy"
	}
	return result
}

func (a *MockAdapter) roll() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Float64()
}

func (a *MockAdapter) simulateLatency() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	minLatency, maxLatency := a.config.MinLatency, a.config.MaxLatency
	if maxLatency <= minLatency {
		return minLatency
	}
	return minLatency + time.Duration(a.rng.Int63n(int64(maxLatency-minLatency)))
}

func (a *MockAdapter) errorCode() string {
	if a.config.ErrorCode != "" {
		return a.config.ErrorCode
	}
	return "processor_error"
}

func (a *MockAdapter) generateTransactionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	const hex = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = hex[a.rng.Intn(len(hex))]
	}
	return a.config.ProcessorName + "-" + string(buf)
}
