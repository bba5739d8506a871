// Package health implements the Health Aggregator (spec §4.5/C8): a pure
// reader that composes a system snapshot from the State Store, the Circuit
// Breaker and the Priority Source. Distinct from the teacher's
// internal/health.Monitor, which tracked a sliding-window score — that
// package was repurposed into internal/breaker; this one is new, grounded
// on the teacher's "compose a snapshot from collaborators" shape.
package health

import (
	"context"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/breaker"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/store"
)

// ProcessorSnapshot is one processor's status within the aggregate view.
type ProcessorSnapshot struct {
	Name               string
	Enabled            bool
	CircuitBreakerOpen bool
	SuccessRate        float64
	AvgResponseTime    int
}

// PrioritySourceStatus reports whether the last priority fetch used the live
// oracle or fell back to the static list.
type PrioritySourceStatus struct {
	UsingFallback bool
	LastError     string
}

// Snapshot is the full system health view returned by Aggregator.Snapshot.
type Snapshot struct {
	Status         string
	UptimeSeconds  float64
	Processors     []ProcessorSnapshot
	BreakerStatus  []breaker.Status
	SystemStats    store.SystemStats
	PrioritySource PrioritySourceStatus
}

// StatusReporter is implemented by priority.Oracle to expose whether its
// last fetch used the fallback list. priority.Local does not implement it;
// an Aggregator over a Local source is given a nil StatusReporter.
type StatusReporter interface {
	Status() (usingFallback bool, lastError string)
}

// Aggregator composes the Health snapshot. It performs no mutation.
type Aggregator struct {
	store     store.Store
	breaker   *breaker.Breaker
	priority  StatusReporter
	startedAt time.Time
}

// New creates an Aggregator. priority may be nil when the Priority Source
// never falls back (e.g. a pure priority.Local deployment).
func New(st store.Store, cb *breaker.Breaker, priority StatusReporter) *Aggregator {
	return &Aggregator{store: st, breaker: cb, priority: priority, startedAt: time.Now()}
}

// Snapshot produces the current system view, per spec §4.5.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	processors, err := a.store.GetAllProcessors(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snaps := make([]ProcessorSnapshot, 0, len(processors))
	for _, p := range processors {
		snaps = append(snaps, ProcessorSnapshot{
			Name:               p.Name,
			Enabled:            p.Enabled,
			CircuitBreakerOpen: p.CircuitBreakerOpen,
			SuccessRate:        p.SuccessRate,
			AvgResponseTime:    p.ResponseTime,
		})
	}

	stats, err := a.store.GetSystemStats(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	prioStatus := PrioritySourceStatus{}
	if a.priority != nil {
		fallback, lastErr := a.priority.Status()
		prioStatus = PrioritySourceStatus{UsingFallback: fallback, LastError: lastErr}
	}

	status := "healthy"
	if stats.ActiveProcessors == 0 {
		status = "unhealthy"
	} else if stats.ActiveProcessors < len(processors) {
		status = "degraded"
	}

	return Snapshot{
		Status:         status,
		UptimeSeconds:  time.Since(a.startedAt).Seconds(),
		Processors:     snaps,
		BreakerStatus:  a.breaker.GetCircuitBreakerStatus(),
		SystemStats:    stats,
		PrioritySource: prioStatus,
	}, nil
}

// Checker is the live health probe of a processor adapter, as resolved by
// the lookup function passed to CheckAll.
type Checker interface {
	HealthCheck(ctx context.Context) model.HealthCheckResult
}

// CheckAll runs a live health check against each processor's adapter,
// looked up by type from the given registry.
func (a *Aggregator) CheckAll(ctx context.Context, lookup func(processorType string) (Checker, error)) (map[string]model.HealthCheckResult, error) {
	processors, err := a.store.GetAllProcessors(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]model.HealthCheckResult, len(processors))
	for _, p := range processors {
		adapter, err := lookup(p.Type)
		if err != nil {
			results[p.Name] = model.HealthCheckResult{Healthy: false, Error: err.Error()}
			continue
		}
		results[p.Name] = adapter.HealthCheck(ctx)
	}
	return results, nil
}
