// Package processor defines the Processor Adapter contract (spec §4.3) and
// the Adapter Registry that looks adapters up by processor type (spec §4.4).
package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
)

// Adapter is the uniform contract every payment backend implements.
type Adapter interface {
	// ProcessPayment attempts one authorization against this backend.
	ProcessPayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]any) model.AdapterResult
	// HealthCheck probes the backend directly, independent of routing traffic.
	HealthCheck(ctx context.Context) model.HealthCheckResult
}

// Registry looks up one Adapter instance per configured processor type. It
// owns adapter lifecycles; the engine never constructs or closes an adapter
// itself.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register associates an Adapter instance with a processor type.
func (r *Registry) Register(processorType string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[processorType] = adapter
}

// ErrAdapterNotFound is returned when no adapter is registered for a type.
// Spec §4.3: "missing mapping is a hard configuration error but does not
// poison the rest of the routing."
var ErrAdapterNotFound = fmt.Errorf("no adapter registered for processor type")

// Lookup returns the Adapter registered for a processor type.
func (r *Registry) Lookup(processorType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[processorType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, processorType)
	}
	return a, nil
}
