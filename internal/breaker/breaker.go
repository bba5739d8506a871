// Package breaker implements the per-processor circuit breaker described in
// spec §4.2: closed/open/half-open, consecutive-failure counting, and a
// half-open admission that closes the circuit and resets its counter, so the
// probe and every later check are admitted until failures reach the
// threshold again. It is grounded on the teacher's
// internal/health.Monitor locking discipline (one map + sync.RWMutex per
// tracked key) generalized from a sliding-window score to exact
// consecutive-failure counting.
package breaker

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config tunes the breaker's thresholds, per spec §4.2 / §6.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultConfig matches spec §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		ResetTimeout:     60 * time.Second,
	}
}

// state is the breaker's internal bookkeeping for one processor. Both
// fields are always read/written together under the owning lock so a
// reader never observes an inconsistent (failures, open) pair.
type state struct {
	mu                  sync.Mutex
	consecutiveFailures int
	open                bool
	lastFailureTime     time.Time
}

// Status is a point-in-time view of one processor's breaker state, as
// returned by GetCircuitBreakerStatus.
type Status struct {
	ProcessorID         uuid.UUID
	Name                string
	IsOpen              bool
	ConsecutiveFailures int
}

// Breaker tracks admissibility for a set of processors, keyed by processor
// ID. It is safe for concurrent use by multiple payments in flight.
type Breaker struct {
	cfg Config

	mu     sync.RWMutex
	names  map[uuid.UUID]string
	states map[uuid.UUID]*state
}

// New creates a Breaker with the given configuration.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:    cfg,
		names:  make(map[uuid.UUID]string),
		states: make(map[uuid.UUID]*state),
	}
}

func (b *Breaker) stateFor(id uuid.UUID, name string) *state {
	b.mu.RLock()
	s, ok := b.states[id]
	b.mu.RUnlock()
	if ok {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.states[id]; ok {
		return s
	}
	s = &state{}
	b.states[id] = s
	b.names[id] = name
	return s
}

// CheckProcessor reports whether a processor currently admits calls. A
// processor in Open state whose resetTimeout has elapsed since
// lastFailureTime transitions to Half-Open as a side effect — the caller's
// subsequent RecordSuccess/RecordFailure decides the final state, per
// spec §4.2.
func (b *Breaker) CheckProcessor(id uuid.UUID, name string) bool {
	s := b.stateFor(id, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return true
	}

	if time.Since(s.lastFailureTime) >= b.cfg.ResetTimeout {
		// Half-open: admit this one probe, reset counters speculatively.
		s.open = false
		s.consecutiveFailures = 0
		return true
	}

	return false
}

// RecordSuccess clears a processor's failure counters and closes its circuit.
func (b *Breaker) RecordSuccess(id uuid.UUID, name string) {
	s := b.stateFor(id, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
	s.open = false
}

// RecordFailure increments a processor's consecutive failure count, opening
// its circuit once the configured threshold is reached.
func (b *Breaker) RecordFailure(id uuid.UUID, name string) {
	s := b.stateFor(id, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	s.lastFailureTime = time.Now()
	if s.consecutiveFailures >= b.cfg.FailureThreshold {
		s.open = true
	}
}

// Snapshot returns the current (open, consecutiveFailures) pair for one
// processor, without mutating state — used by the Health Aggregator and by
// Processor rows that mirror breaker state.
func (b *Breaker) Snapshot(id uuid.UUID) (open bool, consecutiveFailures int, lastFailure *time.Time) {
	b.mu.RLock()
	s, ok := b.states[id]
	b.mu.RUnlock()
	if !ok {
		return false, 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFailureTime.IsZero() {
		return s.open, s.consecutiveFailures, nil
	}
	lf := s.lastFailureTime
	return s.open, s.consecutiveFailures, &lf
}

// GetCircuitBreakerStatus returns the current status of every processor the
// breaker has ever tracked, per spec §4.2.
func (b *Breaker) GetCircuitBreakerStatus() []Status {
	b.mu.RLock()
	ids := make([]uuid.UUID, 0, len(b.states))
	for id := range b.states {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	statuses := make([]Status, 0, len(ids))
	for _, id := range ids {
		open, failures, _ := b.Snapshot(id)
		b.mu.RLock()
		name := b.names[id]
		b.mu.RUnlock()
		statuses = append(statuses, Status{
			ProcessorID:         id,
			Name:                name,
			IsOpen:              open,
			ConsecutiveFailures: failures,
		})
	}
	return statuses
}
