package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{FailureThreshold: 3, ResetTimeout: 50 * time.Millisecond}
}

func TestCheckProcessor_NewProcessorIsClosedByDefault(t *testing.T) {
	b := New(testConfig())
	assert.True(t, b.CheckProcessor(uuid.New(), "PayFlow"))
}

func TestRecordFailure_OpensCircuitAtThreshold(t *testing.T) {
	b := New(testConfig())
	id := uuid.New()

	b.RecordFailure(id, "PayFlow")
	open, failures, _ := b.Snapshot(id)
	assert.False(t, open)
	assert.Equal(t, 1, failures)

	b.RecordFailure(id, "PayFlow")
	open, failures, _ = b.Snapshot(id)
	assert.False(t, open)
	assert.Equal(t, 2, failures)

	b.RecordFailure(id, "PayFlow")
	open, failures, _ = b.Snapshot(id)
	assert.True(t, open)
	assert.Equal(t, 3, failures)

	assert.False(t, b.CheckProcessor(id, "PayFlow"), "circuit should deny admission once open")
}

func TestRecordSuccess_ClearsFailuresAndCloses(t *testing.T) {
	b := New(testConfig())
	id := uuid.New()

	b.RecordFailure(id, "PayFlow")
	b.RecordFailure(id, "PayFlow")
	b.RecordSuccess(id, "PayFlow")

	open, failures, _ := b.Snapshot(id)
	assert.False(t, open)
	assert.Zero(t, failures)
}

func TestCheckProcessor_HalfOpensAfterResetTimeout(t *testing.T) {
	b := New(testConfig())
	id := uuid.New()

	for i := 0; i < 3; i++ {
		b.RecordFailure(id, "PayFlow")
	}
	open, _, _ := b.Snapshot(id)
	require.True(t, open)

	assert.False(t, b.CheckProcessor(id, "PayFlow"), "still within resetTimeout")

	time.Sleep(60 * time.Millisecond)

	assert.True(t, b.CheckProcessor(id, "PayFlow"), "should admit the half-open probe")
	open, failures, _ := b.Snapshot(id)
	assert.False(t, open)
	assert.Zero(t, failures)
}

func TestCheckProcessor_HalfOpenProbeFailureRestartsCountBelowThreshold(t *testing.T) {
	b := New(testConfig())
	id := uuid.New()

	for i := 0; i < 3; i++ {
		b.RecordFailure(id, "PayFlow")
	}
	time.Sleep(60 * time.Millisecond)

	require.True(t, b.CheckProcessor(id, "PayFlow"))
	// The probe itself fails — breaker counts re-accumulate from zero and
	// a single failure is not enough to reopen below threshold.
	b.RecordFailure(id, "PayFlow")
	open, failures, _ := b.Snapshot(id)
	assert.False(t, open)
	assert.Equal(t, 1, failures)
}

func TestGetCircuitBreakerStatus_ReflectsAllTrackedProcessors(t *testing.T) {
	b := New(testConfig())
	idA, idB := uuid.New(), uuid.New()
	b.RecordFailure(idA, "PayFlow")
	b.RecordSuccess(idB, "CardMax")

	statuses := b.GetCircuitBreakerStatus()
	require.Len(t, statuses, 2)

	byName := map[string]Status{}
	for _, s := range statuses {
		byName[s.Name] = s
	}
	assert.Equal(t, 1, byName["PayFlow"].ConsecutiveFailures)
	assert.False(t, byName["PayFlow"].IsOpen)
	assert.Equal(t, 0, byName["CardMax"].ConsecutiveFailures)
}

func TestBreaker_ConcurrentAccessStaysConsistent(t *testing.T) {
	b := New(testConfig())
	id := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RecordFailure(id, "PayFlow")
		}()
	}
	wg.Wait()

	open, failures, lastFailure := b.Snapshot(id)
	assert.Equal(t, 100, failures)
	assert.True(t, open)
	require.NotNil(t, lastFailure)
}
