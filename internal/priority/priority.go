// Package priority implements the Priority Source contract (spec §4.7): a
// component that returns the enabled processors in priority order, either
// read from local configuration or fetched from an external oracle with a
// static fallback.
package priority

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

func parseProcessorID(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}

// Candidate is one entry in a priority list.
type Candidate struct {
	ProcessorID uuid.UUID
	Name        string
	Priority    int
	Enabled     bool
}

// Source yields the enabled processors in ascending priority order.
type Source interface {
	GetPriorities(ctx context.Context) ([]Candidate, error)
}

// ProcessorLister is the minimal read the Local source needs from the State
// Store — kept narrow so priority doesn't import the full store interface.
type ProcessorLister interface {
	ListProcessorCandidates(ctx context.Context) ([]Candidate, error)
}

// Local reads the current processor table directly from the State Store.
type Local struct {
	store ProcessorLister
}

// NewLocal creates a Local priority source backed by the given store.
func NewLocal(store ProcessorLister) *Local {
	return &Local{store: store}
}

// GetPriorities returns every enabled processor, sorted by (priority, id)
// per spec invariant 1.
func (l *Local) GetPriorities(ctx context.Context) ([]Candidate, error) {
	candidates, err := l.store.ListProcessorCandidates(ctx)
	if err != nil {
		return nil, err
	}

	enabled := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}

	sort.Slice(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority < enabled[j].Priority
		}
		return enabled[i].ProcessorID.String() < enabled[j].ProcessorID.String()
	})

	return enabled, nil
}
