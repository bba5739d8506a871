package main

import (
	"context"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/health"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/store"
)

const pushRecentTransactionLimit = 20

// pushSnapshotter adapts the Health Aggregator and State Store to
// push.Snapshotter, the three periodic payloads spec §4.6 pushes over /ws.
type pushSnapshotter struct {
	store store.Store
	agg   *health.Aggregator
}

func newPushSnapshotter(st store.Store, agg *health.Aggregator) *pushSnapshotter {
	return &pushSnapshotter{store: st, agg: agg}
}

func (s *pushSnapshotter) Metrics(ctx context.Context) (any, error) {
	return s.store.GetSystemStats(ctx)
}

func (s *pushSnapshotter) RecentTransactions(ctx context.Context) (any, error) {
	return s.store.GetTransactions(ctx, pushRecentTransactionLimit, 0)
}

func (s *pushSnapshotter) Health(ctx context.Context) (any, error) {
	return s.agg.Snapshot(ctx)
}
