package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/logging"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/processor"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/store"
)

// seedProcessor is the default configuration for one adapter type, matching
// the teacher's hard-coded processor quartet (PayFlow/CardMax/PixPay/
// GlobalPay), generalized to named config-carrying rows per spec §3.
type seedProcessor struct {
	name     string
	procType string
	priority int
}

var defaultProcessors = []seedProcessor{
	{name: "Gateway Prime", procType: processor.TypeMockGateway, priority: 1},
	{name: "Wallet Express", procType: processor.TypeMockWallet, priority: 2},
	{name: "Bank Direct", procType: processor.TypeMockBankTransfer, priority: 3},
	{name: "Card Network Plus", procType: processor.TypeMockCardNetwork, priority: 4},
}

// seedProcessors registers an adapter for every default processor type and
// inserts its row into the store, unless the store already has rows
// (e.g. a Postgres backend surviving a restart).
func seedProcessors(ctx context.Context, st store.Store, reg *processor.Registry, logger *logging.Logger) error {
	reg.Register(processor.TypeMockGateway, processor.NewMockGateway("Gateway Prime"))
	reg.Register(processor.TypeMockWallet, processor.NewMockWallet("Wallet Express"))
	reg.Register(processor.TypeMockBankTransfer, processor.NewMockBankTransfer("Bank Direct"))
	reg.Register(processor.TypeMockCardNetwork, processor.NewMockCardNetwork("Card Network Plus"))

	existing, err := st.GetAllProcessors(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Info("processor_seed_skipped", "existing", len(existing))
		return nil
	}

	for _, p := range defaultProcessors {
		if err := st.CreateProcessor(ctx, model.Processor{
			ID:       uuid.New(),
			Name:     p.name,
			Type:     p.procType,
			Priority: p.priority,
			Enabled:  true,
		}); err != nil {
			return err
		}
	}
	logger.Info("processor_seed_complete", "count", len(defaultProcessors))
	return nil
}
