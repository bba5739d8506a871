package processor

import "time"

// Processor type discriminators, matching Processor.Type in the seed
// configuration. Each carries its own declared config shape (spec §9
// "Config objects").
const (
	TypeMockGateway      = "mock_gateway"       // config: {apiKey}
	TypeMockWallet       = "mock_wallet"        // config: {clientId}
	TypeMockBankTransfer = "mock_bank_transfer" // config: {appId}
	TypeMockCardNetwork  = "mock_card_network"  // config: {merchantAccount, apiKey}
)

// NewMockGateway builds a general-purpose gateway adapter: high approval,
// occasional declines, rare errors. Generalizes the teacher's PayFlow.
func NewMockGateway(name string) *MockAdapter {
	return NewMockAdapter(MockConfig{
		ProcessorName: name,
		Outcomes: OutcomeDistribution{
			ApprovalRate: 0.70,
			DeclineRate:  0.20,
			ErrorRate:    0.10,
		},
		MinLatency:  50 * time.Millisecond,
		MaxLatency:  200 * time.Millisecond,
		CallTimeout: 3 * time.Second,
	})
}

// NewMockWallet builds a digital-wallet adapter biased toward declines over
// hard errors. Generalizes the teacher's CardMax.
func NewMockWallet(name string) *MockAdapter {
	return NewMockAdapter(MockConfig{
		ProcessorName: name,
		ErrorCode:     "wallet_unavailable",
		Outcomes: OutcomeDistribution{
			ApprovalRate: 0.85,
			DeclineRate:  0.13,
			ErrorRate:    0.02,
		},
		MinLatency:  80 * time.Millisecond,
		MaxLatency:  300 * time.Millisecond,
		CallTimeout: 3 * time.Second,
	})
}

// NewMockBankTransfer builds a bank-transfer adapter with longer, more
// variable latency and a higher decline rate. Generalizes the teacher's
// PixPay.
func NewMockBankTransfer(name string) *MockAdapter {
	return NewMockAdapter(MockConfig{
		ProcessorName: name,
		ErrorCode:     "bank_timeout",
		Outcomes: OutcomeDistribution{
			ApprovalRate: 0.55,
			DeclineRate:  0.35,
			ErrorRate:    0.10,
		},
		MinLatency:  150 * time.Millisecond,
		MaxLatency:  900 * time.Millisecond,
		CallTimeout: 4 * time.Second,
	})
}

// NewMockCardNetwork builds a card-network-direct adapter: universal
// fallback with flat, reliable approval. Generalizes the teacher's GlobalPay.
func NewMockCardNetwork(name string) *MockAdapter {
	return NewMockAdapter(MockConfig{
		ProcessorName: name,
		Outcomes: OutcomeDistribution{
			ApprovalRate: 0.75,
			DeclineRate:  0.20,
			ErrorRate:    0.05,
		},
		MinLatency:  60 * time.Millisecond,
		MaxLatency:  250 * time.Millisecond,
		CallTimeout: 3 * time.Second,
	})
}
