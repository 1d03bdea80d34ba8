package chainmanager

import (
	"github.com/ClipFinance/swap-lib/common/types"
)

// ChainBuilder is a builder pattern implementation for chain configuration.
// It allows setting the capabilities a backend provides: single transaction
// submission, batched submission, typed data signing and cancellation.
type ChainBuilder struct {
	config    *types.ChainConfig         // Chain configuration.
	sender    types.TransactionSender    // Transaction sender implementation.
	batcher   types.BatchSender          // Batch sender implementation.
	signer    types.TypedDataSigner      // Typed data signer implementation.
	canceller types.TransactionCanceller // Transaction canceller implementation.
	closer    func() error               // Releases the backend resources.
}

// NewChainBuilder creates a new chain builder instance.
//
// Parameters:
// - config: the chain configuration.
//
// Returns:
// - *ChainBuilder: a new ChainBuilder instance.
func NewChainBuilder(config *types.ChainConfig) *ChainBuilder {
	return &ChainBuilder{
		config: config,
	}
}

// WithTransactionSender sets transaction sender implementation.
func (b *ChainBuilder) WithTransactionSender(sender types.TransactionSender) *ChainBuilder {
	b.sender = sender
	return b
}

// WithBatchSender sets batch sender implementation.
func (b *ChainBuilder) WithBatchSender(batcher types.BatchSender) *ChainBuilder {
	b.batcher = batcher
	return b
}

// WithTypedDataSigner sets typed data signer implementation.
func (b *ChainBuilder) WithTypedDataSigner(signer types.TypedDataSigner) *ChainBuilder {
	b.signer = signer
	return b
}

// WithTransactionCanceller sets transaction canceller implementation.
func (b *ChainBuilder) WithTransactionCanceller(canceller types.TransactionCanceller) *ChainBuilder {
	b.canceller = canceller
	return b
}

// WithCloser sets the function that releases the backend resources on Close.
func (b *ChainBuilder) WithCloser(closer func() error) *ChainBuilder {
	b.closer = closer
	return b
}

// Build creates a new chain instance with configured implementations.
//
// Returns:
// - *Chain: a new Chain instance with the configured implementations.
func (b *ChainBuilder) Build() *Chain {
	return NewChain(b.config, b.sender, b.batcher, b.signer, b.canceller, b.closer)
}
