package chainmanager

import (
	"context"
	"sync"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Chain implements types.Chain interface with thread-safe access to dependencies.
// A capability that was not configured returns ErrNotImplemented.
// Each dependency is protected by a read-write mutex to ensure thread-safe access.
type Chain struct {
	config    *types.ChainConfig         // Chain configuration.
	sender    types.TransactionSender    // Transaction sender implementation.
	batcher   types.BatchSender          // Batch sender implementation.
	signer    types.TypedDataSigner      // Typed data signer implementation.
	canceller types.TransactionCanceller // Transaction canceller implementation.
	closer    func() error               // Releases the backend resources.

	// Mutexes for thread-safe access to dependencies.
	senderMutex    sync.RWMutex // Mutex for transaction sender.
	batcherMutex   sync.RWMutex // Mutex for batch sender.
	signerMutex    sync.RWMutex // Mutex for typed data signer.
	cancellerMutex sync.RWMutex // Mutex for transaction canceller.
	closerOnce     sync.Once
	closeErr       error
}

var _ types.Chain = (*Chain)(nil)

// NewChain creates a new Chain instance.
//
// Parameters:
// - config: the chain configuration.
// - sender: the transaction sender implementation.
// - batcher: the batch sender implementation.
// - signer: the typed data signer implementation.
// - canceller: the transaction canceller implementation.
// - closer: the function releasing backend resources, may be nil.
//
// Returns:
// - *Chain: a new Chain instance.
func NewChain(
	config *types.ChainConfig,
	sender types.TransactionSender,
	batcher types.BatchSender,
	signer types.TypedDataSigner,
	canceller types.TransactionCanceller,
	closer func() error,
) *Chain {
	return &Chain{
		config:    config,
		sender:    sender,
		batcher:   batcher,
		signer:    signer,
		canceller: canceller,
		closer:    closer,
	}
}

// SendTransaction signs, broadcasts and records a transaction with thread-safe access.
//
// Parameters:
// - ctx: the context for managing the request.
// - req: the transaction to submit.
//
// Returns:
// - *types.TransactionDetails: the persisted record.
// - error: ErrNotImplemented if the backend cannot send, or the sender error.
func (c *Chain) SendTransaction(ctx context.Context, req *types.SubmitRequest) (*types.TransactionDetails, error) {
	c.senderMutex.RLock()
	defer c.senderMutex.RUnlock()

	if c.sender == nil {
		return nil, commonerrors.ErrNotImplemented
	}
	return c.sender.SendTransaction(ctx, req)
}

// SendBatch submits a batch with thread-safe access.
//
// Parameters:
// - ctx: the context for managing the request.
// - req: the calls to submit.
//
// Returns:
// - *types.TransactionDetails: the record representing the batch.
// - error: ErrNotImplemented if the backend cannot batch, or the batch sender error.
func (c *Chain) SendBatch(ctx context.Context, req *types.SubmitBatchRequest) (*types.TransactionDetails, error) {
	c.batcherMutex.RLock()
	defer c.batcherMutex.RUnlock()

	if c.batcher == nil {
		return nil, commonerrors.ErrNotImplemented
	}
	return c.batcher.SendBatch(ctx, req)
}

// SignTypedData signs an EIP-712 payload with thread-safe access.
//
// Parameters:
// - ctx: the context for managing the request.
// - data: the typed data to sign.
//
// Returns:
// - string: the 0x-prefixed signature.
// - error: ErrNotImplemented if the backend cannot sign typed data, or the signer error.
func (c *Chain) SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error) {
	c.signerMutex.RLock()
	defer c.signerMutex.RUnlock()

	if c.signer == nil {
		return "", commonerrors.ErrNotImplemented
	}
	return c.signer.SignTypedData(ctx, data)
}

// CancelTransaction cancels a pending transaction with thread-safe access.
//
// Parameters:
// - ctx: the context for managing the request.
// - id: the id of the record to cancel.
//
// Returns:
// - *types.TransactionDetails: the record of the cancellation transaction.
// - error: ErrNotImplemented if the backend cannot cancel, or the canceller error.
func (c *Chain) CancelTransaction(ctx context.Context, id string) (*types.TransactionDetails, error) {
	c.cancellerMutex.RLock()
	defer c.cancellerMutex.RUnlock()

	if c.canceller == nil {
		return nil, commonerrors.ErrNotImplemented
	}
	return c.canceller.CancelTransaction(ctx, id)
}

// GetConfig returns the chain configuration.
func (c *Chain) GetConfig() *types.ChainConfig {
	return c.config
}

// Close releases the backend resources. Later calls return the first result.
func (c *Chain) Close() error {
	c.closerOnce.Do(func() {
		if c.closer != nil {
			c.closeErr = c.closer()
		}
	})
	return c.closeErr
}
