package types

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ChainConfig represents the configuration of a single chain backend.
type ChainConfig struct {
	Name        string    `mapstructure:"name"`          // Human readable chain name.
	ChainType   ChainType `mapstructure:"chain_type"`    // Backend family.
	ChainID     uint64    `mapstructure:"chain_id"`      // Chain identifier.
	RpcUrl      string    `mapstructure:"rpc_url"`       // RPC endpoint, ws(s):// enables head subscriptions.
	TxType      uint64    `mapstructure:"tx_type"`       // 0 for legacy, 2 for EIP-1559 transactions.
	WaitNBlocks uint64    `mapstructure:"wait_n_blocks"` // Confirmations required before a receipt counts.
	PrivateKey  string    `mapstructure:"private_key"`   // Key of the account that signs for this chain.

	MonitorInterval time.Duration `mapstructure:"monitor_interval"` // Interval between RPC health checks.
}

// SubmitRequest describes a single transaction to sign, broadcast and record.
type SubmitRequest struct {
	Request TxRequest
	Routing Routing
	Type    TransactionType
}

// SubmitBatchRequest describes several calls submitted as one wallet-level batch.
type SubmitBatchRequest struct {
	ChainID  uint64
	Requests []TxRequest
	Routing  Routing
	Type     TransactionType
}

// SubmitResult is the outcome of an asynchronous submission.
type SubmitResult struct {
	ID   string
	Hash string
}

// Submitter abstracts signing and broadcasting for the execution engine.
type Submitter interface {
	// Submit signs and broadcasts a transaction and returns its record id and hash.
	//
	// Parameters:
	// - ctx: the context for managing the request.
	// - req: the transaction to submit.
	//
	// Returns:
	// - *SubmitResult: the record id and transaction hash.
	// - error: an error if signing, broadcasting or recording fails.
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)

	// SubmitSync signs and broadcasts a transaction and returns the full record.
	//
	// Parameters:
	// - ctx: the context for managing the request.
	// - req: the transaction to submit.
	//
	// Returns:
	// - *TransactionDetails: the persisted record, including the nonce.
	// - error: an error if signing, broadcasting or recording fails.
	SubmitSync(ctx context.Context, req *SubmitRequest) (*TransactionDetails, error)

	// SubmitBatch submits several calls as one batch.
	//
	// Parameters:
	// - ctx: the context for managing the request.
	// - req: the calls to submit.
	//
	// Returns:
	// - *SubmitResult: the id and hash of the record representing the batch.
	// - error: an error if any call of the batch could not be submitted.
	SubmitBatch(ctx context.Context, req *SubmitBatchRequest) (*SubmitResult, error)

	// SignTypedData produces an EIP-712 signature on the given chain.
	//
	// Parameters:
	// - ctx: the context for managing the request.
	// - chainID: the chain whose signer must sign.
	// - data: the typed data to sign.
	//
	// Returns:
	// - string: the 0x-prefixed signature.
	// - error: an error if the chain has no signer or signing fails.
	SignTypedData(ctx context.Context, chainID uint64, data apitypes.TypedData) (string, error)
}

// TransactionReader is the read side of the local transaction-state store.
type TransactionReader interface {
	// Get returns the record with the given id or ErrTransactionNotFound.
	Get(ctx context.Context, id string) (*TransactionDetails, error)
	// Subscribe returns a channel that receives the record every time it changes.
	// Only the latest change is buffered. The channel is closed when ctx ends.
	Subscribe(ctx context.Context, id string) (<-chan *TransactionDetails, error)
}

// TransactionStore is the local transaction-state store.
type TransactionStore interface {
	TransactionReader

	// Put inserts the record or replaces a record that is not final yet.
	Put(ctx context.Context, tx *TransactionDetails) error
	// UpdateStatus moves the record to status. Final statuses never change,
	// attempts return ErrStatusFinal.
	UpdateStatus(ctx context.Context, id string, status TransactionStatus) error
	// Close releases the resources held by the store.
	Close() error
}

// SettlementAPI is the remote service that tracks cross-chain settlement.
type SettlementAPI interface {
	// FetchStatus returns the settlement status of a source transaction.
	FetchStatus(ctx context.Context, txHash string, chainID uint64) (SwapStatus, error)
	// SupportsChain reports whether the service indexes the given chain.
	SupportsChain(chainID uint64) bool
}

// OrderPublisher hands signed auctioned orders to the order service.
type OrderPublisher interface {
	// PublishOrder submits the order and returns its order hash.
	PublishOrder(ctx context.Context, order *SignedOrder) (string, error)
}

// TransactionSender signs, broadcasts and records single transactions on one chain.
type TransactionSender interface {
	SendTransaction(ctx context.Context, req *SubmitRequest) (*TransactionDetails, error)
}

// BatchSender submits batches on one chain.
type BatchSender interface {
	SendBatch(ctx context.Context, req *SubmitBatchRequest) (*TransactionDetails, error)
}

// TypedDataSigner signs EIP-712 payloads on one chain.
type TypedDataSigner interface {
	SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error)
}

// TransactionCanceller replaces a pending transaction with a cancellation.
type TransactionCanceller interface {
	// CancelTransaction broadcasts a cancellation for the record with the given id
	// and returns the record of the cancellation transaction.
	CancelTransaction(ctx context.Context, id string) (*TransactionDetails, error)
}

// Chain is a chain backend. Capabilities a backend does not provide return ErrNotImplemented.
type Chain interface {
	TransactionSender
	BatchSender
	TypedDataSigner
	TransactionCanceller

	GetConfig() *ChainConfig
	Close() error
}

// ChainRegistry keeps the chain backends by chain id.
type ChainRegistry interface {
	// Add creates and registers a backend for the given configuration.
	Add(ctx context.Context, config *ChainConfig) error
	// Get returns the backend for chainID, nil when none is registered.
	Get(chainID uint64) Chain
	// Remove closes and unregisters the backend for chainID.
	Remove(chainID uint64) error
	// Close closes every registered backend.
	Close() error
}
