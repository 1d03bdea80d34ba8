package evm

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ClipFinance/swap-lib/chainmanager"
	"github.com/ClipFinance/swap-lib/chains/evm/signer"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/connectionmonitor"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// TxTypeLegacy represents the legacy transaction type.
	TxTypeLegacy = 0
	// TxTypeEIP1559 represents the EIP-1559 transaction type.
	TxTypeEIP1559 = 2
	// waitTimeout is how long a transaction may stay unmined before it is sped up.
	waitTimeout = 30 * time.Second
)

// evm represents the base EVM chain implementation.
type evm struct {
	config *types.ChainConfig     // Chain configuration.
	logger *logrus.Logger         // Logger for logging events.
	store  types.TransactionStore // Store the transaction records are written to.

	// Protected fields with their own mutexes.
	clientMutex sync.RWMutex      // Mutex for client.
	client      *ethclient.Client // Ethereum client.

	signerMutex sync.RWMutex  // Mutex for signer.
	signer      signer.Signer // Signer for signing transactions.

	monitorMutex sync.RWMutex                        // Mutex for connection monitor.
	monitor      connectionmonitor.ConnectionMonitor // Connection monitor.

	// nonceMutex serialises nonce allocation between concurrent submissions.
	nonceMutex sync.Mutex

	cancelMutex sync.Mutex          // Mutex for cancelling.
	cancelling  map[string]struct{} // Ids of records with a cancellation in flight.

	trackMutex  sync.Mutex         // Orders tracker starts against stopTrackers.
	trackCtx    context.Context    // Context of the receipt trackers.
	trackCancel context.CancelFunc // Stops the receipt trackers.
	trackers    sync.WaitGroup     // Running receipt trackers.
}

// NewEvmChain creates a new EVM chain implementation.
//
// Parameters:
// - ctx: the context for managing the request.
// - config: the chain configuration.
// - store: the store transaction records are written to.
// - logger: the logger for logging events.
//
// Returns:
// - types.Chain: a new EVM chain instance.
// - error: an error if any issue occurs during creation.
func NewEvmChain(ctx context.Context, config *types.ChainConfig, store types.TransactionStore, logger *logrus.Logger) (types.Chain, error) {
	client, err := ethclient.DialContext(ctx, config.RpcUrl)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}

	if err := verifyChainID(ctx, client, config.ChainID); err != nil {
		client.Close()
		return nil, err
	}

	chain := newEvm(config, store, logger, client)

	if config.PrivateKey != "" {
		s, err := signer.NewSignerFromHex(config.PrivateKey)
		if err != nil {
			client.Close()
			return nil, errors.Wrap(err, "failed to create signer")
		}

		chain.signerMutex.Lock()
		chain.signer = s
		chain.signerMutex.Unlock()
	}

	if err := chain.initMonitor(); err != nil {
		chain.trackCancel()
		client.Close()
		return nil, errors.Wrap(err, "failed to init connection monitor")
	}

	builder := chainmanager.NewChainBuilder(config).WithCloser(chain.Close)
	if chain.getSigner() != nil {
		builder.WithTransactionSender(chain).
			WithBatchSender(chain).
			WithTypedDataSigner(chain).
			WithTransactionCanceller(chain)
		chain.logBalance(ctx)
	}

	logger.WithFields(logrus.Fields{
		"chain":   config.Name,
		"chainId": config.ChainID,
		"mode":    types.GetSubscriptionMode(config.RpcUrl),
	}).Info("EVM chain initialized")

	return builder.Build(), nil
}

func newEvm(config *types.ChainConfig, store types.TransactionStore, logger *logrus.Logger, client *ethclient.Client) *evm {
	trackCtx, trackCancel := context.WithCancel(context.Background())
	return &evm{
		config:      config,
		logger:      logger,
		store:       store,
		client:      client,
		cancelling:  make(map[string]struct{}),
		trackCtx:    trackCtx,
		trackCancel: trackCancel,
	}
}

// Close should be called when the chain is no longer needed.
// It stops the receipt trackers and the connection monitor and closes the client.
// Records still pending stay pending in the store.
func (e *evm) Close() error {
	e.stopTrackers()

	e.monitorMutex.Lock()
	if e.monitor != nil {
		e.monitor.Stop()
	}
	e.monitorMutex.Unlock()

	e.clientMutex.Lock()
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
	e.clientMutex.Unlock()

	return nil
}

// GetClient returns the Ethereum client.
//
// Returns:
// - *ethclient.Client: the Ethereum client.
func (e *evm) GetClient() *ethclient.Client {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()
	return e.client
}

func (e *evm) getSigner() signer.Signer {
	e.signerMutex.RLock()
	defer e.signerMutex.RUnlock()
	return e.signer
}

func (e *evm) chainID() *big.Int {
	return new(big.Int).SetUint64(e.config.ChainID)
}
