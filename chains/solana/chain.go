package solana

import (
	"context"
	"sync"
	"time"

	"github.com/ClipFinance/swap-lib/chainmanager"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/connectionmonitor"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// statusPollInterval is the interval between signature status checks.
	statusPollInterval = time.Second
	// confirmationTimeout is how long a signature may stay unknown before the record expires.
	confirmationTimeout = 90 * time.Second
)

// solana represents the base Solana chain implementation
type solana struct {
	config *types.ChainConfig
	logger *logrus.Logger
	store  types.TransactionStore

	// Protected fields with their own mutexes
	clientMutex sync.RWMutex
	client      *rpc.Client

	signerMutex sync.RWMutex
	signer      *sol.PrivateKey

	monitorMutex sync.RWMutex
	monitor      connectionmonitor.ConnectionMonitor

	statuses     signatureStatusSource // Overrides the client for status reads when set.
	pollInterval time.Duration
	expiry       time.Duration

	trackMutex  sync.Mutex
	trackCtx    context.Context
	trackCancel context.CancelFunc
	trackers    sync.WaitGroup
}

// NewSolanaChain creates a new Solana chain implementation.
// Solana has no batches, typed data or replace-by-nonce, those capabilities
// report ErrNotImplemented.
//
// Parameters:
// - ctx: the context for managing the request.
// - config: the chain configuration, PrivateKey is base58 encoded.
// - store: the store transaction records are written to.
// - logger: the logger for logging events.
//
// Returns:
// - types.Chain: a new Solana chain instance.
// - error: an error if the key cannot be parsed or the monitor cannot start.
func NewSolanaChain(ctx context.Context, config *types.ChainConfig, store types.TransactionStore, logger *logrus.Logger) (types.Chain, error) {
	chain := newSolana(config, store, logger, rpc.New(config.RpcUrl))

	builder := chainmanager.NewChainBuilder(config).WithCloser(chain.Close)

	if config.PrivateKey != "" {
		key, err := sol.PrivateKeyFromBase58(config.PrivateKey)
		if err != nil {
			chain.trackCancel()
			return nil, errors.Wrap(err, "failed to create signer")
		}

		chain.signerMutex.Lock()
		chain.signer = &key
		chain.signerMutex.Unlock()

		builder.WithTransactionSender(chain)
		chain.logBalance(ctx)
	}

	if err := chain.initMonitor(); err != nil {
		chain.trackCancel()
		return nil, errors.Wrap(err, "failed to init connection monitor")
	}

	logger.WithFields(logrus.Fields{
		"chain":   config.Name,
		"chainId": config.ChainID,
	}).Info("Solana chain initialized")

	return builder.Build(), nil
}

func newSolana(config *types.ChainConfig, store types.TransactionStore, logger *logrus.Logger, client *rpc.Client) *solana {
	trackCtx, trackCancel := context.WithCancel(context.Background())
	return &solana{
		config:       config,
		logger:       logger,
		store:        store,
		client:       client,
		pollInterval: statusPollInterval,
		expiry:       confirmationTimeout,
		trackCtx:     trackCtx,
		trackCancel:  trackCancel,
	}
}

// Close should be called when chain is no longer needed
func (s *solana) Close() error {
	s.stopTrackers()

	s.monitorMutex.Lock()
	if s.monitor != nil {
		s.monitor.Stop()
	}
	s.monitorMutex.Unlock()

	s.clientMutex.Lock()
	defer s.clientMutex.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return errors.Wrap(err, "failed to close rpc client")
}

// GetClient returns the Solana RPC client.
func (s *solana) GetClient() *rpc.Client {
	s.clientMutex.RLock()
	defer s.clientMutex.RUnlock()
	return s.client
}

func (s *solana) getSigner() *sol.PrivateKey {
	s.signerMutex.RLock()
	defer s.signerMutex.RUnlock()
	return s.signer
}
