package chainmanager

import (
	"context"
	"sync"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// ChainFactory creates chain backends that record their transactions in store.
type ChainFactory interface {
	CreateChain(ctx context.Context, config *types.ChainConfig, store types.TransactionStore, logger *logrus.Logger) (types.Chain, error)
}

type blockchainRegistry struct {
	logger       *logrus.Logger
	store        types.TransactionStore
	chains       map[uint64]types.Chain
	chainsMutex  sync.RWMutex
	factory      ChainFactory
	factoryMutex sync.RWMutex
}

// NewChainRegistry creates a registry whose backends are built by factory.
//
// Parameters:
// - factory: the chain factory.
// - store: the transaction store handed to every backend.
// - logger: the logger for logging events.
//
// Returns:
// - types.ChainRegistry: the registry.
func NewChainRegistry(factory ChainFactory, store types.TransactionStore, logger *logrus.Logger) types.ChainRegistry {
	return &blockchainRegistry{
		chains:  make(map[uint64]types.Chain),
		factory: factory,
		store:   store,
		logger:  logger,
	}
}

func (r *blockchainRegistry) Add(ctx context.Context, config *types.ChainConfig) error {
	if config == nil {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "chain config is nil")
	}
	if r.factory == nil {
		return commonerrors.ErrFactoryNotProvided
	}

	r.chainsMutex.RLock()
	_, exists := r.chains[config.ChainID]
	r.chainsMutex.RUnlock()
	if exists {
		return errors.Wrapf(commonerrors.ErrChainExists, "chain %d", config.ChainID)
	}

	// Lock factory for reading to prevent changes during chain creation.
	r.factoryMutex.RLock()
	chain, err := r.factory.CreateChain(ctx, config, r.store, r.logger)
	r.factoryMutex.RUnlock()

	if err != nil {
		return errors.Wrapf(err, "failed to create chain %s", config.Name)
	}

	r.chainsMutex.Lock()
	defer r.chainsMutex.Unlock()

	// Another Add for the same id may have won while the backend was dialing.
	if _, exists := r.chains[config.ChainID]; exists {
		return multierr.Append(
			errors.Wrapf(commonerrors.ErrChainExists, "chain %d", config.ChainID),
			chain.Close(),
		)
	}
	r.chains[config.ChainID] = chain

	r.logger.WithFields(logrus.Fields{
		"chain":   config.Name,
		"chainId": config.ChainID,
	}).Info("Chain registered")

	return nil
}

func (r *blockchainRegistry) Get(chainID uint64) types.Chain {
	r.chainsMutex.RLock()
	chain := r.chains[chainID]
	r.chainsMutex.RUnlock()
	return chain
}

func (r *blockchainRegistry) Remove(chainID uint64) error {
	r.chainsMutex.Lock()
	chain, exists := r.chains[chainID]
	delete(r.chains, chainID)
	r.chainsMutex.Unlock()

	if !exists {
		return errors.Wrapf(commonerrors.ErrChainNotFound, "chain %d", chainID)
	}
	return chain.Close()
}

func (r *blockchainRegistry) Close() error {
	r.chainsMutex.Lock()
	chains := r.chains
	r.chains = make(map[uint64]types.Chain)
	r.chainsMutex.Unlock()

	var err error
	for id, chain := range chains {
		if closeErr := chain.Close(); closeErr != nil {
			err = multierr.Append(err, errors.Wrapf(closeErr, "failed to close chain %d", id))
		}
	}
	return err
}
