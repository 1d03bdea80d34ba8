// Package chains maps chain families to their wallet backends.
package chains

import (
	"context"
	"sort"
	"sync"

	"github.com/ClipFinance/swap-lib/chains/evm"
	"github.com/ClipFinance/swap-lib/chains/solana"
	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	commontypes "github.com/ClipFinance/swap-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ChainConstructor builds the backend of one configured chain. Records of the
// transactions it submits are written to store.
type ChainConstructor func(ctx context.Context, config *commontypes.ChainConfig, store commontypes.TransactionStore, logger *logrus.Logger) (commontypes.Chain, error)

// ChainFactory creates chain backends by family.
type ChainFactory interface {
	// RegisterConstructor sets the constructor of a family, replacing any previous one.
	RegisterConstructor(chainType commontypes.ChainType, constructor ChainConstructor)

	// CreateChain builds the backend for config.
	//
	// Parameters:
	// - ctx: the context for dialing the chain.
	// - config: the chain configuration.
	// - store: the store the chain records its transactions in.
	// - logger: the logger handed to the backend.
	//
	// Returns:
	// - commontypes.Chain: the backend.
	// - error: ErrInvalidConfig for a nil config, ErrInvalidChainType for a family without constructor,
	//   or the constructor error.
	CreateChain(ctx context.Context, config *commontypes.ChainConfig, store commontypes.TransactionStore, logger *logrus.Logger) (commontypes.Chain, error)

	// SupportedTypes lists the registered families in name order.
	SupportedTypes() []commontypes.ChainType
}

type chainFactory struct {
	mu           sync.RWMutex
	constructors map[commontypes.ChainType]ChainConstructor
}

// NewChainFactory returns a factory with the EVM and Solana backends registered.
func NewChainFactory() ChainFactory {
	factory := &chainFactory{constructors: make(map[commontypes.ChainType]ChainConstructor)}
	factory.RegisterConstructor(commontypes.EVM, evm.NewEvmChain)
	factory.RegisterConstructor(commontypes.SOLANA, solana.NewSolanaChain)
	return factory
}

func (f *chainFactory) RegisterConstructor(chainType commontypes.ChainType, constructor ChainConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[chainType] = constructor
}

func (f *chainFactory) CreateChain(ctx context.Context, config *commontypes.ChainConfig, store commontypes.TransactionStore, logger *logrus.Logger) (commontypes.Chain, error) {
	if config == nil {
		return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "chain config is nil")
	}

	f.mu.RLock()
	constructor, ok := f.constructors[config.ChainType]
	f.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(commonerrors.ErrInvalidChainType, "%q for chain %d", config.ChainType, config.ChainID)
	}

	chain, err := constructor(ctx, config, store, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s chain %s", config.ChainType, config.Name)
	}
	return chain, nil
}

func (f *chainFactory) SupportedTypes() []commontypes.ChainType {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]commontypes.ChainType, 0, len(f.constructors))
	for chainType := range f.constructors {
		types = append(types, chainType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
