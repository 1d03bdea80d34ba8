package engine

import (
	"context"

	"github.com/ClipFinance/swap-lib/chainmanager"
	"github.com/ClipFinance/swap-lib/chains"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/config"
	"github.com/ClipFinance/swap-lib/dbconfig"
	"github.com/ClipFinance/swap-lib/settlement"
	"github.com/ClipFinance/swap-lib/txstore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// noSettlement is used when no settlement service is configured. Bridge
// transfers then resolve to Unknown without polling.
type noSettlement struct{}

func (noSettlement) FetchStatus(context.Context, string, uint64) (types.SwapStatus, error) {
	return types.SwapStatusNotFound, nil
}

func (noSettlement) SupportsChain(uint64) bool {
	return false
}

// New builds an Engine from configuration: the logger, the transaction store,
// a backend per chain, the settlement client and the execution pipeline.
//
// Parameters:
// - ctx: the context for dialing stores and chains.
// - cfg: the validated configuration.
//
// Returns:
// - *Engine: the engine, Close releases everything it opened.
// - error: an error if any component cannot be created.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	resolved := *cfg
	resolved.Chains = append([]types.ChainConfig(nil), cfg.Chains...)
	if cfg.ChainsDB.DSN != "" {
		if err := loadDatabaseChains(ctx, &resolved, logger); err != nil {
			return nil, err
		}
	}

	store, err := newStore(ctx, resolved.Store, logger)
	if err != nil {
		return nil, err
	}

	registry := chainmanager.NewChainRegistry(chains.NewChainFactory(), store, logger)
	for i := range resolved.Chains {
		if err := registry.Add(ctx, &resolved.Chains[i]); err != nil {
			return nil, multierr.Combine(err, registry.Close(), store.Close())
		}
	}
	router := chainmanager.NewRouter(registry)

	deps := Dependencies{
		Logger:     logger,
		Store:      store,
		Registry:   registry,
		Submitter:  router,
		Canceller:  router,
		Settlement: noSettlement{},
		Bridge:     resolved.Bridge,
	}

	if resolved.Settlement.BaseURL != "" {
		client, err := settlement.NewClient(resolved.Settlement, logger)
		if err != nil {
			return nil, multierr.Combine(err, registry.Close(), store.Close())
		}
		deps.Settlement = client
		deps.Publisher = client
	} else {
		logger.Warn("No settlement service configured, bridge transfers resolve to unknown")
	}

	logger.WithFields(logrus.Fields{
		"chains": len(resolved.Chains),
		"store":  resolved.Store.Driver,
	}).Info("Swap engine initialized")

	return NewWithDependencies(deps), nil
}

func newStore(ctx context.Context, cfg config.StoreConfig, logger *logrus.Logger) (types.TransactionStore, error) {
	switch cfg.Driver {
	case config.StoreMemory, "":
		return txstore.NewMemoryStore(), nil
	case config.StorePostgres:
		store, err := txstore.NewPostgresStore(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open postgres store")
		}
		return store, nil
	case config.StoreRedis:
		store, err := txstore.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open redis store")
		}
		return store, nil
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func loadDatabaseChains(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	db, err := dbconfig.NewDBConfig(ctx, cfg.ChainsDB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	configs, err := db.LoadChainConfigs(ctx, cfg.ChainsDB.PrivateKeys, logger)
	if err != nil {
		return errors.Wrap(err, "failed to load chains from database")
	}
	cfg.MergeChains(configs)
	return nil
}
