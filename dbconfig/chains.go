package dbconfig

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/dbconfig/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// GetChains returns all chains from the database, optionally filtering by active status.
func (r *DBConfig) GetChains(ctx context.Context, activeOnly bool) ([]models.Chain, error) {
	query := `
      SELECT
          id,
          chain_id,
          name,
          chain_type,
          tx_type,
          wait_n_blocks,
          active,
          created_at,
          updated_at
      FROM chains
  `

	var args []interface{}
	if activeOnly {
		query += " WHERE active = $1"
		args = append(args, true)
	}

	query += " ORDER BY chain_id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query chains")
	}
	defer rows.Close()

	var chains []models.Chain
	for rows.Next() {
		var chain models.Chain
		var chainType sql.NullString
		var txType, waitNBlocks sql.NullInt64

		err := rows.Scan(
			&chain.ID,
			&chain.ChainID,
			&chain.Name,
			&chainType,
			&txType,
			&waitNBlocks,
			&chain.Active,
			&chain.CreatedAt,
			&chain.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan chain")
		}

		chain.Type = chainType.String
		if txType.Valid {
			chain.TxType = uint64(txType.Int64)
		}
		if waitNBlocks.Valid {
			chain.WaitNBlocks = uint64(waitNBlocks.Int64)
		}

		chains = append(chains, chain)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read chains")
	}

	return chains, nil
}

// LoadChainConfigs builds the configuration of every active chain from the
// chains and rpcs tables. Signing keys never live in the database, they are
// looked up in keys by decimal chain id. Chains without an active RPC are skipped.
//
// Parameters:
// - ctx: the context for managing the request.
// - keys: the private keys by chain id.
// - logger: the logger for skipped chains.
//
// Returns:
// - []types.ChainConfig: the chain configurations.
// - error: an error if the database cannot be read.
func (r *DBConfig) LoadChainConfigs(ctx context.Context, keys map[string]string, logger *logrus.Logger) ([]types.ChainConfig, error) {
	chains, err := r.GetChains(ctx, true)
	if err != nil {
		return nil, err
	}

	configs := make([]types.ChainConfig, 0, len(chains))
	for _, chain := range chains {
		rpcs, err := r.GetRPCsByChainID(ctx, chain.ChainID, true)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load rpcs of chain %d", chain.ChainID)
		}

		config, err := ToChainConfig(chain, rpcs, keys[strconv.FormatUint(chain.ChainID, 10)])
		if err != nil {
			logger.WithField("chainId", chain.ChainID).WithError(err).Warn("Skipping chain")
			continue
		}
		configs = append(configs, config)
	}

	return configs, nil
}

// ToChainConfig converts a chain row and its RPCs into a chain configuration.
// The first active RPC is used, rpcs are expected in preference order.
func ToChainConfig(chain models.Chain, rpcs []models.RPC, privateKey string) (types.ChainConfig, error) {
	if chain.ChainID == 0 {
		return types.ChainConfig{}, ErrInvalidChainID
	}

	chainType := types.ParseChainType(chain.Type)
	if chainType == types.UNKNOWN {
		return types.ChainConfig{}, errors.Wrapf(ErrUnknownType, "chain %d has type %q", chain.ChainID, chain.Type)
	}

	for _, rpc := range rpcs {
		if !rpc.Active || rpc.URL == "" {
			continue
		}
		return types.ChainConfig{
			Name:        chain.Name,
			ChainType:   chainType,
			ChainID:     chain.ChainID,
			RpcUrl:      rpc.URL,
			TxType:      chain.TxType,
			WaitNBlocks: chain.WaitNBlocks,
			PrivateKey:  privateKey,
		}, nil
	}

	return types.ChainConfig{}, errors.Wrapf(ErrNoActiveRPC, "chain %d", chain.ChainID)
}
