package dbconfig

import (
	"context"
	"database/sql"

	"github.com/ClipFinance/swap-lib/dbconfig/models"
	"github.com/pkg/errors"
)

const rpcColumns = `id, chain_id, url, provider, COALESCE(priority, 0), active, created_at, updated_at`

// GetRPCsByChainID returns the endpoints of a chain in preference order:
// lowest priority first, newest first within a priority.
//
// Parameters:
// - ctx: the context for managing the request.
// - chainID: the chain the endpoints belong to.
// - activeOnly: skip endpoints switched off by an operator.
//
// Returns:
// - []models.RPC: the endpoints.
// - error: ErrInvalidChainID for chain id 0, or an error if the query fails.
func (r *DBConfig) GetRPCsByChainID(ctx context.Context, chainID uint64, activeOnly bool) ([]models.RPC, error) {
	if chainID == 0 {
		return nil, ErrInvalidChainID
	}

	query := "SELECT " + rpcColumns + " FROM rpcs WHERE chain_id = $1"
	if activeOnly {
		query += " AND active"
	}
	query += " ORDER BY priority ASC NULLS LAST, created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, chainID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query rpcs of chain %d", chainID)
	}
	defer rows.Close()

	var rpcs []models.RPC
	for rows.Next() {
		rpc, err := scanRPC(rows)
		if err != nil {
			return nil, err
		}
		rpcs = append(rpcs, rpc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read rpcs")
	}
	return rpcs, nil
}

func scanRPC(rows *sql.Rows) (models.RPC, error) {
	var rpc models.RPC
	var provider sql.NullString
	if err := rows.Scan(&rpc.ID, &rpc.ChainID, &rpc.URL, &provider, &rpc.Priority, &rpc.Active, &rpc.CreatedAt, &rpc.UpdatedAt); err != nil {
		return models.RPC{}, errors.Wrap(err, "failed to scan rpc")
	}
	rpc.Provider = provider.String
	return rpc, nil
}
