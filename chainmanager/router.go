package chainmanager

import (
	"context"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// Router implements types.Submitter by handing every request to the backend
// registered for its chain id.
type Router struct {
	registry types.ChainRegistry
}

var _ types.Submitter = (*Router)(nil)

// NewRouter creates a Router over registry.
func NewRouter(registry types.ChainRegistry) *Router {
	return &Router{registry: registry}
}

func (r *Router) chain(chainID uint64) (types.Chain, error) {
	chain := r.registry.Get(chainID)
	if chain == nil {
		return nil, errors.Wrapf(commonerrors.ErrChainNotFound, "chain %d", chainID)
	}
	return chain, nil
}

// Submit signs and broadcasts the request on its chain and returns the record id and hash.
func (r *Router) Submit(ctx context.Context, req *types.SubmitRequest) (*types.SubmitResult, error) {
	tx, err := r.SubmitSync(ctx, req)
	if err != nil {
		return nil, err
	}
	return &types.SubmitResult{ID: tx.ID, Hash: tx.Hash}, nil
}

// SubmitSync signs and broadcasts the request on its chain and returns the full record.
func (r *Router) SubmitSync(ctx context.Context, req *types.SubmitRequest) (*types.TransactionDetails, error) {
	if req == nil {
		return nil, errors.New("submit request is nil")
	}
	chain, err := r.chain(req.Request.ChainID)
	if err != nil {
		return nil, err
	}
	return chain.SendTransaction(ctx, req)
}

// SubmitBatch submits the batch on its chain.
func (r *Router) SubmitBatch(ctx context.Context, req *types.SubmitBatchRequest) (*types.SubmitResult, error) {
	if req == nil {
		return nil, errors.New("batch request is nil")
	}
	chain, err := r.chain(req.ChainID)
	if err != nil {
		return nil, err
	}

	tx, err := chain.SendBatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &types.SubmitResult{ID: tx.ID, Hash: tx.Hash}, nil
}

// SignTypedData signs data with the signer of chainID.
func (r *Router) SignTypedData(ctx context.Context, chainID uint64, data apitypes.TypedData) (string, error) {
	chain, err := r.chain(chainID)
	if err != nil {
		return "", err
	}
	return chain.SignTypedData(ctx, data)
}

// Cancel cancels the pending record id on chainID.
func (r *Router) Cancel(ctx context.Context, chainID uint64, id string) (*types.TransactionDetails, error) {
	chain, err := r.chain(chainID)
	if err != nil {
		return nil, err
	}
	return chain.CancelTransaction(ctx, id)
}
