package evm

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// fallbackBatchGasLimit is used for batched calls whose estimation reverts
// because they depend on an earlier call of the same batch.
const fallbackBatchGasLimit = 1_000_000

// SendTransaction signs and broadcasts a transaction request, records it as
// Pending and starts tracking its receipt.
//
// Parameters:
// - ctx: the context for managing the request.
// - req: the transaction to submit.
//
// Returns:
// - *types.TransactionDetails: the persisted record.
// - error: an error if the request is invalid, or if signing, sending or recording fails.
func (e *evm) SendTransaction(ctx context.Context, req *types.SubmitRequest) (*types.TransactionDetails, error) {
	if err := e.validateRequest(&req.Request); err != nil {
		return nil, err
	}

	e.nonceMutex.Lock()
	defer e.nonceMutex.Unlock()

	nonce, err := e.pendingNonce(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := e.prepareTransaction(ctx, nonce, &req.Request, false)
	if err != nil {
		return nil, err
	}

	signedTx, err := e.signAndSendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}

	record := e.newRecord(signedTx, req.Routing, req.Type)
	if err := e.store.Put(ctx, record); err != nil {
		return nil, errors.Wrapf(err, "failed to record transaction %s", record.Hash)
	}

	e.logger.WithFields(logrus.Fields{
		"chain":  e.config.Name,
		"txId":   record.ID,
		"txHash": record.Hash,
		"nonce":  record.Nonce,
		"type":   record.Type,
	}).Info("Transaction sent")

	e.track(&trackedTx{id: record.ID, hashes: []common.Hash{signedTx.Hash()}, nonce: nonce})

	return record.Clone(), nil
}

// SendBatch sends the calls of a batch with consecutive nonces. The record of
// the final call represents the batch: it is the one persisted and tracked.
// If a call fails, the calls already broadcast stay on chain.
//
// Parameters:
// - ctx: the context for managing the request.
// - req: the calls to submit.
//
// Returns:
// - *types.TransactionDetails: the record of the final call.
// - error: an error if the batch is empty or any call cannot be sent.
func (e *evm) SendBatch(ctx context.Context, req *types.SubmitBatchRequest) (*types.TransactionDetails, error) {
	if len(req.Requests) == 0 {
		return nil, errors.New("batch has no calls")
	}
	for i := range req.Requests {
		if err := e.validateRequest(&req.Requests[i]); err != nil {
			return nil, errors.Wrapf(err, "invalid batch call %d", i)
		}
	}

	e.nonceMutex.Lock()
	defer e.nonceMutex.Unlock()

	nonce, err := e.pendingNonce(ctx)
	if err != nil {
		return nil, err
	}

	var last *ethtypes.Transaction
	for i := range req.Requests {
		tx, err := e.prepareTransaction(ctx, nonce+uint64(i), &req.Requests[i], i > 0)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to prepare batch call %d", i)
		}

		last, err = e.signAndSendTransaction(ctx, tx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to send batch call %d", i)
		}
	}

	record := e.newRecord(last, req.Routing, req.Type)
	if err := e.store.Put(ctx, record); err != nil {
		return nil, errors.Wrapf(err, "failed to record transaction %s", record.Hash)
	}

	e.logger.WithFields(logrus.Fields{
		"chain":  e.config.Name,
		"txId":   record.ID,
		"txHash": record.Hash,
		"calls":  len(req.Requests),
	}).Info("Batch sent")

	e.track(&trackedTx{id: record.ID, hashes: []common.Hash{last.Hash()}, nonce: last.Nonce()})

	return record.Clone(), nil
}

func (e *evm) validateRequest(req *types.TxRequest) error {
	if req.To == "" || !common.IsHexAddress(req.To) {
		return errors.Errorf("invalid recipient %q", req.To)
	}
	if req.ChainID != 0 && req.ChainID != e.config.ChainID {
		return errors.Errorf("request for chain %d sent to chain %d", req.ChainID, e.config.ChainID)
	}

	signer := e.getSigner()
	if signer == nil {
		return errors.New("signer not initialized")
	}
	if req.From != "" && !strings.EqualFold(req.From, signer.Address().Hex()) {
		return errors.Errorf("request from %s cannot be signed by %s", req.From, signer.Address().Hex())
	}
	return nil
}

func (e *evm) pendingNonce(ctx context.Context) (uint64, error) {
	client := e.GetClient()
	if client == nil {
		return 0, errors.New("client not initialized")
	}

	nonce, err := client.PendingNonceAt(ctx, e.getSigner().Address())
	if err != nil {
		return 0, errors.Wrap(err, "failed to get nonce")
	}
	return nonce, nil
}

// prepareTransaction builds an unsigned transaction for req. Gas and fee fields
// present in the request are used as given; missing ones are estimated.
//
// Parameters:
// - ctx: the context for managing the request.
// - nonce: the nonce for the transaction.
// - req: the transaction request.
// - allowFallbackGas: use fallbackBatchGasLimit when the estimation fails.
//
// Returns:
// - *ethtypes.Transaction: the prepared transaction.
// - error: an error if the gas estimation or gas price retrieval fails.
func (e *evm) prepareTransaction(ctx context.Context, nonce uint64, req *types.TxRequest, allowFallbackGas bool) (*ethtypes.Transaction, error) {
	to := common.HexToAddress(req.To)
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		estimatedGas, err := e.EstimateGas(ctx, to, value, req.Data)
		switch {
		case err == nil:
			gasLimit = withGasHeadroom(estimatedGas)
		case allowFallbackGas:
			e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to estimate gas for batched call, using fallback limit")
			gasLimit = fallbackBatchGasLimit
		default:
			e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to estimate gas")
			return nil, errors.Wrap(err, "failed to estimate gas")
		}
	}

	if e.config.TxType == TxTypeEIP1559 || req.MaxFeePerGas != nil {
		feeCap, tipCap := req.MaxFeePerGas, req.MaxPriorityFeePerGas
		if feeCap == nil || tipCap == nil {
			gasPriceData, err := e.getEIP1559GasPrice(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "failed to get EIP-1559 gas price")
			}
			if feeCap == nil {
				feeCap = gasPriceData.MaxFeePerGas
			}
			if tipCap == nil {
				tipCap = gasPriceData.MaxPriorityFeePerGas
			}
		}

		return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   e.chainID(),
			Nonce:     nonce,
			GasFeeCap: feeCap,
			GasTipCap: tipCap,
			Gas:       gasLimit,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		}), nil
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		var err error
		if gasPrice, err = e.getLegacyGasPrice(ctx); err != nil {
			return nil, err
		}
	}

	return ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	}), nil
}

// signAndSendTransaction signs and sends the prepared transaction.
//
// Parameters:
// - ctx: the context for managing the request.
// - tx: the prepared transaction to be signed and sent.
//
// Returns:
// - *ethtypes.Transaction: the signed and sent transaction.
// - error: an error if the client or signer is not initialized, or if the signing or sending fails.
func (e *evm) signAndSendTransaction(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	client := e.GetClient()
	signer := e.getSigner()
	if client == nil || signer == nil {
		return nil, errors.New("client or signer not initialized")
	}

	signedTx, err := signer.SignTx(tx, e.chainID())
	if err != nil {
		e.logger.WithError(err).Error("Failed to sign transaction")
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	if err = client.SendTransaction(ctx, signedTx); err != nil {
		e.logger.WithError(err).Error("Failed to send transaction")
		return nil, errors.Wrap(err, "failed to send transaction")
	}

	return signedTx, nil
}

func (e *evm) newRecord(tx *ethtypes.Transaction, routing types.Routing, txType types.TransactionType) *types.TransactionDetails {
	now := time.Now().UTC()
	return &types.TransactionDetails{
		ID:          uuid.NewString(),
		ChainID:     e.config.ChainID,
		From:        e.getSigner().Address().Hex(),
		Hash:        tx.Hash().Hex(),
		Nonce:       tx.Nonce(),
		Status:      types.StatusPending,
		Routing:     routing,
		Type:        txType,
		AddedTime:   now,
		UpdatedTime: now,
	}
}
