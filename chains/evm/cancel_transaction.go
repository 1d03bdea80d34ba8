package evm

import (
	"context"
	"math/big"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// cancelFeeFactor is the fee percentage of a cancellation relative to the cancelled transaction.
	cancelFeeFactor = 150
	// transferGas is the gas of a plain transfer.
	transferGas = 21000
)

// CancelTransaction replaces a pending transaction with a zero-value transfer
// to the signer that uses the same nonce and a higher fee. When the cancellation
// lands, the cancelled record becomes Canceled.
//
// Parameters:
// - ctx: the context for managing the request.
// - id: the id of the record to cancel.
//
// Returns:
// - *types.TransactionDetails: the record of the cancellation transaction.
// - error: ErrStatusFinal if the record already settled, or an error if the cancellation cannot be sent.
func (e *evm) CancelTransaction(ctx context.Context, id string) (*types.TransactionDetails, error) {
	record, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load transaction %s", id)
	}
	if record.Status.IsFinal() {
		return nil, errors.Wrapf(commonerrors.ErrStatusFinal, "transaction %s is %s", id, record.Status)
	}
	if record.SendConfirmed {
		return nil, errors.Errorf("transaction %s already left the source chain", id)
	}
	if record.Hash == "" {
		return nil, errors.Errorf("transaction %s has no on-chain hash", id)
	}

	e.markCancelling(id)

	cancelTx, err := e.cancelTransaction(ctx, common.HexToHash(record.Hash))
	if err == nil && cancelTx == nil {
		err = errors.Errorf("transaction %s is no longer pending", record.Hash)
	}
	if err != nil {
		e.clearCancelling(id)
		return nil, err
	}

	cancelRecord := e.newRecord(cancelTx, record.Routing, types.TransactionTypeCancel)
	if err := e.store.Put(ctx, cancelRecord); err != nil {
		e.logger.WithField("txId", id).WithError(err).Error("Failed to record cancellation")
	}

	e.logger.WithFields(logrus.Fields{
		"chain":      e.config.Name,
		"txId":       id,
		"originalTx": record.Hash,
		"cancelTx":   cancelRecord.Hash,
	}).Info("Cancellation sent")

	e.track(&trackedTx{
		id:      cancelRecord.ID,
		hashes:  []common.Hash{cancelTx.Hash()},
		nonce:   cancelTx.Nonce(),
		cancels: id,
	})

	return cancelRecord.Clone(), nil
}

// cancelTransaction cancels a pending transaction by sending a new transaction with the same nonce and higher gas price.
//
// Parameters:
// - ctx: the context for managing the request.
// - hash: the hash of the transaction to be cancelled.
//
// Returns:
// - *ethtypes.Transaction: the cancellation, nil if the transaction is no longer pending.
// - error: an error if the client is not initialized or if the transaction retrieval fails.
func (e *evm) cancelTransaction(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, error) {
	client := e.GetClient()
	signer := e.getSigner()
	if client == nil || signer == nil {
		return nil, errors.New("client or signer not initialized")
	}

	transaction, pending, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction by hash")
	}
	if !pending {
		e.logger.WithFields(logrus.Fields{
			"txHash": hash.Hex(),
			"chain":  e.config.Name,
		}).Warn("transaction is not pending")
		return nil, nil
	}

	return e.signAndSendTransaction(ctx, cancellationFor(transaction, signer.Address()))
}

// cancellationFor builds the zero-value self transfer replacing tx.
func cancellationFor(tx *ethtypes.Transaction, self common.Address) *ethtypes.Transaction {
	gasPrice := percentOf(tx.GasPrice(), cancelFeeFactor)

	if tx.Type() == ethtypes.DynamicFeeTxType {
		return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   tx.ChainId(),
			Nonce:     tx.Nonce(),
			GasTipCap: bumpedTip(tx.GasTipCap(), gasPrice, cancelFeeFactor),
			GasFeeCap: gasPrice,
			Gas:       transferGas,
			To:        &self,
			Value:     big.NewInt(0),
		})
	}

	return ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    tx.Nonce(),
		GasPrice: gasPrice,
		Gas:      transferGas,
		To:       &self,
		Value:    big.NewInt(0),
	})
}

func (e *evm) markCancelling(id string) {
	e.cancelMutex.Lock()
	defer e.cancelMutex.Unlock()
	e.cancelling[id] = struct{}{}
}

func (e *evm) clearCancelling(id string) {
	e.cancelMutex.Lock()
	defer e.cancelMutex.Unlock()
	delete(e.cancelling, id)
}

func (e *evm) isCancelling(id string) bool {
	e.cancelMutex.Lock()
	defer e.cancelMutex.Unlock()
	_, ok := e.cancelling[id]
	return ok
}
