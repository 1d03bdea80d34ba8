package evm

import (
	"context"
	"math/big"
	"time"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/txstore"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// gasIncreaseFactor defines minimum gas increase percentage for replacement transaction to be accepted.
	gasIncreaseFactor = 110 // 110%
	// pollInterval is the receipt polling interval of HTTP connections.
	pollInterval = time.Second
)

// trackedTx is a transaction whose receipt is being awaited.
type trackedTx struct {
	id      string        // Record id.
	hashes  []common.Hash // Every hash broadcast for the nonce, the latest last.
	nonce   uint64        // Nonce shared by all hashes.
	cancels string        // Id of the record this transaction cancels, if any.
}

// track waits for the receipt of t in the background and writes the final
// status into the store.
func (e *evm) track(t *trackedTx) {
	e.trackMutex.Lock()
	defer e.trackMutex.Unlock()
	if e.trackCtx.Err() != nil {
		return
	}

	e.trackers.Add(1)
	go func() {
		defer e.trackers.Done()

		status, err := e.waitTransactionConfirmation(e.trackCtx, t)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"chain": e.config.Name,
				"txId":  t.id,
			}).WithError(err).Debug("Stopped tracking transaction")
			return
		}
		e.settle(e.trackCtx, t, status)
	}()
}

// stopTrackers cancels the receipt trackers and waits for them. No tracker
// starts once it has been called.
func (e *evm) stopTrackers() {
	e.trackMutex.Lock()
	e.trackCancel()
	e.trackMutex.Unlock()

	e.trackers.Wait()
}

// waitTransactionConfirmation waits until one of the hashes of t has a receipt
// with WaitNBlocks confirmations, or the nonce is consumed by another transaction.
//
// Parameters:
// - ctx: the context for managing the wait.
// - t: the tracked transaction.
//
// Returns:
// - types.TransactionStatus: StatusSuccess or StatusFailed.
// - error: the context error if ctx ends first.
func (e *evm) waitTransactionConfirmation(ctx context.Context, t *trackedTx) (types.TransactionStatus, error) {
	client := e.GetClient()
	if client == nil {
		return "", errors.New("client not initialized")
	}

	startBlock, err := client.BlockNumber(ctx)
	if err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to get current block number")
	}
	startTime := time.Now()

	// Use subscription based on RPC URL type
	if types.GetSubscriptionMode(e.config.RpcUrl) == types.WebSocketMode {
		return e.waitTransactionConfirmationWS(ctx, t, startBlock, startTime)
	}
	return e.waitTransactionConfirmationHTTP(ctx, t, startBlock, startTime)
}

// waitTransactionConfirmationWS checks the receipt on every new head. It falls
// back to HTTP polling when the subscription cannot be kept.
func (e *evm) waitTransactionConfirmationWS(ctx context.Context, t *trackedTx, startBlock uint64, startTime time.Time) (types.TransactionStatus, error) {
	client := e.GetClient()
	if client == nil {
		return e.waitTransactionConfirmationHTTP(ctx, t, startBlock, startTime)
	}

	headers := make(chan *ethtypes.Header, 16)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to subscribe to new headers, polling instead")
		return e.waitTransactionConfirmationHTTP(ctx, t, startBlock, startTime)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case err := <-sub.Err():
			e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Header subscription lost, polling instead")
			return e.waitTransactionConfirmationHTTP(ctx, t, startBlock, startTime)

		case header := <-headers:
			if header == nil {
				continue
			}
			if status, done := e.checkConfirmation(ctx, t, header.Number.Uint64(), &startBlock, &startTime); done {
				return status, nil
			}
		}
	}
}

// waitTransactionConfirmationHTTP checks the receipt every pollInterval.
func (e *evm) waitTransactionConfirmationHTTP(ctx context.Context, t *trackedTx, startBlock uint64, startTime time.Time) (types.TransactionStatus, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-ticker.C:
			client := e.GetClient()
			if client == nil {
				continue
			}

			currentBlock, err := client.BlockNumber(ctx)
			if err != nil {
				e.logger.WithField("chain", e.config.Name).WithError(err).Debug("Failed to get current block number")
				continue
			}
			if status, done := e.checkConfirmation(ctx, t, currentBlock, &startBlock, &startTime); done {
				return status, nil
			}
		}
	}
}

// checkConfirmation runs one receipt check at currentBlock. A transaction that
// stays unmined for waitTimeout and more than two blocks is sped up.
func (e *evm) checkConfirmation(ctx context.Context, t *trackedTx, currentBlock uint64, startBlock *uint64, startTime *time.Time) (types.TransactionStatus, bool) {
	client := e.GetClient()
	if client == nil {
		return "", false
	}

	receipt := e.findReceipt(ctx, t)
	if receipt == nil {
		if !e.nonceConsumed(ctx, t) {
			if time.Since(*startTime) > waitTimeout && currentBlock > *startBlock+2 {
				e.speedUp(ctx, t)
				*startTime = time.Now()
				*startBlock = currentBlock
			}
			return "", false
		}

		// The transaction may have landed between the two calls.
		if receipt = e.findReceipt(ctx, t); receipt == nil {
			e.logger.WithFields(logrus.Fields{
				"chain": e.config.Name,
				"txId":  t.id,
				"nonce": t.nonce,
			}).Warn("Nonce consumed by another transaction")
			return types.StatusFailed, true
		}
	}

	// Wait for required block confirmations
	if currentBlock < receipt.BlockNumber.Uint64()+e.config.WaitNBlocks {
		return "", false
	}

	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		return types.StatusSuccess, true
	}
	return types.StatusFailed, true
}

// findReceipt returns the receipt of whichever hash of t was mined.
func (e *evm) findReceipt(ctx context.Context, t *trackedTx) *ethtypes.Receipt {
	client := e.GetClient()
	if client == nil {
		return nil
	}

	for i := len(t.hashes) - 1; i >= 0; i-- {
		receipt, err := client.TransactionReceipt(ctx, t.hashes[i])
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				e.logger.WithField("txHash", t.hashes[i].Hex()).WithError(err).Debug("Failed to get transaction receipt")
			}
			continue
		}
		return receipt
	}
	return nil
}

func (e *evm) nonceConsumed(ctx context.Context, t *trackedTx) bool {
	client := e.GetClient()
	signer := e.getSigner()
	if client == nil || signer == nil {
		return false
	}

	nonce, err := client.NonceAt(ctx, signer.Address(), nil)
	if err != nil {
		return false
	}
	return nonce > t.nonce
}

// speedUp rebroadcasts the latest hash of t with a higher fee and records the new hash.
func (e *evm) speedUp(ctx context.Context, t *trackedTx) {
	if e.isCancelling(t.id) {
		return
	}

	latest := t.hashes[len(t.hashes)-1]
	newTx, err := e.replaceTransaction(ctx, latest)
	if err != nil {
		e.logger.WithField("txHash", latest.Hex()).WithError(err).Warn("Failed to speed up transaction")
		return
	}
	if newTx == nil {
		return
	}

	t.hashes = append(t.hashes, newTx.Hash())

	record, err := e.store.Get(ctx, t.id)
	if err != nil {
		e.logger.WithField("txId", t.id).WithError(err).Error("Failed to load sped up transaction")
		return
	}
	record.Hash = newTx.Hash().Hex()
	if err := e.store.Put(ctx, record); err != nil {
		e.logger.WithField("txId", t.id).WithError(err).Warn("Failed to record sped up transaction")
		return
	}

	e.logger.WithFields(logrus.Fields{
		"chain":      e.config.Name,
		"txId":       t.id,
		"originalTx": latest.Hex(),
		"newTx":      newTx.Hash().Hex(),
	}).Info("Transaction sped up")
}

// settle writes the final status of t. For a cancellation, the cancelled record
// becomes Canceled once the cancellation lands.
func (e *evm) settle(ctx context.Context, t *trackedTx, status types.TransactionStatus) {
	if t.cancels != "" {
		e.updateStatus(ctx, t.id, status)
		if status == types.StatusSuccess {
			e.updateStatus(ctx, t.cancels, types.StatusCanceled)
		}
		e.clearCancelling(t.cancels)
		return
	}

	// A cancellation in flight consumed the nonce, its tracker settles the record.
	if status == types.StatusFailed && e.isCancelling(t.id) {
		return
	}
	e.updateStatus(ctx, t.id, status)
}

func (e *evm) updateStatus(ctx context.Context, id string, status types.TransactionStatus) {
	logger := e.logger.WithFields(logrus.Fields{
		"chain":  e.config.Name,
		"txId":   id,
		"status": status,
	})

	err := txstore.Settle(ctx, e.store, id, status)
	switch {
	case err == nil:
		logger.Info("Transaction settled")
	case errors.Is(err, commonerrors.ErrStatusFinal):
		logger.Debug("Transaction already settled")
	default:
		logger.WithError(err).Error("Failed to update transaction status")
	}
}

// replaceTransaction replaces a pending transaction with a new one with a higher gas price.
//
// Parameters:
// - ctx: the context for managing the request.
// - hash: the hash of the transaction to be replaced.
//
// Returns:
// - *ethtypes.Transaction: the replacement, nil if the transaction is no longer pending.
// - error: an error if the client is not initialized or if the transaction retrieval fails.
func (e *evm) replaceTransaction(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, error) {
	client := e.GetClient()
	if client == nil {
		return nil, errors.New("client not initialized")
	}

	oldTx, isPending, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction by hash")
	}
	if !isPending {
		e.logger.WithFields(logrus.Fields{
			"txHash": hash.Hex(),
			"chain":  e.config.Name,
		}).Warn("transaction is not pending")
		return nil, nil
	}

	// Get optimal gas price for replacement
	newGasPrice, err := e.getNewGasPrice(ctx, oldTx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to calculate new gas price")
	}

	var newTx *ethtypes.Transaction
	if oldTx.Type() == ethtypes.DynamicFeeTxType {
		newTx = ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   oldTx.ChainId(),
			Nonce:     oldTx.Nonce(),
			GasTipCap: bumpedTip(oldTx.GasTipCap(), newGasPrice, gasIncreaseFactor),
			GasFeeCap: newGasPrice,
			Gas:       oldTx.Gas(),
			To:        oldTx.To(),
			Value:     oldTx.Value(),
			Data:      oldTx.Data(),
		})
	} else {
		newTx = ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    oldTx.Nonce(),
			GasPrice: newGasPrice,
			Gas:      oldTx.Gas(),
			To:       oldTx.To(),
			Value:    oldTx.Value(),
			Data:     oldTx.Data(),
		})
	}

	return e.signAndSendTransaction(ctx, newTx)
}

// getNewGasPrice calculates optimal gas price for replacement transaction:
// the current price when it is higher than 110% of the old one, otherwise 110% of the old one.
func (e *evm) getNewGasPrice(ctx context.Context, oldTx *ethtypes.Transaction) (*big.Int, error) {
	var currentGasPrice *big.Int
	if oldTx.Type() == ethtypes.DynamicFeeTxType {
		gasPriceData, err := e.getEIP1559GasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get EIP-1559 gas price")
		}
		currentGasPrice = gasPriceData.MaxFeePerGas
	} else {
		client := e.GetClient()
		if client == nil {
			return nil, errors.New("client not initialized")
		}
		price, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get current gas price")
		}
		currentGasPrice = price
	}

	return replacementPrice(oldTx.GasPrice(), currentGasPrice), nil
}

func replacementPrice(oldPrice, currentPrice *big.Int) *big.Int {
	minGasPrice := percentOf(oldPrice, gasIncreaseFactor)
	if currentPrice != nil && currentPrice.Cmp(minGasPrice) > 0 {
		return currentPrice
	}
	return minGasPrice
}

// bumpedTip raises tip by percent without exceeding feeCap.
func bumpedTip(tip, feeCap *big.Int, percent int64) *big.Int {
	bumped := percentOf(tip, percent)
	if bumped.Cmp(feeCap) > 0 {
		return new(big.Int).Set(feeCap)
	}
	return bumped
}
