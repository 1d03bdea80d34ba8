// Package txwaiter blocks a flow until a submitted operation settles in the local store.
package txwaiter

import (
	"context"

	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of waiting for one operation.
type Result struct {
	Success     bool
	Transaction *types.TransactionDetails
}

// Waiter observes the local transaction-state store. It never talks to a
// network and never writes to the store.
type Waiter struct {
	store  types.TransactionReader
	logger *logrus.Logger
}

// New creates a Waiter reading from store.
func New(store types.TransactionReader, logger *logrus.Logger) *Waiter {
	return &Waiter{store: store, logger: logger}
}

// WaitFor blocks until the record with the given id settles.
// Success settles successfully; Failed, Canceled, Expired and InsufficientFunds
// settle as failures. Any other status keeps waiting. How long the wait may last
// is bounded only by ctx.
//
// Parameters:
// - ctx: the context bounding the wait.
// - id: the record id.
//
// Returns:
// - *Result: the settled outcome and the record that settled it.
// - error: an error if the record cannot be read or ctx ends first.
func (w *Waiter) WaitFor(ctx context.Context, id string) (*Result, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe before reading so a change between the two is not lost.
	updates, err := w.store.Subscribe(subCtx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe to transaction %s", id)
	}

	tx, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get transaction %s", id)
	}

	for {
		if result, settled := settle(tx); settled {
			w.logger.WithFields(logrus.Fields{
				"txId":   id,
				"status": tx.Status,
			}).Debug("Transaction settled")
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "stopped waiting for transaction %s", id)

		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil, errors.Wrapf(ctx.Err(), "stopped waiting for transaction %s", id)
				}
				return nil, errors.Errorf("subscription to transaction %s closed", id)
			}
			tx = update
		}
	}
}

// settle reports whether tx reached an outcome. A bridge record whose source
// transaction landed counts as a success, its settlement is resolved separately.
func settle(tx *types.TransactionDetails) (*Result, bool) {
	switch tx.Status {
	case types.StatusPending:
		if tx.SendConfirmed {
			return &Result{Success: true, Transaction: tx}, true
		}
		return nil, false
	case types.StatusSuccess:
		return &Result{Success: true, Transaction: tx}, true
	case types.StatusFailed, types.StatusCanceled, types.StatusExpired, types.StatusInsufficientFunds:
		return &Result{Success: false, Transaction: tx}, true
	default:
		return nil, false
	}
}
