package txstore

import (
	"context"

	"github.com/ClipFinance/swap-lib/common/types"
)

// Settle writes the on-chain outcome of a submitted transaction to its record.
// A successful bridge source transaction only sets SendConfirmed, the record
// stays Pending until the settlement of the transfer is known.
//
// Parameters:
// - ctx: the context for managing the request.
// - store: the store holding the record.
// - id: the record id.
// - status: the on-chain outcome.
//
// Returns:
// - error: ErrStatusFinal if the record already settled, or the store error.
func Settle(ctx context.Context, store types.TransactionStore, id string, status types.TransactionStatus) error {
	if status == types.StatusSuccess {
		tx, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if tx.Type == types.TransactionTypeBridge && tx.Status == types.StatusPending {
			if tx.SendConfirmed {
				return nil
			}
			tx.SendConfirmed = true
			return store.Put(ctx, tx)
		}
	}
	return store.UpdateStatus(ctx, id, status)
}
