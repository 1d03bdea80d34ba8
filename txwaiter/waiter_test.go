package txwaiter

import (
	"context"
	"io"
	"testing"
	"time"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/txstore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newStore(t *testing.T, status types.TransactionStatus) *txstore.MemoryStore {
	t.Helper()

	store := txstore.NewMemoryStore()
	err := store.Put(context.Background(), &types.TransactionDetails{
		ID:      "tx-1",
		ChainID: 1,
		Hash:    "0xabc",
		Status:  status,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	return store
}

func waitAsync(w *Waiter, ctx context.Context, id string) (<-chan *Result, <-chan error) {
	results := make(chan *Result, 1)
	errs := make(chan error, 1)
	go func() {
		result, err := w.WaitFor(ctx, id)
		results <- result
		errs <- err
	}()
	return results, errs
}

func TestWaitForSuccess(t *testing.T) {
	store := newStore(t, types.StatusPending)
	waiter := New(store, quietLogger())

	results, errs := waitAsync(waiter, context.Background(), "tx-1")

	time.Sleep(20 * time.Millisecond)
	if err := store.UpdateStatus(context.Background(), "tx-1", types.StatusSuccess); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case result := <-results:
		if err := <-errs; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Success || result.Transaction.Status != types.StatusSuccess {
			t.Fatalf("unexpected result %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not return")
	}
}

func TestWaitForFailureStatuses(t *testing.T) {
	for _, status := range []types.TransactionStatus{
		types.StatusFailed,
		types.StatusCanceled,
		types.StatusExpired,
		types.StatusInsufficientFunds,
	} {
		t.Run(status.String(), func(t *testing.T) {
			store := newStore(t, types.StatusPending)
			waiter := New(store, quietLogger())

			results, errs := waitAsync(waiter, context.Background(), "tx-1")
			if err := store.UpdateStatus(context.Background(), "tx-1", status); err != nil {
				t.Fatalf("update: %v", err)
			}

			select {
			case result := <-results:
				if err := <-errs; err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if result.Success {
					t.Fatalf("status %s must not succeed", status)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("waiter did not return")
			}
		})
	}
}

func TestWaitForAlreadySettled(t *testing.T) {
	store := newStore(t, types.StatusSuccess)
	waiter := New(store, quietLogger())

	result, err := waiter.WaitFor(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
}

func TestWaitForUnknownKeepsWaiting(t *testing.T) {
	store := newStore(t, types.StatusUnknown)
	waiter := New(store, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := waiter.WaitFor(ctx, "tx-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWaitForMissingTransaction(t *testing.T) {
	waiter := New(txstore.NewMemoryStore(), quietLogger())

	_, err := waiter.WaitFor(context.Background(), "missing")
	if !errors.Is(err, commonerrors.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestWaitForBridgeSendConfirmed(t *testing.T) {
	store := txstore.NewMemoryStore()
	ctx := context.Background()
	bridge := &types.TransactionDetails{ID: "bridge", ChainID: 1, Hash: "0xabc", Status: types.StatusPending, Type: types.TransactionTypeBridge}
	if err := store.Put(ctx, bridge); err != nil {
		t.Fatalf("put: %v", err)
	}
	waiter := New(store, quietLogger())

	results, errs := waitAsync(waiter, ctx, "bridge")

	time.Sleep(20 * time.Millisecond)
	if err := txstore.Settle(ctx, store, "bridge", types.StatusSuccess); err != nil {
		t.Fatalf("settle: %v", err)
	}

	select {
	case result := <-results:
		if err := <-errs; err != nil {
			t.Fatalf("WaitFor: %v", err)
		}
		if !result.Success || result.Transaction.Status != types.StatusPending || !result.Transaction.SendConfirmed {
			t.Fatalf("result = %+v, want the confirmed send of a pending bridge", result.Transaction)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return")
	}
}
