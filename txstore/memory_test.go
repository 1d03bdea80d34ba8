package txstore

import (
	"context"
	"testing"
	"time"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/pkg/errors"
)

func pendingRecord(id string) *types.TransactionDetails {
	return &types.TransactionDetails{
		ID:      id,
		ChainID: 1,
		Hash:    "0x01",
		Status:  types.StatusPending,
		Routing: types.RoutingClassic,
		Type:    types.TransactionTypeSwap,
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, commonerrors.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}

	if err := store.Put(ctx, pendingRecord("a")); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.StatusPending || got.AddedTime.IsZero() {
		t.Fatalf("unexpected record %+v", got)
	}

	got.Status = types.StatusFailed
	again, _ := store.Get(ctx, "a")
	if again.Status != types.StatusPending {
		t.Fatal("Get must return a copy")
	}
}

func TestMemoryStoreFinalStatusNeverReverts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, pendingRecord("a")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.UpdateStatus(ctx, "a", types.StatusCanceled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := store.UpdateStatus(ctx, "a", types.StatusSuccess); !errors.Is(err, commonerrors.ErrStatusFinal) {
		t.Fatalf("expected ErrStatusFinal, got %v", err)
	}
	if err := store.Put(ctx, pendingRecord("a")); !errors.Is(err, commonerrors.ErrStatusFinal) {
		t.Fatalf("expected ErrStatusFinal on put, got %v", err)
	}
	if err := store.UpdateStatus(ctx, "a", types.StatusCanceled); err != nil {
		t.Fatalf("repeating the final status must be a no-op, got %v", err)
	}

	got, _ := store.Get(ctx, "a")
	if got.Status != types.StatusCanceled {
		t.Fatalf("status = %s, want %s", got.Status, types.StatusCanceled)
	}

	if err := store.UpdateStatus(ctx, "missing", types.StatusFailed); !errors.Is(err, commonerrors.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestMemoryStoreSubscribeKeepsLatest(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Put(ctx, pendingRecord("a")); err != nil {
		t.Fatalf("put: %v", err)
	}

	updates, err := store.Subscribe(ctx, "a")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := store.UpdateStatus(ctx, "a", types.StatusInsufficientFunds); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.UpdateStatus(ctx, "a", types.StatusFailed); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Put(ctx, pendingRecord("b")); err != nil {
		t.Fatalf("put: %v", err)
	}

	select {
	case tx := <-updates:
		if tx.ID != "a" || tx.Status != types.StatusFailed {
			t.Fatalf("expected latest change of a, got %+v", tx)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for id, txType := range map[string]types.TransactionType{"swap": types.TransactionTypeSwap, "bridge": types.TransactionTypeBridge} {
		if err := store.Put(ctx, &types.TransactionDetails{ID: id, Status: types.StatusPending, Type: txType}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	if err := Settle(ctx, store, "swap", types.StatusSuccess); err != nil {
		t.Fatalf("settle swap: %v", err)
	}
	if tx, _ := store.Get(ctx, "swap"); tx.Status != types.StatusSuccess {
		t.Fatalf("swap = %s, want %s", tx.Status, types.StatusSuccess)
	}

	if err := Settle(ctx, store, "bridge", types.StatusSuccess); err != nil {
		t.Fatalf("settle bridge: %v", err)
	}
	tx, _ := store.Get(ctx, "bridge")
	if tx.Status != types.StatusPending || !tx.SendConfirmed {
		t.Fatalf("bridge = %s (sendConfirmed %v), want pending with the send confirmed", tx.Status, tx.SendConfirmed)
	}

	// The settlement decides the final status of the transfer.
	if err := Settle(ctx, store, "bridge", types.StatusFailed); err != nil {
		t.Fatalf("settle bridge failure: %v", err)
	}
	if tx, _ := store.Get(ctx, "bridge"); tx.Status != types.StatusFailed {
		t.Fatalf("bridge = %s, want %s", tx.Status, types.StatusFailed)
	}
}
