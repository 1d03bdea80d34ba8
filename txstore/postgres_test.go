package txstore

import (
	"context"
	"io"
	"testing"
	"time"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// newListenerStore returns a store whose listener reads records from memory.
func newListenerStore(t *testing.T, records *MemoryStore) *PostgresStore {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &PostgresStore{hub: newHub(), logger: logger, load: records.Get}
}

func receive(t *testing.T, ch <-chan *types.TransactionDetails) *types.TransactionDetails {
	t.Helper()

	select {
	case tx := <-ch:
		return tx
	case <-time.After(time.Second):
		t.Fatal("no record published")
		return nil
	}
}

func TestHandleNotificationPublishesWatchedRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records := NewMemoryStore()
	if err := records.Put(ctx, pendingRecord("a")); err != nil {
		t.Fatalf("put: %v", err)
	}
	store := newListenerStore(t, records)
	updates := store.hub.subscribe(ctx, "a")

	if err := records.UpdateStatus(ctx, "a", types.StatusSuccess); err != nil {
		t.Fatalf("update: %v", err)
	}
	store.handleNotification(ctx, &pq.Notification{Channel: statusChannel, Extra: "a"})

	if tx := receive(t, updates); tx.Status != types.StatusSuccess {
		t.Fatalf("status = %s, want %s", tx.Status, types.StatusSuccess)
	}
}

func TestHandleNotificationReloadsWatchedRecordsAfterReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records := NewMemoryStore()
	for _, id := range []string{"a", "b"} {
		if err := records.Put(ctx, pendingRecord(id)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	store := newListenerStore(t, records)
	a := store.hub.subscribe(ctx, "a")
	b := store.hub.subscribe(ctx, "b")

	// Both changes committed while the listener was disconnected.
	if err := records.UpdateStatus(ctx, "a", types.StatusSuccess); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := records.UpdateStatus(ctx, "b", types.StatusFailed); err != nil {
		t.Fatalf("update: %v", err)
	}
	store.handleNotification(ctx, nil)

	if tx := receive(t, a); tx.Status != types.StatusSuccess {
		t.Fatalf("a = %s, want %s", tx.Status, types.StatusSuccess)
	}
	if tx := receive(t, b); tx.Status != types.StatusFailed {
		t.Fatalf("b = %s, want %s", tx.Status, types.StatusFailed)
	}
}

func TestHandleNotificationSkipsMissingRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newListenerStore(t, NewMemoryStore())
	updates := store.hub.subscribe(ctx, "gone")

	store.handleNotification(ctx, nil)

	select {
	case tx := <-updates:
		t.Fatalf("unexpected record %+v", tx)
	default:
	}
	if _, err := store.load(ctx, "gone"); !errors.Is(err, commonerrors.ErrTransactionNotFound) {
		t.Fatalf("err = %v, want ErrTransactionNotFound", err)
	}
}
