package txstore

import (
	"context"
	"sync"
	"time"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/pkg/errors"
)

// MemoryStore is an in-process TransactionStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*types.TransactionDetails
	hub     *hub
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*types.TransactionDetails),
		hub:     newHub(),
		now:     time.Now,
	}
}

// Get returns a copy of the record with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (*types.TransactionDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.records[id]
	if !ok {
		return nil, errors.Wrapf(commonerrors.ErrTransactionNotFound, "id %s", id)
	}
	return tx.Clone(), nil
}

// Put inserts the record or replaces a record whose status is not final.
func (s *MemoryStore) Put(_ context.Context, tx *types.TransactionDetails) error {
	if tx == nil || tx.ID == "" {
		return errors.New("transaction id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.records[tx.ID]; ok && current.Status.IsFinal() {
		return errors.Wrapf(commonerrors.ErrStatusFinal, "id %s is %s", tx.ID, current.Status)
	}

	record := tx.Clone()
	if record.AddedTime.IsZero() {
		record.AddedTime = s.now()
	}
	record.UpdatedTime = s.now()
	s.records[record.ID] = record
	s.hub.publish(record)

	return nil
}

// UpdateStatus moves the record to status.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status types.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[id]
	if !ok {
		return errors.Wrapf(commonerrors.ErrTransactionNotFound, "id %s", id)
	}
	if err := checkTransition(current.Status, status); err != nil {
		return errors.Wrapf(err, "id %s", id)
	}
	if current.Status == status {
		return nil
	}

	record := current.Clone()
	record.Status = status
	record.UpdatedTime = s.now()
	s.records[id] = record
	s.hub.publish(record)

	return nil
}

// Subscribe returns a channel receiving every change of the record.
func (s *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan *types.TransactionDetails, error) {
	return s.hub.subscribe(ctx, id), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// checkTransition rejects any change away from a final status.
func checkTransition(from, to types.TransactionStatus) error {
	if from.IsFinal() && from != to {
		return errors.Wrapf(commonerrors.ErrStatusFinal, "cannot move from %s to %s", from, to)
	}
	return nil
}

var _ types.TransactionStore = (*MemoryStore)(nil)
