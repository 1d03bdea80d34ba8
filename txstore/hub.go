// Package txstore holds the local transaction-state store implementations.
package txstore

import (
	"context"
	"sync"

	"github.com/ClipFinance/swap-lib/common/types"
)

// hub fans record changes out to per-id subscribers. Each subscriber holds
// at most one pending record; a newer change replaces an unread older one.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan *types.TransactionDetails]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan *types.TransactionDetails]struct{})}
}

func (h *hub) subscribe(ctx context.Context, id string) <-chan *types.TransactionDetails {
	ch := make(chan *types.TransactionDetails, 1)

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan *types.TransactionDetails]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()

		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[id], ch)
		if len(h.subs[id]) == 0 {
			delete(h.subs, id)
		}
		close(ch)
	}()

	return ch
}

func (h *hub) publish(tx *types.TransactionDetails) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[tx.ID] {
		select {
		case ch <- tx.Clone():
			continue
		default:
		}
		// Drop the unread record in favour of the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- tx.Clone():
		default:
		}
	}
}

func (h *hub) watching(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id]) > 0
}

// ids returns the ids that have at least one subscriber.
func (h *hub) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	return ids
}
