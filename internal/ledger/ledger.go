// Package ledger records which notices have been delivered to every
// destination. It only grows.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"noticebot/internal/storage"
	logx "noticebot/pkg/logx"
)

type Ledger struct {
	store storage.Store
	log   logx.Logger

	mu  sync.RWMutex
	ids map[int64]struct{}
}

// Open loads every persisted id from store into memory.
func Open(ctx context.Context, store storage.Store, log logx.Logger) (*Ledger, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	ids, err := store.LoadNotices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	l := &Ledger{store: store, log: log, ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
	log.Info("ledger loaded", logx.Int("delivered", len(l.ids)))
	return l, nil
}

func (l *Ledger) Contains(id int64) bool {
	l.mu.RLock()
	_, ok := l.ids[id]
	l.mu.RUnlock()
	return ok
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// IDs returns the delivered ids in ascending order.
func (l *Ledger) IDs() []int64 {
	l.mu.RLock()
	out := make([]int64, 0, len(l.ids))
	for id := range l.ids {
		out = append(out, id)
	}
	l.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Commit durably records id. The in-memory set changes only after the store
// accepted the write. Committing a known id is a no-op.
func (l *Ledger) Commit(ctx context.Context, id int64) error {
	if l.Contains(id) {
		return nil
	}
	if err := l.store.AddNotice(ctx, id, time.Now()); err != nil {
		return fmt.Errorf("commit notice %d: %w", id, err)
	}
	l.mu.Lock()
	l.ids[id] = struct{}{}
	l.mu.Unlock()
	return nil
}

func (l *Ledger) Close() error {
	return l.store.Close()
}
