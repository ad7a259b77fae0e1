package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	logx "noticebot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driverName(driver)))

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func driverName(d string) string {
	if d == "" {
		return "file"
	}
	return d
}

type memoryStore struct {
	mu     sync.Mutex
	ids    map[int64]struct{}
	closed bool
}

// NewMemory returns a store that keeps ids in process memory only.
func NewMemory() Store {
	return &memoryStore{ids: map[int64]struct{}{}}
}

func (m *memoryStore) LoadNotices(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.ids))
	for id := range m.ids {
		out = append(out, id)
	}
	return out, nil
}

func (m *memoryStore) AddNotice(_ context.Context, id int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.ids[id] = struct{}{}
	return nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
