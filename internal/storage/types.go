package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config selects and configures a driver. An empty Driver means "file".
type Config struct {
	Driver string
	Path   string

	// sqlite only; 0 means 5s.
	BusyTimeout time.Duration

	Redis RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key prefix; the set lives at <Prefix>:delivered. Empty means "noticebot".
	Prefix string
}

// Store is the durable side of the notice ledger.
type Store interface {
	// LoadNotices returns every stored id in no particular order.
	// A store that has never been written returns an empty slice.
	LoadNotices(ctx context.Context) ([]int64, error)
	// AddNotice durably records id. at is informational.
	AddNotice(ctx context.Context, id int64, at time.Time) error
	Close() error
}
