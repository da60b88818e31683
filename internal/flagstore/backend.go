package flagstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

var ErrClosed = errors.New("flagstore: closed")

// Config selects and configures a backend.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Backend is the raw key/value layer. Implementations must be safe for
// concurrent use; a Put that returns nil must be durable for that driver.
type Backend interface {
	Put(ctx context.Context, key string, rec update.Record) error
	Get(ctx context.Context, key string) (update.Record, bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// Open initializes the configured backend.
func Open(cfg Config, log logx.Logger) (Backend, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("flagstore: unknown driver %q", driver)
	}
}
