// Package cache provides the string key-value stores that back the model
// response cache.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Store is a string keyed get/set store with optional expiry.
// Get reports found=false on a miss; an error means the backend itself failed.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Close() error
}

// Options configures a store created by Open
type Options struct {
	Backend  string
	Addr     string
	Password string
	DB       int
	DSN      string
}

// Open creates the store selected by opts.Backend. The "none" backend returns a nil store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "none":
		return nil, nil
	case "redis":
		return NewRedisStore(ctx, opts.Addr, opts.Password, opts.DB)
	case "postgres":
		return OpenPostgresStore(ctx, opts.DSN)
	case "sqlite":
		return OpenSQLiteStore(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
