package store

import (
	"context"
	"fmt"

	mydb "github.com/TimurManjosov/gorules/internal/db"
)

// Options selects and configures a backend for NewStore.
type Options struct {
	// Type is "memory", "postgres" or "redis".
	Type string
	// DSN is the PostgreSQL connection string.
	DSN string
	// AutoMigrate applies embedded migrations when Type is "postgres".
	AutoMigrate bool
	Redis       RedisOptions
}

// NewStore creates a new store based on opts.Type.
// Supported types: "memory", "postgres", "redis"
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch opts.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		pool, err := mydb.NewPool(ctx, opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		if opts.AutoMigrate {
			if err := mydb.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return NewPostgresStore(pool), nil
	case "redis":
		return NewRedisStore(ctx, opts.Redis)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", opts.Type)
	}
}
