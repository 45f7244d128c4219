package store

import (
	"context"
	"time"

	"receipt-server-go/internal/domain/auth/model"
)

// Store persists the single live token pair per user. Each method touches
// exactly one key, so drivers rely on the backend's own atomicity.
type Store interface {
	// Put overwrites any prior record for userID.
	Put(ctx context.Context, userID int64, record model.SessionRecord) error
	// Get reports found == false when no record exists.
	Get(ctx context.Context, userID int64) (record model.SessionRecord, found bool, err error)
	// Delete is a no-op when no record exists.
	Delete(ctx context.Context, userID int64) error
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	// TTL bounds how long a record lives in the backend. Zero keeps records
	// until they are overwritten or deleted.
	TTL    time.Duration
	Redis  *RedisConfig
	Memory *MemoryConfig
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	GCInterval time.Duration
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
