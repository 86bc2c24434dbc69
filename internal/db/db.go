// Package db defines the storage contracts shared by repositories. Each
// repository declares the narrow subset it consumes; Store is the union the
// Redis adapter satisfies.
package db

import (
	"context"
	"fmt"
	"time"
)

// Store is everything escomatch keeps in Redis/Valkey: match records (hashes),
// gold run snapshots and embedding cache entries (plain values).
type Store interface {
	Pinger
	HashStore
	Scanner
	KVStore
	Close()
}

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore reads and writes one record per key. HSet writes all fields in one
// command so readers never see a half-written record.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Scanner lists keys by glob pattern. Every key is returned once.
type Scanner interface {
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore reads and writes opaque values. GetMulti returns nil for absent keys.
// A zero ttl keeps the value until overwritten.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// readyPollInterval is the delay between readiness pings.
const readyPollInterval = 100 * time.Millisecond

// WaitForReady polls p until it answers or timeout expires.
func WaitForReady(ctx context.Context, p Pinger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var last error
	for {
		if last = p.Ping(ctx); last == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w (last error: %v)", ctx.Err(), last)
		case <-ticker.C:
		}
	}
}
