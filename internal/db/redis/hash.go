package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/escomatch/internal/db"
)

// multiChunk bounds the number of commands pipelined in one DoMulti call.
const multiChunk = 256

// scanCount is the COUNT hint of every SCAN page.
const scanCount = 500

// HSet writes every field in one HSET. Fields are sent in sorted order.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	cmd := s.b().Hset().Key(key).FieldValue()
	for _, k := range names {
		cmd = cmd.FieldValue(k, fields[k])
	}
	if err := s.do(ctx, cmd.Build()).Error(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return nil
}

// HGetAll returns all fields of a hash. A missing key yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.do(ctx, s.b().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return m, nil
}

// HGetAllMulti fetches many hashes, pipelining up to multiChunk commands per
// round trip. Output is aligned with keys.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	out := make([]map[string]string, 0, len(keys))
	for start := 0; start < len(keys); start += multiChunk {
		chunk := keys[start:min(start+multiChunk, len(keys))]

		cmds := make(rueidis.Commands, len(chunk))
		for i, key := range chunk {
			cmds[i] = s.b().Hgetall().Key(key).Build()
		}
		for i, res := range s.client.DoMulti(ctx, cmds...) {
			m, err := res.AsStrMap()
			if err != nil {
				return nil, &db.Error{Op: db.OpHGetAll, Err: fmt.Errorf("key %s: %w", chunk[i], err)}
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// Scan walks the keyspace with SCAN. SCAN may return a key more than once
// while the table rehashes; duplicates are dropped.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	seen := make(map[string]struct{})

	for {
		cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(scanCount).Build()
		page, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		for _, k := range page.Elements {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if cursor = page.Cursor; cursor == 0 {
			return keys, nil
		}
	}
}
