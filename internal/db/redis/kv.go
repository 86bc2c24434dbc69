package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/escomatch/internal/db"
)

// Get returns the value at key, or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.do(ctx, s.b().Get().Key(key).Build()).AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, &db.Error{Op: db.OpGet, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return data, nil
}

// GetMulti pipelines one GET per key instead of MGET, so keys may live in
// different cluster slots. Absent keys yield nil entries.
func (s *Store) GetMulti(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, 0, len(keys))
	for start := 0; start < len(keys); start += multiChunk {
		chunk := keys[start:min(start+multiChunk, len(keys))]

		cmds := make(rueidis.Commands, len(chunk))
		for i, key := range chunk {
			cmds[i] = s.b().Get().Key(key).Build()
		}
		for i, res := range s.client.DoMulti(ctx, cmds...) {
			data, err := res.AsBytes()
			switch {
			case rueidis.IsRedisNil(err):
				out = append(out, nil)
			case err != nil:
				return nil, &db.Error{Op: db.OpGet, Err: fmt.Errorf("key %s: %w", chunk[i], err)}
			default:
				out = append(out, data)
			}
		}
	}
	return out, nil
}

// Set stores value at key. A positive ttl is rounded up to whole seconds.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	base := s.b().Set().Key(key).Value(rueidis.BinaryString(value))

	var cmd rueidis.Completed
	if ttl > 0 {
		secs := int64((ttl + time.Second - 1) / time.Second)
		cmd = base.ExSeconds(secs).Build()
	} else {
		cmd = base.Build()
	}
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return nil
}
