// Package matchstore persists match results as one Redis hash per posting.
package matchstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/escomatch/internal/domain"
	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
)

// store is the consumer interface for match records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo reads and writes persisted match results.
type Repo struct {
	store store
}

// New creates a match repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Put overwrites the record of r.PostingID with a single HSET.
func (r *Repo) Put(ctx context.Context, res dommatch.Result) error {
	if res.PostingID == "" {
		return fmt.Errorf("put match: posting_id is required")
	}
	fields, err := resultToHash(res)
	if err != nil {
		return err
	}
	if err := r.store.HSet(ctx, matchKey(res.PostingID), fields); err != nil {
		return fmt.Errorf("hset match %s: %w", res.PostingID, err)
	}
	return nil
}

// Get returns the persisted result of a posting.
func (r *Repo) Get(ctx context.Context, postingID string) (dommatch.Result, error) {
	m, err := r.store.HGetAll(ctx, matchKey(postingID))
	if err != nil {
		return dommatch.Result{}, fmt.Errorf("hgetall match %s: %w", postingID, err)
	}
	if len(m) == 0 {
		return dommatch.Result{}, domain.ErrNotFound
	}
	return resultFromHash(m)
}

// List returns all persisted results sorted by posting id, optionally
// restricted to one status.
func (r *Repo) List(ctx context.Context, status dommatch.Status) ([]dommatch.Result, error) {
	keys, err := r.store.Scan(ctx, matchKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan matches: %w", err)
	}
	if len(keys) == 0 {
		return []dommatch.Result{}, nil
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi matches: %w", err)
	}

	out := make([]dommatch.Result, 0, len(rows))
	for i, m := range rows {
		if len(m) == 0 {
			continue
		}
		res, err := resultFromHash(m)
		if err != nil {
			return nil, fmt.Errorf("parse match %s: %w", keys[i], err)
		}
		if status != "" && res.Status != status {
			continue
		}
		out = append(out, res)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PostingID < out[j].PostingID })
	return out, nil
}

// Key pattern: escomatch:match:{posting_id}

func matchKey(postingID string) string {
	return fmt.Sprintf("%smatch:%s", domain.KeyPrefix, postingID)
}
