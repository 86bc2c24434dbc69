// Package goldrun stores gold-set run snapshots keyed by matching version.
package goldrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/escomatch/internal/db"
	"github.com/kailas-cloud/escomatch/internal/domain"
	domgold "github.com/kailas-cloud/escomatch/internal/domain/gold"
)

// store is the consumer interface for run snapshots (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// keepForever disables expiry. Runs are the regression baseline.
const keepForever time.Duration = 0

// Repo implements usecase/gold.RunStore.
type Repo struct {
	store store
}

// New creates a run snapshot repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Save stores run under its matching version and marks it as the latest.
// A second run of the same version replaces the first.
func (r *Repo) Save(ctx context.Context, run domgold.Run) error {
	if run.MatchingVersion == "" {
		return fmt.Errorf("save gold run: matching_version is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal gold run: %w", err)
	}
	if err := r.store.Set(ctx, runKey(run.MatchingVersion), data, keepForever); err != nil {
		return fmt.Errorf("set gold run %s: %w", run.MatchingVersion, err)
	}
	if err := r.store.Set(ctx, latestKey(), []byte(run.MatchingVersion), keepForever); err != nil {
		return fmt.Errorf("set latest gold run: %w", err)
	}
	return nil
}

// Latest returns the most recently saved run.
func (r *Repo) Latest(ctx context.Context) (domgold.Run, error) {
	version, err := r.store.Get(ctx, latestKey())
	if errors.Is(err, db.ErrKeyNotFound) {
		return domgold.Run{}, domain.ErrNotFound
	}
	if err != nil {
		return domgold.Run{}, fmt.Errorf("get latest gold run: %w", err)
	}
	return r.ByVersion(ctx, string(version))
}

// ByVersion returns the run stored for a matching version.
func (r *Repo) ByVersion(ctx context.Context, version string) (domgold.Run, error) {
	data, err := r.store.Get(ctx, runKey(version))
	if errors.Is(err, db.ErrKeyNotFound) {
		return domgold.Run{}, fmt.Errorf("gold run %s: %w", version, domain.ErrNotFound)
	}
	if err != nil {
		return domgold.Run{}, fmt.Errorf("get gold run %s: %w", version, err)
	}
	var run domgold.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return domgold.Run{}, fmt.Errorf("unmarshal gold run %s: %w", version, err)
	}
	return run, nil
}

// Versions lists the matching versions that have a stored run, sorted.
func (r *Repo) Versions(ctx context.Context) ([]string, error) {
	keys, err := r.store.Scan(ctx, runKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan gold runs: %w", err)
	}
	prefix := runKey("")
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(out)
	return out, nil
}

// Key patterns: escomatch:gold_run:run:{matching_version}, escomatch:gold_run:latest

func runKey(version string) string {
	return fmt.Sprintf("%sgold_run:run:%s", domain.KeyPrefix, version)
}

func latestKey() string {
	return domain.KeyPrefix + "gold_run:latest"
}
