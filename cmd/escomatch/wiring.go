package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/config"
	"github.com/kailas-cloud/escomatch/internal/db/clickhouse"
	dbRedis "github.com/kailas-cloud/escomatch/internal/db/redis"
	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/index"
	"github.com/kailas-cloud/escomatch/internal/metrics"
	"github.com/kailas-cloud/escomatch/internal/repository/embcache"
	"github.com/kailas-cloud/escomatch/internal/repository/fixtures"
	"github.com/kailas-cloud/escomatch/internal/repository/warehouse"
	"github.com/kailas-cloud/escomatch/internal/rules"
	"github.com/kailas-cloud/escomatch/internal/taxonomy"
	geminiEmb "github.com/kailas-cloud/escomatch/internal/transport/gemini"
	openaiEmb "github.com/kailas-cloud/escomatch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/escomatch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/escomatch/internal/usecase/health"
	matchuc "github.com/kailas-cloud/escomatch/internal/usecase/match"
)

// openStore connects to Redis/Valkey and waits until it answers.
func (c *cli) openStore(ctx context.Context) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    c.cfg.Database.Addrs,
		Username: c.cfg.Database.Username,
		Password: c.cfg.Database.Password,
		DB:       c.cfg.Database.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create database store: %w", err)
	}
	timeout := time.Duration(c.cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	c.logger.Info("Connected to database", zap.Strings("addrs", c.cfg.Database.Addrs))
	return store, nil
}

// openWarehouse connects to ClickHouse. It returns nil when no warehouse is configured.
func (c *cli) openWarehouse(ctx context.Context) (*clickhouse.Client, *warehouse.Repo, error) {
	wc := c.cfg.Warehouse
	if !wc.Enabled() {
		return nil, nil, nil
	}
	client, err := clickhouse.Open(ctx, clickhouse.Options{
		Addr:         wc.Addr,
		Database:     wc.Database,
		Username:     wc.Username,
		Password:     wc.Password,
		MaxOpenConns: wc.MaxOpenConns,
	}, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open warehouse: %w", err)
	}
	return client, warehouse.New(client, wc.ProcessingVersion, c.logger), nil
}

// buildEmbedder assembles the decorator chain:
// provider -> Cached -> Instrumented -> Instruction.
// store may be nil, in which case nothing is cached.
func (c *cli) buildEmbedder(ctx context.Context, store *dbRedis.Store, instruction string) (domain.Embedder, error) {
	ec := c.cfg.Embedding

	var base domain.Embedder
	switch ec.Provider {
	case config.ProviderGemini:
		g, err := geminiEmb.NewEmbedder(ctx, &geminiEmb.Config{
			APIKey:     ec.APIKey,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			TaskType:   ec.TaskType,
			Logger:     c.logger,
		})
		if err != nil {
			return nil, domain.EmbeddingModelError("create gemini embedder", err)
		}
		base = g
	default:
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   ec.Provider,
			Logger:     c.logger,
		})
	}

	embedder := base
	if ec.Cache && store != nil {
		embedder = embcache.New(base, store, ec.Model, metrics.EmbeddingCacheTotal, c.logger).
			WithTTL(ec.CacheTTL())
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, ec.Provider, ec.Model, ec.Timeout(), c.logger,
	).WithBatchSize(ec.BatchSize)

	// Instruction prefix (outermost, the cache key includes the instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction), nil
	}
	return embedder, nil
}

// openTaxonomy loads the index snapshot and checks it against the configured model.
func (c *cli) openTaxonomy() (*taxonomy.Store, error) {
	tax, err := taxonomy.Open(c.cfg.Taxonomy.IndexDir)
	if err != nil {
		return nil, err
	}
	if err := tax.CheckModel(c.cfg.Embedding.Model); err != nil {
		return nil, err
	}
	c.logger.Info("Taxonomy index loaded",
		zap.String("dir", c.cfg.Taxonomy.IndexDir),
		zap.Int("occupations", tax.Len()),
		zap.Int("dimensions", tax.Dimensions()),
		zap.String("model", tax.Model()),
	)
	return tax, nil
}

func (c *cli) loadRules() (*rules.RuleLayerConfig, error) {
	layer, err := rules.LoadFiles(rules.Paths{
		Dictionary: c.cfg.Rules.Dictionary,
		Forced:     c.cfg.Rules.Forced,
		Families:   c.cfg.Rules.Families,
	})
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return layer, nil
}

// matcherDeps is everything a matcher run holds open.
type matcherDeps struct {
	matcher  *matchuc.Service
	tax      *taxonomy.Store
	embedder domain.Embedder
}

// openMatcher wires taxonomy, rules, query embedder and scoring into a matcher.
func (c *cli) openMatcher(ctx context.Context, store *dbRedis.Store) (matcherDeps, error) {
	tax, err := c.openTaxonomy()
	if err != nil {
		return matcherDeps{}, err
	}
	layer, err := c.loadRules()
	if err != nil {
		return matcherDeps{}, err
	}
	emb, err := c.buildEmbedder(ctx, store, c.cfg.Embedding.QueryInstruction)
	if err != nil {
		return matcherDeps{}, err
	}

	mc := c.cfg.Matching
	alts := mc.AlternativeCount()
	if alts == 0 {
		alts = matchuc.NoAlternatives
	}
	m, err := matchuc.New(tax, index.New(tax, emb), layer, matchuc.Options{
		VersionLabel: mc.VersionLabel,
		Model:        c.cfg.Embedding.Model,
		TopK:         mc.TopK,
		Alternatives: alts,
		Scoring:      mc.Scoring(),
		Timeout:      c.cfg.Embedding.Timeout(),
	}, c.logger)
	if err != nil {
		return matcherDeps{}, err
	}

	if issues := layer.Validate(tax); len(issues) > 0 {
		c.logger.Warn("Dictionary integrity issues, run validate for the report",
			zap.Int("issues", len(issues)))
	}
	c.logger.Info("Matcher ready", zap.String("matching_version", m.Version()))
	return matcherDeps{matcher: m, tax: tax, embedder: emb}, nil
}

// openOutput returns a JSONL result sink for path; "-" writes to stdout.
func openOutput(path string) (*fixtures.ResultWriter, func() error, error) {
	if path == "-" {
		return fixtures.NewResultWriter(os.Stdout), func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return fixtures.NewResultWriter(f), f.Close, nil
}

// embeddingProbe reports provider reachability. Embedders without a health
// check count as healthy.
func embeddingProbe(e domain.Embedder) healthuc.Probe {
	if _, ok := e.(domain.HealthChecker); !ok {
		return nil
	}
	return func(ctx context.Context) error {
		if err := domain.CheckHealth(ctx, e); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
		return nil
	}
}
