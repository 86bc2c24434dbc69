// Package embedding holds the provider-independent embedding decorators.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/metrics"
)

// DefaultMaxAPIBatchSize caps the texts sent in one provider request.
const DefaultMaxAPIBatchSize = 256

// InstrumentedEmbedder puts a deadline on every provider call, splits large
// batches and logs. Request counts and token usage are recorded by the
// transports; only timeouts are counted here.
type InstrumentedEmbedder struct {
	inner     domain.Embedder
	provider  string
	model     string
	timeout   time.Duration
	batchSize int
	log       *zap.Logger
}

// NewInstrumentedEmbedder wraps inner. A zero timeout means no per-call deadline.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	timeout time.Duration, logger *zap.Logger,
) *InstrumentedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:     inner,
		provider:  provider,
		model:     model,
		timeout:   timeout,
		batchSize: DefaultMaxAPIBatchSize,
		log:       logger.With(zap.String("provider", provider), zap.String("model", model)),
	}
}

// WithBatchSize sets the chunk size. Non-positive values are ignored.
func (p *InstrumentedEmbedder) WithBatchSize(n int) *InstrumentedEmbedder {
	if n > 0 {
		p.batchSize = n
	}
	return p
}

func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	res, err := p.call(ctx, func(ctx context.Context) (domain.BatchEmbeddingResult, error) {
		r, err := p.inner.Embed(ctx, text)
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		var b domain.BatchEmbeddingResult
		b.Append(r)
		return b, nil
	})
	if err != nil {
		p.log.Error("Embedding request failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.log.Debug("Embedding request completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("dimensions", len(res.Embeddings[0])),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed sends texts in chunks of the configured size, each chunk under
// its own deadline. The first failing chunk fails the whole batch.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for lo := 0; lo < len(texts); lo += p.batchSize {
		chunk := texts[lo:min(lo+p.batchSize, len(texts))]

		res, err := p.call(ctx, func(ctx context.Context) (domain.BatchEmbeddingResult, error) {
			return domain.BatchEmbed(ctx, p.inner, chunk)
		})
		if err == nil && len(res.Embeddings) != len(chunk) {
			err = fmt.Errorf("got %d embeddings for %d texts: %w",
				len(res.Embeddings), len(chunk), domain.ErrEmbeddingProviderError)
		}
		if err != nil {
			p.log.Error("Batch embedding request failed",
				zap.Int("chunk_offset", lo),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		out.Extend(res)
	}

	p.log.Debug("Batch embedding completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	ctx, cancel := p.deadline(ctx)
	defer cancel()
	return domain.CheckHealth(ctx, p.inner)
}

// call runs fn under the per-call deadline and tags deadline failures with
// ErrEmbeddingTimeout, keeping the cause.
func (p *InstrumentedEmbedder) call(
	ctx context.Context, fn func(context.Context) (domain.BatchEmbeddingResult, error),
) (domain.BatchEmbeddingResult, error) {
	ctx, cancel := p.deadline(ctx)
	defer cancel()

	res, err := fn(ctx)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrEmbeddingTimeout) {
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.provider, p.model, "timeout").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingTimeout, err)
	}
	return domain.BatchEmbeddingResult{}, err
}

func (p *InstrumentedEmbedder) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}
