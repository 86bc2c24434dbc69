package embedding

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

// stubProvider embeds each text as [len(text)] and spends two tokens per text.
type stubProvider struct {
	err    error
	short  bool
	chunks [][]string
	hang   bool
}

func (s *stubProvider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := s.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: r.Embeddings[0], PromptTokens: 2, TotalTokens: 2}, nil
}

func (s *stubProvider) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	s.chunks = append(s.chunks, slices.Clone(texts))
	if s.hang {
		<-ctx.Done()
		return domain.BatchEmbeddingResult{}, ctx.Err()
	}
	if s.err != nil {
		return domain.BatchEmbeddingResult{}, s.err
	}
	var out domain.BatchEmbeddingResult
	for _, t := range texts {
		out.Append(domain.EmbeddingResult{Embedding: []float32{float32(len(t))}, PromptTokens: 2, TotalTokens: 2})
	}
	if s.short {
		out.Embeddings = out.Embeddings[:len(out.Embeddings)-1]
	}
	return out, nil
}

// singleOnly has no native batch call.
type singleOnly struct{ calls int }

func (s *singleOnly) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	s.calls++
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}, TotalTokens: 1}, nil
}

func TestInstrumentedEmbedder_Embed(t *testing.T) {
	p := NewInstrumentedEmbedder(&stubProvider{}, "openai", "text-embedding-3-small", time.Second, nil)

	res, err := p.Embed(context.Background(), "camarero")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !slices.Equal(res.Embedding, []float32{8}) || res.TotalTokens != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestInstrumentedEmbedder_Embed_ProviderErrorIsNotTimeout(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p := NewInstrumentedEmbedder(&stubProvider{err: domain.ErrEmbeddingProviderError}, "nebius", "bge-m3", time.Second, zap.New(core))

	_, err := p.Embed(context.Background(), "mozo")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) || errors.Is(err, domain.ErrEmbeddingTimeout) {
		t.Fatalf("err = %v", err)
	}
	entries := logs.FilterMessage("Embedding request failed").All()
	if len(entries) != 1 || entries[0].ContextMap()["provider"] != "nebius" {
		t.Errorf("log entries = %+v", entries)
	}
}

func TestInstrumentedEmbedder_DeadlineBecomesTimeout(t *testing.T) {
	p := NewInstrumentedEmbedder(&stubProvider{hang: true}, "gemini", "text-embedding-004", 10*time.Millisecond, nil)

	_, err := p.Embed(context.Background(), "socorrista")
	if !errors.Is(err, domain.ErrEmbeddingTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Embed: %v", err)
	}
	_, err = p.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingTimeout) {
		t.Fatalf("BatchEmbed: %v", err)
	}
}

func TestInstrumentedEmbedder_CallerCancelIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewInstrumentedEmbedder(&stubProvider{hang: true}, "openai", "m", time.Minute, nil)

	_, err := p.Embed(ctx, "x")
	if !errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrEmbeddingTimeout) {
		t.Fatalf("err = %v", err)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_Chunks(t *testing.T) {
	inner := &stubProvider{}
	p := NewInstrumentedEmbedder(inner, "openai", "m", time.Second, nil).WithBatchSize(2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	res, err := p.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	sizes := make([]int, len(inner.chunks))
	for i, c := range inner.chunks {
		sizes[i] = len(c)
	}
	if !slices.Equal(sizes, []int{2, 2, 1}) {
		t.Errorf("chunk sizes = %v", sizes)
	}
	for i, txt := range texts {
		if res.Embeddings[i][0] != float32(len(txt)) {
			t.Errorf("embedding %d misaligned: %v", i, res.Embeddings[i])
		}
	}
	if res.TotalTokens != 10 {
		t.Errorf("tokens = %d", res.TotalTokens)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_ShortChunk(t *testing.T) {
	p := NewInstrumentedEmbedder(&stubProvider{short: true}, "openai", "m", time.Second, nil)

	_, err := p.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("err = %v", err)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_NoTexts(t *testing.T) {
	inner := &stubProvider{}
	res, err := NewInstrumentedEmbedder(inner, "openai", "m", 0, nil).BatchEmbed(context.Background(), nil)
	if err != nil || res.Embeddings != nil || len(inner.chunks) != 0 {
		t.Fatalf("got %+v, %v, chunks=%v", res, err, inner.chunks)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_WithoutNativeBatch(t *testing.T) {
	inner := &singleOnly{}
	res, err := NewInstrumentedEmbedder(inner, "tei", "m", time.Second, nil).
		BatchEmbed(context.Background(), []string{"peón", "mozo"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if inner.calls != 2 || len(res.Embeddings) != 2 || res.TotalTokens != 2 {
		t.Errorf("calls=%d result=%+v", inner.calls, res)
	}
}

func TestInstrumentedEmbedder_HealthCheck_NoProbe(t *testing.T) {
	p := NewInstrumentedEmbedder(&singleOnly{}, "tei", "m", time.Second, nil)
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck = %v", err)
	}
}
