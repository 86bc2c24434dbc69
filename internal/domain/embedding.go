package domain

import (
	"context"
	"fmt"
)

// Embedder turns text into a vector. Providers and every decorator in front
// of them (cache, timeouts, instruction prefix) implement it.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder is implemented by embedders with a native multi-text call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker is implemented by embedders that can probe their provider.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult is one vector plus the tokens spent on it.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult holds vectors aligned with the input texts.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Append adds one vector and its usage.
func (b *BatchEmbeddingResult) Append(r EmbeddingResult) {
	b.Embeddings = append(b.Embeddings, r.Embedding)
	b.PromptTokens += r.PromptTokens
	b.TotalTokens += r.TotalTokens
}

// Extend adds another batch after this one.
func (b *BatchEmbeddingResult) Extend(o BatchEmbeddingResult) {
	b.Embeddings = append(b.Embeddings, o.Embeddings...)
	b.PromptTokens += o.PromptTokens
	b.TotalTokens += o.TotalTokens
}

// EmbedEach calls e once per text. It stops at the first error and before
// each call checks ctx.
func EmbedEach(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	out := BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		r, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		out.Append(r)
	}
	return out, nil
}

// BatchEmbed prefers e's native batch call and falls back to EmbedEach.
func BatchEmbed(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	if be, ok := e.(BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return EmbedEach(ctx, e, texts)
}

// CheckHealth probes e if it can be probed and reports healthy otherwise.
func CheckHealth(ctx context.Context, e Embedder) error {
	hc, ok := e.(HealthChecker)
	if !ok {
		return nil
	}
	return hc.HealthCheck(ctx)
}

// InstructionEmbedder prefixes every text with a fixed instruction. Postings
// and occupations are embedded with different ones, for example
// "puesto de trabajo: " and "ocupación: ".
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder wraps inner.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	r, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return r, nil
}

func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	withInstruction := make([]string, len(texts))
	for i, t := range texts {
		withInstruction[i] = e.instruction + t
	}
	r, err := BatchEmbed(ctx, e.inner, withInstruction)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
	}
	return r, nil
}

func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	return CheckHealth(ctx, e.inner)
}
