// Package gemini is an embedding provider backed by the Google GenAI API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/metrics"
)

const (
	defaultModel = "gemini-embedding-001"
	provider     = "gemini"
)

// embedModels is the subset of genai.Models the embedder uses.
type embedModels interface {
	EmbedContent(
		ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig,
	) (*genai.EmbedContentResponse, error)
	Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error)
}

// Config holds the Gemini embedding settings.
type Config struct {
	APIKey     string
	Model      string
	Dimensions int
	// TaskType is passed through as the embedding task hint, e.g. "SEMANTIC_SIMILARITY".
	TaskType string
	Logger   *zap.Logger
}

// Embedder embeds texts with a Gemini embedding model.
type Embedder struct {
	models     embedModels
	model      string
	dimensions int
	taskType   string
	logger     *zap.Logger
}

// NewEmbedder creates a Gemini API embedder.
func NewEmbedder(ctx context.Context, cfg *Config) (*Embedder, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newEmbedder(client.Models, cfg), nil
}

func newEmbedder(models embedModels, cfg *Config) *Embedder {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		models:     models,
		model:      model,
		dimensions: cfg.Dimensions,
		taskType:   cfg.TaskType,
		logger:     logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

// BatchEmbed implements domain.BatchEmbedder. The Gemini API reports no token usage.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dimensions > 0 {
		dims := int32(e.dimensions) //nolint:gosec // dimensions are validated by config
		cfg.OutputDimensionality = &dims
	}

	start := time.Now()
	resp, err := e.models.EmbedContent(ctx, e.model, contents, cfg)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, "api_error").Inc()
		return domain.BatchEmbeddingResult{}, parseAPIError(err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, "empty_response").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("got %d embeddings for %d inputs: %w",
			got, len(texts), domain.ErrEmbeddingProviderError)
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, "empty_response").Inc()
			return domain.BatchEmbeddingResult{}, fmt.Errorf("empty embedding [%d]: %w", i, domain.ErrEmbeddingProviderError)
		}
		out[i] = emb.Values
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, e.model).Observe(duration.Seconds())
	e.logger.Debug("Embeddings created",
		zap.String("provider", provider),
		zap.Int("inputs", len(texts)),
		zap.Duration("duration", duration),
	)

	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

// HealthCheck verifies the model is reachable via the model metadata endpoint.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.models.Get(ctx, e.model, nil); err != nil {
		return fmt.Errorf("gemini health check: %w", parseAPIError(err))
	}
	return nil
}

// Model returns the configured model name.
func (e *Embedder) Model() string { return e.model }

func parseAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini API error %d %s: %s: %w", apiErr.Code, apiErr.Status, apiErr.Message, domain.ErrEmbeddingProviderError)
	}
	return fmt.Errorf("gemini request failed: %w: %w", domain.ErrEmbeddingProviderError, err)
}
