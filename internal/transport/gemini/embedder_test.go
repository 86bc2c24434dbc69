package gemini

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"google.golang.org/genai"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.EmbedContentConfig
	resp     *genai.EmbedContentResponse
	err      error
	getErr   error
}

func (f *fakeModels) Get(_ context.Context, model string, _ *genai.GetModelConfig) (*genai.Model, error) {
	f.model = model
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &genai.Model{Name: model}, nil
}

func (f *fakeModels) EmbedContent(
	_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig,
) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func embeddings(vecs ...[]float32) *genai.EmbedContentResponse {
	resp := &genai.EmbedContentResponse{}
	for _, v := range vecs {
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: v})
	}
	return resp
}

func TestBatchEmbed(t *testing.T) {
	fm := &fakeModels{resp: embeddings([]float32{0.1, 0.2}, []float32{0.3, 0.4})}
	emb := newEmbedder(fm, &Config{Dimensions: 2, TaskType: "SEMANTIC_SIMILARITY"})

	res, err := emb.BatchEmbed(context.Background(), []string{"camarero", "mozo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 || res.Embeddings[1][0] != 0.3 {
		t.Errorf("unexpected embeddings: %v", res.Embeddings)
	}
	if fm.model != defaultModel {
		t.Errorf("expected default model, got %q", fm.model)
	}
	if len(fm.contents) != 2 || fm.contents[1].Parts[0].Text != "mozo" {
		t.Errorf("unexpected contents: %+v", fm.contents)
	}
	if fm.config.OutputDimensionality == nil || *fm.config.OutputDimensionality != 2 {
		t.Errorf("expected output dimensionality 2")
	}
	if fm.config.TaskType != "SEMANTIC_SIMILARITY" {
		t.Errorf("unexpected task type %q", fm.config.TaskType)
	}
}

func TestEmbed(t *testing.T) {
	fm := &fakeModels{resp: embeddings([]float32{1, 0})}
	emb := newEmbedder(fm, &Config{Model: "text-embedding-004"})

	res, err := emb.Embed(context.Background(), "camarero")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 2 || res.TotalTokens != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if fm.model != "text-embedding-004" || fm.config.OutputDimensionality != nil {
		t.Errorf("unexpected request: model=%q config=%+v", fm.model, fm.config)
	}
}

func TestBatchEmbed_Empty(t *testing.T) {
	emb := newEmbedder(&fakeModels{err: errors.New("must not be called")}, &Config{})
	res, err := emb.BatchEmbed(context.Background(), nil)
	if err != nil || res.Embeddings != nil {
		t.Fatalf("got %+v, %v", res, err)
	}
}

func TestBatchEmbed_CountMismatch(t *testing.T) {
	emb := newEmbedder(&fakeModels{resp: embeddings([]float32{1})}, &Config{})
	_, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestBatchEmbed_EmptyVector(t *testing.T) {
	emb := newEmbedder(&fakeModels{resp: embeddings(nil)}, &Config{})
	_, err := emb.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestBatchEmbed_APIError(t *testing.T) {
	quota := genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED", Message: "quota"}
	emb := newEmbedder(&fakeModels{err: quota}, &Config{})
	_, err := emb.Embed(context.Background(), "a")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestBatchEmbed_DeadlineKeepsCause(t *testing.T) {
	emb := newEmbedder(&fakeModels{err: context.DeadlineExceeded}, &Config{})
	_, err := emb.Embed(context.Background(), "a")
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("unexpected error chain: %v", err)
	}
}

func TestNewEmbedder_RequiresKey(t *testing.T) {
	if _, err := NewEmbedder(context.Background(), &Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	fm := &fakeModels{}
	emb := newEmbedder(fm, &Config{Model: "gemini-embedding-001"})

	if err := emb.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if fm.model != "gemini-embedding-001" {
		t.Errorf("expected model lookup, got %q", fm.model)
	}

	fm.getErr = genai.APIError{Code: 403, Status: "PERMISSION_DENIED", Message: "bad key"}
	err := emb.HealthCheck(context.Background())
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
