// Package index is the brute-force semantic search over the taxonomy embeddings.
package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/occupation"
	"github.com/kailas-cloud/escomatch/internal/domain/vector"
	"github.com/kailas-cloud/escomatch/internal/taxonomy"
)

// Candidate is one ranked taxonomy row.
type Candidate struct {
	Row        int
	Occupation occupation.Occupation
	Similarity float64
}

// Index ranks taxonomy rows by cosine similarity to a query text.
// It holds no mutable state and is safe for concurrent use.
type Index struct {
	store *taxonomy.Store
	query domain.Embedder
}

// New creates an index over store. query embeds posting-side text and must
// produce vectors from the same model as the store.
func New(store *taxonomy.Store, query domain.Embedder) *Index {
	return &Index{store: store, query: query}
}

// Encode embeds text and normalizes it to unit length.
// Blank text yields a nil vector without calling the model.
func (ix *Index) Encode(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	res, err := ix.query.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return vector.Normalize(res.Embedding), nil
}

// EncodeAll embeds texts in one batch. Blank texts are kept as nil rows.
func (ix *Index) EncodeAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	idx := make([]int, 0, len(texts))
	batch := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		idx = append(idx, i)
		batch = append(batch, t)
	}
	if len(batch) == 0 {
		return out, nil
	}

	res, err := domain.BatchEmbed(ctx, ix.query, batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	if len(res.Embeddings) != len(batch) {
		return nil, fmt.Errorf("encode batch: got %d vectors for %d texts: %w",
			len(res.Embeddings), len(batch), domain.ErrEmbeddingProviderError)
	}
	for j, i := range idx {
		out[i] = vector.Normalize(res.Embeddings[j])
	}
	return out, nil
}

// Search encodes text and returns the topK most similar occupations.
// filter is a set of allowed ISCO code prefixes; rows outside it are excluded
// from ranking. An empty filter allows every row. Blank text or an empty
// taxonomy yields an empty result.
func (ix *Index) Search(ctx context.Context, text string, topK int, filter []string) ([]Candidate, error) {
	if ix.store.Len() == 0 || strings.TrimSpace(text) == "" || topK <= 0 {
		return []Candidate{}, nil
	}
	q, err := ix.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	return ix.SearchVector(q, topK, filter), nil
}

// SearchVector ranks rows against an already normalized query vector.
// Ties are broken by lower ISCO code, then by URI.
func (ix *Index) SearchVector(q []float32, topK int, filter []string) []Candidate {
	if ix.store.Len() == 0 || len(q) == 0 || topK <= 0 {
		return []Candidate{}
	}

	matrix, rows := ix.store.Embeddings()
	cands := make([]Candidate, 0, len(rows))
	for i, o := range rows {
		if !allowed(o, filter) {
			continue
		}
		cands = append(cands, Candidate{Row: i, Occupation: o, Similarity: vector.Dot(q, matrix[i])})
	}

	sort.Slice(cands, func(i, j int) bool { return ranksBefore(cands[i], cands[j]) })

	if len(cands) > topK {
		cands = cands[:topK]
	}
	return cands
}

// DescriptionSimilarity is the cosine similarity between a normalized query
// vector and the description embedding of row.
func (ix *Index) DescriptionSimilarity(q []float32, row int) float64 {
	if len(q) == 0 {
		return 0
	}
	return vector.Dot(q, ix.store.DescriptionVector(row))
}

func ranksBefore(a, b Candidate) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.Occupation.Code != b.Occupation.Code {
		return a.Occupation.Code.Less(b.Occupation.Code)
	}
	return a.Occupation.URI < b.Occupation.URI
}

func allowed(o occupation.Occupation, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, p := range filter {
		if o.Code.HasPrefix(p) {
			return true
		}
	}
	return false
}
