package match

import (
	"context"

	"github.com/kailas-cloud/escomatch/internal/domain/occupation"
	"github.com/kailas-cloud/escomatch/internal/index"
)

// Searcher ranks taxonomy rows against normalized query vectors.
type Searcher interface {
	EncodeAll(ctx context.Context, texts []string) ([][]float32, error)
	SearchVector(q []float32, topK int, filter []string) []index.Candidate
	DescriptionSimilarity(q []float32, row int) float64
}

// Taxonomy resolves rule targets and skill vectors.
type Taxonomy interface {
	ByLabel(label, isco string) (int, bool)
	HasLabel(label string) bool
	Occupation(i int) occupation.Occupation
	SkillVectors(row int) [][]float32
}
