package taxonomy

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/occupation"
	"github.com/kailas-cloud/escomatch/internal/domain/vector"
)

// BuildOptions configures the offline index build.
type BuildOptions struct {
	Model    string
	Language string
	Logger   *zap.Logger
}

// Build embeds every occupation label, description text and skill label, and
// returns a Store with unit-length vectors.
func Build(ctx context.Context, occs []occupation.Occupation, emb domain.Embedder, opts BuildOptions) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	labels := make([]string, len(occs))
	descs := make([]string, len(occs))
	skillSet := make(map[string]struct{})
	for i, o := range occs {
		labels[i] = o.PreferredLabel
		descs[i] = o.DescriptionText()
		for _, s := range o.Skills() {
			skillSet[s] = struct{}{}
		}
	}
	skills := make([]string, 0, len(skillSet))
	for s := range skillSet {
		skills = append(skills, s)
	}
	sort.Strings(skills)

	embedAll := func(kind string, texts []string) ([][]float32, error) {
		if len(texts) == 0 {
			return nil, nil
		}
		res, err := domain.BatchEmbed(ctx, emb, texts)
		if err != nil {
			return nil, domain.EmbeddingModelError("embed "+kind, err)
		}
		if len(res.Embeddings) != len(texts) {
			return nil, domain.EmbeddingModelError(
				fmt.Sprintf("embed %s: got %d vectors for %d texts", kind, len(res.Embeddings), len(texts)), nil)
		}
		out := make([][]float32, len(res.Embeddings))
		for i, v := range res.Embeddings {
			out[i] = vector.Normalize(v)
		}
		logger.Info("Embedded taxonomy texts",
			zap.String("kind", kind),
			zap.Int("count", len(texts)),
			zap.Int("total_tokens", res.TotalTokens),
		)
		return out, nil
	}

	labelVecs, err := embedAll("labels", labels)
	if err != nil {
		return nil, err
	}
	descVecs, err := embedAll("descriptions", descs)
	if err != nil {
		return nil, err
	}
	skillVecs, err := embedAll("skills", skills)
	if err != nil {
		return nil, err
	}
	if labelVecs == nil {
		labelVecs, descVecs = [][]float32{}, [][]float32{}
	}

	return New(Snapshot{
		Model:       opts.Model,
		Language:    opts.Language,
		Occupations: occs,
		LabelVecs:   labelVecs,
		DescVecs:    descVecs,
		SkillLabels: skills,
		SkillVecs:   skillVecs,
	})
}
