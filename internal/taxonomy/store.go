// Package taxonomy loads the ESCO occupation catalogue and its precomputed embeddings.
package taxonomy

import (
	"fmt"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/occupation"
)

// Store is the read-only, in-memory occupation catalogue. Row i of every
// matrix belongs to Occupation(i); that ordering is the join key.
type Store struct {
	model        string
	language     string
	dims         int
	occupations  []occupation.Occupation
	labelVecs    [][]float32
	descVecs     [][]float32
	skillLabels  []string
	skillVecs    [][]float32
	byLabel      map[string][]int
	skillByLabel map[string]int
}

// Snapshot is the raw material of a Store.
type Snapshot struct {
	Model       string
	Language    string
	Occupations []occupation.Occupation
	LabelVecs   [][]float32
	DescVecs    [][]float32
	SkillLabels []string
	SkillVecs   [][]float32
}

// New validates a snapshot and indexes it.
func New(s Snapshot) (*Store, error) {
	n := len(s.Occupations)
	if len(s.LabelVecs) != n || len(s.DescVecs) != n {
		return nil, domain.TaxonomyLoadError(fmt.Sprintf(
			"row count mismatch: %d occupations, %d label vectors, %d description vectors",
			n, len(s.LabelVecs), len(s.DescVecs)), nil)
	}
	if len(s.SkillLabels) != len(s.SkillVecs) {
		return nil, domain.TaxonomyLoadError(fmt.Sprintf(
			"skill row count mismatch: %d labels, %d vectors", len(s.SkillLabels), len(s.SkillVecs)), nil)
	}

	dims := 0
	check := func(kind string, rows [][]float32) error {
		for i, row := range rows {
			if dims == 0 {
				dims = len(row)
			}
			if len(row) != dims || dims == 0 {
				return domain.TaxonomyLoadError(fmt.Sprintf("%s row %d has %d dimensions, want %d", kind, i, len(row), dims), nil)
			}
		}
		return nil
	}
	for kind, rows := range map[string][][]float32{"label": s.LabelVecs, "description": s.DescVecs, "skill": s.SkillVecs} {
		if err := check(kind, rows); err != nil {
			return nil, err
		}
	}

	st := &Store{
		model:        s.Model,
		language:     s.Language,
		dims:         dims,
		occupations:  s.Occupations,
		labelVecs:    s.LabelVecs,
		descVecs:     s.DescVecs,
		skillLabels:  s.SkillLabels,
		skillVecs:    s.SkillVecs,
		byLabel:      make(map[string][]int, n),
		skillByLabel: make(map[string]int, len(s.SkillLabels)),
	}

	seen := make(map[string]struct{}, n)
	for i, o := range s.Occupations {
		if o.Code.IsZero() {
			return nil, domain.TaxonomyLoadError(fmt.Sprintf("occupation %s has no isco code", o.URI), nil)
		}
		if _, dup := seen[o.URI]; dup {
			return nil, domain.TaxonomyLoadError(fmt.Sprintf("duplicate occupation %s", o.URI), nil)
		}
		seen[o.URI] = struct{}{}
		st.byLabel[o.PreferredLabel] = append(st.byLabel[o.PreferredLabel], i)
	}
	for i, l := range s.SkillLabels {
		st.skillByLabel[l] = i
	}

	return st, nil
}

// Model returns the embedding model the vectors were computed with.
func (s *Store) Model() string { return s.model }

// CheckModel fails with an EmbeddingModelError when the snapshot was built
// with another model than the one queries will be embedded with.
func (s *Store) CheckModel(model string) error {
	if model != "" && model != s.model {
		return domain.EmbeddingModelError(
			fmt.Sprintf("index built with %q, configured model is %q; rebuild the index", s.model, model), nil)
	}
	return nil
}

// Language returns the label language.
func (s *Store) Language() string { return s.language }

// Dimensions returns the vector width (0 for an empty store).
func (s *Store) Dimensions() int { return s.dims }

// Len returns the number of occupations.
func (s *Store) Len() int { return len(s.occupations) }

// Occupation returns row i.
func (s *Store) Occupation(i int) occupation.Occupation { return s.occupations[i] }

// Embeddings returns the label embedding matrix and the parallel metadata rows.
func (s *Store) Embeddings() ([][]float32, []occupation.Occupation) {
	return s.labelVecs, s.occupations
}

// LabelVector returns the label embedding of row i.
func (s *Store) LabelVector(i int) []float32 { return s.labelVecs[i] }

// DescriptionVector returns the description embedding of row i.
func (s *Store) DescriptionVector(i int) []float32 { return s.descVecs[i] }

// SkillVector returns the embedding of a skill label.
func (s *Store) SkillVector(label string) ([]float32, bool) {
	i, ok := s.skillByLabel[label]
	if !ok {
		return nil, false
	}
	return s.skillVecs[i], true
}

// SkillVectors returns the embeddings of an occupation's essential and optional skills.
// Skills without a vector are skipped.
func (s *Store) SkillVectors(row int) [][]float32 {
	skills := s.occupations[row].Skills()
	out := make([][]float32, 0, len(skills))
	for _, sk := range skills {
		if v, ok := s.SkillVector(sk); ok {
			out = append(out, v)
		}
	}
	return out
}

// ByLabel looks an occupation up by its verbatim preferred label. When several
// occupations share a label, isco (if non-empty) selects the one in that unit group,
// otherwise the lowest code wins.
func (s *Store) ByLabel(label, isco string) (int, bool) {
	rows := s.byLabel[label]
	if len(rows) == 0 {
		return 0, false
	}
	best := -1
	for _, r := range rows {
		o := s.occupations[r]
		if isco != "" && !o.Code.HasPrefix(isco) {
			continue
		}
		if best < 0 || o.Code.Less(s.occupations[best].Code) {
			best = r
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// HasLabel reports whether label is a preferred label in the store.
func (s *Store) HasLabel(label string) bool {
	_, ok := s.byLabel[label]
	return ok
}
