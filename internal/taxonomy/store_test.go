package taxonomy

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/isco"
	"github.com/kailas-cloud/escomatch/internal/domain/occupation"
)

// mapEmbedder returns fixed vectors per text; unknown texts get a constant vector.
type mapEmbedder struct {
	vecs  map[string][]float32
	calls int
	err   error
}

func (m *mapEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	if v, ok := m.vecs[text]; ok {
		return domain.EmbeddingResult{Embedding: v, TotalTokens: 1}, nil
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 1, 1}, TotalTokens: 1}, nil
}

func testOccupations() []occupation.Occupation {
	return []occupation.Occupation{
		{URI: "esco:a", PreferredLabel: "camarero", Code: isco.MustParse("5131"), EssentialSkills: []string{"servir"}},
		{URI: "esco:b", PreferredLabel: "peón agrícola", Code: isco.MustParse("6130"), Description: "trabaja en el campo"},
		{URI: "esco:c", PreferredLabel: "camarero", Code: isco.MustParse("5120"), OptionalSkills: []string{"servir", "cocinar"}},
	}
}

func buildTestStore(t *testing.T) *Store {
	t.Helper()
	emb := &mapEmbedder{vecs: map[string][]float32{
		"camarero":      {3, 0, 0},
		"peón agrícola": {0, 4, 0},
		"servir":        {0, 0, 2},
	}}
	st, err := Build(context.Background(), testOccupations(), emb, BuildOptions{Model: "test-model", Language: "es"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return st
}

func TestBuild_RowAlignment(t *testing.T) {
	st := buildTestStore(t)

	matrix, meta := st.Embeddings()
	if len(matrix) != len(meta) || len(meta) != 3 {
		t.Fatalf("rows: %d vectors, %d metadata", len(matrix), len(meta))
	}
	if meta[1].PreferredLabel != "peón agrícola" {
		t.Errorf("row 1 label = %q", meta[1].PreferredLabel)
	}
	if !reflect.DeepEqual(matrix[1], []float32{0, 1, 0}) {
		t.Errorf("row 1 vector = %v, want normalized", matrix[1])
	}
	if st.Dimensions() != 3 || st.Model() != "test-model" {
		t.Errorf("dims=%d model=%q", st.Dimensions(), st.Model())
	}
	if v, ok := st.SkillVector("servir"); !ok || v[2] != 1 {
		t.Errorf("skill vector = %v %v", v, ok)
	}
	if got := len(st.SkillVectors(2)); got != 2 {
		t.Errorf("row 2 skill vectors = %d", got)
	}
}

func TestBuild_EmbeddingFailure(t *testing.T) {
	emb := &mapEmbedder{err: errors.New("model not loaded")}
	_, err := Build(context.Background(), testOccupations(), emb, BuildOptions{Model: "m"})
	if !errors.Is(err, domain.ErrEmbeddingModel) {
		t.Fatalf("expected ErrEmbeddingModel, got %v", err)
	}
}

func TestStore_ByLabel(t *testing.T) {
	st := buildTestStore(t)

	row, ok := st.ByLabel("camarero", "")
	if !ok || st.Occupation(row).Code.String() != "5120" {
		t.Errorf("ambiguous label should pick lowest code, got row %d", row)
	}
	row, ok = st.ByLabel("camarero", "5131")
	if !ok || st.Occupation(row).URI != "esco:a" {
		t.Errorf("isco should disambiguate, got row %d ok=%v", row, ok)
	}
	if _, ok := st.ByLabel("camarero", "9"); ok {
		t.Error("isco mismatch should not resolve")
	}
	if _, ok := st.ByLabel("mozo", ""); ok {
		t.Error("unknown label should not resolve")
	}
}

func TestNew_RejectsMismatchedRows(t *testing.T) {
	_, err := New(Snapshot{
		Occupations: testOccupations(),
		LabelVecs:   [][]float32{{1}, {1}},
		DescVecs:    [][]float32{{1}, {1}, {1}},
	})
	if !errors.Is(err, domain.ErrTaxonomyLoad) {
		t.Fatalf("expected ErrTaxonomyLoad, got %v", err)
	}

	_, err = New(Snapshot{
		Occupations: testOccupations()[:2],
		LabelVecs:   [][]float32{{1, 0}, {1}},
		DescVecs:    [][]float32{{1, 0}, {0, 1}},
	})
	if !errors.Is(err, domain.ErrTaxonomyLoad) {
		t.Fatalf("expected dimension error, got %v", err)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	st := buildTestStore(t)
	dir := t.TempDir()

	if err := Save(dir, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if loaded.Len() != st.Len() || loaded.Model() != st.Model() || loaded.Dimensions() != st.Dimensions() {
		t.Fatalf("loaded len=%d model=%q dims=%d", loaded.Len(), loaded.Model(), loaded.Dimensions())
	}
	for i := 0; i < st.Len(); i++ {
		if loaded.Occupation(i).URI != st.Occupation(i).URI {
			t.Errorf("row %d uri %q != %q", i, loaded.Occupation(i).URI, st.Occupation(i).URI)
		}
		if loaded.Occupation(i).Code != st.Occupation(i).Code {
			t.Errorf("row %d code %q != %q", i, loaded.Occupation(i).Code, st.Occupation(i).Code)
		}
		if !reflect.DeepEqual(loaded.LabelVector(i), st.LabelVector(i)) {
			t.Errorf("row %d label vector differs", i)
		}
		if !reflect.DeepEqual(loaded.DescriptionVector(i), st.DescriptionVector(i)) {
			t.Errorf("row %d description vector differs", i)
		}
	}
	if _, ok := loaded.SkillVector("cocinar"); !ok {
		t.Error("skill vectors not restored")
	}
}

func TestOpen_MissingDir(t *testing.T) {
	_, err := Open(t.TempDir())
	if !errors.Is(err, domain.ErrTaxonomyLoad) {
		t.Fatalf("expected ErrTaxonomyLoad, got %v", err)
	}
}

func TestStore_CheckModel(t *testing.T) {
	st := buildTestStore(t)

	if err := st.CheckModel(st.Model()); err != nil {
		t.Fatalf("same model: %v", err)
	}
	if err := st.CheckModel(""); err != nil {
		t.Fatalf("empty model: %v", err)
	}
	err := st.CheckModel("other-model")
	if !errors.Is(err, domain.ErrEmbeddingModel) {
		t.Fatalf("expected ErrEmbeddingModel, got %v", err)
	}
}
