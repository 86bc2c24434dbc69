package matchstore

import (
	"context"
	"testing"
	"time"

	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn         func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	scanFn         func(ctx context.Context, pattern string) ([]string, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return nil, nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

// memStore wires a mockStore to an in-memory hash map.
func memStore() (*mockStore, map[string]map[string]string) {
	data := map[string]map[string]string{}
	ms := &mockStore{}
	ms.hsetFn = func(_ context.Context, key string, fields map[string]string) error {
		h := map[string]string{}
		for k, v := range fields {
			h[k] = v
		}
		data[key] = h
		return nil
	}
	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		if h, ok := data[key]; ok {
			return h, nil
		}
		return map[string]string{}, nil
	}
	return ms, data
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms), ms
}

func testResult(t *testing.T) dommatch.Result {
	t.Helper()
	return dommatch.Result{
		PostingID:        "X123",
		OccupationURI:    "http://data.europa.eu/esco/occupation/camarero",
		OccupationLabel:  "Camarero",
		ISCOCode:         "5131",
		TitleScore:       0.91,
		SkillsScore:      0.6,
		DescriptionScore: 0.72,
		FinalScore:       0.801,
		Status:           dommatch.StatusNeedsReview,
		Method:           dommatch.MethodSemanticFamily,
		Families:         []string{"hospitality"},
		Alternatives: []dommatch.Alternative{
			{OccupationURI: "http://data.europa.eu/esco/occupation/sommelier", OccupationLabel: "Sumiller", ISCOCode: "5131", Score: 0.7},
		},
		MatchingVersion: "2026.03+abcd1234",
		ComputedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}
