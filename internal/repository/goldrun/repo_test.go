package goldrun

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/escomatch/internal/db"
	"github.com/kailas-cloud/escomatch/internal/domain"
	domgold "github.com/kailas-cloud/escomatch/internal/domain/gold"
)

// mockStore is an in-memory KV store.
type mockStore struct {
	data   map[string][]byte
	setErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string][]byte{}}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockStore) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func testRun(version string, verdict domgold.Verdict) domgold.Run {
	return domgold.Run{
		ID:              "run-" + version,
		MatchingVersion: version,
		Mode:            domgold.ModeLoose,
		StartedAt:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Cases: []domgold.CaseResult{
			{PostingID: "X123", Verdict: verdict, ErrorType: "wrong-sector", ISCOCode: "6130", FinalScore: 0.9},
		},
	}
}

func TestSaveAndLatest(t *testing.T) {
	ms := newMockStore()
	repo := New(ms)
	ctx := context.Background()

	if err := repo.Save(ctx, testRun("v1+aaaa0000", domgold.VerdictFailing)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, testRun("v1+bbbb1111", domgold.VerdictPassing)); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.MatchingVersion != "v1+bbbb1111" || got.Passed() != 1 {
		t.Errorf("unexpected latest run: %+v", got)
	}

	old, err := repo.ByVersion(ctx, "v1+aaaa0000")
	if err != nil {
		t.Fatalf("by version: %v", err)
	}
	if old.Passed() != 0 || !old.StartedAt.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected stored run: %+v", old)
	}
}

func TestLatest_NoRuns(t *testing.T) {
	repo := New(newMockStore())
	_, err := repo.Latest(context.Background())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestByVersion_Unknown(t *testing.T) {
	repo := New(newMockStore())
	_, err := repo.ByVersion(context.Background(), "v9")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSave_RequiresVersion(t *testing.T) {
	repo := New(newMockStore())
	if err := repo.Save(context.Background(), domgold.Run{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSave_StoreError(t *testing.T) {
	ms := newMockStore()
	ms.setErr = errors.New("connection lost")
	repo := New(ms)
	if err := repo.Save(context.Background(), testRun("v1", domgold.VerdictPassing)); err == nil {
		t.Fatal("expected error")
	}
}

func TestVersions(t *testing.T) {
	ms := newMockStore()
	repo := New(ms)
	ctx := context.Background()
	for _, v := range []string{"v2+22", "v1+11"} {
		if err := repo.Save(ctx, testRun(v, domgold.VerdictPassing)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.Versions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "v1+11" || got[1] != "v2+22" {
		t.Errorf("unexpected versions: %v", got)
	}
}
