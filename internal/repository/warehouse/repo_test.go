package warehouse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/escomatch/internal/db/clickhouse"
	"github.com/kailas-cloud/escomatch/internal/domain"
	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
)

// mockRows replays fixed posting rows.
type mockRows struct {
	rows [][]any
	i    int
	err  error
}

func (m *mockRows) Next() bool {
	if m.i >= len(m.rows) {
		return false
	}
	m.i++
	return true
}

func (m *mockRows) Scan(dest ...any) error {
	row := m.rows[m.i-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *[]string:
			*p = row[i].([]string)
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

func (m *mockRows) Close() error { return nil }
func (m *mockRows) Err() error   { return m.err }

// mockConn records statements.
type mockConn struct {
	queries []string
	args    [][]any
	rows    *mockRows
	execErr error
}

func (m *mockConn) Query(_ context.Context, query string, args ...any) (clickhouse.Rows, error) {
	m.queries = append(m.queries, query)
	m.args = append(m.args, args)
	if m.rows == nil {
		return &mockRows{}, nil
	}
	return m.rows, nil
}

func (m *mockConn) Exec(_ context.Context, query string, args ...any) error {
	m.queries = append(m.queries, query)
	m.args = append(m.args, args)
	return m.execErr
}

func postingRow(id, title string, skills []string) []any {
	return []any{id, "infojobs", title, strings.ToLower(title), "", skills, "", "", "", "nlp-7"}
}

func TestPostings_FilteredByProcessingVersion(t *testing.T) {
	mc := &mockConn{rows: &mockRows{rows: [][]any{
		postingRow("X123", "Mozo", []string{"cosechar"}),
		postingRow("Y456", "Camarero", nil),
	}}}
	repo := New(mc, "nlp-7", nil)

	got, err := repo.Postings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "X123" || got[0].ExtractedSkills[0] != "cosechar" || got[1].CleanedTitle != "camarero" {
		t.Errorf("unexpected postings: %+v", got)
	}
	if !strings.Contains(mc.queries[0], "WHERE processing_version = ?") || mc.args[0][0] != "nlp-7" {
		t.Errorf("unexpected query: %s %v", mc.queries[0], mc.args[0])
	}
}

func TestPostings_AllVersions(t *testing.T) {
	mc := &mockConn{}
	repo := New(mc, "", nil)
	if _, err := repo.Postings(context.Background()); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(mc.queries[0], "WHERE") || len(mc.args[0]) != 0 {
		t.Errorf("unexpected filter: %s", mc.queries[0])
	}
}

func TestPostings_IterationError(t *testing.T) {
	mc := &mockConn{rows: &mockRows{err: errors.New("broken pipe")}}
	repo := New(mc, "", nil)
	if _, err := repo.Postings(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPosting_NotFound(t *testing.T) {
	repo := New(&mockConn{}, "nlp-7", nil)
	_, err := repo.Posting(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPut_NullableOccupation(t *testing.T) {
	mc := &mockConn{}
	repo := New(mc, "", nil)

	res := dommatch.Result{
		PostingID:       "Z789",
		FinalScore:      0,
		Status:          dommatch.StatusRejected,
		Method:          dommatch.MethodNoSignal,
		MatchingVersion: "v1+00000000",
		ComputedAt:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := repo.Put(context.Background(), res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	args := mc.args[0]
	if len(args) != 13 {
		t.Fatalf("expected 13 args, got %d", len(args))
	}
	if args[0] != "Z789" || args[8] != "REJECTED" || args[9] != "no_signal" {
		t.Errorf("unexpected args: %v", args)
	}
	if uri, ok := args[1].(*string); !ok || uri != nil {
		t.Errorf("expected NULL occupation_uri, got %v", args[1])
	}
}

func TestPut_ExecError(t *testing.T) {
	repo := New(&mockConn{execErr: errors.New("readonly")}, "", nil)
	if err := repo.Put(context.Background(), dommatch.Result{PostingID: "X123"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnsureSchema(t *testing.T) {
	mc := &mockConn{}
	if err := New(mc, "", nil).EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(mc.queries[0], "ReplacingMergeTree(computed_at)") {
		t.Errorf("unexpected DDL: %s", mc.queries[0])
	}
}
