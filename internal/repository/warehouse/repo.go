// Package warehouse reads NLP postings from and writes match rows to ClickHouse.
package warehouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/db/clickhouse"
	"github.com/kailas-cloud/escomatch/internal/domain"
	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
)

// conn is the consumer interface for the warehouse (ISP).
type conn interface {
	Query(ctx context.Context, query string, args ...any) (clickhouse.Rows, error)
	Exec(ctx context.Context, query string, args ...any) error
}

// Repo implements the posting source and the match sink over ClickHouse.
type Repo struct {
	conn              conn
	processingVersion string
	logger            *zap.Logger
}

// New creates a warehouse repository. A non-empty processingVersion restricts
// postings to that NLP extraction run.
func New(c conn, processingVersion string, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{conn: c, processingVersion: processingVersion, logger: logger}
}

// EnsureSchema creates the match table when absent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if err := r.conn.Exec(ctx, createMatchesTable); err != nil {
		return fmt.Errorf("create %s: %w", MatchesTable, err)
	}
	return nil
}

// Postings returns the postings of the configured processing version, ordered by id.
func (r *Repo) Postings(ctx context.Context) ([]posting.Posting, error) {
	query := "SELECT " + postingColumns + " FROM " + PostingsTable
	var args []any
	if r.processingVersion != "" {
		query += " WHERE processing_version = ?"
		args = append(args, r.processingVersion)
	}
	query += " ORDER BY id"

	out, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Loaded postings from warehouse",
		zap.Int("count", len(out)),
		zap.String("processing_version", r.processingVersion),
	)
	return out, nil
}

// Posting returns one posting by id.
func (r *Repo) Posting(ctx context.Context, id string) (posting.Posting, error) {
	query := "SELECT " + postingColumns + " FROM " + PostingsTable + " WHERE id = ?"
	args := []any{id}
	if r.processingVersion != "" {
		query += " AND processing_version = ?"
		args = append(args, r.processingVersion)
	}
	query += " LIMIT 1"

	out, err := r.query(ctx, query, args...)
	if err != nil {
		return posting.Posting{}, err
	}
	if len(out) == 0 {
		return posting.Posting{}, fmt.Errorf("posting %s: %w", id, domain.ErrNotFound)
	}
	return out[0], nil
}

func (r *Repo) query(ctx context.Context, query string, args ...any) ([]posting.Posting, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", PostingsTable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []posting.Posting
	for rows.Next() {
		var p posting.Posting
		if err := rows.Scan(
			&p.ID, &p.Source, &p.Title, &p.CleanedTitle, &p.Description, &p.ExtractedSkills,
			&p.FunctionalArea, &p.Seniority, &p.Sector, &p.ProcessingVersion,
		); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", PostingsTable, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", PostingsTable, err)
	}
	return out, nil
}

// Put inserts one match row. Unresolved occupations are written as NULL.
func (r *Repo) Put(ctx context.Context, res dommatch.Result) error {
	err := r.conn.Exec(ctx, insertMatch,
		res.PostingID,
		nullable(res.OccupationURI), nullable(res.OccupationLabel), nullable(res.ISCOCode),
		res.TitleScore, res.SkillsScore, res.DescriptionScore, res.FinalScore,
		string(res.Status), res.Method, res.RuleID, res.MatchingVersion, res.ComputedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", MatchesTable, res.PostingID, err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
