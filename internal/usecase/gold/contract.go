package gold

import (
	"context"

	domgold "github.com/kailas-cloud/escomatch/internal/domain/gold"
	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
)

// Matcher resolves postings to occupations.
type Matcher interface {
	Match(ctx context.Context, p posting.Posting) dommatch.Result
	Version() string
}

// PostingSource looks postings up by id. Missing postings return domain.ErrNotFound.
type PostingSource interface {
	Posting(ctx context.Context, id string) (posting.Posting, error)
}

// RunStore persists run snapshots. Lookups of absent runs return domain.ErrNotFound.
type RunStore interface {
	Save(ctx context.Context, run domgold.Run) error
	Latest(ctx context.Context) (domgold.Run, error)
	ByVersion(ctx context.Context, version string) (domgold.Run, error)
}
