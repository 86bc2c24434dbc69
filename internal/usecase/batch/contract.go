package batch

import (
	"context"

	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
)

// Matcher resolves one posting. It never fails; skipped postings carry Retry.
type Matcher interface {
	Match(ctx context.Context, p posting.Posting) dommatch.Result
	Version() string
}

// Sink persists one match result. Each call must be atomic for its posting.
type Sink interface {
	Put(ctx context.Context, res dommatch.Result) error
}
