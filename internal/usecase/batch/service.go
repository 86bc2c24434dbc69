package batch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/escomatch/internal/domain"
	dombatch "github.com/kailas-cloud/escomatch/internal/domain/batch"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
	"github.com/kailas-cloud/escomatch/internal/logger"
	"github.com/kailas-cloud/escomatch/internal/metrics"
)

// DefaultWorkers is the number of postings matched concurrently.
const DefaultWorkers = 4

// Summary is the outcome of one batch run.
type Summary struct {
	RunID           string
	MatchingVersion string
	// Results is aligned with the input postings.
	Results []dombatch.Result
	dombatch.Tally
}

// RetryIDs lists the postings left for retry.
func (s Summary) RetryIDs() []string {
	var out []string
	for _, r := range s.Results {
		if r.Outcome == dombatch.OutcomeSkipped {
			out = append(out, r.PostingID)
		}
	}
	return out
}

// Service matches postings concurrently and writes each result to every sink.
type Service struct {
	matcher Matcher
	sinks   []Sink
	workers int
}

// New creates a batch service.
func New(matcher Matcher, sinks ...Sink) *Service {
	return &Service{matcher: matcher, sinks: sinks, workers: DefaultWorkers}
}

// WithWorkers configures the concurrency.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// Run matches every posting. Postings not yet started when ctx is cancelled
// are reported as skipped. Results of skipped postings are never persisted.
func (s *Service) Run(ctx context.Context, postings []posting.Posting) Summary {
	sum := Summary{
		RunID:           uuid.NewString(),
		MatchingVersion: s.matcher.Version(),
		Results:         make([]dombatch.Result, len(postings)),
	}
	ctx = logger.WithFields(ctx,
		zap.String("run_id", sum.RunID),
		zap.String("matching_version", sum.MatchingVersion),
	)
	log := logger.FromContext(ctx)
	log.Info("Batch run started", zap.Int("postings", len(postings)), zap.Int("workers", s.workers))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, p := range postings {
		if err := ctx.Err(); err != nil {
			sum.Results[i] = dombatch.Skipped(p.ID, fmt.Errorf("run interrupted: %w", err))
			continue
		}
		g.Go(func() error {
			sum.Results[i] = s.process(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	sum.Tally = dombatch.Count(sum.Results)
	for _, r := range sum.Results {
		metrics.BatchPostingsTotal.WithLabelValues(string(r.Outcome)).Inc()
	}

	log.Info("Batch run finished",
		zap.Int("ok", sum.OK),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum
}

func (s *Service) process(ctx context.Context, p posting.Posting) dombatch.Result {
	res := s.matcher.Match(ctx, p)
	if res.Retry {
		return dombatch.Skipped(p.ID, domain.ErrEmbeddingTimeout)
	}

	for _, sink := range s.sinks {
		if err := sink.Put(ctx, res); err != nil {
			logger.FromContext(ctx).Error("Persist match failed",
				zap.String("posting_id", p.ID),
				zap.Error(err),
			)
			return dombatch.Failed(p.ID, fmt.Errorf("persist: %w", err))
		}
	}
	return dombatch.Done(res)
}
