package gold

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/domain"
	domgold "github.com/kailas-cloud/escomatch/internal/domain/gold"
	"github.com/kailas-cloud/escomatch/internal/metrics"
)

// EvalOptions tune one harness run.
type EvalOptions struct {
	// Against selects the prior run by matching version; empty uses the latest stored run.
	Against string
	// Save stores the new run snapshot.
	Save bool
}

// Service runs the gold set through a matcher. It never modifies cases.
type Service struct {
	matcher  Matcher
	postings PostingSource
	runs     RunStore
	mode     domgold.Mode
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a harness. runs may be nil, in which case no prior run is
// compared and nothing is stored.
func New(matcher Matcher, postings PostingSource, runs RunStore, mode domgold.Mode, logger *zap.Logger) *Service {
	if mode == "" {
		mode = domgold.ModeLoose
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		matcher:  matcher,
		postings: postings,
		runs:     runs,
		mode:     mode,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
}

// WithClock replaces the run timestamp clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Evaluate matches the posting of every case and builds the report.
func (s *Service) Evaluate(ctx context.Context, cases []domgold.Case, opts EvalOptions) (Report, error) {
	cases, err := prepare(cases)
	if err != nil {
		return Report{}, err
	}

	prior, err := s.prior(ctx, opts.Against)
	if err != nil {
		return Report{}, err
	}

	run := domgold.Run{
		ID:              s.newID(),
		MatchingVersion: s.matcher.Version(),
		Mode:            s.mode,
		StartedAt:       s.now(),
		Cases:           make([]domgold.CaseResult, 0, len(cases)),
	}

	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return Report{}, fmt.Errorf("gold run interrupted: %w", err)
		}
		p, err := s.postings.Posting(ctx, c.PostingID)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Gold case posting missing", zap.String("posting_id", c.PostingID))
			run.Cases = append(run.Cases, domgold.MissingCaseResult(c))
			continue
		}
		if err != nil {
			return Report{}, fmt.Errorf("load posting %s: %w", c.PostingID, err)
		}
		run.Cases = append(run.Cases, domgold.NewCaseResult(c, s.matcher.Match(ctx, p), s.mode))
	}

	if opts.Save && s.runs != nil {
		if err := s.runs.Save(ctx, run); err != nil {
			return Report{}, fmt.Errorf("save gold run: %w", err)
		}
	}

	metrics.GoldPrecision.WithLabelValues(run.MatchingVersion).Set(run.Precision())

	report := NewReport(run, prior)
	s.logger.Info("Gold run finished",
		zap.String("run_id", run.ID),
		zap.String("matching_version", run.MatchingVersion),
		zap.Int("cases", len(run.Cases)),
		zap.Int("passed", run.Passed()),
		zap.Float64("precision", run.Precision()),
		zap.Int("regressions", len(report.Regressions)),
		zap.Int("improvements", len(report.Improvements)),
	)
	return report, nil
}

func (s *Service) prior(ctx context.Context, against string) (*domgold.Run, error) {
	if s.runs == nil {
		return nil, nil
	}

	var (
		run domgold.Run
		err error
	)
	if against != "" {
		run, err = s.runs.ByVersion(ctx, against)
	} else {
		run, err = s.runs.Latest(ctx)
	}
	switch {
	case errors.Is(err, domain.ErrNotFound) && against == "":
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load prior gold run: %w", err)
	}
	return &run, nil
}

// prepare validates cases and lets later documents supersede earlier ones
// for the same posting, keeping the position of the first.
func prepare(cases []domgold.Case) ([]domgold.Case, error) {
	var errs []error
	pos := make(map[string]int, len(cases))
	out := make([]domgold.Case, 0, len(cases))
	for i, c := range cases {
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("case #%d: %w", i, err))
			continue
		}
		if j, ok := pos[c.PostingID]; ok {
			out[j] = c
			continue
		}
		pos[c.PostingID] = len(out)
		out = append(out, c)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: gold cases: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return out, nil
}
