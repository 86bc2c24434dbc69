package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/domain"
	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
	"github.com/kailas-cloud/escomatch/internal/metrics"
	"github.com/kailas-cloud/escomatch/internal/rules"
	"github.com/kailas-cloud/escomatch/internal/scoring"
)

// Defaults for Options.
const (
	DefaultTopK         = 10
	DefaultAlternatives = 3
	DefaultTimeout      = 10 * time.Second
)

// NoAlternatives turns runner-up reporting off.
const NoAlternatives = -1

// Options configure a matcher.
type Options struct {
	VersionLabel string
	// Model is the embedding model name; it is part of the matching version.
	Model string
	TopK  int
	// Alternatives caps the runner-ups reported. Zero selects DefaultAlternatives.
	Alternatives int
	// Scoring defaults to scoring.DefaultConfig() when left zero.
	Scoring scoring.Config
	// Timeout bounds the embedding call of one posting.
	Timeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.Scoring == (scoring.Config{}) {
		o.Scoring = scoring.DefaultConfig()
	}
	switch {
	case o.Alternatives < 0:
		o.Alternatives = 0
	case o.Alternatives == 0:
		o.Alternatives = DefaultAlternatives
	}
	if o.Alternatives > o.TopK-1 {
		o.Alternatives = o.TopK - 1
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
}

// Service is the occupation matcher. It holds only immutable state, so one
// instance serves any number of goroutines.
type Service struct {
	tax     Taxonomy
	search  Searcher
	layer   *rules.RuleLayerConfig
	opts    Options
	version string
	stages  []stage
	logger  *zap.Logger
	now     func() time.Time
}

// New applies option defaults, validates the scoring configuration and
// builds the stage pipeline.
func New(tax Taxonomy, search Searcher, layer *rules.RuleLayerConfig, opts Options, logger *zap.Logger) (*Service, error) {
	opts.applyDefaults()
	if err := opts.Scoring.Validate(); err != nil {
		return nil, domain.InvalidConfigError("matching scoring", err)
	}
	if layer == nil {
		layer = rules.NewRuleLayerConfig(nil, nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		tax:     tax,
		search:  search,
		layer:   layer,
		opts:    opts,
		version: Fingerprint(opts.VersionLabel, opts.Scoring, opts.Model, layer),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.stages = []stage{
		{name: dommatch.MethodDictionaryBypass, run: s.dictionaryStage},
		{name: dommatch.MethodForcedRule, run: s.forcedStage},
		{name: dommatch.MethodSemanticFamily, run: s.familyStage},
		{name: dommatch.MethodSemantic, run: s.semanticStage},
	}
	return s, nil
}

// WithClock replaces the computed_at clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Version returns the matching_version tag stamped on every result.
func (s *Service) Version() string { return s.version }

// Rules returns the rule layer the matcher was built with.
func (s *Service) Rules() *rules.RuleLayerConfig { return s.layer }

// Match resolves one posting. It never fails: postings without text are
// REJECTED with method no_signal, and an embedding failure yields a PENDING
// result with Retry set.
func (s *Service) Match(ctx context.Context, p posting.Posting) dommatch.Result {
	start := time.Now()
	res := s.match(ctx, p)

	res.PostingID = p.ID
	res.MatchingVersion = s.version
	res.ComputedAt = s.now()

	metrics.MatchesTotal.WithLabelValues(res.Method, string(res.Status)).Inc()
	metrics.MatchDuration.WithLabelValues(res.Method).Observe(time.Since(start).Seconds())
	return res
}

func (s *Service) match(ctx context.Context, p posting.Posting) dommatch.Result {
	if !p.HasSignal() {
		return dommatch.Result{
			Status: dommatch.StatusRejected,
			Method: dommatch.MethodNoSignal,
		}
	}

	ev := s.newEvaluation(p)

	for _, st := range s.stages {
		res, ok, err := st.run(ctx, ev)
		if err != nil {
			return s.skipped(ev, err)
		}
		if ok {
			if dommatch.IsFallback(res.Method) {
				metrics.MatchFallbackTotal.Inc()
				s.logger.Warn("Skills signal insufficient, used fallback weights",
					zap.String("posting_id", p.ID),
					zap.Int("skills", len(ev.skillVecs)),
					zap.Float64("skills_score", res.SkillsScore),
				)
			}
			s.logger.Debug("Posting matched",
				zap.String("posting_id", p.ID),
				zap.String("stage", st.name),
				zap.String("method", res.Method),
				zap.String("status", string(res.Status)),
				zap.Float64("final_score", res.FinalScore),
			)
			return ev.decorate(res)
		}
	}

	// the unfiltered semantic stage always answers; this is only reached with
	// an empty taxonomy
	return ev.decorate(dommatch.Result{Status: dommatch.StatusRejected, Method: dommatch.MethodNoMatch})
}

func (s *Service) newEvaluation(p posting.Posting) *evaluation {
	forced := s.layer.Forced.Evaluate(p)
	for _, err := range forced.Errors {
		var re *domain.RuleError
		if errors.As(err, &re) {
			metrics.RuleErrorsTotal.WithLabelValues(re.RuleID).Inc()
			s.logger.Warn("Rule evaluation failed",
				zap.String("rule_id", re.RuleID),
				zap.String("posting_id", re.PostingID),
				zap.Error(re.Err),
			)
		}
	}

	return &evaluation{
		posting:      p,
		forced:       forced,
		families:     s.layer.Families.Detect(p),
		neverConfirm: forced.NeverConfirm,
	}
}

func (s *Service) skipped(ev *evaluation, err error) dommatch.Result {
	metrics.MatchSkippedTotal.Inc()
	s.logger.Warn("Posting skipped for retry",
		zap.String("posting_id", ev.posting.ID),
		zap.Error(err),
	)
	return ev.decorate(dommatch.Result{
		Status: dommatch.StatusPending,
		Method: dommatch.MethodSkippedTimeout,
		Retry:  true,
	})
}

// encode embeds title, description and skills of the posting in one call.
func (s *Service) encode(ctx context.Context, ev *evaluation) error {
	if ev.encoded {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	p := ev.posting
	skills := p.Skills()
	texts := make([]string, 0, 2+len(skills))
	texts = append(texts, p.MatchTitle(), truncateRunes(p.Description, maxDescriptionRunes))
	texts = append(texts, skills...)

	vecs, err := s.search.EncodeAll(ctx, texts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrEmbeddingTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingTimeout, err)
		}
		return fmt.Errorf("encode posting: %w", err)
	}

	ev.titleVec, ev.descVec = vecs[0], vecs[1]
	for _, v := range vecs[2:] {
		if v != nil {
			ev.skillVecs = append(ev.skillVecs, v)
		}
	}
	ev.encoded = true
	return nil
}

// maxDescriptionRunes caps the description text sent to the model.
const maxDescriptionRunes = 2000

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
