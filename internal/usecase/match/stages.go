package match

import (
	"context"

	"go.uber.org/zap"

	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
	"github.com/kailas-cloud/escomatch/internal/domain/vector"
	"github.com/kailas-cloud/escomatch/internal/index"
	"github.com/kailas-cloud/escomatch/internal/rules"
	"github.com/kailas-cloud/escomatch/internal/scoring"
)

// stage is one step of the pipeline. ok=false passes the posting on to the
// next stage; a non-nil error aborts matching for the posting.
type stage struct {
	name string
	run  func(ctx context.Context, ev *evaluation) (res dommatch.Result, ok bool, err error)
}

// evaluation is the per-posting state shared by the stages. Rule verdicts are
// computed once up front; embeddings are computed on first use.
type evaluation struct {
	posting      posting.Posting
	forced       rules.ForcedOutcome
	families     []rules.Family
	neverConfirm bool

	encoded   bool
	titleVec  []float32
	descVec   []float32
	skillVecs [][]float32
}

// decorate copies the rule-layer verdicts onto a result.
func (ev *evaluation) decorate(res dommatch.Result) dommatch.Result {
	res.NeverConfirm = ev.neverConfirm
	if len(ev.families) > 0 {
		res.Families = rules.Names(ev.families)
	}
	return res
}

func (s *Service) dictionaryStage(_ context.Context, ev *evaluation) (dommatch.Result, bool, error) {
	entry, ok := s.layer.Dictionary.Lookup(ev.posting.MatchTitle())
	if !ok {
		return dommatch.Result{}, false, nil
	}
	row, ok := rules.ResolveTarget(s.tax, entry.Target)
	if !ok {
		s.logger.Warn("Dictionary target not in taxonomy",
			zap.String("posting_id", ev.posting.ID),
			zap.String("key", entry.Key),
			zap.String("label", entry.Label),
			zap.String("isco_code", entry.ISCO),
		)
		return dommatch.Result{}, false, nil
	}

	return s.forcedResult(row, 1.0, dommatch.MethodDictionaryBypass, entry.Key, ev.neverConfirm), true, nil
}

func (s *Service) forcedStage(_ context.Context, ev *evaluation) (dommatch.Result, bool, error) {
	rule := ev.forced.Force
	if rule == nil {
		return dommatch.Result{}, false, nil
	}
	row, ok := rules.ResolveTarget(s.tax, *rule.Then.Force)
	if !ok {
		s.logger.Warn("Forced rule target not in taxonomy",
			zap.String("posting_id", ev.posting.ID),
			zap.String("rule_id", rule.ID),
			zap.String("label", rule.Then.Force.Label),
		)
		return dommatch.Result{}, false, nil
	}

	return s.forcedResult(row, rule.FinalScore(), dommatch.MethodForcedRule, rule.ID, ev.neverConfirm), true, nil
}

func (s *Service) forcedResult(row int, score float64, method, ruleID string, neverConfirm bool) dommatch.Result {
	occ := s.tax.Occupation(row)
	return dommatch.Result{
		OccupationURI:   occ.URI,
		OccupationLabel: occ.PreferredLabel,
		ISCOCode:        occ.Code.String(),
		FinalScore:      score,
		Status:          s.opts.Scoring.Thresholds.Classify(score, neverConfirm),
		Method:          method,
		RuleID:          ruleID,
	}
}

// familyStage searches only inside the detected families' code prefixes. A
// REJECTED outcome falls through to the unfiltered search.
func (s *Service) familyStage(ctx context.Context, ev *evaluation) (dommatch.Result, bool, error) {
	if len(ev.families) == 0 {
		return dommatch.Result{}, false, nil
	}
	res, found, err := s.semantic(ctx, ev, rules.Prefixes(ev.families), dommatch.MethodSemanticFamily)
	if err != nil || !found {
		return dommatch.Result{}, false, err
	}
	if res.Status == dommatch.StatusRejected {
		return dommatch.Result{}, false, nil
	}
	return res, true, nil
}

func (s *Service) semanticStage(ctx context.Context, ev *evaluation) (dommatch.Result, bool, error) {
	res, found, err := s.semantic(ctx, ev, nil, dommatch.MethodSemantic)
	if err != nil {
		return dommatch.Result{}, false, err
	}
	if !found {
		return dommatch.Result{Status: dommatch.StatusRejected, Method: dommatch.MethodNoMatch}, true, nil
	}
	return res, true, nil
}

// semantic scores the top candidate of a (possibly filtered) search.
func (s *Service) semantic(
	ctx context.Context, ev *evaluation, filter []string, method string,
) (dommatch.Result, bool, error) {
	if err := s.encode(ctx, ev); err != nil {
		return dommatch.Result{}, false, err
	}

	q := ev.titleVec
	if q == nil {
		q = ev.descVec
	}
	cands := s.search.SearchVector(q, s.opts.TopK, filter)
	if len(cands) == 0 {
		return dommatch.Result{}, false, nil
	}
	top := cands[0]

	cfg := s.opts.Scoring
	sig := scoring.Signals{
		Title:       top.Similarity,
		Description: s.search.DescriptionSimilarity(ev.descVec, top.Row),
		HasSkills:   len(ev.skillVecs) > 0,
	}
	if sig.HasSkills {
		sig.Skills = scoring.SkillsScore(ev.skillVecs, s.tax.SkillVectors(top.Row), cfg.Skills.Match)
	}
	fused := cfg.Fuse(sig)
	final := rules.Adjust(ev.families, top.Occupation.Code, fused.Final)

	if fused.Fallback {
		method += dommatch.FallbackSuffix
	}

	return dommatch.Result{
		OccupationURI:    top.Occupation.URI,
		OccupationLabel:  top.Occupation.PreferredLabel,
		ISCOCode:         top.Occupation.Code.String(),
		TitleScore:       fused.Title,
		SkillsScore:      fused.Skills,
		DescriptionScore: fused.Description,
		FinalScore:       final,
		Status:           cfg.Thresholds.Classify(final, ev.neverConfirm),
		Method:           method,
		Alternatives:     alternatives(cands[1:], s.opts.Alternatives),
	}, true, nil
}

func alternatives(cands []index.Candidate, n int) []dommatch.Alternative {
	if len(cands) > n {
		cands = cands[:n]
	}
	if len(cands) == 0 {
		return nil
	}
	out := make([]dommatch.Alternative, len(cands))
	for i, c := range cands {
		out[i] = dommatch.Alternative{
			OccupationURI:   c.Occupation.URI,
			OccupationLabel: c.Occupation.PreferredLabel,
			ISCOCode:        c.Occupation.Code.String(),
			Score:           vector.Clip01(c.Similarity),
		}
	}
	return out
}
