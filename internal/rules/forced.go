package rules

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
)

// Field selects the posting text a condition inspects.
type Field string

// Fields.
const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldAny         Field = "any"
)

// Predicate decides whether a rule applies to a posting. A non-nil error means
// the rule could not be evaluated and is treated as not matched.
type Predicate func(p posting.Posting) (bool, error)

// Condition is the declarative predicate of a forced rule. Terms and the
// pattern are matched against normalized text (see Normalize). Every set
// clause must hold.
type Condition struct {
	Field   Field             `yaml:"field,omitempty"`
	All     []string          `yaml:"all,omitempty"`
	Any     []string          `yaml:"any,omitempty"`
	None    []string          `yaml:"none,omitempty"`
	Pattern string            `yaml:"pattern,omitempty"`
	Hints   map[string]string `yaml:"hints,omitempty"`
}

// Action is what a matched rule does. Force pins the occupation; NeverConfirm
// caps the status at NEEDS_REVIEW.
type Action struct {
	Force        *Target  `yaml:"force,omitempty"`
	Score        *float64 `yaml:"score,omitempty"`
	NeverConfirm bool     `yaml:"never_confirm,omitempty"`
}

// ForcedScore is the final score of a forced classification without an explicit score.
const ForcedScore = 1.0

// ForcedRule is one (predicate, action) pair. Lower Priority evaluates first;
// equal priorities keep file order.
type ForcedRule struct {
	ID       string    `yaml:"id"`
	Priority int       `yaml:"priority"`
	When     Condition `yaml:"when"`
	Then     Action    `yaml:"then"`

	pred Predicate
}

// NewForcedRule builds a rule around a custom predicate.
func NewForcedRule(id string, priority int, pred Predicate, then Action) ForcedRule {
	return ForcedRule{ID: id, Priority: priority, Then: then, pred: pred}
}

// ForcesOccupation reports whether the rule pins an occupation.
func (r ForcedRule) ForcesOccupation() bool { return r.Then.Force != nil }

// FinalScore is the score a forced classification reports.
func (r ForcedRule) FinalScore() float64 {
	if r.Then.Score != nil {
		return *r.Then.Score
	}
	return ForcedScore
}

// compile turns the declarative condition into a predicate.
func (r *ForcedRule) compile() error {
	if r.pred != nil {
		return nil
	}
	c := r.When
	switch c.Field {
	case "":
		c.Field = FieldAny
	case FieldTitle, FieldDescription, FieldAny:
	default:
		return fmt.Errorf("rule %q: unknown field %q", r.ID, c.Field)
	}

	all, anyOf, none := normalizeAll(c.All), normalizeAll(c.Any), normalizeAll(c.None)
	var re *regexp.Regexp
	if c.Pattern != "" {
		var err error
		if re, err = regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("rule %q: pattern: %w", r.ID, err)
		}
	}
	if len(all) == 0 && len(anyOf) == 0 && re == nil && len(c.Hints) == 0 {
		return fmt.Errorf("rule %q: empty condition", r.ID)
	}
	hints := make(map[string]string, len(c.Hints))
	for k, v := range c.Hints {
		hints[k] = Normalize(v)
	}

	r.pred = func(p posting.Posting) (bool, error) {
		text := fieldText(p, c.Field)
		for _, t := range all {
			if !containsTerm(text, t) {
				return false, nil
			}
		}
		if len(anyOf) > 0 {
			hit := false
			for _, t := range anyOf {
				if containsTerm(text, t) {
					hit = true
					break
				}
			}
			if !hit {
				return false, nil
			}
		}
		for _, t := range none {
			if containsTerm(text, t) {
				return false, nil
			}
		}
		if re != nil && !re.MatchString(text) {
			return false, nil
		}
		for name, want := range hints {
			got, known := p.Hint(name)
			if !known {
				return false, fmt.Errorf("unknown hint %q", name)
			}
			// absent hints never match
			if got == "" || Normalize(got) != want {
				return false, nil
			}
		}
		return true, nil
	}
	return nil
}

func fieldText(p posting.Posting, f Field) string {
	switch f {
	case FieldTitle:
		return Normalize(p.MatchTitle())
	case FieldDescription:
		return Normalize(p.Description)
	default:
		return Normalize(p.MatchTitle() + " " + p.Description)
	}
}

// ForcedRules is the priority-ordered rule list.
type ForcedRules struct {
	rules []ForcedRule
}

// NewForcedRules validates and orders rules.
func NewForcedRules(rules []ForcedRule) (*ForcedRules, error) {
	out := make([]ForcedRule, len(rules))
	copy(out, rules)

	ids := make(map[string]struct{}, len(out))
	var errs []error
	for i := range out {
		r := &out[i]
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("rule #%d: missing id", i))
			continue
		}
		if _, dup := ids[r.ID]; dup {
			errs = append(errs, fmt.Errorf("rule %q: duplicate id", r.ID))
			continue
		}
		ids[r.ID] = struct{}{}
		if !r.ForcesOccupation() && !r.Then.NeverConfirm {
			errs = append(errs, fmt.Errorf("rule %q: action must force an occupation or set never_confirm", r.ID))
		}
		if r.Then.Score != nil && (*r.Then.Score < 0 || *r.Then.Score > 1) {
			errs = append(errs, fmt.Errorf("rule %q: score %v outside [0,1]", r.ID, *r.Then.Score))
		}
		if err := r.compile(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: forced rules: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return &ForcedRules{rules: out}, nil
}

// Rules returns the rules in evaluation order.
func (f *ForcedRules) Rules() []ForcedRule {
	if f == nil {
		return nil
	}
	return f.rules
}

// ForcedOutcome is the combined verdict of all forced rules for one posting.
type ForcedOutcome struct {
	// Force is the first matched rule that pins an occupation.
	Force *ForcedRule
	// NeverConfirm is the OR of never_confirm over every matched rule.
	NeverConfirm bool
	// Matched lists the ids of every matched rule in evaluation order.
	Matched []string
	// Errors holds one *domain.RuleError per rule that failed to evaluate.
	Errors []error
}

// Evaluate runs every rule against p. Failing rules count as not matched.
func (f *ForcedRules) Evaluate(p posting.Posting) ForcedOutcome {
	var out ForcedOutcome
	if f == nil {
		return out
	}
	for i := range f.rules {
		r := &f.rules[i]
		ok, err := evaluate(r.ID, r.pred, p)
		if err != nil {
			out.Errors = append(out.Errors, err)
			continue
		}
		if !ok {
			continue
		}
		out.Matched = append(out.Matched, r.ID)
		if r.Then.NeverConfirm {
			out.NeverConfirm = true
		}
		if out.Force == nil && r.ForcesOccupation() {
			out.Force = r
		}
	}
	return out
}

// Validate reports forced targets that do not resolve in the taxonomy.
func (f *ForcedRules) Validate(r Resolver) []domain.DictionaryIntegrityWarning {
	var out []domain.DictionaryIntegrityWarning
	for _, rule := range f.Rules() {
		if !rule.ForcesOccupation() {
			continue
		}
		if reason := checkTarget(r, *rule.Then.Force); reason != "" {
			out = append(out, domain.DictionaryIntegrityWarning{
				Source: "forced_rule",
				Key:    rule.ID,
				Label:  rule.Then.Force.Label,
				ISCO:   rule.Then.Force.ISCO,
				Reason: reason,
			})
		}
	}
	return out
}

// evaluate is the single place predicates run; errors and panics become a RuleError.
func evaluate(ruleID string, pred Predicate, p posting.Posting) (matched bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			matched = false
			err = &domain.RuleError{RuleID: ruleID, PostingID: p.ID, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	if pred == nil {
		return false, &domain.RuleError{RuleID: ruleID, PostingID: p.ID, Err: errors.New("rule not compiled")}
	}
	ok, perr := pred(p)
	if perr != nil {
		return false, &domain.RuleError{RuleID: ruleID, PostingID: p.ID, Err: perr}
	}
	return ok, nil
}
