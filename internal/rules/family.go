package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/isco"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
	"github.com/kailas-cloud/escomatch/internal/domain/vector"
)

// Family defaults.
const (
	DefaultMinDescriptionHits = 2
	DefaultFamilyBonus        = 0.05
	DefaultFamilyPenalty      = 0.05
)

// Family is a functional occupational grouping (sales, administrative, ...).
// A posting belongs to it when any title keyword occurs in the title, or at
// least MinDescriptionHits distinct description keywords occur in the description.
type Family struct {
	Name                string   `yaml:"name"`
	TitleKeywords       []string `yaml:"title_keywords"`
	DescriptionKeywords []string `yaml:"description_keywords,omitempty"`
	MinDescriptionHits  int      `yaml:"min_description_hits,omitempty"`
	ISCOPrefixes        []string `yaml:"isco_prefixes"`
	Bonus               *float64 `yaml:"bonus,omitempty"`
	Penalty             *float64 `yaml:"penalty,omitempty"`

	title []string
	desc  []string
}

// Agrees reports whether code lies inside one of the family's prefixes.
func (f Family) Agrees(code isco.Code) bool {
	for _, p := range f.ISCOPrefixes {
		if code.HasPrefix(p) {
			return true
		}
	}
	return false
}

func (f Family) bonus() float64 {
	if f.Bonus != nil {
		return *f.Bonus
	}
	return DefaultFamilyBonus
}

func (f Family) penalty() float64 {
	if f.Penalty != nil {
		return *f.Penalty
	}
	return DefaultFamilyPenalty
}

func (f Family) matches(title, desc string) bool {
	for _, k := range f.title {
		if containsTerm(title, k) {
			return true
		}
	}
	if len(f.desc) == 0 || desc == "" {
		return false
	}
	hits := 0
	for _, k := range f.desc {
		if containsTerm(desc, k) {
			hits++
			if hits >= f.MinDescriptionHits {
				return true
			}
		}
	}
	return false
}

// FamilySet holds the configured family classifiers in file order.
type FamilySet struct {
	families []Family
}

// NewFamilySet validates families and pre-normalizes their keywords.
func NewFamilySet(families []Family) (*FamilySet, error) {
	out := make([]Family, len(families))
	copy(out, families)

	names := make(map[string]struct{}, len(out))
	var errs []error
	for i := range out {
		f := &out[i]
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("family #%d: missing name", i))
			continue
		}
		if _, dup := names[f.Name]; dup {
			errs = append(errs, fmt.Errorf("family %q: duplicate name", f.Name))
		}
		names[f.Name] = struct{}{}
		if len(f.ISCOPrefixes) == 0 {
			errs = append(errs, fmt.Errorf("family %q: no isco_prefixes", f.Name))
		}
		for _, p := range f.ISCOPrefixes {
			if len(p) == 0 || len(p) > isco.Digits || !isDigits(p) {
				errs = append(errs, fmt.Errorf("family %q: invalid prefix %q", f.Name, p))
			}
		}
		if f.MinDescriptionHits <= 0 {
			f.MinDescriptionHits = DefaultMinDescriptionHits
		}
		if f.bonus() < 0 || f.bonus() > 1 || f.penalty() < 0 || f.penalty() > 1 {
			errs = append(errs, fmt.Errorf("family %q: bonus and penalty must be in [0,1]", f.Name))
		}
		f.title = normalizeAll(f.TitleKeywords)
		f.desc = normalizeAll(f.DescriptionKeywords)
		if len(f.title) == 0 && len(f.desc) == 0 {
			errs = append(errs, fmt.Errorf("family %q: no keywords", f.Name))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: families: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return &FamilySet{families: out}, nil
}

// Families returns the configured families.
func (s *FamilySet) Families() []Family {
	if s == nil {
		return nil
	}
	return s.families
}

// Detect returns every family the posting belongs to.
func (s *FamilySet) Detect(p posting.Posting) []Family {
	if s == nil || len(s.families) == 0 {
		return nil
	}
	title := Normalize(p.MatchTitle())
	desc := Normalize(p.Description)
	var out []Family
	for _, f := range s.families {
		if f.matches(title, desc) {
			out = append(out, f)
		}
	}
	return out
}

// Names lists family names.
func Names(fams []Family) []string {
	out := make([]string, len(fams))
	for i, f := range fams {
		out[i] = f.Name
	}
	return out
}

// Prefixes is the sorted union of the families' ISCO prefixes, usable as a
// search filter.
func Prefixes(fams []Family) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range fams {
		for _, p := range f.ISCOPrefixes {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Adjust applies the family bonus when code agrees with a detected family and
// the penalty when it agrees with none. The largest applicable value is used.
func Adjust(fams []Family, code isco.Code, score float64) float64 {
	if len(fams) == 0 || code.IsZero() {
		return score
	}
	var bonus, penalty float64
	agreed := false
	for _, f := range fams {
		if f.Agrees(code) {
			agreed = true
			bonus = max(bonus, f.bonus())
		} else {
			penalty = max(penalty, f.penalty())
		}
	}
	if agreed {
		return vector.Clip01(score + bonus)
	}
	return vector.Clip01(score - penalty)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
