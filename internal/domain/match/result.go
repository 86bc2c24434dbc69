// Package match holds the output of the occupation-matching engine.
package match

import (
	"strings"
	"time"
)

// Methods name the layer that produced a result.
const (
	MethodDictionaryBypass = "dictionary_bypass"
	MethodForcedRule       = "forced_rule"
	MethodSemanticFamily   = "semantic_family"
	MethodSemantic         = "semantic"
	MethodNoSignal         = "no_signal"
	MethodNoMatch          = "no_match"
	MethodSkippedTimeout   = "skipped_timeout"

	// FallbackSuffix marks semantic results scored without the skills term.
	FallbackSuffix = "_fallback"
)

// IsFallback reports whether method was produced by the skills-insufficient re-weighting.
func IsFallback(method string) bool { return strings.HasSuffix(method, FallbackSuffix) }

// Alternative is a runner-up candidate.
type Alternative struct {
	OccupationURI   string  `json:"occupation_uri"`
	OccupationLabel string  `json:"occupation_label"`
	ISCOCode        string  `json:"isco_code"`
	Score           float64 `json:"score"`
}

// Result is the engine output for one posting.
type Result struct {
	PostingID        string        `json:"posting_id"`
	OccupationURI    string        `json:"occupation_uri,omitempty"`
	OccupationLabel  string        `json:"occupation_label,omitempty"`
	ISCOCode         string        `json:"isco_code,omitempty"`
	TitleScore       float64       `json:"title_score"`
	SkillsScore      float64       `json:"skills_score"`
	DescriptionScore float64       `json:"description_score"`
	FinalScore       float64       `json:"final_score"`
	Status           Status        `json:"status"`
	Method           string        `json:"method"`
	RuleID           string        `json:"rule_id,omitempty"`
	Families         []string      `json:"families,omitempty"`
	NeverConfirm     bool          `json:"never_confirm,omitempty"`
	Retry            bool          `json:"retry,omitempty"`
	Alternatives     []Alternative `json:"alternatives,omitempty"`
	MatchingVersion  string        `json:"matching_version"`
	ComputedAt       time.Time     `json:"computed_at"`
}

// HasOccupation reports whether the result resolved to a taxonomy entry.
func (r Result) HasOccupation() bool { return r.OccupationURI != "" }

// Equivalent compares two results ignoring ComputedAt.
func (r Result) Equivalent(o Result) bool {
	if r.PostingID != o.PostingID || r.OccupationURI != o.OccupationURI ||
		r.OccupationLabel != o.OccupationLabel || r.ISCOCode != o.ISCOCode ||
		r.TitleScore != o.TitleScore || r.SkillsScore != o.SkillsScore ||
		r.DescriptionScore != o.DescriptionScore || r.FinalScore != o.FinalScore ||
		r.Status != o.Status || r.Method != o.Method || r.RuleID != o.RuleID ||
		r.NeverConfirm != o.NeverConfirm || r.Retry != o.Retry ||
		r.MatchingVersion != o.MatchingVersion {
		return false
	}
	if len(r.Families) != len(o.Families) || len(r.Alternatives) != len(o.Alternatives) {
		return false
	}
	for i := range r.Families {
		if r.Families[i] != o.Families[i] {
			return false
		}
	}
	for i := range r.Alternatives {
		if r.Alternatives[i] != o.Alternatives[i] {
			return false
		}
	}
	return true
}
