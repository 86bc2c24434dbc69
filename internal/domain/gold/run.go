package gold

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/escomatch/internal/domain/isco"
	"github.com/kailas-cloud/escomatch/internal/domain/match"
)

// Mode selects how expected_correct=true cases are judged.
type Mode string

// Evaluation modes.
const (
	// ModeLoose passes a correct case when the matcher does not reject it.
	ModeLoose Mode = "loose"
	// ModeStrict additionally requires the code to share the unit group of
	// reference_isco_code when the case carries one.
	ModeStrict Mode = "strict"
)

// ParseMode validates a configured mode. Empty means loose.
func ParseMode(v string) (Mode, error) {
	switch m := Mode(v); m {
	case "":
		return ModeLoose, nil
	case ModeLoose, ModeStrict:
		return m, nil
	default:
		return "", fmt.Errorf("unknown gold mode %q", v)
	}
}

// Verdict is the outcome of one case in one run.
type Verdict string

// Verdict values. Missing counts as failing.
const (
	VerdictPassing Verdict = "PASSING"
	VerdictFailing Verdict = "FAILING"
	VerdictMissing Verdict = "MISSING"
)

// Passed reports whether v counts towards precision.
func (v Verdict) Passed() bool { return v == VerdictPassing }

// Judge decides a case against the result the matcher produced for its posting.
func Judge(c Case, res match.Result, mode Mode) Verdict {
	if !c.ExpectedCorrect {
		if res.HasOccupation() && isco.SameUnitGroup(res.ISCOCode, c.ExpectedISCOCode) {
			return VerdictPassing
		}
		return VerdictFailing
	}

	if !res.Status.IsTerminal() || res.Status == match.StatusRejected {
		return VerdictFailing
	}
	if mode == ModeStrict && c.ReferenceISCOCode != "" &&
		!isco.SameUnitGroup(res.ISCOCode, c.ReferenceISCOCode) {
		return VerdictFailing
	}
	return VerdictPassing
}

// CaseResult is the stored outcome of one case.
type CaseResult struct {
	PostingID       string       `json:"posting_id"`
	Verdict         Verdict      `json:"verdict"`
	ErrorType       string       `json:"error_type"`
	OccupationLabel string       `json:"occupation_label,omitempty"`
	ISCOCode        string       `json:"isco_code,omitempty"`
	FinalScore      float64      `json:"final_score"`
	Status          match.Status `json:"status,omitempty"`
	Method          string       `json:"method,omitempty"`
	RuleID          string       `json:"rule_id,omitempty"`
}

// NewCaseResult records the matcher output for c.
func NewCaseResult(c Case, res match.Result, mode Mode) CaseResult {
	return CaseResult{
		PostingID:       c.PostingID,
		Verdict:         Judge(c, res, mode),
		ErrorType:       c.ErrorTypeLabel(),
		OccupationLabel: res.OccupationLabel,
		ISCOCode:        res.ISCOCode,
		FinalScore:      res.FinalScore,
		Status:          res.Status,
		Method:          res.Method,
		RuleID:          res.RuleID,
	}
}

// MissingCaseResult records a case whose posting is absent from the source.
func MissingCaseResult(c Case) CaseResult {
	return CaseResult{PostingID: c.PostingID, Verdict: VerdictMissing, ErrorType: c.ErrorTypeLabel()}
}

// Run is a stored harness execution, keyed by matching version.
type Run struct {
	ID              string       `json:"id"`
	MatchingVersion string       `json:"matching_version"`
	Mode            Mode         `json:"mode"`
	StartedAt       time.Time    `json:"started_at"`
	Cases           []CaseResult `json:"cases"`
}

// Passed counts passing cases.
func (r Run) Passed() int {
	n := 0
	for _, c := range r.Cases {
		if c.Verdict.Passed() {
			n++
		}
	}
	return n
}

// Precision is passed/total; zero for an empty run.
func (r Run) Precision() float64 {
	if len(r.Cases) == 0 {
		return 0
	}
	return float64(r.Passed()) / float64(len(r.Cases))
}

// Case returns the stored result for a posting.
func (r Run) Case(postingID string) (CaseResult, bool) {
	for _, c := range r.Cases {
		if c.PostingID == postingID {
			return c, true
		}
	}
	return CaseResult{}, false
}
