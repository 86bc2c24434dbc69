package gold

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	domgold "github.com/kailas-cloud/escomatch/internal/domain/gold"
)

// Breakdown aggregates verdicts under one key.
type Breakdown struct {
	Key    string
	Total  int
	Passed int
}

// Precision is Passed/Total.
func (b Breakdown) Precision() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Passed) / float64(b.Total)
}

// Diff pairs the prior and the new outcome of a case. Old is nil when the
// prior run did not contain the case.
type Diff struct {
	PostingID string
	Old       *domgold.CaseResult
	New       domgold.CaseResult
}

// Report is the harness output.
type Report struct {
	Run   domgold.Run
	Prior *domgold.Run

	ByErrorType []Breakdown
	ByMethod    []Breakdown
	// ByRule covers cases resolved by a dictionary entry or forced rule.
	ByRule []Breakdown

	// Regressions passed in the prior run and fail now.
	Regressions []Diff
	// Improvements failed in the prior run and pass now.
	Improvements []Diff
	// Diffs has one row per case, in case order.
	Diffs []Diff
}

// NewReport aggregates run and compares it against prior (which may be nil).
func NewReport(run domgold.Run, prior *domgold.Run) Report {
	r := Report{Run: run, Prior: prior}

	byErr := map[string]*Breakdown{}
	byMethod := map[string]*Breakdown{}
	byRule := map[string]*Breakdown{}
	for _, c := range run.Cases {
		add(byErr, c.ErrorType, c.Verdict)
		method := c.Method
		if c.Verdict == domgold.VerdictMissing {
			method = "missing"
		}
		add(byMethod, method, c.Verdict)
		if c.RuleID != "" {
			add(byRule, c.RuleID, c.Verdict)
		}

		d := Diff{PostingID: c.PostingID, New: c}
		if prior != nil {
			if old, ok := prior.Case(c.PostingID); ok {
				d.Old = &old
				switch {
				case old.Verdict.Passed() && !c.Verdict.Passed():
					r.Regressions = append(r.Regressions, d)
				case !old.Verdict.Passed() && c.Verdict.Passed():
					r.Improvements = append(r.Improvements, d)
				}
			}
		}
		r.Diffs = append(r.Diffs, d)
	}

	r.ByErrorType = sorted(byErr)
	r.ByMethod = sorted(byMethod)
	r.ByRule = sorted(byRule)
	return r
}

func add(m map[string]*Breakdown, key string, v domgold.Verdict) {
	b, ok := m[key]
	if !ok {
		b = &Breakdown{Key: key}
		m[key] = b
	}
	b.Total++
	if v.Passed() {
		b.Passed++
	}
}

func sorted(m map[string]*Breakdown) []Breakdown {
	out := make([]Breakdown, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Write renders the report as aligned plain-text tables.
func (r Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "matching_version:\t%s\n", r.Run.MatchingVersion)
	fmt.Fprintf(tw, "mode:\t%s\n", r.Run.Mode)
	if r.Prior != nil {
		fmt.Fprintf(tw, "prior:\t%s (precision %.3f)\n", r.Prior.MatchingVersion, r.Prior.Precision())
	}
	fmt.Fprintf(tw, "precision:\t%.3f (%d/%d)\n", r.Run.Precision(), r.Run.Passed(), len(r.Run.Cases))

	writeBreakdown(tw, "error_type", r.ByErrorType)
	writeBreakdown(tw, "method", r.ByMethod)
	writeBreakdown(tw, "rule", r.ByRule)

	fmt.Fprintf(tw, "\nregressions: %d\timprovements: %d\n", len(r.Regressions), len(r.Improvements))
	for _, d := range r.Regressions {
		fmt.Fprintf(tw, "  REGRESSION\t%s\t%s\n", d.PostingID, d.New.ErrorType)
	}
	for _, d := range r.Improvements {
		fmt.Fprintf(tw, "  IMPROVEMENT\t%s\t%s\n", d.PostingID, d.New.ErrorType)
	}

	fmt.Fprintln(tw, "\nposting_id\tverdict\told_label\told_score\told_status\tnew_label\tnew_score\tnew_status\tmethod")
	for _, d := range r.Diffs {
		oldLabel, oldScore, oldStatus := "-", "-", "-"
		if d.Old != nil {
			oldLabel = label(*d.Old)
			oldScore = fmt.Sprintf("%.3f", d.Old.FinalScore)
			oldStatus = string(d.Old.Status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%.3f\t%s\t%s\n",
			d.PostingID, d.New.Verdict,
			oldLabel, oldScore, oldStatus,
			label(d.New), d.New.FinalScore, d.New.Status, d.New.Method,
		)
	}
	return tw.Flush()
}

func writeBreakdown(w io.Writer, title string, rows []Breakdown) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\ttotal\tpassed\tprecision\n", title)
	for _, b := range rows {
		fmt.Fprintf(w, "  %s\t%d\t%d\t%.3f\n", b.Key, b.Total, b.Passed, b.Precision())
	}
}

func label(c domgold.CaseResult) string {
	if c.ISCOCode == "" {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", c.OccupationLabel, c.ISCOCode)
}
