// Package batch describes what happened to each posting of a batch run.
package batch

import dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"

// Outcome is the processing fate of one posting.
type Outcome string

// Skipped postings were neither matched to completion nor persisted; rerun them.
const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "error"
)

// Result records one posting's outcome. Status is set only for OutcomeOK.
type Result struct {
	PostingID string
	Outcome   Outcome
	Status    dommatch.Status
	Err       error
}

// Done records a match that reached every sink.
func Done(m dommatch.Result) Result {
	return Result{PostingID: m.PostingID, Outcome: OutcomeOK, Status: m.Status}
}

// Skipped records a posting left for the next run.
func Skipped(postingID string, reason error) Result {
	return Result{PostingID: postingID, Outcome: OutcomeSkipped, Err: reason}
}

// Failed records a posting whose result could not be persisted.
func Failed(postingID string, err error) Result {
	return Result{PostingID: postingID, Outcome: OutcomeFailed, Err: err}
}

// Tally counts outcomes, and match statuses among the OK ones.
type Tally struct {
	OK       int
	Skipped  int
	Failed   int
	ByStatus map[dommatch.Status]int
}

// Count tallies rs.
func Count(rs []Result) Tally {
	t := Tally{ByStatus: make(map[dommatch.Status]int)}
	for _, r := range rs {
		switch r.Outcome {
		case OutcomeOK:
			t.OK++
			t.ByStatus[r.Status]++
		case OutcomeSkipped:
			t.Skipped++
		default:
			t.Failed++
		}
	}
	return t
}
