package match

import "fmt"

// Status is the confidence bucket of a match.
type Status string

// Status values. Pending is the state before scoring and the state of skipped postings.
const (
	StatusPending     Status = "PENDING"
	StatusRejected    Status = "REJECTED"
	StatusNeedsReview Status = "NEEDS_REVIEW"
	StatusConfirmed   Status = "CONFIRMED"
)

// Rank orders terminal statuses: REJECTED < NEEDS_REVIEW < CONFIRMED. Pending ranks lowest.
func (s Status) Rank() int {
	switch s {
	case StatusRejected:
		return 1
	case StatusNeedsReview:
		return 2
	case StatusConfirmed:
		return 3
	default:
		return 0
	}
}

// IsTerminal reports whether s is a scored outcome.
func (s Status) IsTerminal() bool { return s.Rank() > 0 }

// ParseStatus validates a persisted status string.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusPending, StatusRejected, StatusNeedsReview, StatusConfirmed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown match status %q", v)
	}
}
