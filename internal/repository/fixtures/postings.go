// Package fixtures reads and writes the file-based inputs of the engine:
// JSON Lines postings, YAML gold cases and JSON Lines match output.
package fixtures

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
)

// maxLineBytes bounds one JSON Lines record. Descriptions are long.
const maxLineBytes = 4 << 20

// Postings is an in-memory posting set loaded from JSON Lines.
// It implements usecase/gold.PostingSource.
type Postings struct {
	order []string
	byID  map[string]posting.Posting
}

// OpenPostings loads a JSON Lines posting file.
func OpenPostings(path string) (*Postings, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from CLI flags
	if err != nil {
		return nil, fmt.Errorf("open postings: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadPostings(f)
}

// ReadPostings decodes one posting per line. Blank lines are skipped; a later
// record with the same id replaces the earlier one in place.
func ReadPostings(r io.Reader) (*Postings, error) {
	p := &Postings{byID: map[string]posting.Posting{}}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec posting.Posting
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("postings line %d: %w", line, err)
		}
		if strings.TrimSpace(rec.ID) == "" {
			return nil, fmt.Errorf("postings line %d: id is required", line)
		}
		if _, ok := p.byID[rec.ID]; !ok {
			p.order = append(p.order, rec.ID)
		}
		p.byID[rec.ID] = rec
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read postings: %w", err)
	}
	return p, nil
}

// Posting returns a posting by id.
func (p *Postings) Posting(_ context.Context, id string) (posting.Posting, error) {
	rec, ok := p.byID[id]
	if !ok {
		return posting.Posting{}, fmt.Errorf("posting %s: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

// All returns the postings in file order.
func (p *Postings) All() []posting.Posting {
	out := make([]posting.Posting, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id])
	}
	return out
}

// Len is the number of distinct postings.
func (p *Postings) Len() int { return len(p.order) }
