// Package posting holds the job offer record consumed from the NLP extraction stage.
package posting

import "strings"

// Posting is a scraped job offer enriched by NLP extraction.
// FunctionalArea, Seniority and Sector are optional hints; empty means absent.
type Posting struct {
	ID                string   `json:"id"`
	Source            string   `json:"source,omitempty"`
	Title             string   `json:"title"`
	CleanedTitle      string   `json:"cleaned_title,omitempty"`
	Description       string   `json:"description,omitempty"`
	ExtractedSkills   []string `json:"extracted_skills,omitempty"`
	FunctionalArea    string   `json:"functional_area,omitempty"`
	Seniority         string   `json:"seniority_level,omitempty"`
	Sector            string   `json:"sector,omitempty"`
	ProcessingVersion string   `json:"processing_version,omitempty"`
}

// MatchTitle returns the cleaned title, falling back to the raw title.
func (p Posting) MatchTitle() string {
	if t := strings.TrimSpace(p.CleanedTitle); t != "" {
		return t
	}
	return strings.TrimSpace(p.Title)
}

// HasSignal reports whether the posting carries any text to match on.
func (p Posting) HasSignal() bool {
	return p.MatchTitle() != "" || strings.TrimSpace(p.Description) != ""
}

// Skills returns the non-blank extracted skills.
func (p Posting) Skills() []string {
	out := make([]string, 0, len(p.ExtractedSkills))
	for _, s := range p.ExtractedSkills {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Hint returns an auxiliary attribute by name ("functional_area", "seniority", "sector").
// The second result is false for unknown names.
func (p Posting) Hint(name string) (string, bool) {
	switch name {
	case "functional_area":
		return p.FunctionalArea, true
	case "seniority", "seniority_level":
		return p.Seniority, true
	case "sector":
		return p.Sector, true
	case "source":
		return p.Source, true
	default:
		return "", false
	}
}
