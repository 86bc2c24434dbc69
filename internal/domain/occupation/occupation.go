// Package occupation holds the immutable taxonomy entry that postings are matched to.
package occupation

import (
	"github.com/kailas-cloud/escomatch/internal/domain/isco"
)

// Occupation is one ESCO occupation with its derived ISCO unit group.
type Occupation struct {
	URI             string    `json:"uri"`
	PreferredLabel  string    `json:"preferred_label"`
	Language        string    `json:"language"`
	Description     string    `json:"description,omitempty"`
	Notation        string    `json:"notation"`
	Code            isco.Code `json:"isco_code"`
	EssentialSkills []string  `json:"essential_skills,omitempty"`
	OptionalSkills  []string  `json:"optional_skills,omitempty"`
}

// Skills returns essential followed by optional skill labels.
func (o Occupation) Skills() []string {
	out := make([]string, 0, len(o.EssentialSkills)+len(o.OptionalSkills))
	out = append(out, o.EssentialSkills...)
	out = append(out, o.OptionalSkills...)
	return out
}

// DescriptionText is the text embedded for description similarity.
// Occupations without a description fall back to their label.
func (o Occupation) DescriptionText() string {
	if o.Description == "" {
		return o.PreferredLabel
	}
	return o.PreferredLabel + ". " + o.Description
}
