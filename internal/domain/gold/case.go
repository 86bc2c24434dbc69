// Package gold holds hand-validated regression fixtures.
package gold

import (
	"fmt"
	"strings"
)

// ErrorType classifies why a reviewer marked a match as wrong.
type ErrorType string

// Known error types. Other values are accepted and reported verbatim.
const (
	ErrorNone             ErrorType = ""
	ErrorHierarchyLevel   ErrorType = "hierarchy-level"
	ErrorWrongSector      ErrorType = "wrong-sector"
	ErrorTooSpecific      ErrorType = "too-specific"
	ErrorTooGeneric       ErrorType = "too-generic"
	ErrorAmbiguousProgram ErrorType = "ambiguous-program"
	ErrorOther            ErrorType = "other"
)

// KnownErrorTypes lists the error types offered when authoring cases.
var KnownErrorTypes = []ErrorType{
	ErrorHierarchyLevel, ErrorWrongSector, ErrorTooSpecific,
	ErrorTooGeneric, ErrorAmbiguousProgram, ErrorOther,
}

// Case is one gold-set fixture. Cases are immutable once authored.
type Case struct {
	PostingID         string    `yaml:"posting_id" json:"posting_id"`
	ExpectedCorrect   bool      `yaml:"expected_correct" json:"expected_correct"`
	ExpectedISCOCode  string    `yaml:"expected_isco_code,omitempty" json:"expected_isco_code,omitempty"`
	ReferenceISCOCode string    `yaml:"reference_isco_code,omitempty" json:"reference_isco_code,omitempty"`
	ErrorType         ErrorType `yaml:"error_type,omitempty" json:"error_type,omitempty"`
	ReviewerComment   string    `yaml:"reviewer_comment,omitempty" json:"reviewer_comment,omitempty"`
}

// Validate checks the authoring invariants of a case.
func (c Case) Validate() error {
	if strings.TrimSpace(c.PostingID) == "" {
		return fmt.Errorf("posting_id is required")
	}
	if !c.ExpectedCorrect && strings.TrimSpace(c.ExpectedISCOCode) == "" {
		return fmt.Errorf("case %s: expected_isco_code is required when expected_correct is false", c.PostingID)
	}
	return nil
}

// ErrorTypeLabel returns the breakdown key of the case.
func (c Case) ErrorTypeLabel() string {
	if c.ErrorType == ErrorNone {
		if c.ExpectedCorrect {
			return "correct"
		}
		return "unclassified"
	}
	return string(c.ErrorType)
}
