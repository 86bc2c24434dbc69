package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfig signals a configuration that failed validation.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrTaxonomyLoad signals a malformed or unreachable taxonomy source.
	ErrTaxonomyLoad = errors.New("taxonomy load error")
	// ErrEmbeddingModel signals an embedding model that cannot be used (load failure, model mismatch).
	ErrEmbeddingModel = errors.New("embedding model error")
	// ErrEmbeddingTimeout signals an embedding call that exceeded its deadline.
	ErrEmbeddingTimeout = errors.New("embedding timeout")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")

	// ErrRuleEvaluation signals a rule predicate that failed on a posting.
	ErrRuleEvaluation = errors.New("rule evaluation error")
	// ErrDictionaryIntegrity signals dictionary entries that do not resolve in the taxonomy.
	ErrDictionaryIntegrity = errors.New("dictionary integrity warning")
)

// RuleError is the explicit failure value of a rule predicate.
type RuleError struct {
	RuleID    string
	PostingID string
	Err       error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: rule %q on posting %q: %v", ErrRuleEvaluation.Error(), e.RuleID, e.PostingID, e.Err)
}

func (e *RuleError) Unwrap() []error { return []error{ErrRuleEvaluation, e.Err} }

// DictionaryIntegrityWarning describes one dictionary (or forced-rule) target that
// does not resolve against the taxonomy.
type DictionaryIntegrityWarning struct {
	Source string // "dictionary" or "forced_rule"
	Key    string
	Label  string
	ISCO   string
	Reason string
}

func (w DictionaryIntegrityWarning) Error() string {
	return fmt.Sprintf("%s: %s %q -> %q (%s): %s",
		ErrDictionaryIntegrity.Error(), w.Source, w.Key, w.Label, w.ISCO, w.Reason)
}

func (w DictionaryIntegrityWarning) Unwrap() error { return ErrDictionaryIntegrity }
