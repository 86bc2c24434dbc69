package domain

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// FailureKind classifies startup failures that abort the process.
type FailureKind string

// Failure kinds.
const (
	KindTaxonomyLoad   FailureKind = "TAXONOMY_LOAD"
	KindEmbeddingModel FailureKind = "EMBEDDING_MODEL"
	KindInvalidConfig  FailureKind = "INVALID_CONFIG"
)

var kindSentinels = map[FailureKind]error{
	KindTaxonomyLoad:   ErrTaxonomyLoad,
	KindEmbeddingModel: ErrEmbeddingModel,
	KindInvalidConfig:  ErrInvalidConfig,
}

// Failure is a fatal error with the stack of the place it was raised.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
	Stack   []byte
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches the sentinel error of the failure kind.
func (f *Failure) Is(target error) bool {
	s, ok := kindSentinels[f.Kind]
	return ok && s == target
}

// StackTrace returns the captured stack.
func (f *Failure) StackTrace() []byte { return f.Stack }

// NewFailure creates a Failure of the given kind, capturing a stack trace.
func NewFailure(kind FailureKind, message string, err error) *Failure {
	var stack []byte
	var ge *goerrors.Error
	switch {
	case err != nil && errors.As(err, &ge):
		stack = ge.Stack()
	case err != nil:
		stack = goerrors.Wrap(err, 2).Stack()
	default:
		stack = goerrors.New(message).Stack()
	}

	return &Failure{Kind: kind, Message: message, Err: err, Stack: stack}
}

// TaxonomyLoadError creates a KindTaxonomyLoad failure.
func TaxonomyLoadError(message string, err error) *Failure {
	return NewFailure(KindTaxonomyLoad, message, err)
}

// EmbeddingModelError creates a KindEmbeddingModel failure.
func EmbeddingModelError(message string, err error) *Failure {
	return NewFailure(KindEmbeddingModel, message, err)
}

// InvalidConfigError creates a KindInvalidConfig failure.
func InvalidConfigError(message string, err error) *Failure {
	return NewFailure(KindInvalidConfig, message, err)
}
