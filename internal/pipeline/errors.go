package pipeline

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
)

// ProcessingError is the classified failure for one document.
// RawFields and Violations are set only for validation failures.
type ProcessingError struct {
	Kind        llm.ErrorKind
	Message     string
	Path        string
	Provider    string
	RawFields   *llm.RawFields
	Violations  []common.ValidationError
	RawResponse []byte
	RetryAfter  time.Duration
	Cause       error
}

func (e *ProcessingError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for i, v := range e.Violations {
		if i == 0 {
			b.WriteString(" [")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(v.Field)
		b.WriteString(" ")
		b.WriteString(v.Message)
		if i == len(e.Violations)-1 {
			b.WriteString("]")
		}
	}
	return b.String()
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// Retryable defers to the kind.
func (e *ProcessingError) Retryable() bool { return e.Kind.Retryable() }

func fromExtraction(path, provider string, ee *llm.ExtractionError) *ProcessingError {
	if ee.Provider != "" {
		provider = ee.Provider
	}
	msg := ee.Message
	if msg == "" && ee.Cause != nil {
		msg = ee.Cause.Error()
	}
	return &ProcessingError{
		Kind:        ee.Kind,
		Message:     msg,
		Path:        path,
		Provider:    provider,
		RawResponse: ee.Raw,
		RetryAfter:  ee.RetryAfter,
		Cause:       ee,
	}
}
