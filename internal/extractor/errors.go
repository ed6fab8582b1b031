package extractor

import (
	"errors"
	"fmt"
)

// Kind classifies why an analysis could not produce a usable record.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindMalformedOutput  Kind = "malformed_output"
	KindIncompleteSchema Kind = "incomplete_schema"
	KindStoreUnavailable Kind = "store_unavailable"
	KindTimeout          Kind = "timeout"
)

// excerptLen is the number of runes of a raw reply kept for diagnostics.
const excerptLen = 200

// IngestError is the failure side of every analysis, decode and store step.
type IngestError struct {
	Kind       Kind   `json:"kind"`
	Detail     string `json:"detail"`
	RawExcerpt string `json:"raw_excerpt,omitempty"`
	Err        error  `json:"-"`
}

func (e *IngestError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *IngestError) Unwrap() error { return e.Err }

// NewIngestError builds an IngestError, taking Detail from err when set.
func NewIngestError(kind Kind, detail string, err error) *IngestError {
	if detail == "" && err != nil {
		detail = err.Error()
	}
	return &IngestError{Kind: kind, Detail: detail, Err: err}
}

// IsKind reports whether err is an IngestError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind == kind
	}
	return false
}

// AsIngestError returns err as an IngestError, or nil.
func AsIngestError(err error) *IngestError {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie
	}
	return nil
}

func excerpt(raw string) string {
	r := []rune(raw)
	if len(r) <= excerptLen {
		return raw
	}
	return string(r[:excerptLen])
}
