package types

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrSourceUnavailable    = errors.New("search source unavailable")
	ErrIndexNotFound        = errors.New("index not found")
	ErrDimensionMismatch    = errors.New("vector dimensions mismatch")
	ErrEmbedding            = errors.New("embedding failed")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidName          = errors.New("invalid collection name")
)

// ConfigurationError reports an invalid search parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// Source names one of the collaborators a hybrid search depends on.
type Source string

const (
	SourceEmbedding Source = "embedding"
	SourceVector    Source = "vector"
	SourceText      Source = "text"
)

// SourceError wraps the failure of a single search source.
type SourceError struct {
	Source Source
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnavailable
}
