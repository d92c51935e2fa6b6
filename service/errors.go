package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFileType is returned when an upload does not carry an accepted extension.
	ErrInvalidFileType = errors.New("invalid file type")
	// ErrFileTooLarge is returned when an upload exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrContractNotFound is returned when no contract exists for an id.
	ErrContractNotFound = errors.New("contract not found")
	// ErrBlobNotFound is returned by a BlobStore when no blob exists for a key.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrInvalidTransition is returned when a status update does not match the
	// record's current state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEngineUnavailable marks transport or availability failures of the analysis engine.
	ErrEngineUnavailable = errors.New("analysis engine unavailable")
	// ErrInvalidResponse marks analysis responses that do not match the expected shape.
	ErrInvalidResponse = errors.New("invalid analysis response")
)

// ExtractionError wraps the underlying cause of a failed text extraction.
type ExtractionError struct {
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %v", e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

func newExtractionError(format string, args ...any) *ExtractionError {
	return &ExtractionError{Cause: fmt.Errorf(format, args...)}
}

// AnalysisError is returned by an Analyzer. Kind is either ErrEngineUnavailable
// or ErrInvalidResponse, so callers can use errors.Is on it.
type AnalysisError struct {
	Kind  error
	Cause error
}

func (e *AnalysisError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

func (e *AnalysisError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func engineUnavailable(cause error) *AnalysisError {
	return &AnalysisError{Kind: ErrEngineUnavailable, Cause: cause}
}

func invalidResponse(cause error) *AnalysisError {
	return &AnalysisError{Kind: ErrInvalidResponse, Cause: cause}
}
