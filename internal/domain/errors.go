package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUpstream     = errors.New("upstream failure")
	ErrInternal     = errors.New("internal error")
)

// Specific errors.
var (
	ErrInvalidGeometry       = fmt.Errorf("geometry: %w", ErrInvalidInput)
	ErrUnsupportedFileType   = fmt.Errorf("file type: %w", ErrInvalidInput)
	ErrInvalidMethod         = fmt.Errorf("method: %w", ErrInvalidInput)
	ErrMissingModelReference = fmt.Errorf("model reference: %w", ErrInvalidInput)
	ErrInvalidPath           = fmt.Errorf("path: %w", ErrInvalidInput)
	ErrWorkspaceNotFound     = fmt.Errorf("workspace: %w", ErrNotFound)
	ErrArtifactNotFound      = fmt.Errorf("artifact: %w", ErrNotFound)
	ErrJobNotFound           = fmt.Errorf("job: %w", ErrNotFound)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
	Kind       error       // Specific sentinel, defaults to ErrInvalidInput
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	if e.Kind != nil {
		return e.Kind
	}
	return ErrInvalidInput
}

// FetchError represents a failure of the external feature source.
type FetchError struct {
	Source string // Feature source name
	Err    error  // Underlying error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("feature source %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// ProcessingError represents a failure inside the processing engine.
// Params never contains filesystem paths.
type ProcessingError struct {
	Method Method
	Params map[string]interface{}
	Err    error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing with method %s failed (params: %v): %v", e.Method, e.Params, e.Err)
}

// Unwrap returns the underlying errors.
func (e *ProcessingError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (store, resolve, list)
	Key       string // Object key or path
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
