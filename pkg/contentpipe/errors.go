package contentpipe

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNotFound is the base error for absent entities.
	ErrNotFound = errors.New("not found")

	// ErrObjectNotFound indicates a stored object was not found
	ErrObjectNotFound = fmt.Errorf("object %w", ErrNotFound)

	// ErrVersionNotFound indicates an object version was not found
	ErrVersionNotFound = fmt.Errorf("version %w", ErrNotFound)

	// ErrVariantNotFound indicates a derived asset was not found
	ErrVariantNotFound = fmt.Errorf("variant %w", ErrNotFound)

	// ErrSubscriptionNotFound indicates a webhook subscription was not found
	ErrSubscriptionNotFound = fmt.Errorf("subscription %w", ErrNotFound)

	// ErrSessionNotFound indicates an unknown, finalized or expired upload session
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrInvalidRequest indicates bad parameters, a disallowed content type
	// or an oversize payload
	ErrInvalidRequest = errors.New("invalid request")

	// ErrFeatureDisabled indicates the subsystem is turned off at the
	// deployment level
	ErrFeatureDisabled = errors.New("feature disabled")

	// ErrConflict indicates the target path already exists where uniqueness
	// is required
	ErrConflict = errors.New("conflict")

	// ErrRangeNotSatisfiable indicates a byte range outside the object size
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// IncompleteUploadError is returned by Finalize when not all chunks have
// arrived. It reports the exact shortfall.
type IncompleteUploadError struct {
	Received int
	Total    int
}

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("incomplete upload: received %d of %d chunks (%d missing)",
		e.Received, e.Total, e.Total-e.Received)
}

// ObjectError represents an error related to object operations
type ObjectError struct {
	Path string
	Op   string
	Err  error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("object operation %s failed for path %s: %v", e.Op, e.Path, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// StorageError represents an error surfaced by a storage backend
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
