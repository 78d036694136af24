package socialcontent

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrInvalidInput indicates an empty, malformed or oversized request
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is the parent of every "missing record" error
	ErrNotFound = errors.New("not found")

	// ErrFileNotFound indicates a stored file or its bytes were not found
	ErrFileNotFound = fmt.Errorf("file %w", ErrNotFound)

	// ErrAttachmentNotFound indicates an attachment was not found
	ErrAttachmentNotFound = fmt.Errorf("attachment %w", ErrNotFound)

	// ErrPostNotFound indicates a post was not found
	ErrPostNotFound = fmt.Errorf("post %w", ErrNotFound)

	// ErrAccountNotFound indicates no account matches the principal or id
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)

	// ErrEdgeNotFound indicates a membership edge was not found
	ErrEdgeNotFound = fmt.Errorf("membership edge %w", ErrNotFound)

	// ErrBlobNotFound is returned by BlobStore implementations for missing keys
	ErrBlobNotFound = fmt.Errorf("blob %w", ErrNotFound)

	// ErrStorageFailure indicates a storage backend I/O error; callers may retry
	ErrStorageFailure = errors.New("storage failure")

	// ErrForbidden indicates the acting account does not own the entity
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates the operation is not allowed in the current state
	ErrConflict = errors.New("conflict")

	// ErrPartialFailure indicates fan-out reached only some followers
	ErrPartialFailure = errors.New("partial failure")

	// ErrFanoutFailed indicates fan-out could not start (follower lookup failed)
	ErrFanoutFailed = errors.New("fan-out failed")
)

// FileError represents an error related to stored file operations
type FileError struct {
	FileID uuid.UUID
	Op     string
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file operation %s failed for file %s: %v", e.Op, e.FileID, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// AttachmentError represents an error related to attachment operations
type AttachmentError struct {
	ParentID uuid.UUID
	Op       string
	Err      error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment operation %s failed for parent %s: %v", e.Op, e.ParentID, e.Err)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations. It always
// matches ErrStorageFailure, except when the underlying error is a missing blob.
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

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure && !errors.Is(e.Err, ErrBlobNotFound)
}

// PartialFailureError reports a fan-out that reached only some followers.
// The post itself is durable; Undelivered can be retried with Propagate.
type PartialFailureError struct {
	PostID      uuid.UUID
	Delivered   int
	Undelivered []uuid.UUID
	Err         error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("fan-out of post %s reached %d followers, %d undelivered: %v",
		e.PostID, e.Delivered, len(e.Undelivered), e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
