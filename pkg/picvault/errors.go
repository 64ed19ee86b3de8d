package picvault

import (
	"errors"
	"fmt"
)

// Error taxonomy. Handlers map these onto HTTP statuses: validation 400,
// auth 401, forbidden 403, not found 404, dependency 500.
var (
	// ErrValidation indicates malformed or policy-violating input.
	ErrValidation = errors.New("validation failed")

	// ErrAuth indicates a missing, invalid or expired credential.
	ErrAuth = errors.New("authentication required")

	// ErrForbidden indicates a valid credential presented against an
	// object outside the caller's owner prefix.
	ErrForbidden = errors.New("access denied")

	// ErrNotFound indicates a missing object or user.
	ErrNotFound = errors.New("not found")

	// ErrDependency indicates the object store or queue is unavailable.
	// Details are logged server-side and never surfaced to callers.
	ErrDependency = errors.New("dependency unavailable")

	// ErrQueueUnavailable indicates the thumbnail queue could not be
	// reached or resolved. The upload path degrades to skip-enqueue.
	ErrQueueUnavailable = errors.New("thumbnail queue unavailable")

	// ErrTransform indicates a corrupt or unsupported image. It is
	// swallowed per job by the worker and never reaches the uploader.
	ErrTransform = errors.New("image transform failed")
)

// StorageError wraps a failed blob store operation with its key context.
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// QueueError wraps a failed queue operation.
type QueueError struct {
	Op  string
	Err error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue operation %s failed: %v", e.Op, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}
