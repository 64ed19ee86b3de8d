// Package queue decouples the upload path from the thumbnail worker. The
// contract is at-least-once: a received message stays visible for
// redelivery until explicitly deleted, and consumers must tolerate
// duplicates.
package queue

import (
	"context"

	"github.com/picvault/picvault/pkg/picvault"
)

// Message is one delivered thumbnail job plus the handle needed to settle it.
type Message struct {
	Job picvault.ThumbnailJob

	// Handle identifies this delivery for Delete. Redeliveries of the
	// same job carry different handles.
	Handle string
}

// JobQueue is the transport between upload handler and thumbnail worker.
type JobQueue interface {
	// Enqueue publishes a job. Implementations must not retry
	// indefinitely; a failed or timed-out enqueue returns an error the
	// caller treats as skip-enqueue.
	Enqueue(ctx context.Context, job picvault.ThumbnailJob) error

	// Receive returns up to max messages, blocking up to the
	// implementation's poll interval when the queue is empty.
	Receive(ctx context.Context, max int) ([]Message, error)

	// Delete settles one delivery so it is not redelivered.
	Delete(ctx context.Context, handle string) error
}
