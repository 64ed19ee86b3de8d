// Package memory provides an in-memory job queue for tests and
// single-process deployments. It mimics at-least-once semantics: received
// messages are redelivered after their visibility window unless deleted.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/picvault/picvault/pkg/picvault"
	"github.com/picvault/picvault/pkg/picvault/queue"
)

type delivery struct {
	job         picvault.ThumbnailJob
	handle      string
	invisibleTo time.Time
	deleted     bool
}

// Queue is an in-memory implementation of queue.JobQueue.
type Queue struct {
	mu                sync.Mutex
	deliveries        []*delivery
	visibilityTimeout time.Duration

	// Fail forces Enqueue to report queue unavailability; tests use it
	// to exercise the skip-enqueue upload path.
	Fail bool
}

// New creates an in-memory job queue.
func New() *Queue {
	return &Queue{visibilityTimeout: 30 * time.Second}
}

// Enqueue appends one job.
func (q *Queue) Enqueue(ctx context.Context, job picvault.ThumbnailJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.Fail {
		return picvault.ErrQueueUnavailable
	}
	q.deliveries = append(q.deliveries, &delivery{
		job:    job,
		handle: uuid.NewString(),
	})
	return nil
}

// Receive returns up to max visible messages without blocking.
func (q *Queue) Receive(ctx context.Context, max int) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var messages []queue.Message
	for _, d := range q.deliveries {
		if len(messages) >= max {
			break
		}
		if d.deleted || now.Before(d.invisibleTo) {
			continue
		}
		d.invisibleTo = now.Add(q.visibilityTimeout)
		// A redelivery carries a fresh handle, as SQS does.
		d.handle = uuid.NewString()
		messages = append(messages, queue.Message{Job: d.job, Handle: d.handle})
	}
	return messages, nil
}

// Delete settles the delivery with the given handle.
func (q *Queue) Delete(ctx context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, d := range q.deliveries {
		if d.handle == handle {
			d.deleted = true
			return nil
		}
	}
	return picvault.ErrNotFound
}

// Redeliver makes all undeleted messages immediately visible again. Tests
// use it to simulate at-least-once redelivery without waiting.
func (q *Queue) Redeliver() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range q.deliveries {
		if !d.deleted {
			d.invisibleTo = time.Time{}
		}
	}
}

// Pending reports how many messages have not been settled.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, d := range q.deliveries {
		if !d.deleted {
			n++
		}
	}
	return n
}
