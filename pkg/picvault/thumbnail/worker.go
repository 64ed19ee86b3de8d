package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/picvault/picvault/pkg/picvault"
	"github.com/picvault/picvault/pkg/picvault/objectkey"
	"github.com/picvault/picvault/pkg/picvault/queue"
)

// DefaultJobTimeout bounds the object store work for one job. A hung
// download or upload times out and leaves the message for redelivery.
const DefaultJobTimeout = 30 * time.Second

// Worker consumes thumbnail jobs and stores derived images. Jobs are
// independent and processing is idempotent (same derived key, overwritten
// in place), so any number of workers can run concurrently.
type Worker struct {
	store      picvault.BlobStore
	queue      queue.JobQueue
	width      int
	height     int
	batch      int
	jobTimeout time.Duration
	logger     *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithDimensions overrides the thumbnail bounding box.
func WithDimensions(width, height int) WorkerOption {
	return func(w *Worker) {
		if width > 0 && height > 0 {
			w.width = width
			w.height = height
		}
	}
}

// WithBatchSize overrides how many messages one Receive may return.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithJobTimeout overrides the per-job object store timeout.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker creates a thumbnail worker.
func NewWorker(store picvault.BlobStore, q queue.JobQueue, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:      store,
		queue:      q,
		width:      DefaultWidth,
		height:     DefaultHeight,
		batch:      1,
		jobTimeout: DefaultJobTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Run polls the queue until ctx is cancelled. Per-job failures are
// isolated: one corrupt image or missing original never stops the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("thumbnail worker started", "width", w.width, "height", w.height)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("thumbnail worker stopping")
			return ctx.Err()
		default:
		}

		messages, err := w.queue.Receive(ctx, w.batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("receive failed, backing off", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range messages {
			w.handle(ctx, msg)
		}
	}
}

// RunOnce drains currently visible messages and returns; used by tests and
// manual reconciliation replays.
func (w *Worker) RunOnce(ctx context.Context) error {
	for {
		messages, err := w.queue.Receive(ctx, w.batch)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}
		for _, msg := range messages {
			w.handle(ctx, msg)
		}
	}
}

// handle processes one delivery and decides how to settle it. Permanent
// failures (missing original, corrupt image) settle the message so it does
// not redeliver forever; transient storage failures leave it for
// redelivery under the queue's own dead-letter policy.
func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	logger := w.logger.With("key", msg.Job.Key)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	err := w.process(jobCtx, msg.Job)
	cancel()
	switch {
	case err == nil:
		w.settle(ctx, msg, logger)
	case errors.Is(err, picvault.ErrNotFound):
		// Original deleted between upload and processing: non-fatal.
		logger.Warn("original missing, dropping job")
		w.settle(ctx, msg, logger)
	case errors.Is(err, picvault.ErrTransform):
		logger.Warn("transform failed, dropping job", "err", err)
		w.settle(ctx, msg, logger)
	default:
		logger.Error("job failed, leaving for redelivery", "err", err)
	}
}

// process fetches the original, generates the derived image and stores it
// under the deterministic derived key. Replaying the same job overwrites
// the same key, creating no duplicates.
func (w *Worker) process(ctx context.Context, job picvault.ThumbnailJob) error {
	if objectkey.IsDerived(job.Key) {
		// A job referencing a thumbnail would derive a thumbnail of a
		// thumbnail; drop it.
		return nil
	}

	derivedKey, err := objectkey.Derived(job.Key)
	if err != nil {
		return picvault.ErrTransform
	}

	body, _, err := w.store.Download(ctx, job.Key)
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := Generate(body, w.width, w.height)
	if err != nil {
		return err
	}

	if err := w.store.Upload(ctx, derivedKey, "image/jpeg", bytes.NewReader(data)); err != nil {
		return err
	}
	w.logger.Info("thumbnail stored", "key", job.Key, "derived_key", derivedKey, "size", len(data))
	return nil
}

func (w *Worker) settle(ctx context.Context, msg queue.Message, logger *slog.Logger) {
	if err := w.queue.Delete(ctx, msg.Handle); err != nil {
		logger.Warn("settle failed, message may redeliver", "err", err)
	}
}
