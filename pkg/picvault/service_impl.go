package picvault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/picvault/picvault/pkg/picvault/objectkey"
)

// JobEnqueuer is the narrow queue dependency of the upload path. The full
// queue.JobQueue interface also covers the worker side; the service only
// ever publishes.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job ThumbnailJob) error
}

// Default upload policy.
const (
	DefaultMaxUploadSize = int64(10 << 20) // 10 MiB
)

// DefaultAllowedTypes is the content-type allow-list applied when none is
// configured.
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// service implements the Service interface.
type service struct {
	store         BlobStore
	queue         JobEnqueuer
	bucket        string
	maxUploadSize int64
	allowedTypes  map[string]struct{}
	logger        *slog.Logger
}

// Option represents a functional option for configuring the service.
type Option func(*service)

// WithBlobStore sets the blob storage backend.
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithQueue sets the thumbnail job queue. Without a queue the service
// stores uploads but never enqueues jobs.
func WithQueue(q JobEnqueuer) Option {
	return func(s *service) {
		s.queue = q
	}
}

// WithBucket sets the bucket name carried in thumbnail jobs.
func WithBucket(bucket string) Option {
	return func(s *service) {
		s.bucket = bucket
	}
}

// WithMaxUploadSize overrides the upload size limit in bytes.
func WithMaxUploadSize(max int64) Option {
	return func(s *service) {
		if max > 0 {
			s.maxUploadSize = max
		}
	}
}

// WithAllowedTypes overrides the content-type allow-list.
func WithAllowedTypes(types []string) Option {
	return func(s *service) {
		s.allowedTypes = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.allowedTypes[t] = struct{}{}
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options.
func New(options ...Option) (Service, error) {
	s := &service{
		bucket:        "userimages",
		maxUploadSize: DefaultMaxUploadSize,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.allowedTypes == nil {
		s.allowedTypes = make(map[string]struct{}, len(DefaultAllowedTypes))
		for _, t := range DefaultAllowedTypes {
			s.allowedTypes[t] = struct{}{}
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// Upload validates, stores and enqueues. Storage success is never rolled
// back on queue failure: the upload is reported successful and the missing
// thumbnail is left for later reconciliation.
func (s *service) Upload(ctx context.Context, req UploadRequest) (*Image, error) {
	if req.Owner == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrAuth)
	}
	if req.Filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if req.Body == nil {
		return nil, fmt.Errorf("%w: no file uploaded", ErrValidation)
	}
	if req.Size > s.maxUploadSize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrValidation, s.maxUploadSize)
	}

	// Read through a limit one byte past the cap so oversized payloads
	// with unknown length are rejected before anything is stored.
	data, err := io.ReadAll(io.LimitReader(req.Body, s.maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload: %v", ErrValidation, err)
	}
	if int64(len(data)) > s.maxUploadSize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrValidation, s.maxUploadSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrValidation)
	}

	contentType := req.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		// Clients that do not know better send octet-stream; sniff the
		// real type from the payload instead.
		contentType = http.DetectContentType(data)
	}
	if _, ok := s.allowedTypes[contentType]; !ok {
		return nil, fmt.Errorf("%w: content type %q not allowed", ErrValidation, contentType)
	}

	key, err := objectkey.ForUpload(req.Owner, req.Filename, time.Now(), uuid.New())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := s.store.Upload(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		s.logger.Error("upload to object store failed", "key", key, "err", err)
		return nil, fmt.Errorf("%w: object store put failed", ErrDependency)
	}
	s.logger.Info("stored original", "key", key, "size", len(data), "content_type", contentType)

	// Enqueue only after the put has durably succeeded, so a job never
	// references a missing object.
	s.enqueueThumbnailJob(ctx, req.Owner, key)

	return &Image{Key: key, Size: int64(len(data)), LastModified: time.Now()}, nil
}

// enqueueThumbnailJob publishes the job, logging instead of failing when
// the queue is down. A reconciliation scan over the catalog can replay
// missing thumbnails later.
func (s *service) enqueueThumbnailJob(ctx context.Context, owner, key string) {
	if s.queue == nil {
		s.logger.Warn("no queue configured, skipping thumbnail job", "key", key)
		return
	}
	job := ThumbnailJob{
		Bucket:     s.bucket,
		Key:        key,
		Owner:      owner,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Warn("thumbnail job enqueue failed, upload kept", "key", key, "err", err)
		return
	}
	s.logger.Info("thumbnail job enqueued", "key", key)
}

// List returns the caller's objects. The prefix always includes the
// trailing separator; an empty owner is rejected rather than widening the
// listing.
func (s *service) List(ctx context.Context, owner string) ([]Image, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrValidation)
	}

	infos, err := s.store.List(ctx, objectkey.Prefix(owner))
	if err != nil {
		s.logger.Error("list failed", "owner", owner, "err", err)
		return nil, fmt.Errorf("%w: object store list failed", ErrDependency)
	}

	images := make([]Image, 0, len(infos))
	for _, info := range infos {
		images = append(images, Image{
			Key:          info.Key,
			Size:         info.Size,
			LastModified: info.LastModified,
			IsThumbnail:  objectkey.IsDerived(info.Key),
		})
	}
	return images, nil
}

// GetDownloadURL checks ownership before issuing; a foreign key never
// yields a URL.
func (s *service) GetDownloadURL(ctx context.Context, owner, key string) (string, error) {
	if err := s.authorize(owner, key); err != nil {
		return "", err
	}

	url, err := s.store.GetDownloadURL(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
		s.logger.Error("presign failed", "key", key, "err", err)
		return "", fmt.Errorf("%w: presign failed", ErrDependency)
	}
	return url, nil
}

// Download streams the object for inline viewing.
func (s *service) Download(ctx context.Context, owner, key string) (io.ReadCloser, string, error) {
	if err := s.authorize(owner, key); err != nil {
		return nil, "", err
	}

	body, contentType, err := s.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", err
		}
		s.logger.Error("download failed", "key", key, "err", err)
		return nil, "", fmt.Errorf("%w: object store get failed", ErrDependency)
	}
	return body, contentType, nil
}

// Delete removes the object and, for originals, its derived thumbnail. The
// thumbnail delete is best-effort: an orphan is preferable to a failed
// user-facing delete.
func (s *service) Delete(ctx context.Context, owner, key string) error {
	if err := s.authorize(owner, key); err != nil {
		return err
	}

	// Confirm existence so a delete of a missing key reports 404 rather
	// than silently succeeding.
	body, _, err := s.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		s.logger.Error("delete precheck failed", "key", key, "err", err)
		return fmt.Errorf("%w: object store get failed", ErrDependency)
	}
	body.Close()

	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Error("delete failed", "key", key, "err", err)
		return fmt.Errorf("%w: object store delete failed", ErrDependency)
	}
	s.logger.Info("deleted object", "key", key)

	if !objectkey.IsDerived(key) {
		if thumbKey, err := objectkey.Derived(key); err == nil {
			if err := s.store.Delete(ctx, thumbKey); err != nil {
				s.logger.Warn("thumbnail delete failed, orphan left", "key", thumbKey, "err", err)
			}
		}
	}
	return nil
}

// authorize enforces the owner-prefix invariant.
func (s *service) authorize(owner, key string) error {
	if owner == "" {
		return fmt.Errorf("%w: missing owner", ErrAuth)
	}
	if key == "" {
		return fmt.Errorf("%w: missing object key", ErrValidation)
	}
	if !objectkey.BelongsTo(key, owner) {
		return fmt.Errorf("%w: key outside caller prefix", ErrForbidden)
	}
	return nil
}
