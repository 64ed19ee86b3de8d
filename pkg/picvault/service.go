package picvault

import (
	"context"
	"io"
)

// Service defines the main interface for the picvault library. The owner
// argument is always the authenticated caller identity; every operation
// enforces the owner-prefix invariant before touching storage.
type Service interface {
	// Upload validates and stores one image under the owner's prefix,
	// then best-effort enqueues a thumbnail job. A queue outage never
	// fails the upload.
	Upload(ctx context.Context, req UploadRequest) (*Image, error)

	// List returns the owner's objects, originals and thumbnails.
	List(ctx context.Context, owner string) ([]Image, error)

	// GetDownloadURL issues a time-limited presigned read URL for one of
	// the owner's objects.
	GetDownloadURL(ctx context.Context, owner, key string) (string, error)

	// Download streams one of the owner's objects along with its
	// content type.
	Download(ctx context.Context, owner, key string) (io.ReadCloser, string, error)

	// Delete removes one of the owner's objects and, for originals, its
	// derived thumbnail.
	Delete(ctx context.Context, owner, key string) error
}
