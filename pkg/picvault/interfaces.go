package picvault

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for storage backends.
type BlobStore interface {
	// Upload stores the object under objectKey, overwriting any
	// existing object at that key.
	Upload(ctx context.Context, objectKey string, contentType string, reader io.Reader) error

	// Download returns the object body and its content type.
	Download(ctx context.Context, objectKey string) (io.ReadCloser, string, error)

	// GetDownloadURL returns a presigned, time-limited read URL for the
	// object. Expiry is enforced by the object store, not by callers.
	GetDownloadURL(ctx context.Context, objectKey string) (string, error)

	// List returns the objects whose keys start with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes the object at objectKey.
	Delete(ctx context.Context, objectKey string) error
}

// ObjectInfo describes one stored object in a listing.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}
