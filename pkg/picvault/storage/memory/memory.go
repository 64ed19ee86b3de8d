// Package memory provides an in-memory blob store for tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/picvault/picvault/pkg/picvault"
)

type object struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// Backend is an in-memory implementation of the picvault.BlobStore interface.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object

	// FailAll forces every operation to fail; tests use it to exercise
	// dependency-error paths.
	FailAll bool
}

// New creates a new in-memory storage backend.
func New() *Backend {
	return &Backend{objects: make(map[string]object)}
}

// Upload stores the object bytes, overwriting any existing object.
func (b *Backend) Upload(ctx context.Context, objectKey string, contentType string, reader io.Reader) error {
	if b.FailAll {
		return &picvault.StorageError{Key: objectKey, Op: "upload", Err: picvault.ErrDependency}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return &picvault.StorageError{Key: objectKey, Op: "upload", Err: err}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[objectKey] = object{data: data, contentType: contentType, lastModified: time.Now()}
	return nil
}

// Download returns the object body and content type.
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, string, error) {
	if b.FailAll {
		return nil, "", &picvault.StorageError{Key: objectKey, Op: "download", Err: picvault.ErrDependency}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, "", fmt.Errorf("%w: %s", picvault.ErrNotFound, objectKey)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
}

// GetDownloadURL returns a synthetic URL; the memory backend has no real
// presigning, but tests still need a stable, inspectable value.
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string) (string, error) {
	if b.FailAll {
		return "", &picvault.StorageError{Key: objectKey, Op: "presign", Err: picvault.ErrDependency}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, exists := b.objects[objectKey]; !exists {
		return "", fmt.Errorf("%w: %s", picvault.ErrNotFound, objectKey)
	}
	return "memory://" + objectKey, nil
}

// List returns objects under prefix in key order.
func (b *Backend) List(ctx context.Context, prefix string) ([]picvault.ObjectInfo, error) {
	if b.FailAll {
		return nil, &picvault.StorageError{Key: prefix, Op: "list", Err: picvault.ErrDependency}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var infos []picvault.ObjectInfo
	for key, obj := range b.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, picvault.ObjectInfo{
				Key:          key,
				Size:         int64(len(obj.data)),
				LastModified: obj.lastModified,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Delete removes the object; deleting a missing key is a no-op, matching S3.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	if b.FailAll {
		return &picvault.StorageError{Key: objectKey, Op: "delete", Err: picvault.ErrDependency}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, objectKey)
	return nil
}

// Len reports how many objects are stored.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
