package picvault

import "io"

// UploadRequest carries one authenticated upload.
type UploadRequest struct {
	// Owner is the authenticated caller identity (email). The stored key
	// is always placed under this owner's exclusive prefix.
	Owner string

	// Filename as supplied by the client; sanitized before use.
	Filename string

	// ContentType as declared by the client, checked against the
	// configured allow-list.
	ContentType string

	// Size in bytes when known (multipart uploads); -1 when unknown.
	Size int64

	// Body is the object payload. The service reads it exactly once.
	Body io.Reader
}
