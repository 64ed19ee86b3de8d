package picvault

import (
	"time"
)

// Image describes one stored object as seen by its owner.
type Image struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
	IsThumbnail  bool      `json:"is_thumbnail,omitempty"`
}

// ThumbnailJob is the queue message emitted after a successful upload. The
// job references an original that has already been durably stored; delivery
// is at-least-once, so consumers must treat it as replayable.
type ThumbnailJob struct {
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Owner      string    `json:"user,omitempty"`
	UploadedAt time.Time `json:"uploadedAt,omitempty"`
}

// User is the account record owning an object-key prefix. Authentication
// itself lives in internal/auth; the core service only ever sees the email
// as the owner identity.
type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
