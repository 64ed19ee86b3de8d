// Package objectkey implements the object key scheme used by picvault.
//
// Every stored object lives under a prefix derived from its owning user:
//
//	Original: {owner}/{unixMillis}_{token}_{sanitizedFilename}
//	Derived:  {owner}/thumbnail_{unixMillis}_{token}_{sanitizedFilename}
//
// The owner prefix is the authorization boundary: a key is readable,
// listable and deletable only by the user named in its first segment.
package objectkey

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DerivedMarker is inserted before the filename segment of a derived key.
const DerivedMarker = "thumbnail_"

var (
	// ErrEmptyOwner indicates key construction without an owner identity.
	ErrEmptyOwner = errors.New("owner identity is required")

	// ErrEmptyFilename indicates key construction without a filename.
	ErrEmptyFilename = errors.New("filename is required")

	// ErrMalformedKey indicates a key that does not follow the
	// {owner}/{filename} layout.
	ErrMalformedKey = errors.New("malformed object key")
)

// ForUpload builds the object key for a freshly uploaded original.
//
// The timestamp and random token together make concurrent uploads from the
// same user collision-free even for identical filenames. The function is
// pure given its inputs; callers pass time.Now() and a fresh uuid.
func ForUpload(owner, filename string, now time.Time, token uuid.UUID) (string, error) {
	if owner == "" {
		return "", ErrEmptyOwner
	}
	name := SanitizeFilename(filename)
	if name == "" {
		return "", ErrEmptyFilename
	}
	suffix := strings.ReplaceAll(token.String(), "-", "")[:8]
	return fmt.Sprintf("%s/%d_%s_%s", sanitizeOwner(owner), now.UnixMilli(), suffix, name), nil
}

// Derived computes the thumbnail key for an original key. The derivation is
// pure and deterministic: reprocessing the same original always yields the
// same derived key, so redelivered jobs overwrite in place.
func Derived(key string) (string, error) {
	idx := strings.LastIndex(key, "/")
	if idx <= 0 || idx == len(key)-1 {
		return "", ErrMalformedKey
	}
	return key[:idx+1] + DerivedMarker + key[idx+1:], nil
}

// IsDerived reports whether key already carries the derivation marker in
// its filename segment.
func IsDerived(key string) bool {
	idx := strings.LastIndex(key, "/")
	return idx >= 0 && strings.HasPrefix(key[idx+1:], DerivedMarker)
}

// Owner returns the owner segment of a key.
func Owner(key string) (string, error) {
	idx := strings.Index(key, "/")
	if idx <= 0 {
		return "", ErrMalformedKey
	}
	return key[:idx], nil
}

// BelongsTo reports whether key falls under the exclusive prefix of owner.
// It is the single ownership check used by listing, URL issuance and
// deletion; an empty owner never matches anything.
func BelongsTo(key, owner string) bool {
	if owner == "" {
		return false
	}
	return strings.HasPrefix(key, sanitizeOwner(owner)+"/")
}

// Prefix returns the exclusive listing prefix for owner, including the
// trailing separator so "alice" never matches "alice2/...".
func Prefix(owner string) string {
	return sanitizeOwner(owner) + "/"
}

// SanitizeFilename normalizes a user-supplied filename into a single key
// segment. Path separators, traversal sequences and whitespace are replaced
// so the resulting key cannot escape the owner prefix.
func SanitizeFilename(filename string) string {
	name := strings.TrimSpace(filename)
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", "_")
	}
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		" ", "_",
		"\t", "_",
		"\n", "_",
		"\r", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	name = replacer.Replace(name)
	return strings.Trim(name, "._")
}

// sanitizeOwner keeps the owner segment free of separators. Owner
// identities are email addresses, which never legitimately contain "/".
func sanitizeOwner(owner string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(owner))
}
