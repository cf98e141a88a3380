// Package evidence stores report photos. Objects are keyed
// {ownerID}/{unixMillis}-{uuid}.{ext}; a blob is never rewritten once uploaded.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ref is the object key of an uploaded blob.
type Ref string

// Store is durable object storage for evidence blobs.
type Store interface {
	// Upload writes data under a fresh owner-namespaced key.
	Upload(ctx context.Context, ownerID string, data []byte, ext string) (Ref, error)
	// PublicURL derives the object's public URL from its key. No I/O.
	PublicURL(ref Ref) string
	// Delete removes the object. Missing objects are not an error.
	Delete(ctx context.Context, ref Ref) error
	// Exists checks whether the object is present.
	Exists(ctx context.Context, ref Ref) (bool, error)
}

var ErrInvalidOwner = errors.New("evidence: invalid owner id")

// NewKey builds a collision-resistant key for ownerID.
func NewKey(ownerID, ext string, now time.Time) (Ref, error) {
	if ownerID == "" || strings.ContainsAny(ownerID, `/\`) || strings.Contains(ownerID, "..") {
		return "", ErrInvalidOwner
	}
	return Ref(fmt.Sprintf("%s/%d-%s.%s", ownerID, now.UnixMilli(), uuid.NewString(), CleanExt(ext))), nil
}

// CleanExt normalises a file extension: lowercase, alphanumeric, at most 8
// characters, "jpg" when nothing usable remains.
func CleanExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 8 {
		out = out[:8]
	}
	if out == "" {
		return "jpg"
	}
	return out
}

// ContentType guesses the MIME type from the key's extension.
func ContentType(ref Ref) string {
	s := string(ref)
	switch s[strings.LastIndexByte(s, '.')+1:] {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "heic":
		return "image/heic"
	case "gif":
		return "image/gif"
	}
	return "application/octet-stream"
}

func joinURL(base string, ref Ref) string {
	return strings.TrimRight(base, "/") + "/" + string(ref)
}
