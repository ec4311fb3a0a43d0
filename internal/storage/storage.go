// Package storage stores invoice files in private object storage. Files are
// only handed out through short-lived signed URLs or the ownership-checked proxy.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/wolfeidau/ownerportal/internal/apperr"
)

// ErrObjectNotFound is returned when a key has no object.
var ErrObjectNotFound = apperr.New(apperr.ErrNotFound, "object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	ContentType  string
	Size         int64
	LastModified time.Time
}

// ObjectStore is private object storage addressed by key.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the object body, which the caller must close.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// SignedURL returns a URL granting read access to key until ttl elapses.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// KeyFromURL recovers the object key from a URL issued by SignedURL.
	KeyFromURL(rawURL string) (string, error)
}
