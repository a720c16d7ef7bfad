// Package storage wraps the hosted object store used for worksheet scans and
// graded artifacts.
package storage

import (
	"context"
	"time"
)

// ObjectStore is the object-storage collaborator contract.
type ObjectStore interface {
	// CreateSignedDownloadURL returns a short-lived URL for the object.
	CreateSignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	// Upload stores bytes under the key and returns the stored key.
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	// Remove deletes the given keys from the bucket.
	Remove(ctx context.Context, bucket string, keys []string) error
}
