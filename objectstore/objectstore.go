// Package objectstore stores attachment blobs in a bucket-addressed object store.
package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrInvalidKey is returned for keys that would escape the bucket.
var ErrInvalidKey = errors.New("invalid object key")

// Storage is an object store addressed by bucket and key.
// Put returns the durable public URL of the stored object.
type Storage interface {
	Put(ctx context.Context, bucket, key string, body io.ReadSeeker, contentType string) (string, error)
	Delete(ctx context.Context, bucket, key string) error
}

// PublicURL joins a base URL, bucket and key the way path-style object URLs are built.
func PublicURL(baseURL, bucket, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}

func validKey(bucket, key string) bool {
	if bucket == "" || key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	if strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
