package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local stores objects as files under root/bucket/key. It is meant for
// development and single-node deployments that serve root as static files.
type Local struct {
	root          string
	publicBaseURL string
}

var _ Storage = (*Local)(nil)

// NewLocal creates the root directory if needed.
func NewLocal(root, publicBaseURL string) (*Local, error) {
	p := filepath.Clean(root)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", p, err)
	}
	return &Local{root: p, publicBaseURL: publicBaseURL}, nil
}

// Root returns the directory objects are written to.
func (l *Local) Root() string {
	return l.root
}

// Put writes body to root/bucket/key and returns its public URL.
func (l *Local) Put(ctx context.Context, bucket, key string, body io.ReadSeeker, contentType string) (string, error) {
	if !validKey(bucket, key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fullPath := l.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create directories: %w", err)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create destination file: %w", err)
	}
	if _, err := io.Copy(dst, body); err != nil {
		dst.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("copy file data: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("close destination file: %w", err)
	}
	return PublicURL(l.publicBaseURL, bucket, key), nil
}

// Delete removes root/bucket/key; a missing file is not an error.
func (l *Local) Delete(ctx context.Context, bucket, key string) error {
	if !validKey(bucket, key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := os.Remove(l.path(bucket, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (l *Local) path(bucket, key string) string {
	return filepath.Join(l.root, bucket, filepath.FromSlash(key))
}
