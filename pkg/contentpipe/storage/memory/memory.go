// Package memory provides an in-memory implementation of the contentpipe
// BlobStore interface, used in tests and local development.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
)

// Backend is an in-memory implementation of the contentpipe.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
	updated map[string]time.Time
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string][]byte),
		updated: make(map[string]time.Time),
	}
}

// Upload uploads content directly
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectKey] = data
	b.updated[objectKey] = time.Now().UTC()
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, contentpipe.ErrObjectNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// DownloadRange downloads the inclusive byte range [start, end].
func (b *Backend) DownloadRange(ctx context.Context, objectKey string, start, end int64) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, contentpipe.ErrObjectNotFound
	}

	size := int64(len(data))
	if start < 0 || end < start || start >= size || end >= size {
		return nil, fmt.Errorf("%w: bytes %d-%d of %d", contentpipe.ErrRangeNotSatisfiable, start, end, size)
	}

	return io.NopCloser(bytes.NewReader(data[start : end+1])), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return contentpipe.ErrObjectNotFound
	}

	delete(b.objects, objectKey)
	delete(b.updated, objectKey)
	return nil
}

// DeletePrefix removes every object under the given key prefix
func (b *Backend) DeletePrefix(ctx context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			delete(b.objects, key)
			delete(b.updated, key)
		}
	}
	return nil
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*contentpipe.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, contentpipe.ErrObjectNotFound
	}

	return &contentpipe.ObjectMeta{
		Key:       objectKey,
		Size:      int64(len(data)),
		UpdatedAt: b.updated[objectKey],
	}, nil
}
