// Package fs provides a filesystem implementation of the contentpipe
// BlobStore interface.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
)

// Backend is a filesystem implementation of the contentpipe.BlobStore interface
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

func (b *Backend) path(objectKey string) string {
	return filepath.Join(b.baseDir, filepath.FromSlash(objectKey))
}

// Upload uploads content directly to the filesystem, creating the directory
// structure if it does not exist.
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	filePath := b.path(objectKey)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Download downloads content directly from the filesystem
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	file, err := os.Open(b.path(objectKey))
	if os.IsNotExist(err) {
		return nil, contentpipe.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// DownloadRange downloads the inclusive byte range [start, end]. The reader
// yields exactly end-start+1 bytes.
func (b *Backend) DownloadRange(ctx context.Context, objectKey string, start, end int64) (io.ReadCloser, error) {
	file, err := os.Open(b.path(objectKey))
	if os.IsNotExist(err) {
		return nil, contentpipe.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if start < 0 || end < start || start >= info.Size() || end >= info.Size() {
		file.Close()
		return nil, fmt.Errorf("%w: bytes %d-%d of %d", contentpipe.ErrRangeNotSatisfiable, start, end, info.Size())
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to seek: %w", err)
	}

	return &rangeReader{file: file, remaining: end - start + 1}, nil
}

// rangeReader limits the underlying file to the requested window.
type rangeReader struct {
	file      *os.File
	remaining int64
}

func (r *rangeReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.file.Read(p)
	r.remaining -= int64(n)
	return n, err
}

func (r *rangeReader) Close() error {
	return r.file.Close()
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	filePath := b.path(objectKey)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return contentpipe.ErrObjectNotFound
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))

	return nil
}

// DeletePrefix removes everything under the given key prefix. A prefix that
// does not exist is not an error.
func (b *Backend) DeletePrefix(ctx context.Context, prefix string) error {
	dir := b.path(strings.TrimSuffix(prefix, "/"))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove prefix: %w", err)
	}
	b.cleanupEmptyDirectories(filepath.Dir(dir))
	return nil
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*contentpipe.ObjectMeta, error) {
	filePath := b.path(objectKey)

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, contentpipe.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	// Detect content type from the first bytes
	contentType := "application/octet-stream"
	if file, err := os.Open(filePath); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil {
			contentType = http.DetectContentType(buffer[:n])
		}
	}

	return &contentpipe.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
