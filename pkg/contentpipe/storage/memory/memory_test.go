package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/storage/memory"
)

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	require.NoError(t, backend.Upload(ctx, "docs/a.txt", strings.NewReader("hello world")))

	reader, err := backend.Download(ctx, "docs/a.txt")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, "docs/a.txt", strings.NewReader("replaced")))

		reader, err := backend.Download(ctx, "docs/a.txt")
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, "replaced", string(data))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := backend.Download(ctx, "nope")
		assert.ErrorIs(t, err, contentpipe.ErrObjectNotFound)
	})
}

func TestDownloadRange(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.Upload(ctx, "data.bin", strings.NewReader("0123456789")))

	t.Run("inclusive bounds", func(t *testing.T) {
		reader, err := backend.DownloadRange(ctx, "data.bin", 2, 5)
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, "2345", string(data))
	})

	t.Run("out of bounds", func(t *testing.T) {
		_, err := backend.DownloadRange(ctx, "data.bin", 5, 20)
		assert.ErrorIs(t, err, contentpipe.ErrRangeNotSatisfiable)

		_, err = backend.DownloadRange(ctx, "data.bin", 10, 10)
		assert.ErrorIs(t, err, contentpipe.ErrRangeNotSatisfiable)

		_, err = backend.DownloadRange(ctx, "data.bin", 5, 2)
		assert.ErrorIs(t, err, contentpipe.ErrRangeNotSatisfiable)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := backend.DownloadRange(ctx, "nope", 0, 1)
		assert.ErrorIs(t, err, contentpipe.ErrObjectNotFound)
	})
}

func TestDeleteAndPrefix(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	keys := []string{".uploads/s1/chunk-000000", ".uploads/s1/chunk-000001", ".uploads/s2/chunk-000000"}
	for _, key := range keys {
		require.NoError(t, backend.Upload(ctx, key, strings.NewReader("x")))
	}

	t.Run("delete single", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, ".uploads/s1/chunk-000000"))
		assert.ErrorIs(t, backend.Delete(ctx, ".uploads/s1/chunk-000000"), contentpipe.ErrObjectNotFound)
	})

	t.Run("delete prefix leaves siblings", func(t *testing.T) {
		require.NoError(t, backend.DeletePrefix(ctx, ".uploads/s1/"))

		_, err := backend.Download(ctx, ".uploads/s1/chunk-000001")
		assert.ErrorIs(t, err, contentpipe.ErrObjectNotFound)

		_, err = backend.Download(ctx, ".uploads/s2/chunk-000000")
		assert.NoError(t, err)
	})

	t.Run("missing prefix is not an error", func(t *testing.T) {
		assert.NoError(t, backend.DeletePrefix(ctx, ".uploads/never/"))
	})
}

func TestGetObjectMeta(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.Upload(ctx, "docs/a.txt", strings.NewReader("hello")))

	meta, err := backend.GetObjectMeta(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", meta.Key)
	assert.Equal(t, int64(5), meta.Size)
	assert.False(t, meta.UpdatedAt.IsZero())

	_, err = backend.GetObjectMeta(ctx, "nope")
	assert.ErrorIs(t, err, contentpipe.ErrObjectNotFound)
}
