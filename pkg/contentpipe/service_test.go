package contentpipe_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/repo/memory"
	memorystorage "github.com/contentpipe/contentpipe/pkg/contentpipe/storage/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []contentpipe.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []contentpipe.Option{},
			expectError: true,
		},
		{
			name: "repository alone should fail",
			options: []contentpipe.Option{
				contentpipe.WithRepository(memory.New()),
			},
			expectError: true,
		},
		{
			name: "repository and blob store should succeed",
			options: []contentpipe.Option{
				contentpipe.WithRepository(memory.New()),
				contentpipe.WithBlobStore(memorystorage.New()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := contentpipe.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func setupTestService(t *testing.T) contentpipe.Service {
	t.Helper()

	svc, err := contentpipe.New(
		contentpipe.WithRepository(memory.New()),
		contentpipe.WithBlobStore(memorystorage.New()),
		contentpipe.WithEventSink(contentpipe.NewNoopEventSink()),
		contentpipe.WithLogger(logger.NewNop()),
	)
	require.NoError(t, err)
	require.NotNil(t, svc)

	return svc
}

func saveFile(t *testing.T, svc contentpipe.Service, path, content string) *contentpipe.StoredObject {
	t.Helper()

	object, err := svc.Save(context.Background(), contentpipe.SaveRequest{
		Data:        strings.NewReader(content),
		TargetPath:  path,
		FileName:    path,
		ContentType: "text/plain",
		OwnerID:     uuid.New(),
	})
	require.NoError(t, err)
	return object
}

func TestSave(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	t.Run("stores object with checksum and size", func(t *testing.T) {
		object := saveFile(t, svc, "docs/readme.txt", "hello world")

		assert.Equal(t, "docs/readme.txt", object.Path)
		assert.Equal(t, int64(11), object.Size)
		assert.True(t, strings.HasPrefix(object.Checksum, "sha256:"))
		assert.False(t, object.CreatedAt.IsZero())
	})

	t.Run("path collision gets a disambiguated name", func(t *testing.T) {
		first := saveFile(t, svc, "docs/report.txt", "one")
		second := saveFile(t, svc, "docs/report.txt", "two")

		assert.Equal(t, "docs/report.txt", first.Path)
		assert.NotEqual(t, first.Path, second.Path)
		assert.True(t, strings.HasPrefix(second.Path, "docs/report-"))
		assert.True(t, strings.HasSuffix(second.Path, ".txt"))

		// Both remain independently readable
		rc, _, err := svc.Read(ctx, second.Path)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		assert.Equal(t, "two", string(data))
	})

	t.Run("rejects reserved prefixes", func(t *testing.T) {
		_, err := svc.Save(ctx, contentpipe.SaveRequest{
			Data:       strings.NewReader("x"),
			TargetPath: ".versions/sneaky",
		})
		assert.ErrorIs(t, err, contentpipe.ErrInvalidRequest)

		_, err = svc.Save(ctx, contentpipe.SaveRequest{
			Data:       strings.NewReader("x"),
			TargetPath: ".uploads/sneaky",
		})
		assert.ErrorIs(t, err, contentpipe.ErrInvalidRequest)
	})

	t.Run("rejects empty path", func(t *testing.T) {
		_, err := svc.Save(ctx, contentpipe.SaveRequest{
			Data:       strings.NewReader("x"),
			TargetPath: "",
		})
		assert.ErrorIs(t, err, contentpipe.ErrInvalidRequest)
	})
}

func TestRead(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	saveFile(t, svc, "a/b.txt", "content under test")

	t.Run("returns bytes and metadata", func(t *testing.T) {
		rc, object, err := svc.Read(ctx, "a/b.txt")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "content under test", string(data))
		assert.Equal(t, int64(len(data)), object.Size)
	})

	t.Run("unknown path fails with not found", func(t *testing.T) {
		_, _, err := svc.Read(ctx, "a/missing.txt")
		assert.ErrorIs(t, err, contentpipe.ErrNotFound)
	})
}

func TestReadRange(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	saveFile(t, svc, "range.bin", "0123456789")

	t.Run("inclusive range", func(t *testing.T) {
		rc, _, err := svc.ReadRange(ctx, "range.bin", 2, 5)
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "2345", string(data))
	})

	t.Run("range past the end is unsatisfiable", func(t *testing.T) {
		_, _, err := svc.ReadRange(ctx, "range.bin", 5, 20)
		assert.ErrorIs(t, err, contentpipe.ErrRangeNotSatisfiable)
	})

	t.Run("start past the end is unsatisfiable", func(t *testing.T) {
		_, _, err := svc.ReadRange(ctx, "range.bin", 10, 10)
		assert.ErrorIs(t, err, contentpipe.ErrRangeNotSatisfiable)
	})
}

func TestUpdate(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	original := saveFile(t, svc, "update-me.txt", "before")

	t.Run("replaces bytes and refreshes metadata", func(t *testing.T) {
		updated, err := svc.Update(ctx, contentpipe.UpdateRequest{
			Path: "update-me.txt",
			Data: strings.NewReader("after, and longer"),
		})
		require.NoError(t, err)

		assert.Equal(t, original.ID, updated.ID)
		assert.Equal(t, int64(len("after, and longer")), updated.Size)
		assert.NotEqual(t, original.Checksum, updated.Checksum)

		rc, _, err := svc.Read(ctx, "update-me.txt")
		require.NoError(t, err)
		data, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, "after, and longer", string(data))
	})

	t.Run("unknown path fails with not found", func(t *testing.T) {
		_, err := svc.Update(ctx, contentpipe.UpdateRequest{
			Path: "never-saved.txt",
			Data: strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, contentpipe.ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	t.Run("removes object, versions and variants", func(t *testing.T) {
		object := saveFile(t, svc, "doomed.txt", "short lived")

		_, err := svc.CreateVersion(ctx, object.ID)
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, "doomed.txt"))

		_, _, err = svc.Read(ctx, "doomed.txt")
		assert.ErrorIs(t, err, contentpipe.ErrNotFound)

		_, err = svc.GetObject(ctx, object.ID)
		assert.ErrorIs(t, err, contentpipe.ErrObjectNotFound)
	})

	t.Run("unknown path fails with not found", func(t *testing.T) {
		err := svc.Delete(ctx, "never-there.txt")
		assert.ErrorIs(t, err, contentpipe.ErrNotFound)
	})
}

func TestList(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		saveFile(t, svc, fmt.Sprintf("listing/file-%d.txt", i), "x")
	}
	saveFile(t, svc, "listing/nested/deep.txt", "x")
	saveFile(t, svc, "other/misc.txt", "x")

	t.Run("non-recursive excludes nested paths", func(t *testing.T) {
		result, err := svc.List(ctx, contentpipe.ListRequest{Dir: "listing"})
		require.NoError(t, err)

		assert.Equal(t, 5, result.Total)
		for _, obj := range result.Objects {
			assert.NotContains(t, strings.TrimPrefix(obj.Path, "listing/"), "/")
		}
	})

	t.Run("recursive includes nested paths", func(t *testing.T) {
		result, err := svc.List(ctx, contentpipe.ListRequest{Dir: "listing", Recursive: true})
		require.NoError(t, err)
		assert.Equal(t, 6, result.Total)
	})

	t.Run("pagination slices deterministically", func(t *testing.T) {
		page1, err := svc.List(ctx, contentpipe.ListRequest{Dir: "listing", Page: 1, Limit: 2})
		require.NoError(t, err)
		page2, err := svc.List(ctx, contentpipe.ListRequest{Dir: "listing", Page: 2, Limit: 2})
		require.NoError(t, err)

		assert.Len(t, page1.Objects, 2)
		assert.Len(t, page2.Objects, 2)
		assert.Equal(t, 5, page1.Total)
		assert.NotEqual(t, page1.Objects[0].Path, page2.Objects[0].Path)
	})

	t.Run("empty directory yields empty page", func(t *testing.T) {
		result, err := svc.List(ctx, contentpipe.ListRequest{Dir: "nothing-here"})
		require.NoError(t, err)
		assert.Empty(t, result.Objects)
		assert.Zero(t, result.Total)
	})
}
