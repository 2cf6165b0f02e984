package upload_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/repo/memory"
	memorystorage "github.com/contentpipe/contentpipe/pkg/contentpipe/storage/memory"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/upload"
)

func setupAssembler(t *testing.T, policy upload.Policy) (*upload.Assembler, contentpipe.Service) {
	t.Helper()

	blobs := memorystorage.New()
	svc, err := contentpipe.New(
		contentpipe.WithRepository(memory.New()),
		contentpipe.WithBlobStore(blobs),
		contentpipe.WithLogger(logger.NewNop()),
	)
	require.NoError(t, err)

	store := upload.NewMemoryStore(time.Minute)
	t.Cleanup(store.Close)

	return upload.New(store, blobs, svc, policy, logger.NewNop()), svc
}

func initSession(t *testing.T, a *upload.Assembler, path string, totalChunks int) *upload.Session {
	t.Helper()

	session, err := a.Init(context.Background(), upload.InitRequest{
		OwnerID:      uuid.NewString(),
		FileName:     path,
		DeclaredSize: 1024,
		ContentType:  "text/plain",
		TargetPath:   path,
		TotalChunks:  totalChunks,
	})
	require.NoError(t, err)
	return session
}

func TestInit(t *testing.T) {
	a, _ := setupAssembler(t, upload.Policy{})
	ctx := context.Background()

	t.Run("creates a session with a fresh ID", func(t *testing.T) {
		s1 := initSession(t, a, "a.txt", 3)
		s2 := initSession(t, a, "b.txt", 3)

		assert.NotEmpty(t, s1.ID)
		assert.NotEqual(t, s1.ID, s2.ID)
		assert.Equal(t, upload.StatusInitialized, s1.Status)
		assert.Zero(t, s1.ChunksReceived)
	})

	t.Run("rejects non-positive chunk counts", func(t *testing.T) {
		_, err := a.Init(ctx, upload.InitRequest{TargetPath: "x.txt", TotalChunks: 0})
		assert.ErrorIs(t, err, contentpipe.ErrInvalidRequest)
	})

	t.Run("rejects missing target path", func(t *testing.T) {
		_, err := a.Init(ctx, upload.InitRequest{TotalChunks: 2})
		assert.ErrorIs(t, err, contentpipe.ErrInvalidRequest)
	})
}

func TestInitPolicy(t *testing.T) {
	a, _ := setupAssembler(t, upload.Policy{
		MaxSize:      100,
		AllowedTypes: []string{"text/plain"},
	})
	ctx := context.Background()

	t.Run("rejects oversize declarations", func(t *testing.T) {
		_, err := a.Init(ctx, upload.InitRequest{
			TargetPath:   "big.txt",
			TotalChunks:  1,
			DeclaredSize: 101,
			ContentType:  "text/plain",
		})
		assert.ErrorIs(t, err, contentpipe.ErrInvalidRequest)
	})

	t.Run("rejects disallowed content types", func(t *testing.T) {
		_, err := a.Init(ctx, upload.InitRequest{
			TargetPath:   "movie.mp4",
			TotalChunks:  1,
			DeclaredSize: 50,
			ContentType:  "video/mp4",
		})
		assert.ErrorIs(t, err, contentpipe.ErrInvalidRequest)
	})

	t.Run("accepts conforming declarations", func(t *testing.T) {
		_, err := a.Init(ctx, upload.InitRequest{
			TargetPath:   "ok.txt",
			TotalChunks:  1,
			DeclaredSize: 50,
			ContentType:  "text/plain",
		})
		assert.NoError(t, err)
	})
}

func TestUploadChunk(t *testing.T) {
	a, _ := setupAssembler(t, upload.Policy{})
	ctx := context.Background()

	t.Run("chunks may arrive out of order", func(t *testing.T) {
		session := initSession(t, a, "ooo.txt", 3)

		p, err := a.UploadChunk(ctx, session.ID, 2, []byte("cc"))
		require.NoError(t, err)
		assert.Equal(t, 1, p.ChunksReceived)

		p, err = a.UploadChunk(ctx, session.ID, 0, []byte("aa"))
		require.NoError(t, err)
		assert.Equal(t, 2, p.ChunksReceived)

		p, err = a.UploadChunk(ctx, session.ID, 1, []byte("bb"))
		require.NoError(t, err)
		assert.Equal(t, 3, p.ChunksReceived)
		assert.InDelta(t, 100.0, p.Progress, 0.01)
	})

	t.Run("duplicate index does not double-count", func(t *testing.T) {
		session := initSession(t, a, "dup.txt", 2)

		_, err := a.UploadChunk(ctx, session.ID, 0, []byte("first"))
		require.NoError(t, err)
		p, err := a.UploadChunk(ctx, session.ID, 0, []byte("resent"))
		require.NoError(t, err)
		assert.Equal(t, 1, p.ChunksReceived)
	})

	t.Run("index out of range is rejected", func(t *testing.T) {
		session := initSession(t, a, "oob.txt", 2)

		_, err := a.UploadChunk(ctx, session.ID, 2, []byte("x"))
		assert.ErrorIs(t, err, contentpipe.ErrInvalidRequest)
		_, err = a.UploadChunk(ctx, session.ID, -1, []byte("x"))
		assert.ErrorIs(t, err, contentpipe.ErrInvalidRequest)
	})

	t.Run("unknown session fails", func(t *testing.T) {
		_, err := a.UploadChunk(ctx, uuid.NewString(), 0, []byte("x"))
		assert.ErrorIs(t, err, contentpipe.ErrSessionNotFound)
	})
}

func TestFinalize(t *testing.T) {
	a, svc := setupAssembler(t, upload.Policy{})
	ctx := context.Background()

	t.Run("assembles chunks in index order", func(t *testing.T) {
		session := initSession(t, a, "whole.txt", 3)

		// Deliberately out of order; last write for a resent index wins
		_, err := a.UploadChunk(ctx, session.ID, 1, []byte("BB"))
		require.NoError(t, err)
		_, err = a.UploadChunk(ctx, session.ID, 2, []byte("CC"))
		require.NoError(t, err)
		_, err = a.UploadChunk(ctx, session.ID, 0, []byte("AA"))
		require.NoError(t, err)

		object, err := a.Finalize(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(6), object.Size)

		rc, _, err := svc.Read(ctx, object.Path)
		require.NoError(t, err)
		data, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, "AABBCC", string(data))
	})

	t.Run("incomplete session reports the exact shortfall", func(t *testing.T) {
		session := initSession(t, a, "partial.txt", 5)

		_, err := a.UploadChunk(ctx, session.ID, 0, []byte("x"))
		require.NoError(t, err)
		_, err = a.UploadChunk(ctx, session.ID, 3, []byte("y"))
		require.NoError(t, err)

		_, err = a.Finalize(ctx, session.ID)
		var incomplete *contentpipe.IncompleteUploadError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, 2, incomplete.Received)
		assert.Equal(t, 5, incomplete.Total)
	})

	t.Run("session is gone after finalize", func(t *testing.T) {
		session := initSession(t, a, "once.txt", 1)

		_, err := a.UploadChunk(ctx, session.ID, 0, []byte("payload"))
		require.NoError(t, err)
		_, err = a.Finalize(ctx, session.ID)
		require.NoError(t, err)

		_, err = a.Finalize(ctx, session.ID)
		assert.ErrorIs(t, err, contentpipe.ErrSessionNotFound)
		_, err = a.UploadChunk(ctx, session.ID, 0, []byte("late"))
		assert.ErrorIs(t, err, contentpipe.ErrSessionNotFound)
	})

	t.Run("unknown session fails", func(t *testing.T) {
		_, err := a.Finalize(ctx, uuid.NewString())
		assert.ErrorIs(t, err, contentpipe.ErrSessionNotFound)
	})
}

func TestMemoryStoreTTL(t *testing.T) {
	store := upload.NewMemoryStore(20 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	session := &upload.Session{
		ID:          uuid.NewString(),
		TargetPath:  "ttl.txt",
		TotalChunks: 1,
		Received:    map[int]bool{},
	}
	require.NoError(t, store.Put(ctx, session))

	_, err := store.Get(ctx, session.ID)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, err = store.Get(ctx, session.ID)
	assert.ErrorIs(t, err, contentpipe.ErrSessionNotFound)
}
