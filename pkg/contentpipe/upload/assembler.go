package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
)

// Saver commits reassembled bytes to the durable content store. Satisfied by
// contentpipe.Service.
type Saver interface {
	Save(ctx context.Context, req contentpipe.SaveRequest) (*contentpipe.StoredObject, error)
}

// Policy validates upload declarations before a session is created.
type Policy struct {
	// MaxSize is the largest accepted declared size in bytes. Zero means
	// unlimited.
	MaxSize int64
	// AllowedTypes is the accepted MIME set. Empty means any type.
	AllowedTypes []string
}

func (p Policy) check(declaredSize int64, contentType string) error {
	if p.MaxSize > 0 && declaredSize > p.MaxSize {
		return fmt.Errorf("%w: declared size %d exceeds limit %d", contentpipe.ErrInvalidRequest, declaredSize, p.MaxSize)
	}
	if declaredSize < 0 {
		return fmt.Errorf("%w: negative declared size", contentpipe.ErrInvalidRequest)
	}
	if len(p.AllowedTypes) > 0 {
		allowed := false
		for _, t := range p.AllowedTypes {
			if strings.EqualFold(t, contentType) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: content type %q not allowed", contentpipe.ErrInvalidRequest, contentType)
		}
	}
	return nil
}

// InitRequest contains parameters for starting a chunked upload.
type InitRequest struct {
	OwnerID      string
	FileName     string
	DeclaredSize int64
	ContentType  string
	TargetPath   string
	TotalChunks  int
}

// Assembler accumulates byte chunks out of order and reassembles them into a
// single object on finalize. Chunk bytes live in a private scratch area of
// the blob namespace; only finalize commits bytes to the durable store.
type Assembler struct {
	store  SessionStore
	blobs  contentpipe.BlobStore
	saver  Saver
	policy Policy
	log    *logger.Logger

	// locks serializes finalize against in-flight chunk writes per session
	// and protects the received counter.
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// New creates a new chunked-upload assembler.
func New(store SessionStore, blobs contentpipe.BlobStore, saver Saver, policy Policy, log *logger.Logger) *Assembler {
	return &Assembler{
		store:  store,
		blobs:  blobs,
		saver:  saver,
		policy: policy,
		log:    log.WithComponent("upload"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Init validates the declaration against policy and creates a session.
func (a *Assembler) Init(ctx context.Context, req InitRequest) (*Session, error) {
	if req.TotalChunks <= 0 {
		return nil, fmt.Errorf("%w: total chunks must be positive", contentpipe.ErrInvalidRequest)
	}
	if req.TargetPath == "" {
		return nil, fmt.Errorf("%w: target path is required", contentpipe.ErrInvalidRequest)
	}
	if err := a.policy.check(req.DeclaredSize, req.ContentType); err != nil {
		return nil, err
	}

	session := &Session{
		ID:           uuid.NewString(),
		OwnerID:      req.OwnerID,
		FileName:     req.FileName,
		DeclaredSize: req.DeclaredSize,
		ContentType:  req.ContentType,
		TargetPath:   req.TargetPath,
		TotalChunks:  req.TotalChunks,
		Received:     make(map[int]bool),
		Status:       StatusInitialized,
		CreatedAt:    time.Now().UTC(),
	}

	if err := a.store.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	a.log.Info("upload session started",
		"session_id", session.ID, "target", req.TargetPath, "chunks", req.TotalChunks)
	return session, nil
}

// Progress reports chunk receipt for an open session.
func (a *Assembler) Progress(ctx context.Context, sessionID string) (*Progress, error) {
	session, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusFinalized {
		return nil, contentpipe.ErrSessionNotFound
	}

	return &Progress{
		SessionID:      session.ID,
		ChunksReceived: session.ChunksReceived,
		TotalChunks:    session.TotalChunks,
		Progress:       float64(session.ChunksReceived) / float64(session.TotalChunks) * 100,
	}, nil
}

// UploadChunk writes the chunk into the slot addressed by index. Out-of-order
// arrival and duplicate resubmission of the same index are both accepted;
// last write wins and duplicates do not double-count.
func (a *Assembler) UploadChunk(ctx context.Context, sessionID string, index int, data []byte) (*Progress, error) {
	mu := a.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := a.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, contentpipe.ErrSessionNotFound) {
			a.dropLock(sessionID)
		}
		return nil, err
	}
	if session.Status == StatusFinalized {
		a.dropLock(sessionID)
		return nil, contentpipe.ErrSessionNotFound
	}
	if index < 0 || index >= session.TotalChunks {
		return nil, fmt.Errorf("%w: chunk index %d out of range [0,%d)", contentpipe.ErrInvalidRequest, index, session.TotalChunks)
	}

	if err := a.blobs.Upload(ctx, chunkKey(sessionID, index), bytes.NewReader(data)); err != nil {
		return nil, &contentpipe.StorageError{Op: "upload_chunk", Key: chunkKey(sessionID, index), Err: err}
	}

	if !session.Received[index] {
		session.Received[index] = true
		session.ChunksReceived++
	}
	if session.ChunksReceived == session.TotalChunks {
		session.Status = StatusComplete
	} else {
		session.Status = StatusReceiving
	}

	if err := a.store.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	return &Progress{
		SessionID:      session.ID,
		ChunksReceived: session.ChunksReceived,
		TotalChunks:    session.TotalChunks,
		Progress:       float64(session.ChunksReceived) / float64(session.TotalChunks) * 100,
	}, nil
}

// Finalize concatenates chunk slots in index order into the content store,
// removes the scratch area and destroys the session. This is the only path
// that commits bytes to the durable store.
func (a *Assembler) Finalize(ctx context.Context, sessionID string) (*contentpipe.StoredObject, error) {
	mu := a.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := a.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, contentpipe.ErrSessionNotFound) {
			a.dropLock(sessionID)
		}
		return nil, err
	}
	if session.Status == StatusFinalized {
		a.dropLock(sessionID)
		return nil, contentpipe.ErrSessionNotFound
	}

	if session.ChunksReceived != session.TotalChunks {
		return nil, &contentpipe.IncompleteUploadError{
			Received: session.ChunksReceived,
			Total:    session.TotalChunks,
		}
	}

	var assembled bytes.Buffer
	for i := 0; i < session.TotalChunks; i++ {
		rc, err := a.blobs.Download(ctx, chunkKey(sessionID, i))
		if err != nil {
			return nil, &contentpipe.StorageError{Op: "finalize", Key: chunkKey(sessionID, i), Err: err}
		}
		if _, err := io.Copy(&assembled, rc); err != nil {
			rc.Close()
			return nil, &contentpipe.StorageError{Op: "finalize", Key: chunkKey(sessionID, i), Err: err}
		}
		rc.Close()
	}

	ownerID, err := uuid.Parse(session.OwnerID)
	if err != nil {
		ownerID = uuid.Nil
	}

	object, err := a.saver.Save(ctx, contentpipe.SaveRequest{
		Data:        bytes.NewReader(assembled.Bytes()),
		TargetPath:  session.TargetPath,
		FileName:    session.FileName,
		ContentType: session.ContentType,
		OwnerID:     ownerID,
	})
	if err != nil {
		return nil, err
	}

	if err := a.blobs.DeletePrefix(ctx, scratchDir(sessionID)); err != nil {
		a.log.Warn("scratch cleanup failed", "session_id", sessionID, "error", err)
	}
	if err := a.store.Delete(ctx, sessionID); err != nil {
		a.log.Warn("session cleanup failed", "session_id", sessionID, "error", err)
	}
	a.dropLock(sessionID)

	a.log.Info("upload finalized",
		"session_id", sessionID, "path", object.Path, "size", object.Size)
	return object, nil
}

func (a *Assembler) sessionLock(id string) *sync.Mutex {
	a.locksMu.Lock()
	defer a.locksMu.Unlock()

	mu, ok := a.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		a.locks[id] = mu
	}
	return mu
}

func (a *Assembler) dropLock(id string) {
	a.locksMu.Lock()
	defer a.locksMu.Unlock()
	delete(a.locks, id)
}

func scratchDir(sessionID string) string {
	return fmt.Sprintf("%s/%s/", contentpipe.UploadScratchPrefix, sessionID)
}

func chunkKey(sessionID string, index int) string {
	return fmt.Sprintf("%s/%s/chunk-%06d", contentpipe.UploadScratchPrefix, sessionID, index)
}
