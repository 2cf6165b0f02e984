package contentpipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/queue"
)

// TopicDerivedGenerate is the broker topic for asynchronous variant
// generation jobs.
const TopicDerivedGenerate = "derived.generate"

// service implements the Service interface
type service struct {
	repository Repository
	blobs      BlobStore
	broker     queue.Queue
	eventSink  EventSink
	log        *logger.Logger

	versioningEnabled bool
	derivedEnabled    bool

	// versionLocks serializes read-current -> compute-next -> write-version
	// per object, so concurrent mutations cannot race on version numbers.
	versionLocks   map[uuid.UUID]*sync.Mutex
	versionLocksMu sync.Mutex
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) { s.repository = repo }
}

// WithBlobStore sets the storage backend owning the content namespace
func WithBlobStore(store BlobStore) Option {
	return func(s *service) { s.blobs = store }
}

// WithQueue sets the job broker used for asynchronous variant generation
func WithQueue(q queue.Queue) Option {
	return func(s *service) { s.broker = q }
}

// WithEventSink sets the lifecycle event sink
func WithEventSink(sink EventSink) Option {
	return func(s *service) { s.eventSink = sink }
}

// WithLogger sets the logger for the service
func WithLogger(log *logger.Logger) Option {
	return func(s *service) { s.log = log }
}

// WithVersioning toggles the version store at the deployment level
func WithVersioning(enabled bool) Option {
	return func(s *service) { s.versioningEnabled = enabled }
}

// WithDerivedAssets toggles the derived-asset pipeline at the deployment level
func WithDerivedAssets(enabled bool) Option {
	return func(s *service) { s.derivedEnabled = enabled }
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		versioningEnabled: true,
		derivedEnabled:    true,
		versionLocks:      make(map[uuid.UUID]*sync.Mutex),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}

	return s, nil
}

// Content store operations

func (s *service) Save(ctx context.Context, req SaveRequest) (*StoredObject, error) {
	if req.Data == nil {
		return nil, fmt.Errorf("%w: data is required", ErrInvalidRequest)
	}

	targetPath, err := normalizePath(req.TargetPath)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(req.Data)
	if err != nil {
		return nil, &StorageError{Op: "save", Key: targetPath, Err: err}
	}

	// Never silently overwrite: a name collision gets a random
	// disambiguator, extension preserved, and the adjusted path is
	// returned to the caller.
	if _, err := s.repository.GetObjectByPath(ctx, targetPath); err == nil {
		targetPath = disambiguate(targetPath)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, &ObjectError{Path: targetPath, Op: "save", Err: err}
	}

	if err := s.blobs.Upload(ctx, targetPath, bytes.NewReader(data)); err != nil {
		return nil, &StorageError{Op: "save", Key: targetPath, Err: err}
	}

	now := time.Now().UTC()
	object := &StoredObject{
		ID:          uuid.New(),
		Path:        targetPath,
		FileName:    req.FileName,
		Size:        int64(len(data)),
		ContentType: req.ContentType,
		Checksum:    checksumHex(data),
		OwnerID:     req.OwnerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repository.CreateObject(ctx, object); err != nil {
		return nil, &ObjectError{Path: targetPath, Op: "save", Err: err}
	}

	s.snapshotAfterMutation(ctx, object)
	s.enqueuePresetJobs(ctx, object)
	s.publishEvent(ctx, EventFileCreated, map[string]interface{}{
		"object_id": object.ID.String(),
		"path":      object.Path,
		"size":      object.Size,
	})

	return object, nil
}

func (s *service) Read(ctx context.Context, path string) (io.ReadCloser, *StoredObject, error) {
	normalized, err := normalizePath(path)
	if err != nil {
		return nil, nil, err
	}

	object, err := s.repository.GetObjectByPath(ctx, normalized)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Download(ctx, object.Path)
	if err != nil {
		return nil, nil, &StorageError{Op: "read", Key: object.Path, Err: err}
	}

	s.publishEvent(ctx, EventFileAccessed, map[string]interface{}{
		"object_id": object.ID.String(),
		"path":      object.Path,
	})

	return rc, object, nil
}

// Stat returns object metadata without touching the blob and without
// emitting an access event.
func (s *service) Stat(ctx context.Context, path string) (*StoredObject, error) {
	normalized, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	return s.repository.GetObjectByPath(ctx, normalized)
}

func (s *service) ReadRange(ctx context.Context, path string, start, end int64) (io.ReadCloser, *StoredObject, error) {
	normalized, err := normalizePath(path)
	if err != nil {
		return nil, nil, err
	}

	object, err := s.repository.GetObjectByPath(ctx, normalized)
	if err != nil {
		return nil, nil, err
	}

	if start < 0 || end < start || start >= object.Size || end >= object.Size {
		return nil, nil, fmt.Errorf("%w: bytes %d-%d of %d", ErrRangeNotSatisfiable, start, end, object.Size)
	}

	rc, err := s.blobs.DownloadRange(ctx, object.Path, start, end)
	if err != nil {
		if errors.Is(err, ErrRangeNotSatisfiable) {
			return nil, nil, err
		}
		return nil, nil, &StorageError{Op: "read_range", Key: object.Path, Err: err}
	}

	s.publishEvent(ctx, EventFileAccessed, map[string]interface{}{
		"object_id": object.ID.String(),
		"path":      object.Path,
	})

	return rc, object, nil
}

func (s *service) Update(ctx context.Context, req UpdateRequest) (*StoredObject, error) {
	if req.Data == nil {
		return nil, fmt.Errorf("%w: data is required", ErrInvalidRequest)
	}

	normalized, err := normalizePath(req.Path)
	if err != nil {
		return nil, err
	}

	object, err := s.repository.GetObjectByPath(ctx, normalized)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(req.Data)
	if err != nil {
		return nil, &StorageError{Op: "update", Key: object.Path, Err: err}
	}

	if err := s.blobs.Upload(ctx, object.Path, bytes.NewReader(data)); err != nil {
		return nil, &StorageError{Op: "update", Key: object.Path, Err: err}
	}

	object.Size = int64(len(data))
	object.Checksum = checksumHex(data)
	if req.ContentType != "" {
		object.ContentType = req.ContentType
	}
	object.UpdatedAt = time.Now().UTC()

	if err := s.repository.UpdateObject(ctx, object); err != nil {
		return nil, &ObjectError{Path: object.Path, Op: "update", Err: err}
	}

	s.snapshotAfterMutation(ctx, object)
	s.enqueuePresetJobs(ctx, object)
	s.publishEvent(ctx, EventFileUpdated, map[string]interface{}{
		"object_id": object.ID.String(),
		"path":      object.Path,
		"size":      object.Size,
	})

	return object, nil
}

func (s *service) Delete(ctx context.Context, path string) error {
	normalized, err := normalizePath(path)
	if err != nil {
		return err
	}

	object, err := s.repository.GetObjectByPath(ctx, normalized)
	if err != nil {
		return err
	}

	// Cascade: versions and derived assets go first so no orphan bytes
	// remain on disk once the object row disappears.
	if err := s.blobs.DeletePrefix(ctx, versionDir(object.ID)); err != nil {
		return &StorageError{Op: "delete", Key: versionDir(object.ID), Err: err}
	}
	if err := s.repository.DeleteAllVersions(ctx, object.ID); err != nil {
		return &ObjectError{Path: object.Path, Op: "delete_versions", Err: err}
	}

	if err := s.blobs.DeletePrefix(ctx, variantDir(object.ID)); err != nil {
		return &StorageError{Op: "delete", Key: variantDir(object.ID), Err: err}
	}
	if err := s.repository.DeleteDerivedAssets(ctx, object.ID); err != nil {
		return &ObjectError{Path: object.Path, Op: "delete_variants", Err: err}
	}

	if err := s.blobs.Delete(ctx, object.Path); err != nil {
		return &StorageError{Op: "delete", Key: object.Path, Err: err}
	}
	if err := s.repository.DeleteObject(ctx, object.ID); err != nil {
		return &ObjectError{Path: object.Path, Op: "delete", Err: err}
	}

	s.publishEvent(ctx, EventFileDeleted, map[string]interface{}{
		"object_id": object.ID.String(),
		"path":      object.Path,
	})

	return nil
}

func (s *service) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 50
	}

	offset := (page - 1) * limit
	objects, total, err := s.repository.ListObjects(ctx, req.Dir, req.Recursive, offset, limit)
	if err != nil {
		return nil, &ObjectError{Path: req.Dir, Op: "list", Err: err}
	}

	return &ListResult{
		Objects: objects,
		Page:    page,
		Limit:   limit,
		Total:   total,
	}, nil
}

func (s *service) GetObject(ctx context.Context, id uuid.UUID) (*StoredObject, error) {
	return s.repository.GetObject(ctx, id)
}

// Trigger helpers. Failures here are logged and never propagate into the
// originating mutation; completion is observed through the version/variant
// APIs or the webhook itself.

func (s *service) publishEvent(ctx context.Context, eventType EventType, data map[string]interface{}) {
	if s.eventSink == nil {
		return
	}
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	if err := s.eventSink.Publish(ctx, event); err != nil {
		s.log.Error("event publish failed", "event", string(eventType), "error", err)
	}
}

func (s *service) snapshotAfterMutation(ctx context.Context, object *StoredObject) {
	if !s.versioningEnabled {
		return
	}
	if _, err := s.CreateVersion(ctx, object.ID); err != nil {
		s.log.Error("version snapshot failed", "object_id", object.ID, "error", err)
	}
}

func (s *service) enqueuePresetJobs(ctx context.Context, object *StoredObject) {
	if s.broker == nil || !s.derivedEnabled || !isImage(object.ContentType) {
		return
	}

	for _, preset := range Presets {
		job := DerivedAssetJob{
			ObjectID:   object.ID,
			VariantKey: preset.Name,
			Options: VariantOptions{
				Width:   preset.Width,
				Height:  preset.Height,
				Format:  preset.Format,
				Quality: preset.Quality,
				Crop:    preset.Width > 0 && preset.Height > 0,
			},
		}
		payload, err := json.Marshal(job)
		if err != nil {
			s.log.Error("marshal derived job failed", "object_id", object.ID, "error", err)
			continue
		}
		if err := s.broker.Enqueue(ctx, TopicDerivedGenerate, payload); err != nil {
			s.log.Error("enqueue derived job failed",
				"object_id", object.ID, "variant", preset.Name, "error", err)
		}
	}
}

func (s *service) objectLock(id uuid.UUID) *sync.Mutex {
	s.versionLocksMu.Lock()
	defer s.versionLocksMu.Unlock()

	mu, ok := s.versionLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.versionLocks[id] = mu
	}
	return mu
}
