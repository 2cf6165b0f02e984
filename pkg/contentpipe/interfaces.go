package contentpipe

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends. Only BlobStore
// implementations touch raw bytes; every other component goes through the
// service layer.
type BlobStore interface {
	// Upload uploads content under the given key, creating intermediate
	// directories implicitly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// DownloadRange downloads the inclusive byte range [start, end]. The
	// reader yields exactly end-start+1 bytes. Ranges outside the object
	// size fail with ErrRangeNotSatisfiable.
	DownloadRange(ctx context.Context, objectKey string, start, end int64) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// DeletePrefix removes every object under the given key prefix. A
	// prefix with no objects is not an error.
	DeletePrefix(ctx context.Context, prefix string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// Repository defines the interface for metadata persistence.
type Repository interface {
	// Object operations
	CreateObject(ctx context.Context, object *StoredObject) error
	GetObject(ctx context.Context, id uuid.UUID) (*StoredObject, error)
	GetObjectByPath(ctx context.Context, path string) (*StoredObject, error)
	UpdateObject(ctx context.Context, object *StoredObject) error
	DeleteObject(ctx context.Context, id uuid.UUID) error
	ListObjects(ctx context.Context, dir string, recursive bool, offset, limit int) ([]*StoredObject, int, error)

	// Version operations. NextVersionNumber atomically assigns the next
	// number for the object; numbers are never reused even after a version
	// is deleted.
	NextVersionNumber(ctx context.Context, objectID uuid.UUID) (int, error)
	CreateVersion(ctx context.Context, version *ObjectVersion) error
	GetVersion(ctx context.Context, objectID uuid.UUID, versionNumber int) (*ObjectVersion, error)
	ListVersions(ctx context.Context, objectID uuid.UUID) ([]*ObjectVersion, error)
	DeleteVersion(ctx context.Context, objectID uuid.UUID, versionNumber int) error
	DeleteAllVersions(ctx context.Context, objectID uuid.UUID) error

	// Derived-asset operations. UpsertDerivedAsset is keyed on
	// (object id, variant key) and updates dimensions and size in place.
	UpsertDerivedAsset(ctx context.Context, asset *DerivedAsset) error
	GetDerivedAsset(ctx context.Context, objectID uuid.UUID, variantKey string) (*DerivedAsset, error)
	ListDerivedAssets(ctx context.Context, objectID uuid.UUID) ([]*DerivedAsset, error)
	DeleteDerivedAssets(ctx context.Context, objectID uuid.UUID) error

	// Webhook subscription operations
	CreateSubscription(ctx context.Context, sub *WebhookSubscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*WebhookSubscription, error)
	UpdateSubscription(ctx context.Context, sub *WebhookSubscription) error
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	ListSubscriptions(ctx context.Context, ownerID uuid.UUID) ([]*WebhookSubscription, error)
	ListActiveSubscriptionsForEvent(ctx context.Context, eventType EventType) ([]*WebhookSubscription, error)

	// Delivery audit log, append-only
	CreateDeliveryRecord(ctx context.Context, record *WebhookDeliveryRecord) error
	ListDeliveryRecords(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*WebhookDeliveryRecord, error)
}

// EventSink receives lifecycle events emitted by the service. Sink failures
// are logged and never fail the originating mutation.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}
