package contentpipe

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service is the main interface of the content-lifecycle pipeline. It owns
// the content namespace; versions and derived assets hang off stored objects
// and are cascade-deleted with them.
type Service interface {
	// Content store operations
	Save(ctx context.Context, req SaveRequest) (*StoredObject, error)
	Read(ctx context.Context, path string) (io.ReadCloser, *StoredObject, error)
	Stat(ctx context.Context, path string) (*StoredObject, error)
	ReadRange(ctx context.Context, path string, start, end int64) (io.ReadCloser, *StoredObject, error)
	Update(ctx context.Context, req UpdateRequest) (*StoredObject, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, req ListRequest) (*ListResult, error)
	GetObject(ctx context.Context, id uuid.UUID) (*StoredObject, error)

	// Version store operations
	CreateVersion(ctx context.Context, objectID uuid.UUID) (*ObjectVersion, error)
	GetVersions(ctx context.Context, objectID uuid.UUID) ([]*ObjectVersion, error)
	RestoreVersion(ctx context.Context, objectID uuid.UUID, versionNumber int) (*StoredObject, error)
	CompareVersions(ctx context.Context, objectID uuid.UUID, a, b int) (*VersionDiff, error)
	DeleteVersion(ctx context.Context, objectID uuid.UUID, versionNumber int) error
	DeleteAllVersions(ctx context.Context, objectID uuid.UUID) error

	// Derived-asset operations
	RequestPreset(ctx context.Context, objectID uuid.UUID, presetName string) (*DerivedAsset, error)
	RequestCustom(ctx context.Context, objectID uuid.UUID, opts VariantOptions) (*DerivedAsset, error)
	GenerateVariant(ctx context.Context, objectID uuid.UUID, variantKey string, opts VariantOptions) (*DerivedAsset, error)
	ListVariants(ctx context.Context, objectID uuid.UUID) ([]*DerivedAsset, error)
	DeleteAllVariants(ctx context.Context, objectID uuid.UUID) error
}
