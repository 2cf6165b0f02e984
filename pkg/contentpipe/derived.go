package contentpipe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/contentpipe/contentpipe/pkg/contentpipe/imageproc"
)

// Derived-asset pipeline operations.

func (s *service) RequestPreset(ctx context.Context, objectID uuid.UUID, presetName string) (*DerivedAsset, error) {
	if !s.derivedEnabled {
		return nil, ErrFeatureDisabled
	}

	preset, ok := PresetByName(presetName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown preset %q", ErrInvalidRequest, presetName)
	}

	// Cache hit: the row exists and its bytes are still on disk.
	asset, err := s.repository.GetDerivedAsset(ctx, objectID, presetName)
	if err == nil {
		if _, metaErr := s.blobs.GetObjectMeta(ctx, asset.StoredPath); metaErr == nil {
			return asset, nil
		}
		// Row without bytes: regenerate below.
	}

	return s.GenerateVariant(ctx, objectID, presetName, VariantOptions{
		Width:   preset.Width,
		Height:  preset.Height,
		Format:  preset.Format,
		Quality: preset.Quality,
		Crop:    preset.Width > 0 && preset.Height > 0,
	})
}

func (s *service) RequestCustom(ctx context.Context, objectID uuid.UUID, opts VariantOptions) (*DerivedAsset, error) {
	if !s.derivedEnabled {
		return nil, ErrFeatureDisabled
	}

	if opts.Width <= 0 && opts.Height <= 0 {
		return nil, fmt.Errorf("%w: at least one of width or height is required", ErrInvalidRequest)
	}

	// Custom variants are never deduplicated; each request gets a freshly
	// minted key and its own row.
	return s.GenerateVariant(ctx, objectID, mintVariantKey(), opts)
}

// GenerateVariant produces the transformed copy for the given key and upserts
// its row. It is idempotent per (object, key): a duplicate broker delivery
// lands on the same row and storage path.
func (s *service) GenerateVariant(ctx context.Context, objectID uuid.UUID, variantKey string, opts VariantOptions) (*DerivedAsset, error) {
	if !s.derivedEnabled {
		return nil, ErrFeatureDisabled
	}

	object, err := s.repository.GetObject(ctx, objectID)
	if err != nil {
		return nil, err
	}

	rc, err := s.blobs.Download(ctx, object.Path)
	if err != nil {
		return nil, &StorageError{Op: "generate_variant", Key: object.Path, Err: err}
	}
	source, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, &StorageError{Op: "generate_variant", Key: object.Path, Err: err}
	}

	result, err := imageproc.Transform(source, imageproc.Options{
		Width:     opts.Width,
		Height:    opts.Height,
		Format:    opts.Format,
		Quality:   opts.Quality,
		Crop:      opts.Crop,
		Grayscale: opts.Grayscale,
		Blur:      opts.Blur,
		Rotate:    opts.Rotate,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	storedPath := variantKeyPath(objectID, variantKey, result.Format)
	if err := s.blobs.Upload(ctx, storedPath, bytes.NewReader(result.Data)); err != nil {
		return nil, &StorageError{Op: "generate_variant", Key: storedPath, Err: err}
	}

	now := time.Now().UTC()
	asset := &DerivedAsset{
		ObjectID:   objectID,
		VariantKey: variantKey,
		Width:      result.Width,
		Height:     result.Height,
		Format:     result.Format,
		Quality:    result.Quality,
		StoredPath: storedPath,
		Size:       int64(len(result.Data)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repository.UpsertDerivedAsset(ctx, asset); err != nil {
		return nil, &ObjectError{Path: object.Path, Op: "generate_variant", Err: err}
	}

	return asset, nil
}

func (s *service) ListVariants(ctx context.Context, objectID uuid.UUID) ([]*DerivedAsset, error) {
	if !s.derivedEnabled {
		return nil, ErrFeatureDisabled
	}
	if _, err := s.repository.GetObject(ctx, objectID); err != nil {
		return nil, err
	}
	return s.repository.ListDerivedAssets(ctx, objectID)
}

func (s *service) DeleteAllVariants(ctx context.Context, objectID uuid.UUID) error {
	if !s.derivedEnabled {
		return ErrFeatureDisabled
	}

	if _, err := s.repository.GetObject(ctx, objectID); err != nil {
		return err
	}

	// A variant directory that never existed is not an error.
	if err := s.blobs.DeletePrefix(ctx, variantDir(objectID)); err != nil {
		return &StorageError{Op: "delete_variants", Key: variantDir(objectID), Err: err}
	}
	return s.repository.DeleteDerivedAssets(ctx, objectID)
}
