package contentpipe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Reserved prefixes in the blob namespace. User paths may not start with
// these; version slots, variant copies, and chunked-upload scratch buffers
// live under them. UploadScratchPrefix is exported so the upload assembler
// writes its chunk buffers under the same reserved name.
const (
	versionPrefix = ".versions"
	variantPrefix = ".variants"

	UploadScratchPrefix = ".uploads"
)

// versionKey returns the immutable slot key for a version snapshot.
func versionKey(objectID uuid.UUID, versionNumber int) string {
	return fmt.Sprintf("%s/%s/v%d", versionPrefix, objectID, versionNumber)
}

// versionDir returns the slot directory for all of an object's versions.
func versionDir(objectID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/", versionPrefix, objectID)
}

// variantKeyPath returns the cached copy key for a derived asset.
func variantKeyPath(objectID uuid.UUID, variantKey, format string) string {
	return fmt.Sprintf("%s/%s/%s.%s", variantPrefix, objectID, variantKey, format)
}

// variantDir returns the cached-copy directory for all of an object's variants.
func variantDir(objectID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/", variantPrefix, objectID)
}

// normalizePath cleans a user-supplied target path into a relative key within
// the namespace. Empty results and paths under reserved prefixes are invalid.
func normalizePath(p string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(p))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	if strings.HasPrefix(cleaned, versionPrefix+"/") ||
		strings.HasPrefix(cleaned, variantPrefix+"/") ||
		strings.HasPrefix(cleaned, UploadScratchPrefix+"/") {
		return "", fmt.Errorf("%w: path %q uses a reserved prefix", ErrInvalidRequest, p)
	}
	return cleaned, nil
}

// disambiguate appends a short random suffix to the file name, preserving the
// extension, so a save never silently overwrites an existing object.
func disambiguate(p string) string {
	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%s%s", base, suffix, ext)
}

// checksumHex returns the content hash in "sha256:<hex>" form.
func checksumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// mintVariantKey generates a fresh key for a custom variant. Custom variants
// are never deduplicated, so every request gets its own key.
func mintVariantKey() string {
	return "custom_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// isImage reports whether the content type is in the image family.
func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
