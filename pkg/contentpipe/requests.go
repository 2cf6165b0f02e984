package contentpipe

import (
	"io"

	"github.com/google/uuid"
)

// SaveRequest contains parameters for storing a new object.
type SaveRequest struct {
	Data        io.Reader
	TargetPath  string
	FileName    string
	ContentType string
	OwnerID     uuid.UUID
	Metadata    map[string]interface{}
}

// UpdateRequest contains parameters for overwriting an existing object.
type UpdateRequest struct {
	Path        string
	Data        io.Reader
	ContentType string
}

// ListRequest contains parameters for listing objects under a directory.
type ListRequest struct {
	Dir       string
	Recursive bool
	Page      int
	Limit     int
}

// ListResult is a single page of object metadata.
type ListResult struct {
	Objects []*StoredObject `json:"objects"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
	Total   int             `json:"total"`
}

// VariantOptions describes a custom derived-asset request. At least one of
// Width or Height is required.
type VariantOptions struct {
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Format    string  `json:"format,omitempty"`
	Quality   int     `json:"quality,omitempty"`
	Crop      bool    `json:"crop,omitempty"`
	Grayscale bool    `json:"grayscale,omitempty"`
	Blur      float64 `json:"blur,omitempty"`
	Rotate    float64 `json:"rotate,omitempty"`
}

// CreateSubscriptionRequest contains parameters for registering a webhook
// endpoint.
type CreateSubscriptionRequest struct {
	EndpointURL string      `json:"endpoint_url"`
	Secret      string      `json:"secret,omitempty"`
	EventTypes  []EventType `json:"event_types"`
	OwnerID     uuid.UUID   `json:"owner_id"`
}

// DerivedAssetJob is the broker payload for asynchronous variant generation.
type DerivedAssetJob struct {
	ObjectID   uuid.UUID      `json:"objectId"`
	VariantKey string         `json:"variantKey"`
	Options    VariantOptions `json:"options"`
}
