package contentpipe

import (
	"time"

	"github.com/google/uuid"
)

// StoredObject represents a single addressable file in the content namespace.
type StoredObject struct {
	ID          uuid.UUID `json:"id"`
	Path        string    `json:"path"`
	FileName    string    `json:"file_name,omitempty"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Checksum    string    `json:"checksum,omitempty"`
	OwnerID     uuid.UUID `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ObjectVersion is an immutable snapshot of an object's content at a point in
// time. Version numbers start at 1 and are strictly increasing per object;
// a number is never reused, even after the version is deleted.
type ObjectVersion struct {
	ObjectID      uuid.UUID `json:"object_id"`
	VersionNumber int       `json:"version_number"`
	StoredPath    string    `json:"stored_path"`
	Size          int64     `json:"size"`
	Checksum      string    `json:"checksum"`
	CreatedAt     time.Time `json:"created_at"`
}

// DerivedAsset is a transformed (resized/reformatted) copy of an image
// object, cached under a variant key unique within the parent object.
type DerivedAsset struct {
	ObjectID   uuid.UUID `json:"object_id"`
	VariantKey string    `json:"variant_key"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Format     string    `json:"format"`
	Quality    int       `json:"quality"`
	StoredPath string    `json:"stored_path"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WebhookSubscription registers an external endpoint for lifecycle events.
type WebhookSubscription struct {
	ID          uuid.UUID   `json:"id"`
	EndpointURL string      `json:"endpoint_url"`
	Secret      string      `json:"-"`
	Active      bool        `json:"active"`
	EventTypes  []EventType `json:"event_types"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// WantsEvent reports whether the subscription covers the given event type.
func (s *WebhookSubscription) WantsEvent(et EventType) bool {
	for _, t := range s.EventTypes {
		if t == et {
			return true
		}
	}
	return false
}

// WebhookDeliveryRecord is an append-only audit entry for one delivery
// attempt. HTTPStatus is nil when the request never reached the endpoint.
type WebhookDeliveryRecord struct {
	ID             uuid.UUID              `json:"id"`
	SubscriptionID uuid.UUID              `json:"subscription_id"`
	EventType      EventType              `json:"event_type"`
	Payload        map[string]interface{} `json:"payload"`
	HTTPStatus     *int                   `json:"http_status,omitempty"`
	ResponseBody   string                 `json:"response_body,omitempty"`
	Success        bool                   `json:"success"`
	CreatedAt      time.Time              `json:"created_at"`
}

// EventType identifies a content-lifecycle event.
type EventType string

// Lifecycle event taxonomy. The set is fixed; subscriptions reference these
// values verbatim.
const (
	EventFileCreated    EventType = "file.created"
	EventFileUpdated    EventType = "file.updated"
	EventFileDeleted    EventType = "file.deleted"
	EventFileAccessed   EventType = "file.accessed"
	EventFolderCreated  EventType = "folder.created"
	EventFolderUpdated  EventType = "folder.updated"
	EventFolderDeleted  EventType = "folder.deleted"
	EventVersionCreated EventType = "version.created"
)

// AllEventTypes lists every known event type.
var AllEventTypes = []EventType{
	EventFileCreated,
	EventFileUpdated,
	EventFileDeleted,
	EventFileAccessed,
	EventFolderCreated,
	EventFolderUpdated,
	EventFolderDeleted,
	EventVersionCreated,
}

// ValidEventType reports whether et is part of the fixed taxonomy.
func ValidEventType(et EventType) bool {
	for _, t := range AllEventTypes {
		if t == et {
			return true
		}
	}
	return false
}

// Event is a lifecycle notification emitted by the service.
type Event struct {
	Type      EventType              `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// VersionDiff is the result of a byte-level comparison of two versions.
type VersionDiff struct {
	DifferentBytes       int64   `json:"different_bytes"`
	TotalBytes           int64   `json:"total_bytes"`
	DifferencePercentage float64 `json:"difference_percentage"`
}

// Preset is a fixed, named derived-asset configuration. Width or Height of
// zero means the dimension is derived from the source aspect ratio.
type Preset struct {
	Name    string
	Width   int
	Height  int
	Format  string
	Quality int
}

// Presets is the fixed preset table used for eager variant generation after
// image uploads and for on-demand preset requests.
var Presets = []Preset{
	{Name: "thumbnail", Width: 150, Height: 150, Format: "webp", Quality: 80},
	{Name: "small", Width: 320, Format: "webp", Quality: 80},
	{Name: "medium", Width: 640, Format: "webp", Quality: 80},
	{Name: "large", Width: 1280, Format: "webp", Quality: 80},
}

// PresetByName looks up a preset from the fixed table.
func PresetByName(name string) (Preset, bool) {
	for _, p := range Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}
