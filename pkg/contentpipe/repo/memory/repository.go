// Package memory provides an in-memory implementation of the contentpipe
// Repository interface, used in tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
)

// Repository implements contentpipe.Repository using in-memory storage
type Repository struct {
	mu            sync.RWMutex
	objects       map[uuid.UUID]*contentpipe.StoredObject
	objectsByPath map[string]uuid.UUID
	versions      map[uuid.UUID]map[int]*contentpipe.ObjectVersion
	versionSeq    map[uuid.UUID]int
	assets        map[uuid.UUID]map[string]*contentpipe.DerivedAsset
	subscriptions map[uuid.UUID]*contentpipe.WebhookSubscription
	deliveries    []*contentpipe.WebhookDeliveryRecord
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		objects:       make(map[uuid.UUID]*contentpipe.StoredObject),
		objectsByPath: make(map[string]uuid.UUID),
		versions:      make(map[uuid.UUID]map[int]*contentpipe.ObjectVersion),
		versionSeq:    make(map[uuid.UUID]int),
		assets:        make(map[uuid.UUID]map[string]*contentpipe.DerivedAsset),
		subscriptions: make(map[uuid.UUID]*contentpipe.WebhookSubscription),
	}
}

// Object operations

func (r *Repository) CreateObject(ctx context.Context, object *contentpipe.StoredObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objectsByPath[object.Path]; exists {
		return contentpipe.ErrConflict
	}

	copied := *object
	r.objects[object.ID] = &copied
	r.objectsByPath[object.Path] = object.ID
	return nil
}

func (r *Repository) GetObject(ctx context.Context, id uuid.UUID) (*contentpipe.StoredObject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	object, exists := r.objects[id]
	if !exists {
		return nil, contentpipe.ErrObjectNotFound
	}
	copied := *object
	return &copied, nil
}

func (r *Repository) GetObjectByPath(ctx context.Context, path string) (*contentpipe.StoredObject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.objectsByPath[path]
	if !exists {
		return nil, contentpipe.ErrObjectNotFound
	}
	copied := *r.objects[id]
	return &copied, nil
}

func (r *Repository) UpdateObject(ctx context.Context, object *contentpipe.StoredObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.objects[object.ID]
	if !exists {
		return contentpipe.ErrObjectNotFound
	}

	if existing.Path != object.Path {
		delete(r.objectsByPath, existing.Path)
		r.objectsByPath[object.Path] = object.ID
	}
	copied := *object
	r.objects[object.ID] = &copied
	return nil
}

func (r *Repository) DeleteObject(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	object, exists := r.objects[id]
	if !exists {
		return contentpipe.ErrObjectNotFound
	}

	delete(r.objectsByPath, object.Path)
	delete(r.objects, id)
	return nil
}

func (r *Repository) ListObjects(ctx context.Context, dir string, recursive bool, offset, limit int) ([]*contentpipe.StoredObject, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefix := strings.Trim(dir, "/")
	if prefix != "" {
		prefix += "/"
	}

	var matched []*contentpipe.StoredObject
	for _, object := range r.objects {
		if !strings.HasPrefix(object.Path, prefix) {
			continue
		}
		if !recursive && strings.Contains(object.Path[len(prefix):], "/") {
			continue
		}
		copied := *object
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Path < matched[j].Path
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// Version operations

func (r *Repository) NextVersionNumber(ctx context.Context, objectID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[objectID]; !exists {
		return 0, contentpipe.ErrObjectNotFound
	}

	r.versionSeq[objectID]++
	return r.versionSeq[objectID], nil
}

func (r *Repository) CreateVersion(ctx context.Context, version *contentpipe.ObjectVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[version.ObjectID]; !exists {
		return contentpipe.ErrObjectNotFound
	}

	byNumber, ok := r.versions[version.ObjectID]
	if !ok {
		byNumber = make(map[int]*contentpipe.ObjectVersion)
		r.versions[version.ObjectID] = byNumber
	}

	copied := *version
	byNumber[version.VersionNumber] = &copied
	return nil
}

func (r *Repository) GetVersion(ctx context.Context, objectID uuid.UUID, versionNumber int) (*contentpipe.ObjectVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, exists := r.versions[objectID][versionNumber]
	if !exists {
		return nil, contentpipe.ErrVersionNotFound
	}
	copied := *version
	return &copied, nil
}

func (r *Repository) ListVersions(ctx context.Context, objectID uuid.UUID) ([]*contentpipe.ObjectVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentpipe.ObjectVersion
	for _, version := range r.versions[objectID] {
		copied := *version
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].VersionNumber < result[j].VersionNumber
	})
	return result, nil
}

func (r *Repository) DeleteVersion(ctx context.Context, objectID uuid.UUID, versionNumber int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.versions[objectID][versionNumber]; !exists {
		return contentpipe.ErrVersionNotFound
	}
	// The sequence counter is untouched, so the number is never reassigned.
	delete(r.versions[objectID], versionNumber)
	return nil
}

func (r *Repository) DeleteAllVersions(ctx context.Context, objectID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.versions, objectID)
	return nil
}

// Derived-asset operations

func (r *Repository) UpsertDerivedAsset(ctx context.Context, asset *contentpipe.DerivedAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[asset.ObjectID]; !exists {
		return contentpipe.ErrObjectNotFound
	}

	byKey, ok := r.assets[asset.ObjectID]
	if !ok {
		byKey = make(map[string]*contentpipe.DerivedAsset)
		r.assets[asset.ObjectID] = byKey
	}

	copied := *asset
	if existing, ok := byKey[asset.VariantKey]; ok {
		copied.CreatedAt = existing.CreatedAt
		copied.UpdatedAt = time.Now().UTC()
	}
	byKey[asset.VariantKey] = &copied
	return nil
}

func (r *Repository) GetDerivedAsset(ctx context.Context, objectID uuid.UUID, variantKey string) (*contentpipe.DerivedAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, exists := r.assets[objectID][variantKey]
	if !exists {
		return nil, contentpipe.ErrVariantNotFound
	}
	copied := *asset
	return &copied, nil
}

func (r *Repository) ListDerivedAssets(ctx context.Context, objectID uuid.UUID) ([]*contentpipe.DerivedAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentpipe.DerivedAsset
	for _, asset := range r.assets[objectID] {
		copied := *asset
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].VariantKey < result[j].VariantKey
	})
	return result, nil
}

func (r *Repository) DeleteDerivedAssets(ctx context.Context, objectID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.assets, objectID)
	return nil
}

// Webhook subscription operations

func (r *Repository) CreateSubscription(ctx context.Context, sub *contentpipe.WebhookSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *sub
	copied.EventTypes = append([]contentpipe.EventType(nil), sub.EventTypes...)
	r.subscriptions[sub.ID] = &copied
	return nil
}

func (r *Repository) GetSubscription(ctx context.Context, id uuid.UUID) (*contentpipe.WebhookSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, exists := r.subscriptions[id]
	if !exists {
		return nil, contentpipe.ErrSubscriptionNotFound
	}
	copied := *sub
	copied.EventTypes = append([]contentpipe.EventType(nil), sub.EventTypes...)
	return &copied, nil
}

func (r *Repository) UpdateSubscription(ctx context.Context, sub *contentpipe.WebhookSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscriptions[sub.ID]; !exists {
		return contentpipe.ErrSubscriptionNotFound
	}
	copied := *sub
	copied.EventTypes = append([]contentpipe.EventType(nil), sub.EventTypes...)
	r.subscriptions[sub.ID] = &copied
	return nil
}

func (r *Repository) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscriptions[id]; !exists {
		return contentpipe.ErrSubscriptionNotFound
	}
	delete(r.subscriptions, id)
	return nil
}

func (r *Repository) ListSubscriptions(ctx context.Context, ownerID uuid.UUID) ([]*contentpipe.WebhookSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentpipe.WebhookSubscription
	for _, sub := range r.subscriptions {
		if sub.OwnerID != ownerID {
			continue
		}
		copied := *sub
		copied.EventTypes = append([]contentpipe.EventType(nil), sub.EventTypes...)
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) ListActiveSubscriptionsForEvent(ctx context.Context, eventType contentpipe.EventType) ([]*contentpipe.WebhookSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentpipe.WebhookSubscription
	for _, sub := range r.subscriptions {
		if !sub.Active || !sub.WantsEvent(eventType) {
			continue
		}
		copied := *sub
		copied.EventTypes = append([]contentpipe.EventType(nil), sub.EventTypes...)
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Delivery audit log

func (r *Repository) CreateDeliveryRecord(ctx context.Context, record *contentpipe.WebhookDeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *record
	r.deliveries = append(r.deliveries, &copied)
	return nil
}

func (r *Repository) ListDeliveryRecords(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*contentpipe.WebhookDeliveryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentpipe.WebhookDeliveryRecord
	for i := len(r.deliveries) - 1; i >= 0; i-- {
		if r.deliveries[i].SubscriptionID != subscriptionID {
			continue
		}
		copied := *r.deliveries[i]
		result = append(result, &copied)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
