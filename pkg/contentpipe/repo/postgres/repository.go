// Package postgres provides a PostgreSQL implementation of the contentpipe
// Repository interface using pgx. Expected schema:
//
//	stored_object(id, path, file_name, size, content_type, checksum,
//	              owner_id, last_version, created_at, updated_at)
//	object_version(object_id, version_number, stored_path, size, checksum,
//	               created_at, PRIMARY KEY(object_id, version_number))
//	derived_asset(object_id, variant_key, width, height, format, quality,
//	              stored_path, size, created_at, updated_at,
//	              PRIMARY KEY(object_id, variant_key))
//	webhook_subscription(id, endpoint_url, secret, active, event_types,
//	                     owner_id, created_at, updated_at)
//	webhook_delivery(id, subscription_id, event_type, payload, http_status,
//	                 response_body, success, created_at)
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements contentpipe.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with a connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func mapError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return contentpipe.ErrConflict
		case "23503": // foreign_key_violation
			return contentpipe.ErrNotFound
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Object operations

func (r *Repository) CreateObject(ctx context.Context, object *contentpipe.StoredObject) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO stored_object (id, path, file_name, size, content_type, checksum, owner_id, last_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)`,
		object.ID, object.Path, object.FileName, object.Size, object.ContentType,
		object.Checksum, object.OwnerID, object.CreatedAt, object.UpdatedAt)
	if err != nil {
		return mapError("create_object", err)
	}
	return nil
}

func (r *Repository) GetObject(ctx context.Context, id uuid.UUID) (*contentpipe.StoredObject, error) {
	return r.scanObject(r.db.QueryRow(ctx, `
		SELECT id, path, file_name, size, content_type, checksum, owner_id, created_at, updated_at
		FROM stored_object WHERE id = $1`, id))
}

func (r *Repository) GetObjectByPath(ctx context.Context, path string) (*contentpipe.StoredObject, error) {
	return r.scanObject(r.db.QueryRow(ctx, `
		SELECT id, path, file_name, size, content_type, checksum, owner_id, created_at, updated_at
		FROM stored_object WHERE path = $1`, path))
}

func (r *Repository) scanObject(row pgx.Row) (*contentpipe.StoredObject, error) {
	var object contentpipe.StoredObject
	err := row.Scan(&object.ID, &object.Path, &object.FileName, &object.Size,
		&object.ContentType, &object.Checksum, &object.OwnerID,
		&object.CreatedAt, &object.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contentpipe.ErrObjectNotFound
	}
	if err != nil {
		return nil, mapError("get_object", err)
	}
	return &object, nil
}

func (r *Repository) UpdateObject(ctx context.Context, object *contentpipe.StoredObject) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE stored_object
		SET path = $2, file_name = $3, size = $4, content_type = $5, checksum = $6, updated_at = $7
		WHERE id = $1`,
		object.ID, object.Path, object.FileName, object.Size, object.ContentType,
		object.Checksum, object.UpdatedAt)
	if err != nil {
		return mapError("update_object", err)
	}
	if tag.RowsAffected() == 0 {
		return contentpipe.ErrObjectNotFound
	}
	return nil
}

func (r *Repository) DeleteObject(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM stored_object WHERE id = $1`, id)
	if err != nil {
		return mapError("delete_object", err)
	}
	if tag.RowsAffected() == 0 {
		return contentpipe.ErrObjectNotFound
	}
	return nil
}

func (r *Repository) ListObjects(ctx context.Context, dir string, recursive bool, offset, limit int) ([]*contentpipe.StoredObject, int, error) {
	prefix := ""
	if dir != "" && dir != "/" {
		prefix = dir
		if prefix[len(prefix)-1] != '/' {
			prefix += "/"
		}
	}

	// Non-recursive listings exclude paths with a further separator after
	// the directory prefix.
	filter := `path LIKE $1 || '%'`
	if !recursive {
		filter += ` AND position('/' in substring(path from char_length($1) + 1)) = 0`
	}

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM stored_object WHERE `+filter, prefix).Scan(&total); err != nil {
		return nil, 0, mapError("list_objects", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, path, file_name, size, content_type, checksum, owner_id, created_at, updated_at
		FROM stored_object WHERE `+filter+`
		ORDER BY path OFFSET $2 LIMIT $3`, prefix, offset, limit)
	if err != nil {
		return nil, 0, mapError("list_objects", err)
	}
	defer rows.Close()

	var result []*contentpipe.StoredObject
	for rows.Next() {
		var object contentpipe.StoredObject
		if err := rows.Scan(&object.ID, &object.Path, &object.FileName, &object.Size,
			&object.ContentType, &object.Checksum, &object.OwnerID,
			&object.CreatedAt, &object.UpdatedAt); err != nil {
			return nil, 0, mapError("list_objects", err)
		}
		result = append(result, &object)
	}
	return result, total, rows.Err()
}

// Version operations

func (r *Repository) NextVersionNumber(ctx context.Context, objectID uuid.UUID) (int, error) {
	// A counter on the object row hands out numbers atomically and never
	// reuses one, even after the latest version is deleted.
	var number int
	err := r.db.QueryRow(ctx, `
		UPDATE stored_object SET last_version = last_version + 1
		WHERE id = $1 RETURNING last_version`, objectID).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, contentpipe.ErrObjectNotFound
	}
	if err != nil {
		return 0, mapError("next_version_number", err)
	}
	return number, nil
}

func (r *Repository) CreateVersion(ctx context.Context, version *contentpipe.ObjectVersion) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO object_version (object_id, version_number, stored_path, size, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		version.ObjectID, version.VersionNumber, version.StoredPath,
		version.Size, version.Checksum, version.CreatedAt)
	if err != nil {
		return mapError("create_version", err)
	}
	return nil
}

func (r *Repository) GetVersion(ctx context.Context, objectID uuid.UUID, versionNumber int) (*contentpipe.ObjectVersion, error) {
	var version contentpipe.ObjectVersion
	err := r.db.QueryRow(ctx, `
		SELECT object_id, version_number, stored_path, size, checksum, created_at
		FROM object_version WHERE object_id = $1 AND version_number = $2`,
		objectID, versionNumber).Scan(&version.ObjectID, &version.VersionNumber,
		&version.StoredPath, &version.Size, &version.Checksum, &version.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contentpipe.ErrVersionNotFound
	}
	if err != nil {
		return nil, mapError("get_version", err)
	}
	return &version, nil
}

func (r *Repository) ListVersions(ctx context.Context, objectID uuid.UUID) ([]*contentpipe.ObjectVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT object_id, version_number, stored_path, size, checksum, created_at
		FROM object_version WHERE object_id = $1 ORDER BY version_number`, objectID)
	if err != nil {
		return nil, mapError("list_versions", err)
	}
	defer rows.Close()

	var result []*contentpipe.ObjectVersion
	for rows.Next() {
		var version contentpipe.ObjectVersion
		if err := rows.Scan(&version.ObjectID, &version.VersionNumber, &version.StoredPath,
			&version.Size, &version.Checksum, &version.CreatedAt); err != nil {
			return nil, mapError("list_versions", err)
		}
		result = append(result, &version)
	}
	return result, rows.Err()
}

func (r *Repository) DeleteVersion(ctx context.Context, objectID uuid.UUID, versionNumber int) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM object_version WHERE object_id = $1 AND version_number = $2`,
		objectID, versionNumber)
	if err != nil {
		return mapError("delete_version", err)
	}
	if tag.RowsAffected() == 0 {
		return contentpipe.ErrVersionNotFound
	}
	return nil
}

func (r *Repository) DeleteAllVersions(ctx context.Context, objectID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM object_version WHERE object_id = $1`, objectID)
	if err != nil {
		return mapError("delete_all_versions", err)
	}
	return nil
}

// Derived-asset operations

func (r *Repository) UpsertDerivedAsset(ctx context.Context, asset *contentpipe.DerivedAsset) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO derived_asset (object_id, variant_key, width, height, format, quality, stored_path, size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (object_id, variant_key) DO UPDATE
		SET width = EXCLUDED.width, height = EXCLUDED.height, format = EXCLUDED.format,
		    quality = EXCLUDED.quality, stored_path = EXCLUDED.stored_path,
		    size = EXCLUDED.size, updated_at = EXCLUDED.updated_at`,
		asset.ObjectID, asset.VariantKey, asset.Width, asset.Height, asset.Format,
		asset.Quality, asset.StoredPath, asset.Size, asset.CreatedAt, asset.UpdatedAt)
	if err != nil {
		return mapError("upsert_derived_asset", err)
	}
	return nil
}

func (r *Repository) GetDerivedAsset(ctx context.Context, objectID uuid.UUID, variantKey string) (*contentpipe.DerivedAsset, error) {
	var asset contentpipe.DerivedAsset
	err := r.db.QueryRow(ctx, `
		SELECT object_id, variant_key, width, height, format, quality, stored_path, size, created_at, updated_at
		FROM derived_asset WHERE object_id = $1 AND variant_key = $2`,
		objectID, variantKey).Scan(&asset.ObjectID, &asset.VariantKey, &asset.Width,
		&asset.Height, &asset.Format, &asset.Quality, &asset.StoredPath, &asset.Size,
		&asset.CreatedAt, &asset.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contentpipe.ErrVariantNotFound
	}
	if err != nil {
		return nil, mapError("get_derived_asset", err)
	}
	return &asset, nil
}

func (r *Repository) ListDerivedAssets(ctx context.Context, objectID uuid.UUID) ([]*contentpipe.DerivedAsset, error) {
	rows, err := r.db.Query(ctx, `
		SELECT object_id, variant_key, width, height, format, quality, stored_path, size, created_at, updated_at
		FROM derived_asset WHERE object_id = $1 ORDER BY variant_key`, objectID)
	if err != nil {
		return nil, mapError("list_derived_assets", err)
	}
	defer rows.Close()

	var result []*contentpipe.DerivedAsset
	for rows.Next() {
		var asset contentpipe.DerivedAsset
		if err := rows.Scan(&asset.ObjectID, &asset.VariantKey, &asset.Width, &asset.Height,
			&asset.Format, &asset.Quality, &asset.StoredPath, &asset.Size,
			&asset.CreatedAt, &asset.UpdatedAt); err != nil {
			return nil, mapError("list_derived_assets", err)
		}
		result = append(result, &asset)
	}
	return result, rows.Err()
}

func (r *Repository) DeleteDerivedAssets(ctx context.Context, objectID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM derived_asset WHERE object_id = $1`, objectID)
	if err != nil {
		return mapError("delete_derived_assets", err)
	}
	return nil
}

// Webhook subscription operations

func (r *Repository) CreateSubscription(ctx context.Context, sub *contentpipe.WebhookSubscription) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO webhook_subscription (id, endpoint_url, secret, active, event_types, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.EndpointURL, sub.Secret, sub.Active, eventTypeStrings(sub.EventTypes),
		sub.OwnerID, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return mapError("create_subscription", err)
	}
	return nil
}

func (r *Repository) GetSubscription(ctx context.Context, id uuid.UUID) (*contentpipe.WebhookSubscription, error) {
	return r.scanSubscription(r.db.QueryRow(ctx, `
		SELECT id, endpoint_url, secret, active, event_types, owner_id, created_at, updated_at
		FROM webhook_subscription WHERE id = $1`, id))
}

func (r *Repository) scanSubscription(row pgx.Row) (*contentpipe.WebhookSubscription, error) {
	var sub contentpipe.WebhookSubscription
	var eventTypes []string
	err := row.Scan(&sub.ID, &sub.EndpointURL, &sub.Secret, &sub.Active,
		&eventTypes, &sub.OwnerID, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contentpipe.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, mapError("get_subscription", err)
	}
	for _, et := range eventTypes {
		sub.EventTypes = append(sub.EventTypes, contentpipe.EventType(et))
	}
	return &sub, nil
}

func (r *Repository) UpdateSubscription(ctx context.Context, sub *contentpipe.WebhookSubscription) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE webhook_subscription
		SET endpoint_url = $2, secret = $3, active = $4, event_types = $5, updated_at = $6
		WHERE id = $1`,
		sub.ID, sub.EndpointURL, sub.Secret, sub.Active,
		eventTypeStrings(sub.EventTypes), sub.UpdatedAt)
	if err != nil {
		return mapError("update_subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return contentpipe.ErrSubscriptionNotFound
	}
	return nil
}

func (r *Repository) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_subscription WHERE id = $1`, id)
	if err != nil {
		return mapError("delete_subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return contentpipe.ErrSubscriptionNotFound
	}
	return nil
}

func (r *Repository) ListSubscriptions(ctx context.Context, ownerID uuid.UUID) ([]*contentpipe.WebhookSubscription, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, endpoint_url, secret, active, event_types, owner_id, created_at, updated_at
		FROM webhook_subscription WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, mapError("list_subscriptions", err)
	}
	return r.collectSubscriptions(rows)
}

func (r *Repository) ListActiveSubscriptionsForEvent(ctx context.Context, eventType contentpipe.EventType) ([]*contentpipe.WebhookSubscription, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, endpoint_url, secret, active, event_types, owner_id, created_at, updated_at
		FROM webhook_subscription WHERE active AND $1 = ANY(event_types)
		ORDER BY created_at`, string(eventType))
	if err != nil {
		return nil, mapError("list_active_subscriptions", err)
	}
	return r.collectSubscriptions(rows)
}

func (r *Repository) collectSubscriptions(rows pgx.Rows) ([]*contentpipe.WebhookSubscription, error) {
	defer rows.Close()

	var result []*contentpipe.WebhookSubscription
	for rows.Next() {
		var sub contentpipe.WebhookSubscription
		var eventTypes []string
		if err := rows.Scan(&sub.ID, &sub.EndpointURL, &sub.Secret, &sub.Active,
			&eventTypes, &sub.OwnerID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, mapError("scan_subscription", err)
		}
		for _, et := range eventTypes {
			sub.EventTypes = append(sub.EventTypes, contentpipe.EventType(et))
		}
		result = append(result, &sub)
	}
	return result, rows.Err()
}

// Delivery audit log

func (r *Repository) CreateDeliveryRecord(ctx context.Context, record *contentpipe.WebhookDeliveryRecord) error {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("marshal delivery payload: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO webhook_delivery (id, subscription_id, event_type, payload, http_status, response_body, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.SubscriptionID, string(record.EventType), payload,
		record.HTTPStatus, record.ResponseBody, record.Success, record.CreatedAt)
	if err != nil {
		return mapError("create_delivery_record", err)
	}
	return nil
}

func (r *Repository) ListDeliveryRecords(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*contentpipe.WebhookDeliveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, subscription_id, event_type, payload, http_status, response_body, success, created_at
		FROM webhook_delivery WHERE subscription_id = $1
		ORDER BY created_at DESC LIMIT $2`, subscriptionID, limit)
	if err != nil {
		return nil, mapError("list_delivery_records", err)
	}
	defer rows.Close()

	var result []*contentpipe.WebhookDeliveryRecord
	for rows.Next() {
		var record contentpipe.WebhookDeliveryRecord
		var eventType string
		var payload []byte
		if err := rows.Scan(&record.ID, &record.SubscriptionID, &eventType, &payload,
			&record.HTTPStatus, &record.ResponseBody, &record.Success, &record.CreatedAt); err != nil {
			return nil, mapError("list_delivery_records", err)
		}
		record.EventType = contentpipe.EventType(eventType)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &record.Payload); err != nil {
				return nil, fmt.Errorf("decode delivery payload: %w", err)
			}
		}
		result = append(result, &record)
	}
	return result, rows.Err()
}

func eventTypeStrings(types []contentpipe.EventType) []string {
	result := make([]string, 0, len(types))
	for _, t := range types {
		result = append(result, string(t))
	}
	return result
}
