// Package config builds fully wired contentpipe components from declarative
// server configuration. It is the composition root shared by cmd/server and
// embedding applications.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/queue"
	repomem "github.com/contentpipe/contentpipe/pkg/contentpipe/repo/memory"
	repopg "github.com/contentpipe/contentpipe/pkg/contentpipe/repo/postgres"
	fsstorage "github.com/contentpipe/contentpipe/pkg/contentpipe/storage/fs"
	memorystorage "github.com/contentpipe/contentpipe/pkg/contentpipe/storage/memory"
	s3storage "github.com/contentpipe/contentpipe/pkg/contentpipe/storage/s3"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/upload"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:        "8080",
		Environment: "development",

		DatabaseType: "memory",
		DBSchema:     "content",

		StorageType: "memory",

		QueueType:        "memory",
		WorkerCount:      4,
		MaxDeliveryTries: 5,

		SessionStoreType: "memory",
		SessionTTL:       24 * time.Hour,

		EnableVersioning:    true,
		EnableDerivedAssets: true,
		EnableWebhooks:      true,

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// ServerConfig represents server configuration for the contentpipe service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: content)

	// Blob storage configuration
	StorageType   string // "memory", "fs", "s3"
	StorageConfig map[string]interface{}

	// Job queue configuration
	QueueType        string // "memory", "redis"
	RedisURL         string
	WorkerCount      int
	MaxDeliveryTries int

	// Upload session store configuration; redis shares RedisURL
	SessionStoreType string // "memory", "redis"
	SessionTTL       time.Duration

	// Upload policy
	MaxUploadSize    int64
	AllowedMimeTypes []string

	// Feature toggles
	EnableVersioning    bool
	EnableDerivedAssets bool
	EnableWebhooks      bool

	LogLevel  string // debug, info, warn, error
	LogFormat string // console, json
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.StorageType {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}

	if c.QueueType != "memory" && c.QueueType != "redis" {
		return fmt.Errorf("unsupported queue type: %s", c.QueueType)
	}
	if c.QueueType == "redis" && c.RedisURL == "" {
		return errors.New("redis_url is required when using a redis queue")
	}

	if c.SessionStoreType != "memory" && c.SessionStoreType != "redis" {
		return fmt.Errorf("unsupported session store type: %s", c.SessionStoreType)
	}
	if c.SessionStoreType == "redis" && c.RedisURL == "" {
		return errors.New("redis_url is required when using a redis session store")
	}

	if c.WorkerCount <= 0 {
		return errors.New("worker_count must be positive")
	}
	if c.MaxDeliveryTries <= 0 {
		return errors.New("max_delivery_tries must be positive")
	}

	return nil
}

// BuildLogger creates the process logger from the configured level and format.
func (c *ServerConfig) BuildLogger() *logger.Logger {
	return logger.New(c.LogLevel, c.LogFormat)
}

// BuildRepository creates a Repository based on the configuration
func (c *ServerConfig) BuildRepository() (contentpipe.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomem.New(), nil
	case "postgres":
		pool, err := c.buildPool()
		if err != nil {
			return nil, err
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildPool() (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	schema := c.DBSchema
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if schema == "" {
			return nil
		}
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
		return err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres and optionally sets
// search_path for the session. It fails if the schema (when provided) does
// not exist.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// BuildBlobStore creates a BlobStore based on the configuration
func (c *ServerConfig) BuildBlobStore() (contentpipe.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		fsConfig := fsstorage.Config{
			BaseDir: getString(c.StorageConfig, "base_dir", "./data/storage"),
		}
		return fsstorage.New(fsConfig)

	case "s3":
		s3Config := s3storage.Config{
			Region:                 getString(c.StorageConfig, "region", "us-east-1"),
			Bucket:                 getString(c.StorageConfig, "bucket", ""),
			AccessKeyID:            getString(c.StorageConfig, "access_key_id", ""),
			SecretAccessKey:        getString(c.StorageConfig, "secret_access_key", ""),
			Endpoint:               getString(c.StorageConfig, "endpoint", ""),
			UsePathStyle:           getBool(c.StorageConfig, "use_path_style", false),
			CreateBucketIfNotExist: getBool(c.StorageConfig, "create_bucket_if_not_exist", false),
		}
		return s3storage.New(s3Config)

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

// BuildQueue creates the job broker shared by the derived-asset pipeline and
// webhook delivery workers.
func (c *ServerConfig) BuildQueue(log *logger.Logger) (queue.Queue, error) {
	qcfg := queue.Config{
		Concurrency: c.WorkerCount,
		MaxAttempts: c.MaxDeliveryTries,
	}

	switch c.QueueType {
	case "memory":
		return queue.NewMemory(qcfg, log), nil
	case "redis":
		client, err := c.buildRedisClient()
		if err != nil {
			return nil, err
		}
		return queue.NewRedis(client, qcfg, log), nil
	default:
		return nil, fmt.Errorf("unsupported queue type: %s", c.QueueType)
	}
}

// BuildSessionStore creates the chunked-upload session store.
func (c *ServerConfig) BuildSessionStore() (upload.SessionStore, error) {
	switch c.SessionStoreType {
	case "memory":
		return upload.NewMemoryStore(c.SessionTTL), nil
	case "redis":
		client, err := c.buildRedisClient()
		if err != nil {
			return nil, err
		}
		return upload.NewRedisStore(client, c.SessionTTL), nil
	default:
		return nil, fmt.Errorf("unsupported session store type: %s", c.SessionStoreType)
	}
}

func (c *ServerConfig) buildRedisClient() (*redis.Client, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// UploadPolicy returns the configured chunked-upload acceptance policy.
func (c *ServerConfig) UploadPolicy() upload.Policy {
	return upload.Policy{
		MaxSize:      c.MaxUploadSize,
		AllowedTypes: c.AllowedMimeTypes,
	}
}

// BuildService creates a Service instance from the server configuration.
// The queue and event sink are passed in because the caller owns their
// lifecycle (workers consume from the queue after the service exists).
func (c *ServerConfig) BuildService(repo contentpipe.Repository, blobs contentpipe.BlobStore, broker queue.Queue, sink contentpipe.EventSink, log *logger.Logger) (contentpipe.Service, error) {
	options := []contentpipe.Option{
		contentpipe.WithRepository(repo),
		contentpipe.WithBlobStore(blobs),
		contentpipe.WithLogger(log),
		contentpipe.WithVersioning(c.EnableVersioning),
		contentpipe.WithDerivedAssets(c.EnableDerivedAssets),
	}
	if broker != nil {
		options = append(options, contentpipe.WithQueue(broker))
	}
	if sink != nil {
		options = append(options, contentpipe.WithEventSink(sink))
	}
	return contentpipe.New(options...)
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
	}
	return defaultValue
}
