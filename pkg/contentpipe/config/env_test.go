package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentpipe/contentpipe/pkg/contentpipe/config"
)

func TestWithEnvDefaults(t *testing.T) {
	cfg, err := config.Load(config.WithEnv("TESTENV_"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, "memory", cfg.QueueType)
}

func TestWithEnvDatabase(t *testing.T) {
	t.Run("postgres url auto-detected", func(t *testing.T) {
		t.Setenv("TESTENV_DATABASE_URL", "postgres://localhost:5432/content")

		cfg, err := config.Load(config.WithEnv("TESTENV_"))
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.DatabaseType)
		assert.Equal(t, "postgres://localhost:5432/content", cfg.DatabaseURL)
	})

	t.Run("postgresql scheme accepted", func(t *testing.T) {
		t.Setenv("TESTENV_DATABASE_URL", "postgresql://localhost:5432/content")

		cfg, err := config.Load(config.WithEnv("TESTENV_"))
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.DatabaseType)
	})

	t.Run("literal memory", func(t *testing.T) {
		t.Setenv("TESTENV_DATABASE_URL", "memory")

		cfg, err := config.Load(config.WithEnv("TESTENV_"))
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.DatabaseType)
	})

	t.Run("unknown scheme rejected", func(t *testing.T) {
		t.Setenv("TESTENV_DATABASE_URL", "mysql://localhost/content")

		_, err := config.Load(config.WithEnv("TESTENV_"))
		assert.Error(t, err)
	})
}

func TestWithEnvStorage(t *testing.T) {
	t.Run("file url", func(t *testing.T) {
		t.Setenv("TESTENV_STORAGE_URL", "file:///var/lib/content")

		cfg, err := config.Load(config.WithEnv("TESTENV_"))
		require.NoError(t, err)
		assert.Equal(t, "fs", cfg.StorageType)
		assert.Equal(t, "/var/lib/content", cfg.StorageConfig["base_dir"])
	})

	t.Run("s3 url with query parameters", func(t *testing.T) {
		t.Setenv("TESTENV_STORAGE_URL", "s3://my-bucket?region=eu-west-1&endpoint=http://localhost:9000")

		cfg, err := config.Load(config.WithEnv("TESTENV_"))
		require.NoError(t, err)
		assert.Equal(t, "s3", cfg.StorageType)
		assert.Equal(t, "my-bucket", cfg.StorageConfig["bucket"])
		assert.Equal(t, "eu-west-1", cfg.StorageConfig["region"])
		assert.Equal(t, "http://localhost:9000", cfg.StorageConfig["endpoint"])
		assert.Equal(t, true, cfg.StorageConfig["use_path_style"])
	})

	t.Run("s3 credentials from aws variables", func(t *testing.T) {
		t.Setenv("TESTENV_STORAGE_URL", "s3://my-bucket")
		t.Setenv("AWS_ACCESS_KEY_ID", "AKIATEST")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
		t.Setenv("AWS_REGION", "ap-south-1")

		cfg, err := config.Load(config.WithEnv("TESTENV_"))
		require.NoError(t, err)
		assert.Equal(t, "AKIATEST", cfg.StorageConfig["access_key_id"])
		assert.Equal(t, "secret", cfg.StorageConfig["secret_access_key"])
		assert.Equal(t, "ap-south-1", cfg.StorageConfig["region"])
	})

	t.Run("memory url", func(t *testing.T) {
		t.Setenv("TESTENV_STORAGE_URL", "memory://")

		cfg, err := config.Load(config.WithEnv("TESTENV_"))
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.StorageType)
	})

	t.Run("unknown scheme rejected", func(t *testing.T) {
		t.Setenv("TESTENV_STORAGE_URL", "ftp://host/dir")

		_, err := config.Load(config.WithEnv("TESTENV_"))
		assert.Error(t, err)
	})
}

func TestWithEnvQueue(t *testing.T) {
	t.Run("redis url moves broker and sessions to redis", func(t *testing.T) {
		t.Setenv("TESTENV_REDIS_URL", "redis://localhost:6379/1")

		cfg, err := config.Load(config.WithEnv("TESTENV_"))
		require.NoError(t, err)
		assert.Equal(t, "redis", cfg.QueueType)
		assert.Equal(t, "redis", cfg.SessionStoreType)
		assert.Equal(t, "redis://localhost:6379/1", cfg.RedisURL)
	})

	t.Run("worker tuning", func(t *testing.T) {
		t.Setenv("TESTENV_WORKER_COUNT", "16")
		t.Setenv("TESTENV_MAX_DELIVERY_TRIES", "7")
		t.Setenv("TESTENV_SESSION_TTL", "30m")

		cfg, err := config.Load(config.WithEnv("TESTENV_"))
		require.NoError(t, err)
		assert.Equal(t, 16, cfg.WorkerCount)
		assert.Equal(t, 7, cfg.MaxDeliveryTries)
		assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	})

	t.Run("invalid ttl", func(t *testing.T) {
		t.Setenv("TESTENV_SESSION_TTL", "soon")

		_, err := config.Load(config.WithEnv("TESTENV_"))
		assert.Error(t, err)
	})

	t.Run("invalid worker count", func(t *testing.T) {
		t.Setenv("TESTENV_WORKER_COUNT", "many")

		_, err := config.Load(config.WithEnv("TESTENV_"))
		assert.Error(t, err)
	})
}

func TestWithEnvUploadPolicy(t *testing.T) {
	t.Setenv("TESTENV_MAX_UPLOAD_SIZE", "1048576")
	t.Setenv("TESTENV_ALLOWED_MIME_TYPES", "image/png, image/jpeg,text/plain")

	cfg, err := config.Load(config.WithEnv("TESTENV_"))
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), cfg.MaxUploadSize)
	assert.Equal(t, []string{"image/png", "image/jpeg", "text/plain"}, cfg.AllowedMimeTypes)
}

func TestWithEnvFeatureToggles(t *testing.T) {
	t.Setenv("TESTENV_ENABLE_VERSIONING", "false")
	t.Setenv("TESTENV_ENABLE_DERIVED_ASSETS", "0")
	t.Setenv("TESTENV_ENABLE_WEBHOOKS", "true")

	cfg, err := config.Load(config.WithEnv("TESTENV_"))
	require.NoError(t, err)
	assert.False(t, cfg.EnableVersioning)
	assert.False(t, cfg.EnableDerivedAssets)
	assert.True(t, cfg.EnableWebhooks)
}

func TestWithEnvGeneral(t *testing.T) {
	t.Setenv("TESTENV_PORT", "3000")
	t.Setenv("TESTENV_ENVIRONMENT", "production")
	t.Setenv("TESTENV_LOG_LEVEL", "warn")
	t.Setenv("TESTENV_LOG_FORMAT", "json")

	cfg, err := config.Load(config.WithEnv("TESTENV_"))
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}
