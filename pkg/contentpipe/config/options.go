package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage selects the in-memory blob store
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageType = "memory"
		c.StorageConfig = map[string]interface{}{}
		return nil
	}
}

// WithFilesystemStorage selects the filesystem blob store
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageType = "fs"
		c.StorageConfig = map[string]interface{}{
			"base_dir": baseDir,
		}
		return nil
	}
}

// WithS3Storage selects the S3 blob store. Endpoint is optional and enables
// path-style addressing for S3-compatible servers.
func WithS3Storage(bucket, region, endpoint string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		cfg := map[string]interface{}{
			"bucket": bucket,
		}
		if region != "" {
			cfg["region"] = region
		}
		if endpoint != "" {
			cfg["endpoint"] = endpoint
			cfg["use_path_style"] = true
		}
		c.StorageType = "s3"
		c.StorageConfig = cfg
		return nil
	}
}

// WithMemoryQueue selects the in-process job broker
func WithMemoryQueue() Option {
	return func(c *ServerConfig) error {
		c.QueueType = "memory"
		return nil
	}
}

// WithRedisQueue selects the redis job broker
func WithRedisQueue(redisURL string) Option {
	return func(c *ServerConfig) error {
		if redisURL == "" {
			return fmt.Errorf("redis URL cannot be empty")
		}
		c.QueueType = "redis"
		c.RedisURL = redisURL
		return nil
	}
}

// WithWorkers sets job worker concurrency and the attempt cap
func WithWorkers(count, maxTries int) Option {
	return func(c *ServerConfig) error {
		if count <= 0 {
			return fmt.Errorf("worker count must be positive, got: %d", count)
		}
		if maxTries <= 0 {
			return fmt.Errorf("max delivery tries must be positive, got: %d", maxTries)
		}
		c.WorkerCount = count
		c.MaxDeliveryTries = maxTries
		return nil
	}
}

// WithRedisSessionStore keeps upload sessions in redis so that chunks of one
// upload may arrive at different server instances
func WithRedisSessionStore(redisURL string) Option {
	return func(c *ServerConfig) error {
		if redisURL == "" {
			return fmt.Errorf("redis URL cannot be empty")
		}
		c.SessionStoreType = "redis"
		c.RedisURL = redisURL
		return nil
	}
}

// WithSessionTTL sets the upload session expiry
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if ttl <= 0 {
			return fmt.Errorf("session TTL must be positive, got: %s", ttl)
		}
		c.SessionTTL = ttl
		return nil
	}
}

// WithUploadPolicy sets the size cap and MIME accept list for chunked
// uploads. A zero maxSize means unlimited; an empty type list accepts any.
func WithUploadPolicy(maxSize int64, allowedTypes []string) Option {
	return func(c *ServerConfig) error {
		if maxSize < 0 {
			return fmt.Errorf("max upload size cannot be negative, got: %d", maxSize)
		}
		c.MaxUploadSize = maxSize
		c.AllowedMimeTypes = allowedTypes
		return nil
	}
}

// WithVersioning toggles the version store
func WithVersioning(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableVersioning = enabled
		return nil
	}
}

// WithDerivedAssets toggles the derived-asset pipeline
func WithDerivedAssets(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableDerivedAssets = enabled
		return nil
	}
}

// WithWebhooks toggles webhook delivery
func WithWebhooks(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableWebhooks = enabled
		return nil
	}
}

// WithLogging sets log level and output format
func WithLogging(level, format string) Option {
	return func(c *ServerConfig) error {
		if level != "" {
			c.LogLevel = level
		}
		if format != "" {
			c.LogFormat = format
		}
		return nil
	}
}
