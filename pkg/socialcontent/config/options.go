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

// WithLogging sets the log level and output format
func WithLogging(level, format string) Option {
	return func(c *ServerConfig) error {
		if format != "" && format != "text" && format != "json" {
			return fmt.Errorf("log format must be 'text' or 'json', got: %s", format)
		}
		if level != "" {
			c.LogLevel = level
		}
		if format != "" {
			c.LogFormat = format
		}
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

// WithAutoMigrate runs the embedded migrations when the runtime is built
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithMemoryStorage keeps file payloads in process memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage = StorageBackendConfig{Name: "memory", Type: "memory", Config: map[string]interface{}{}}
		return nil
	}
}

// WithFilesystemStorage stores file payloads under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageBackendConfig{
			Name:   "fs",
			Type:   "fs",
			Config: map[string]interface{}{"base_dir": baseDir},
		}
		return nil
	}
}

// WithS3Storage stores file payloads in an S3 bucket. Extra keys such as
// endpoint or use_path_style can be passed through settings.
func WithS3Storage(bucket, region string, settings map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		cfg := map[string]interface{}{"bucket": bucket, "region": region}
		for k, v := range settings {
			cfg[k] = v
		}
		c.Storage = StorageBackendConfig{Name: "s3", Type: "s3", Config: cfg}
		return nil
	}
}

// WithMinioStorage stores file payloads in a MinIO bucket
func WithMinioStorage(endpoint, bucket, accessKey, secretKey string, useSSL bool) Option {
	return func(c *ServerConfig) error {
		if endpoint == "" || bucket == "" {
			return fmt.Errorf("minio endpoint and bucket are required")
		}
		c.Storage = StorageBackendConfig{
			Name: "minio",
			Type: "minio",
			Config: map[string]interface{}{
				"endpoint":   endpoint,
				"bucket":     bucket,
				"access_key": accessKey,
				"secret_key": secretKey,
				"use_ssl":    useSSL,
			},
		}
		return nil
	}
}

// WithPublicBaseURL sets the prefix of the public URLs handed out for stored files
func WithPublicBaseURL(baseURL string) Option {
	return func(c *ServerConfig) error {
		c.PublicBaseURL = baseURL
		return nil
	}
}

// WithMaxUploadBytes sets the per-upload size limit
func WithMaxUploadBytes(n int64) Option {
	return func(c *ServerConfig) error {
		if n <= 0 {
			return fmt.Errorf("max upload bytes must be positive")
		}
		c.MaxUploadBytes = n
		return nil
	}
}

// WithRedisFeed keeps materialized feeds in Redis. maxEntries caps each
// feed; zero keeps every entry.
func WithRedisFeed(redisURL string, maxEntries int64) Option {
	return func(c *ServerConfig) error {
		if redisURL == "" {
			return fmt.Errorf("redis url cannot be empty")
		}
		c.FeedStore = "redis"
		c.RedisURL = redisURL
		c.FeedMaxEntries = maxEntries
		return nil
	}
}

// WithFanout tunes follower batching and worker count for feed propagation
func WithFanout(batchSize, workers int) Option {
	return func(c *ServerConfig) error {
		if batchSize < 0 || workers < 0 {
			return fmt.Errorf("fan-out batch size and workers must not be negative")
		}
		c.FanoutBatchSize = batchSize
		c.FanoutWorkers = workers
		return nil
	}
}

// WithSweep sets the purge retention window and sweep batch size
func WithSweep(retention time.Duration, batchSize int) Option {
	return func(c *ServerConfig) error {
		if retention < 0 {
			return fmt.Errorf("purge retention must not be negative")
		}
		c.PurgeRetention = retention
		c.SweepBatchSize = batchSize
		return nil
	}
}
