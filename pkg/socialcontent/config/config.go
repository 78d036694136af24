package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/tendant/social-content/pkg/socialcontent"
	"github.com/tendant/social-content/pkg/socialcontent/repo/memory"
	repopg "github.com/tendant/social-content/pkg/socialcontent/repo/postgres"
	redisrepo "github.com/tendant/social-content/pkg/socialcontent/repo/redis"
	fsstorage "github.com/tendant/social-content/pkg/socialcontent/storage/fs"
	memorystorage "github.com/tendant/social-content/pkg/socialcontent/storage/memory"
	miniostorage "github.com/tendant/social-content/pkg/socialcontent/storage/minio"
	s3storage "github.com/tendant/social-content/pkg/socialcontent/storage/s3"
	"github.com/tendant/social-content/pkg/socialcontent/sweep"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
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
		Port:         "8080",
		Environment:  "development",
		LogLevel:     "info",
		LogFormat:    "text",
		DatabaseType: "memory",
		DBSchema:     "social",
		Storage: StorageBackendConfig{
			Name:   "memory",
			Type:   "memory",
			Config: map[string]interface{}{},
		},
		PublicBaseURL:   "/files",
		MaxUploadBytes:  socialcontent.DefaultMaxUploadBytes,
		FeedStore:       "repository",
		FanoutBatchSize: socialcontent.DefaultFanoutBatchSize,
		FanoutWorkers:   socialcontent.DefaultFanoutConcurrency,
		PurgeRetention:  sweep.DefaultRetention,
		SweepBatchSize:  sweep.DefaultBatchSize,
	}
}

// ServerConfig represents configuration for the social-content service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	LogLevel    string // debug, info, warn, error
	LogFormat   string // text, json

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: social)
	AutoMigrate  bool

	// Storage configuration
	Storage        StorageBackendConfig
	PublicBaseURL  string
	MaxUploadBytes int64

	// Feed configuration
	FeedStore       string // "repository", "redis"
	RedisURL        string
	FeedMaxEntries  int64
	FanoutBatchSize int
	FanoutWorkers   int

	// Sweep configuration
	PurgeRetention time.Duration
	SweepBatchSize int
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3", "minio"
	Config map[string]interface{}
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

	switch c.Storage.Type {
	case "memory", "fs", "s3", "minio":
	default:
		return fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}

	switch c.FeedStore {
	case "repository":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("redis url is required when the feed store is redis")
		}
	default:
		return fmt.Errorf("feed store must be 'repository' or 'redis', got: %s", c.FeedStore)
	}

	if c.MaxUploadBytes < 0 {
		return errors.New("max upload bytes must not be negative")
	}
	if c.PurgeRetention < 0 {
		return errors.New("purge retention must not be negative")
	}

	return nil
}

// Runtime holds the long-lived components built from a ServerConfig.
type Runtime struct {
	Service    socialcontent.Service
	Sweeper    *sweep.Sweeper
	Repository socialcontent.Repository
	Pool       *pgxpool.Pool
	Redis      *goredis.Client

	closers []func()
}

// Close releases database and cache connections.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (socialcontent.Service, error) {
	rt, err := c.Build(ctx, logger)
	if err != nil {
		return nil, err
	}
	return rt.Service, nil
}

// Build wires the repository, blob store, feed store, service and sweeper
// described by the configuration.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}

	repo, pool, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	rt.Repository = repo
	if pool != nil {
		rt.Pool = pool
		rt.closers = append(rt.closers, pool.Close)
		if c.AutoMigrate {
			if err := repopg.RunMigrationsWithPool(ctx, pool); err != nil {
				rt.Close()
				return nil, err
			}
		}
	}

	store, err := c.buildStorageBackend(c.Storage)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Name, err)
	}

	options := []socialcontent.Option{
		socialcontent.WithRepository(repo),
		socialcontent.WithBlobStore(c.Storage.Name, store),
		socialcontent.WithLogger(logger),
		socialcontent.WithPublicBaseURL(c.PublicBaseURL),
		socialcontent.WithMaxUploadBytes(c.MaxUploadBytes),
		socialcontent.WithFanout(c.FanoutBatchSize, c.FanoutWorkers),
	}

	if c.FeedStore == "redis" {
		client, err := c.buildRedisClient()
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to build feed store: %w", err)
		}
		rt.Redis = client
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		var feedOpts []redisrepo.Option
		if c.FeedMaxEntries > 0 {
			feedOpts = append(feedOpts, redisrepo.WithMaxEntries(c.FeedMaxEntries))
		}
		options = append(options, socialcontent.WithFeedRepository(redisrepo.NewFeedRepository(client, feedOpts...)))
	}

	rt.Service, err = socialcontent.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}

	contentStore, err := socialcontent.NewContentStore(socialcontent.ContentStoreConfig{
		Files:          repo,
		Blobs:          store,
		BackendName:    c.Storage.Name,
		PublicBaseURL:  c.PublicBaseURL,
		MaxUploadBytes: c.MaxUploadBytes,
		Logger:         logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Sweeper, err = sweep.New(sweep.Config{
		Repository: repo,
		Store:      contentStore,
		Retention:  c.PurgeRetention,
		BatchSize:  c.SweepBatchSize,
		Logger:     logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	return rt, nil
}

// buildRepository creates a Repository based on the configuration. The pool
// is returned for postgres so callers can close it and run migrations.
func (c *ServerConfig) buildRepository(ctx context.Context) (socialcontent.Repository, *pgxpool.Pool, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil, nil
	case "postgres":
		pool, err := NewPostgresPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		return repopg.NewWithPool(pool), pool, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPostgresPool opens a pgx pool whose sessions use schema as search_path.
func NewPostgresPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres and optionally sets search_path for the session.
func PingPostgres(databaseURL, schema string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := NewPostgresPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (c *ServerConfig) buildRedisClient() (*goredis.Client, error) {
	opts, err := goredis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(config StorageBackendConfig) (socialcontent.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: getString(config.Config, "base_dir", "./data/storage"),
		})

	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			Prefix:                 getString(config.Config, "prefix", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		})

	case "minio":
		return miniostorage.New(miniostorage.Config{
			Endpoint:  getString(config.Config, "endpoint", ""),
			AccessKey: getString(config.Config, "access_key", ""),
			SecretKey: getString(config.Config, "secret_key", ""),
			UseSSL:    getBool(config.Config, "use_ssl", false),
			Bucket:    getString(config.Config, "bucket", ""),
			Region:    getString(config.Config, "region", ""),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
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
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
