// Package config assembles picvault services from declarative settings.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/picvault/picvault/internal/auth"
	repomemory "github.com/picvault/picvault/internal/repo/memory"
	repopg "github.com/picvault/picvault/internal/repo/postgres"
	"github.com/picvault/picvault/pkg/picvault"
	"github.com/picvault/picvault/pkg/picvault/queue"
	queuememory "github.com/picvault/picvault/pkg/picvault/queue/memory"
	queuesqs "github.com/picvault/picvault/pkg/picvault/queue/sqs"
	storagememory "github.com/picvault/picvault/pkg/picvault/storage/memory"
	storages3 "github.com/picvault/picvault/pkg/picvault/storage/s3"
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
		JWTSecret:   "dev-secret",

		DatabaseType: "memory",

		StorageType: "memory",
		Bucket:      "userimages",

		QueueType: "memory",
		QueueName: "thumbnail-queue",

		MaxUploadSize:   picvault.DefaultMaxUploadSize,
		AllowedTypes:    picvault.DefaultAllowedTypes,
		PresignDuration: 3600,

		ThumbWidth:  150,
		ThumbHeight: 150,
	}
}

// ServerConfig represents server configuration for the picvault service.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	JWTSecret   string

	// User database configuration.
	DatabaseType string // "memory", "postgres"
	DatabaseURL  string

	// Storage configuration.
	StorageType     string // "memory", "s3"
	Bucket          string
	Region          string
	Endpoint        string // S3-compatible endpoint (MinIO, LocalStack)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	CreateBucket    bool
	PresignDuration int // seconds

	// Queue configuration.
	QueueType string // "memory", "sqs", "none"
	QueueName string
	QueueURL  string

	// Upload policy.
	MaxUploadSize int64
	AllowedTypes  []string

	// Thumbnail dimensions.
	ThumbWidth  int
	ThumbHeight int

	// Token lifetimes; zero means library defaults.
	SessionTTL time.Duration
	ViewTTL    time.Duration

	// Backends are built once and shared across Build* calls, so the
	// service and an embedded worker operate on the same instances. This
	// is what makes the memory backends usable in one process.
	blobStore picvault.BlobStore
	jobQueue  queue.JobQueue
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}
	if c.StorageType != "memory" && c.StorageType != "s3" {
		return errors.New("storage_type must be 'memory' or 's3'")
	}
	if c.StorageType == "s3" && c.Bucket == "" {
		return errors.New("bucket is required when using s3")
	}
	switch c.QueueType {
	case "memory", "none":
	case "sqs":
		if c.QueueName == "" && c.QueueURL == "" {
			return errors.New("queue name or queue URL is required when using sqs")
		}
	default:
		return errors.New("queue_type must be 'memory', 'sqs' or 'none'")
	}
	return nil
}

// BuildBlobStore returns the configured storage backend, creating it on
// first use.
func (c *ServerConfig) BuildBlobStore() (picvault.BlobStore, error) {
	if c.blobStore != nil {
		return c.blobStore, nil
	}
	store, err := c.buildBlobStore()
	if err != nil {
		return nil, err
	}
	c.blobStore = store
	return store, nil
}

func (c *ServerConfig) buildBlobStore() (picvault.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return storagememory.New(), nil
	case "s3":
		return storages3.New(storages3.Config{
			Region:                 c.Region,
			Bucket:                 c.Bucket,
			AccessKeyID:            c.AccessKeyID,
			SecretAccessKey:        c.SecretAccessKey,
			Endpoint:               c.Endpoint,
			UsePathStyle:           c.UsePathStyle,
			PresignDuration:        c.PresignDuration,
			CreateBucketIfNotExist: c.CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

// BuildQueue returns the configured job queue, creating it on first use;
// "none" yields nil, which the service treats as skip-enqueue.
func (c *ServerConfig) BuildQueue() (queue.JobQueue, error) {
	if c.jobQueue != nil {
		return c.jobQueue, nil
	}
	q, err := c.buildQueue()
	if err != nil {
		return nil, err
	}
	c.jobQueue = q
	return q, nil
}

func (c *ServerConfig) buildQueue() (queue.JobQueue, error) {
	switch c.QueueType {
	case "none":
		return nil, nil
	case "memory":
		return queuememory.New(), nil
	case "sqs":
		return queuesqs.New(queuesqs.Config{
			Region:          c.Region,
			QueueName:       c.QueueName,
			QueueURL:        c.QueueURL,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			Endpoint:        c.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unsupported queue type: %s", c.QueueType)
	}
}

// BuildUserRepository creates the configured user repository.
func (c *ServerConfig) BuildUserRepository() (auth.UserRepository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(context.Background(), c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildService creates the core service plus its queue from the
// configuration. The queue is returned separately so callers can also hand
// it to a worker.
func (c *ServerConfig) BuildService(logger *slog.Logger) (picvault.Service, queue.JobQueue, error) {
	store, err := c.BuildBlobStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build blob store: %w", err)
	}

	q, err := c.BuildQueue()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build queue: %w", err)
	}

	options := []picvault.Option{
		picvault.WithBlobStore(store),
		picvault.WithBucket(c.Bucket),
		picvault.WithMaxUploadSize(c.MaxUploadSize),
		picvault.WithAllowedTypes(c.AllowedTypes),
	}
	if q != nil {
		options = append(options, picvault.WithQueue(q))
	}
	if logger != nil {
		options = append(options, picvault.WithLogger(logger))
	}

	svc, err := picvault.New(options...)
	if err != nil {
		return nil, nil, err
	}
	return svc, q, nil
}

// BuildAuthService creates the auth service from the configuration.
func (c *ServerConfig) BuildAuthService(logger *slog.Logger) (*auth.Service, error) {
	repo, err := c.BuildUserRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build user repository: %w", err)
	}
	return auth.NewService(repo, auth.Config{
		JWTSecret:  c.JWTSecret,
		SessionTTL: c.SessionTTL,
		ViewTTL:    c.ViewTTL,
	}, logger)
}
