package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/picvault/picvault/internal/api"
	"github.com/picvault/picvault/pkg/picvault/config"
	"github.com/picvault/picvault/pkg/picvault/thumbnail"
)

// Config is read from the environment with cleanenv.
type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	JWTSecret   string `env:"JWT_SECRET" env-default:"dev-secret"`

	DatabaseType string `env:"DATABASE_TYPE" env-default:"memory"`
	DatabaseURL  string `env:"DATABASE_URL" env-default:""`

	StorageType     string `env:"STORAGE_TYPE" env-default:"s3"`
	Bucket          string `env:"USER_IMAGES_BUCKET" env-default:"userimages"`
	Region          string `env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"AWS_ENDPOINT" env-default:""`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	CreateBucket    bool   `env:"CREATE_BUCKET" env-default:"false"`
	PresignDuration int    `env:"PRESIGN_DURATION" env-default:"3600"`

	QueueType string `env:"QUEUE_TYPE" env-default:"sqs"`
	QueueName string `env:"THUMBNAIL_QUEUE_NAME" env-default:"thumbnail-queue"`
	QueueURL  string `env:"THUMBNAIL_QUEUE_URL" env-default:""`

	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" env-default:"10485760"`
	ThumbWidth    int   `env:"THUMB_WIDTH" env-default:"150"`
	ThumbHeight   int   `env:"THUMB_HEIGHT" env-default:"150"`

	// EmbedWorker runs the thumbnail worker inside the server process,
	// useful with the memory queue in development.
	EmbedWorker bool `env:"EMBED_WORKER" env-default:"false"`
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var envCfg Config
	if err := cleanenv.ReadEnv(&envCfg); err != nil {
		fatal(logger, "load config", err)
	}

	serverConfig, err := config.Load(withEnvConfig(envCfg))
	if err != nil {
		fatal(logger, "validate config", err)
	}

	svc, jobQueue, err := serverConfig.BuildService(logger)
	if err != nil {
		fatal(logger, "build service", err)
	}

	authSvc, err := serverConfig.BuildAuthService(logger)
	if err != nil {
		fatal(logger, "build auth service", err)
	}

	handler := api.NewHandler(svc, authSvc, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: handler.Routes(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if envCfg.EmbedWorker && jobQueue != nil {
		store, err := serverConfig.BuildBlobStore()
		if err != nil {
			fatal(logger, "build worker blob store", err)
		}
		worker := thumbnail.NewWorker(store, jobQueue,
			thumbnail.WithDimensions(serverConfig.ThumbWidth, serverConfig.ThumbHeight),
			thumbnail.WithLogger(logger),
		)
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("embedded worker stopped", "err", err)
			}
		}()
	}

	go func() {
		logger.Info("server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"storage", serverConfig.StorageType,
			"queue", serverConfig.QueueType,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fatal(logger, "forced shutdown", err)
	}
	logger.Info("server exiting")
}

// withEnvConfig maps the flat environment config onto the library config.
func withEnvConfig(env Config) config.Option {
	return func(c *config.ServerConfig) error {
		c.Port = env.Port
		c.Environment = env.Environment
		c.JWTSecret = env.JWTSecret
		c.DatabaseType = env.DatabaseType
		c.DatabaseURL = env.DatabaseURL
		c.StorageType = env.StorageType
		c.Bucket = env.Bucket
		c.Region = env.Region
		c.Endpoint = env.Endpoint
		c.AccessKeyID = env.AccessKeyID
		c.SecretAccessKey = env.SecretAccessKey
		c.UsePathStyle = env.UsePathStyle
		c.CreateBucket = env.CreateBucket
		c.PresignDuration = env.PresignDuration
		c.QueueType = env.QueueType
		c.QueueName = env.QueueName
		c.QueueURL = env.QueueURL
		c.MaxUploadSize = env.MaxUploadSize
		c.ThumbWidth = env.ThumbWidth
		c.ThumbHeight = env.ThumbHeight
		return nil
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
