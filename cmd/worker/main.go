package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/picvault/picvault/pkg/picvault/config"
	"github.com/picvault/picvault/pkg/picvault/thumbnail"
)

// Config is read from the environment with cleanenv.
type Config struct {
	StorageType     string `env:"STORAGE_TYPE" env-default:"s3"`
	Bucket          string `env:"USER_IMAGES_BUCKET" env-default:"userimages"`
	Region          string `env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"AWS_ENDPOINT" env-default:""`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`

	QueueName string `env:"THUMBNAIL_QUEUE_NAME" env-default:"thumbnail-queue"`
	QueueURL  string `env:"THUMBNAIL_QUEUE_URL" env-default:""`

	ThumbWidth  int `env:"THUMB_WIDTH" env-default:"150"`
	ThumbHeight int `env:"THUMB_HEIGHT" env-default:"150"`
	BatchSize   int `env:"BATCH_SIZE" env-default:"5"`
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var envCfg Config
	if err := cleanenv.ReadEnv(&envCfg); err != nil {
		fatal(logger, "load config", err)
	}

	serverConfig, err := config.Load(func(c *config.ServerConfig) error {
		c.StorageType = envCfg.StorageType
		c.Bucket = envCfg.Bucket
		c.Region = envCfg.Region
		c.Endpoint = envCfg.Endpoint
		c.AccessKeyID = envCfg.AccessKeyID
		c.SecretAccessKey = envCfg.SecretAccessKey
		c.UsePathStyle = envCfg.UsePathStyle
		c.QueueType = "sqs"
		c.QueueName = envCfg.QueueName
		c.QueueURL = envCfg.QueueURL
		c.ThumbWidth = envCfg.ThumbWidth
		c.ThumbHeight = envCfg.ThumbHeight
		return nil
	})
	if err != nil {
		fatal(logger, "validate config", err)
	}

	store, err := serverConfig.BuildBlobStore()
	if err != nil {
		fatal(logger, "build blob store", err)
	}

	jobQueue, err := serverConfig.BuildQueue()
	if err != nil {
		fatal(logger, "build queue", err)
	}

	worker := thumbnail.NewWorker(store, jobQueue,
		thumbnail.WithDimensions(serverConfig.ThumbWidth, serverConfig.ThumbHeight),
		thumbnail.WithBatchSize(envCfg.BatchSize),
		thumbnail.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down")
		cancel()
	}()

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		fatal(logger, "worker stopped", err)
	}
	logger.Info("worker exiting")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
