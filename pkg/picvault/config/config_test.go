package config

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picvault/picvault/pkg/picvault"
	"github.com/picvault/picvault/pkg/picvault/thumbnail"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, "memory", cfg.QueueType)
	assert.Equal(t, "userimages", cfg.Bucket)
	assert.Equal(t, 150, cfg.ThumbWidth)
	assert.Equal(t, 150, cfg.ThumbHeight)
}

func TestLoadAppliesOptions(t *testing.T) {
	cfg, err := Load(func(c *ServerConfig) error {
		c.Port = "9090"
		c.QueueType = "none"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "none", cfg.QueueType)
}

func TestLoadPropagatesOptionError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Load(func(c *ServerConfig) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"missing port", func(c *ServerConfig) { c.Port = "" }},
		{"missing jwt secret", func(c *ServerConfig) { c.JWTSecret = "" }},
		{"unknown database", func(c *ServerConfig) { c.DatabaseType = "oracle" }},
		{"postgres without url", func(c *ServerConfig) { c.DatabaseType = "postgres" }},
		{"unknown storage", func(c *ServerConfig) { c.StorageType = "tape" }},
		{"s3 without bucket", func(c *ServerConfig) { c.StorageType = "s3"; c.Bucket = "" }},
		{"unknown queue", func(c *ServerConfig) { c.QueueType = "kafka" }},
		{"sqs without name or url", func(c *ServerConfig) { c.QueueType = "sqs"; c.QueueName = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBuildServiceMemory(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	svc, q, err := cfg.BuildService(nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
	assert.NotNil(t, q)
}

func TestBuildBackendsAreShared(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	first, err := cfg.BuildBlobStore()
	require.NoError(t, err)
	second, err := cfg.BuildBlobStore()
	require.NoError(t, err)
	assert.Same(t, first, second)

	q1, err := cfg.BuildQueue()
	require.NoError(t, err)
	q2, err := cfg.BuildQueue()
	require.NoError(t, err)
	assert.Same(t, q1, q2)
}

// An embedded worker builds its store after BuildService has; both must see
// the same objects or every job would report a missing original.
func TestEmbeddedWorkerSeesServiceUploads(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	svc, q, err := cfg.BuildService(nil)
	require.NoError(t, err)
	store, err := cfg.BuildBlobStore()
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: 100, B: uint8(y * 30), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	ctx := context.Background()
	uploaded, err := svc.Upload(ctx, picvault.UploadRequest{
		Owner:    "alice@example.com",
		Filename: "cat.png",
		Size:     int64(buf.Len()),
		Body:     &buf,
	})
	require.NoError(t, err)

	worker := thumbnail.NewWorker(store, q)
	require.NoError(t, worker.RunOnce(ctx))

	images, err := svc.List(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, images, 2)

	var sawThumb bool
	for _, im := range images {
		if im.IsThumbnail {
			sawThumb = true
		} else {
			assert.Equal(t, uploaded.Key, im.Key)
		}
	}
	assert.True(t, sawThumb)
}

func TestBuildQueueNone(t *testing.T) {
	cfg, err := Load(func(c *ServerConfig) error {
		c.QueueType = "none"
		return nil
	})
	require.NoError(t, err)

	q, err := cfg.BuildQueue()
	require.NoError(t, err)
	assert.Nil(t, q)
}

func TestBuildAuthServiceMemory(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	authSvc, err := cfg.BuildAuthService(nil)
	require.NoError(t, err)
	assert.NotNil(t, authSvc)
}
