package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestS3Backend_BasicConfiguration tests the configuration and creation of S3 backend
func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		config := Config{
			Region: "us-east-1",
			Bucket: "",
		}
		_, err := New(config)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("DefaultRegion", func(t *testing.T) {
		config := Config{
			Bucket:          "tikgrab-videos",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		}
		// May error due to network/credentials, but not due to missing bucket
		backend, err := New(config)
		if err != nil {
			assert.NotContains(t, err.Error(), "bucket name is required")
		} else {
			assert.NotNil(t, backend)
		}
	})

	t.Run("ServerSideEncryption_AES256", func(t *testing.T) {
		config := Config{
			Bucket:          "tikgrab-videos",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
			EnableSSE:       true,
			SSEAlgorithm:    "AES256",
		}
		backend, err := New(config)
		if err != nil {
			assert.NotContains(t, err.Error(), "invalid SSE")
		} else {
			assert.NotNil(t, backend)
		}
	})
}

// TestS3Backend_MinIOConfiguration tests MinIO-specific configuration
func TestS3Backend_MinIOConfiguration(t *testing.T) {
	t.Run("CustomEndpoint", func(t *testing.T) {
		config := Config{
			Bucket:          "tikgrab-videos",
			Region:          "us-east-1",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			Endpoint:        "http://localhost:9000",
			UseSSL:          false,
			UsePathStyle:    true,
		}
		backend, err := New(config)
		if err == nil {
			assert.NotNil(t, backend)
			if b, ok := backend.(*Backend); ok {
				assert.Equal(t, "http://localhost:9000", b.config.Endpoint)
				assert.True(t, b.config.UsePathStyle)
				assert.False(t, b.config.UseSSL)
			}
		}
	})
}

// TestS3Backend_Integration tests actual S3/MinIO operations.
// This test requires a running MinIO instance or S3 credentials.
func TestS3Backend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	endpoint := os.Getenv("AWS_S3_ENDPOINT")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	bucket := os.Getenv("AWS_S3_BUCKET")

	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		t.Skip("Skipping integration test: S3/MinIO environment variables not set")
	}

	config := Config{
		Bucket:                 bucket,
		Region:                 "us-east-1",
		AccessKeyID:            accessKey,
		SecretAccessKey:        secretKey,
		Endpoint:               endpoint,
		UseSSL:                 false,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	}

	backend, err := New(config)
	require.NoError(t, err, "Failed to create S3 backend")
	require.NotNil(t, backend)

	ctx := context.Background()
	objectKey := fmt.Sprintf("videos/%d.mp4", time.Now().Unix())
	testData := []byte("fake mp4 payload for integration test")

	t.Run("UploadAndDownload", func(t *testing.T) {
		err := backend.Upload(ctx, objectKey, bytes.NewReader(testData))
		require.NoError(t, err, "Failed to upload object")

		reader, err := backend.Download(ctx, objectKey)
		require.NoError(t, err, "Failed to download object")
		defer reader.Close()

		downloadedData, err := io.ReadAll(reader)
		require.NoError(t, err, "Failed to read downloaded data")
		assert.Equal(t, testData, downloadedData, "Downloaded data doesn't match uploaded data")
	})

	t.Run("GetObjectMeta", func(t *testing.T) {
		meta, err := backend.GetObjectMeta(ctx, objectKey)
		require.NoError(t, err, "Failed to get object metadata")
		assert.Greater(t, meta.Size, int64(0), "Object size should be greater than 0")
		assert.NotEmpty(t, meta.ETag, "ETag should not be empty")
	})

	t.Run("GetObjectMeta_NonExistent", func(t *testing.T) {
		_, err := backend.GetObjectMeta(ctx, "videos/0000000000000000000.mp4")
		require.Error(t, err, "Should error for non-existent object")
	})

	t.Run("Delete", func(t *testing.T) {
		err := backend.Delete(ctx, objectKey)
		require.NoError(t, err, "Failed to delete object")

		_, err = backend.Download(ctx, objectKey)
		require.Error(t, err, "Should error when downloading deleted object")
	})

	t.Run("DeleteNonExistent", func(t *testing.T) {
		// S3 Delete is idempotent, so this typically doesn't error
		err := backend.Delete(ctx, "videos/0000000000000000000.mp4")
		assert.NoError(t, err, "Delete of non-existent object should not error")
	})
}
