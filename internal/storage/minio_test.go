package storage_test

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutline/internal/storage"
)

// TestMinIOIntegration requires a running MinIO instance at
// CUTLINE_MINIO_ENDPOINT and is skipped otherwise.
func TestMinIOIntegration(t *testing.T) {
	endpoint := os.Getenv("CUTLINE_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("CUTLINE_MINIO_ENDPOINT not set")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	ctx := context.Background()
	bucket := "cutline-test"
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := storage.NewMinIO(client, bucket, "it")
	require.NoError(t, store.Put(ctx, "tmp/a", bytes.NewReader([]byte("hello")), 5))
	require.NoError(t, store.Move(ctx, "tmp/a", "final/a"))
	size, err := store.Stat(ctx, "final/a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	require.NoError(t, store.Delete(ctx, "final/a"))
}
