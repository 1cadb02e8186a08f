package minio

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cthyb/blobstore"
)

func TestKeys(t *testing.T) {
	s := NewStore(nil, "bucket", "cthyb/")
	assert.Equal(t, "cthyb/runs/a/histograms.json.zst", s.key("runs/a/histograms.json.zst"))
	assert.Equal(t, "runs/a", s.name("cthyb/runs/a"))

	bare := NewStore(nil, "bucket", "")
	assert.Equal(t, "runs/a", bare.key("runs/a"))
	assert.Equal(t, "runs/a", bare.name("runs/a"))
}

func TestNotFound(t *testing.T) {
	assert.NoError(t, notFound(nil))
	err := minio.ErrorResponse{Code: "NoSuchKey"}
	assert.ErrorIs(t, notFound(err), blobstore.ErrNotFound)
	other := errors.New("boom")
	assert.Equal(t, other, notFound(other))
}

// TestStoreIntegration needs a MinIO server at CTHYB_MINIO_ENDPOINT with the
// default minioadmin credentials.
func TestStoreIntegration(t *testing.T) {
	endpoint := os.Getenv("CTHYB_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("CTHYB_MINIO_ENDPOINT not set")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	require.NoError(t, err)

	ctx := context.Background()
	const bucket = "test-cthyb"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "diagnostics/")
	data := []byte(`{"run_id":"abc","avg_sign":1}`)
	require.NoError(t, store.Put(ctx, "runs/abc/histograms.json", data))

	all, err := blobstore.ReadAll(ctx, store, "runs/abc/histograms.json")
	require.NoError(t, err)
	assert.Equal(t, data, all)

	blob, err := store.Open(ctx, "runs/abc/histograms.json")
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 2)
	require.NoError(t, err)
	assert.Equal(t, "run_i", string(buf[:n]))
	require.NoError(t, blob.Close())

	w, err := store.Create(ctx, "runs/abc/impurity_blocks.json")
	require.NoError(t, err)
	_, err = w.Write([]byte("[]"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	names, err := store.List(ctx, "runs/abc/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/abc/histograms.json", "runs/abc/impurity_blocks.json"}, names)

	for _, name := range names {
		require.NoError(t, store.Delete(ctx, name))
	}
	_, err = store.Open(ctx, "runs/abc/histograms.json")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
	require.NoError(t, store.Delete(ctx, "runs/abc/histograms.json"))
}
