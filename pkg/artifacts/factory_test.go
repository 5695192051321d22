package artifacts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStoreFromEnv_Default(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("ARTIFACT_STORAGE_TYPE", "")
	t.Setenv("DATA_DIR", tmpDir)

	store, err := NewStoreFromEnv(context.Background())
	require.NoError(t, err)

	fs, ok := store.(*FileStore)
	require.True(t, ok, "expected *FileStore, got %T", store)
	require.Equal(t, filepath.Join(tmpDir, "archive"), fs.baseDir)
}

func TestNewStoreFromEnv_Memory(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "memory")

	store, err := NewStoreFromEnv(context.Background())
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, store)
}

func TestNewStoreFromEnv_S3MissingBucket(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "s3")
	t.Setenv("ARTIFACT_S3_BUCKET", "")

	_, err := NewStoreFromEnv(context.Background())
	require.ErrorContains(t, err, "ARTIFACT_S3_BUCKET is required")
}

func TestNewStoreFromEnv_GCSMissingBucket(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "gcs")
	t.Setenv("ARTIFACT_GCS_BUCKET", "")

	_, err := NewStoreFromEnv(context.Background())
	require.Error(t, err)
	// Builds without the gcp tag reject the backend outright.
	if !containsAny(err.Error(), "GCS storage is not enabled") {
		require.ErrorContains(t, err, "ARTIFACT_GCS_BUCKET is required")
	}
}

func TestNewStoreFromEnv_UnsupportedType(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "azure")

	_, err := NewStoreFromEnv(context.Background())
	require.ErrorContains(t, err, "unsupported artifact storage type")
}
