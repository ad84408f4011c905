package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	store, err := NewFileStore(filepath.Join(tempDir, "collages"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if store.Count() != 0 {
		t.Error("Expected initial count to be 0")
	}

	exists, err := store.Exists(ctx, "alice_abc_collage.jpg")
	require.NoError(t, err)
	if exists {
		t.Error("Expected Exists to return false for missing artifact")
	}

	data := []byte("jpeg bytes")
	path, err := store.Put(ctx, "alice_abc_collage.jpg", bytes.NewReader(data), int64(len(data)), "image/jpeg")
	if err != nil {
		t.Fatalf("Failed to put artifact: %v", err)
	}
	assert.Equal(t, filepath.Join(store.Dir(), "alice_abc_collage.jpg"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	if !bytes.Equal(content, data) {
		t.Error("File content does not match expected data")
	}

	exists, err = store.Exists(ctx, "alice_abc_collage.jpg")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1, store.Count())

	rc, info, err := store.Open(ctx, "alice_abc_collage.jpg")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.Equal(t, "image/jpeg", info.ContentType)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left")
}

func TestFileStoreDetectsFilesWrittenElsewhere(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manual.jpg"), []byte("x"), 0644))

	store, err := NewFileStore(dir)
	require.NoError(t, err)

	exists, err := store.Exists(context.Background(), "manual.jpg")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileStoreOpenMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Open(context.Background(), "nope.jpg")
	assert.True(t, errs.IsType(err, errs.ErrorTypeNotFound))
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"../secret.jpg", "a/b.jpg", `a\b.jpg`, "..", ""} {
		_, err := store.Put(ctx, name, bytes.NewReader(nil), 0, "")
		assert.True(t, errs.IsType(err, errs.ErrorTypeValidation), "name %q", name)
		_, _, err = store.Open(ctx, name)
		assert.True(t, errs.IsType(err, errs.ErrorTypeValidation), "name %q", name)
	}
}

func TestFileStoreCancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Put(ctx, "a.jpg", bytes.NewReader([]byte("x")), 1, "image/jpeg")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.StorageConfig{Backend: "fs", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = New(ctx, config.StorageConfig{Backend: "tape"})
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))

	_, err = New(ctx, config.StorageConfig{Backend: "minio"})
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))

	_, err = New(ctx, config.StorageConfig{Backend: "fs"})
	assert.True(t, errs.IsType(err, errs.ErrorTypeValidation))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentTypeFor("a.jpg"))
	assert.Equal(t, "image/png", ContentTypeFor("a.png"))
	assert.Equal(t, "application/json", ContentTypeFor("report.json"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("a.bin"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{StatusCode: 404}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}))
}
