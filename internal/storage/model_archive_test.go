package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelKey(t *testing.T) {
	id := uuid.MustParse("8f3a0a3e-8b41-4e09-9a3f-3d0f3b1f6c11")
	assert.Equal(t, "8f3a0a3e-8b41-4e09-9a3f-3d0f3b1f6c11/cryoCARE_model.tar.gz", ModelKey(id, false))
	assert.Equal(t, "8f3a0a3e-8b41-4e09-9a3f-3d0f3b1f6c11/cryoCARE_model/", ModelKey(id, true))
}

func TestModelArchive_Tarball(t *testing.T) {
	store, baseDir := setupTestObjectStore(t)
	archive := NewModelArchive(store, "models")
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "trained.tar.gz")
	require.NoError(t, os.WriteFile(src, []byte("weights"), 0644))

	id := uuid.New()
	key, err := archive.Save(ctx, id, src)
	require.NoError(t, err)
	assert.Equal(t, ModelKey(id, false), key)
	assert.FileExists(t, filepath.Join(baseDir, "models", id.String(), ArchivedModelTarball))

	dest := filepath.Join(t.TempDir(), id.String())
	path, err := archive.Restore(ctx, key, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, ArchivedModelTarball), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))

	require.NoError(t, archive.Delete(ctx, id))
	objects, err := store.ListObjects(ctx, "models", id.String()+"/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestModelArchive_Directory(t *testing.T) {
	store, _ := setupTestObjectStore(t)
	archive := NewModelArchive(store, "models")
	ctx := context.Background()

	src := t.TempDir()
	writeTestFiles(t, src, "config.json", "weights_best.h5")

	id := uuid.New()
	key, err := archive.Save(ctx, id, src)
	require.NoError(t, err)
	assert.Equal(t, ModelKey(id, true), key)

	path, err := archive.Restore(ctx, key, filepath.Join(t.TempDir(), id.String()))
	require.NoError(t, err)
	assert.Equal(t, ArchivedModelDir, filepath.Base(path))
	assert.FileExists(t, filepath.Join(path, "weights_best.h5"))

	other := uuid.New()
	_, err = archive.Save(ctx, other, src)
	require.NoError(t, err)

	// Deleting one model leaves the others and the source untouched.
	require.NoError(t, archive.Delete(ctx, id))
	objects, err := store.ListObjects(ctx, "models", other.String()+"/")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
	assert.FileExists(t, filepath.Join(src, "config.json"))
}

func TestModelArchive_MissingModel(t *testing.T) {
	store, _ := setupTestObjectStore(t)
	archive := NewModelArchive(store, "models")

	_, err := archive.Save(context.Background(), uuid.New(), filepath.Join(t.TempDir(), "missing.tar.gz"))
	assert.ErrorContains(t, err, "not found")

	_, err = archive.Restore(context.Background(), ModelKey(uuid.New(), false), t.TempDir())
	assert.Error(t, err)
}
