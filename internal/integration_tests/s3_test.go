package integrationtests

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryocare-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucketName = "test-bucket"

func TestS3ObjectStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	store := setupObjectStore(t, ctx)
	require.NoError(t, store.CreateBucket(ctx, bucketName))
	// Creating an existing bucket is a no-op.
	require.NoError(t, store.CreateBucket(ctx, bucketName))

	t.Run("PutObject and DownloadObject", func(t *testing.T) {
		key := "model-1/cryoCARE_model.tar.gz"
		require.NoError(t, store.PutObject(ctx, bucketName, key, bytes.NewReader([]byte("tarball"))))

		dest := filepath.Join(t.TempDir(), "restored", "cryoCARE_model.tar.gz")
		require.NoError(t, store.DownloadObject(ctx, bucketName, key, dest))

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "tarball", string(data))
	})

	t.Run("UploadDir and DownloadDir", func(t *testing.T) {
		src := t.TempDir()
		for _, f := range []string{"cryoCARE_model/config.json", "cryoCARE_model/weights_best.h5", "norm.json"} {
			require.NoError(t, touch(filepath.Join(src, f)))
		}
		require.NoError(t, store.UploadDir(ctx, bucketName, "model-2", src))

		objs, err := store.ListObjects(ctx, bucketName, "model-2/")
		require.NoError(t, err)
		names := make([]string, 0, len(objs))
		for _, o := range objs {
			names = append(names, o.Name)
		}
		assert.ElementsMatch(t, []string{
			"model-2/cryoCARE_model/config.json",
			"model-2/cryoCARE_model/weights_best.h5",
			"model-2/norm.json",
		}, names)

		dest := t.TempDir()
		require.NoError(t, store.DownloadDir(ctx, bucketName, "model-2", dest, true))
		assert.FileExists(t, filepath.Join(dest, "cryoCARE_model", "weights_best.h5"))
		assert.FileExists(t, filepath.Join(dest, "norm.json"))
	})

	t.Run("UploadFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mean_std.npz")
		require.NoError(t, touch(path))
		require.NoError(t, storage.UploadFile(ctx, store, bucketName, "data/mean_std.npz", path))

		objs, err := store.ListObjects(ctx, bucketName, "data/")
		require.NoError(t, err)
		require.Len(t, objs, 1)
		assert.Equal(t, int64(len("cryocare")), objs[0].Size)
	})

	t.Run("DeleteObjects", func(t *testing.T) {
		require.NoError(t, store.DeleteObjects(ctx, bucketName, "model-2/"))

		objs, err := store.ListObjects(ctx, bucketName, "model-2/")
		require.NoError(t, err)
		assert.Empty(t, objs)

		objs, err = store.ListObjects(ctx, bucketName, "model-1/")
		require.NoError(t, err)
		assert.Len(t, objs, 1)
	})

	t.Run("ModelArchive", func(t *testing.T) {
		archive := storage.NewModelArchive(store, "archived-models")

		src := t.TempDir()
		for _, f := range []string{"config.json", "weights_best.h5"} {
			require.NoError(t, touch(filepath.Join(src, f)))
		}
		id := uuid.New()
		key, err := archive.Save(ctx, id, src)
		require.NoError(t, err)
		assert.Equal(t, storage.ModelKey(id, true), key)

		path, err := archive.Restore(ctx, key, filepath.Join(t.TempDir(), id.String()))
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(path, "weights_best.h5"))

		require.NoError(t, archive.Delete(ctx, id))
		objs, err := store.ListObjects(ctx, "archived-models", id.String()+"/")
		require.NoError(t, err)
		assert.Empty(t, objs)

		_, err = archive.Restore(ctx, key, filepath.Join(t.TempDir(), id.String()))
		assert.Error(t, err)
	})
}
