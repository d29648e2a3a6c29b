package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Names of an archived model under its <model id>/ prefix.
const (
	ArchivedModelDir     = "cryoCARE_model"
	ArchivedModelTarball = "cryoCARE_model.tar.gz"
)

// ModelArchive keeps copies of trained models in a bucket so that
// predictions can run after the run directory holding the model is gone.
// Tarballs are stored under <model id>/cryoCARE_model.tar.gz, model
// directories under <model id>/cryoCARE_model/.
type ModelArchive struct {
	store  ObjectStore
	bucket string
}

func NewModelArchive(store ObjectStore, bucket string) *ModelArchive {
	return &ModelArchive{store: store, bucket: bucket}
}

func (a *ModelArchive) Bucket() string {
	return a.bucket
}

// ModelKey is the key of an archived model. Keys of model directories end
// with a slash.
func ModelKey(modelId uuid.UUID, isDir bool) string {
	if isDir {
		return modelId.String() + "/" + ArchivedModelDir + "/"
	}
	return modelId.String() + "/" + ArchivedModelTarball
}

func isDirKey(key string) bool {
	return strings.HasSuffix(key, "/")
}

// Save uploads the model at path and returns its key.
func (a *ModelArchive) Save(ctx context.Context, modelId uuid.UUID, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("model %s not found at %s: %w", modelId, path, err)
	}

	if err := a.store.CreateBucket(ctx, a.bucket); err != nil {
		return "", fmt.Errorf("error creating model bucket %s: %w", a.bucket, err)
	}

	key := ModelKey(modelId, info.IsDir())
	if info.IsDir() {
		err = a.store.UploadDir(ctx, a.bucket, strings.TrimSuffix(key, "/"), path)
	} else {
		err = UploadFile(ctx, a.store, a.bucket, key, path)
	}
	if err != nil {
		// Partial uploads are not restorable.
		if derr := a.Delete(ctx, modelId); derr != nil {
			slog.Error("error removing partially archived model", "model_id", modelId, "error", derr)
		}
		return "", fmt.Errorf("error archiving model %s: %w", modelId, err)
	}

	slog.Info("model archived", "model_id", modelId, "bucket", a.bucket, "key", key)
	return key, nil
}

// Restore downloads the model stored under key into destDir and returns the
// path of the restored model.
func (a *ModelArchive) Restore(ctx context.Context, key, destDir string) (string, error) {
	if isDirKey(key) {
		dest := filepath.Join(destDir, ArchivedModelDir)
		if err := a.store.DownloadDir(ctx, a.bucket, key, dest, true); err != nil {
			return "", fmt.Errorf("error restoring model directory %s: %w", key, err)
		}
		return dest, nil
	}

	dest := filepath.Join(destDir, ArchivedModelTarball)
	if err := a.store.DownloadObject(ctx, a.bucket, key, dest); err != nil {
		return "", fmt.Errorf("error restoring model %s: %w", key, err)
	}
	return dest, nil
}

// Delete removes every archived file of the model.
func (a *ModelArchive) Delete(ctx context.Context, modelId uuid.UUID) error {
	if err := a.store.DeleteObjects(ctx, a.bucket, modelId.String()+"/"); err != nil {
		return fmt.Errorf("error deleting archived model %s: %w", modelId, err)
	}
	return nil
}
