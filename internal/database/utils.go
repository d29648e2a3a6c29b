package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not found")

func UpdateRunStatus(ctx context.Context, txn *gorm.DB, runId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	switch status {
	case JobRunning:
		updates["start_time"] = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	case JobCompleted, JobFailed:
		updates["completion_time"] = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	if err := txn.WithContext(ctx).Model(&Run{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error updating run status", "run_id", runId, "status", status, "error", err)
		return err
	}
	return nil
}

func SaveRunError(ctx context.Context, txn *gorm.DB, runId uuid.UUID, errorMessage string) {
	runError := RunError{
		RunId:     runId,
		ErrorId:   uuid.New(),
		Error:     errorMessage,
		Timestamp: time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Create(&runError).Error; err != nil {
		slog.Error("error saving run error", "run_id", runId, "error", err)
	}
}

func SaveRunSummary(ctx context.Context, txn *gorm.DB, runId uuid.UUID, summary []string) error {
	if err := txn.WithContext(ctx).Model(&Run{Id: runId}).Update("summary", strings.Join(summary, "\n")).Error; err != nil {
		return fmt.Errorf("error saving run summary: %w", err)
	}
	return nil
}

func AddRunOutput(ctx context.Context, txn *gorm.DB, runId uuid.UUID, name, objectType string, objectId uuid.UUID) error {
	output := RunOutput{RunId: runId, Name: name, ObjectType: objectType, ObjectId: objectId}
	if err := txn.WithContext(ctx).Create(&output).Error; err != nil {
		return fmt.Errorf("error registering output %s of run %s: %w", name, runId, err)
	}
	return nil
}

func GetRun(ctx context.Context, db *gorm.DB, runId uuid.UUID) (Run, error) {
	var run Run
	if err := db.WithContext(ctx).Preload("Errors").Preload("Outputs").First(&run, "id = ?", runId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return run, fmt.Errorf("run %s %w", runId, ErrNotFound)
		}
		return run, fmt.Errorf("error loading run %s: %w", runId, err)
	}
	return run, nil
}

func GetTomogramSet(ctx context.Context, db *gorm.DB, setId uuid.UUID) (TomogramSet, error) {
	var set TomogramSet
	err := db.WithContext(ctx).
		Preload("Tomograms", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&set, "id = ?", setId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return set, fmt.Errorf("tomogram set %s %w", setId, ErrNotFound)
		}
		return set, fmt.Errorf("error loading tomogram set %s: %w", setId, err)
	}
	return set, nil
}

func GetTrainData(ctx context.Context, db *gorm.DB, id uuid.UUID) (TrainData, error) {
	var data TrainData
	if err := db.WithContext(ctx).First(&data, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return data, fmt.Errorf("train data %s %w", id, ErrNotFound)
		}
		return data, fmt.Errorf("error loading train data %s: %w", id, err)
	}
	return data, nil
}

func GetModel(ctx context.Context, db *gorm.DB, id uuid.UUID) (Model, error) {
	var model Model
	if err := db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model, fmt.Errorf("model %s %w", id, ErrNotFound)
		}
		return model, fmt.Errorf("error loading model %s: %w", id, err)
	}
	return model, nil
}

// AppendTomogram adds a tomogram at the end of an existing set.
func AppendTomogram(ctx context.Context, db *gorm.DB, setId uuid.UUID, tomo Tomogram) error {
	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var count int64
		if err := txn.Model(&Tomogram{}).Where("set_id = ?", setId).Count(&count).Error; err != nil {
			return fmt.Errorf("error counting tomograms of set %s: %w", setId, err)
		}
		tomo.SetId = setId
		tomo.Position = int(count)
		if err := txn.Create(&tomo).Error; err != nil {
			return fmt.Errorf("error adding tomogram %s to set %s: %w", tomo.TsId, setId, err)
		}
		return nil
	})
}
