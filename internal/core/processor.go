package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/core/types"
	"cryocare-backend/internal/core/utils"
	"cryocare-backend/internal/database"
	"cryocare-backend/internal/messaging"
	"cryocare-backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ModelBucket = "models"

	TrainDataOutputName = "train_data"
	ModelOutputName     = "model"
	TomogramsOutputName = "tomograms"

	maxLockedModels = 1000
)

type TaskProcessor struct {
	db        *gorm.DB
	models    *storage.ModelArchive
	publisher messaging.Publisher
	reciever  messaging.Reciever
	runner    cryocare.Runner

	rootDir    string
	modelLocks *utils.MutexMap

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTaskProcessor creates a processor keeping run directories under
// <rootDir>/runs. store may be nil, models are then never archived.
func NewTaskProcessor(db *gorm.DB, store storage.ObjectStore, publisher messaging.Publisher, reciever messaging.Reciever, runner cryocare.Runner, rootDir string, modelBucket string) *TaskProcessor {
	var models *storage.ModelArchive
	if store != nil {
		models = storage.NewModelArchive(store, modelBucket)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskProcessor{
		db:         db,
		models:     models,
		publisher:  publisher,
		reciever:   reciever,
		runner:     runner,
		rootDir:    rootDir,
		modelLocks: utils.NewMutexMap(maxLockedModels),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start consumes tasks with the given number of workers until the receiver
// is closed.
func (proc *TaskProcessor) Start(workers int) {
	slog.Info("starting task processor", "workers", workers)

	wg := sync.WaitGroup{}
	for i := 0; i < max(workers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range proc.reciever.Tasks() {
				proc.ProcessTask(task)
			}
		}()
	}
	wg.Wait()
}

// Stop cancels the running cryoCARE programs and closes the queues. Runs
// interrupted this way are marked as failed.
func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.cancel()
	proc.publisher.Close()
	proc.reciever.Close()
}

func (proc *TaskProcessor) RunDir(runId uuid.UUID) (RunDir, error) {
	return NewRunDir(filepath.Join(proc.rootDir, "runs", runId.String()))
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := proc.ctx
	if ctx.Err() != nil {
		// Unacknowledged tasks are redelivered, queued runs are re-published locally.
		slog.Info("processor is stopping, leaving task on the queue", "queue", task.Type())
		return
	}

	switch task.Type() {
	case messaging.PrepareQueue, messaging.TrainQueue, messaging.PredictQueue, messaging.LoadQueue:
	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	var payload messaging.RunTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Error("error unmarshalling run task", "queue", task.Type(), "error", err)
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err := proc.processRun(ctx, payload.RunId); err != nil {
		slog.Error("error processing task", "queue", task.Type(), "run_id", payload.RunId, "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type(), "run_id", payload.RunId)
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) failRun(ctx context.Context, runId uuid.UUID, messages ...string) {
	// The failure is recorded even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)
	for _, msg := range messages {
		database.SaveRunError(ctx, proc.db, runId, msg)
	}
	if err := database.UpdateRunStatus(ctx, proc.db, runId, database.JobFailed); err != nil {
		slog.Error("error marking run as failed", "run_id", runId, "error", err)
	}
}

func (proc *TaskProcessor) processRun(ctx context.Context, runId uuid.UUID) error {
	run, err := database.GetRun(ctx, proc.db, runId)
	if err != nil {
		return err
	}

	if run.Status != database.JobQueued {
		slog.Info("run is not queued, skipping", "run_id", runId, "status", run.Status)
		return nil
	}

	slog.Info("processing run", "run_id", runId, "protocol", run.Protocol)

	if err := database.UpdateRunStatus(ctx, proc.db, runId, database.JobRunning); err != nil {
		return fmt.Errorf("error updating run status: %w", err)
	}

	unit, err := BuildUnit(ctx, proc.db, Protocol(run.Protocol), run.Params)
	if err != nil {
		proc.failRun(ctx, runId, err.Error())
		return fmt.Errorf("error building %s unit: %w", run.Protocol, err)
	}

	// Inputs may have changed since submission.
	if msgs := unit.Validate(); len(msgs) > 0 {
		slog.Warn("run failed validation", "run_id", runId, "errors", msgs)
		proc.failRun(ctx, runId, msgs...)
		return nil
	}

	dir, err := proc.RunDir(runId)
	if err != nil {
		proc.failRun(ctx, runId, err.Error())
		return err
	}
	if err := dir.Create(); err != nil {
		proc.failRun(ctx, runId, err.Error())
		return err
	}
	if err := proc.db.WithContext(ctx).Model(&database.Run{Id: runId}).Update("run_dir", dir.Root).Error; err != nil {
		slog.Error("error saving run dir", "run_id", runId, "error", err)
	}

	summary, err := proc.execute(ctx, runId, dir, unit)
	if summary != nil {
		if err := database.SaveRunSummary(ctx, proc.db, runId, summary); err != nil {
			slog.Error("error saving run summary", "run_id", runId, "error", err)
		}
	}
	if err != nil {
		proc.failRun(ctx, runId, err.Error())
		return fmt.Errorf("error running %s: %w", run.Protocol, err)
	}

	if err := database.UpdateRunStatus(ctx, proc.db, runId, database.JobCompleted); err != nil {
		return fmt.Errorf("error updating run status: %w", err)
	}

	slog.Info("run completed", "run_id", runId, "protocol", run.Protocol)
	return nil
}

func (proc *TaskProcessor) execute(ctx context.Context, runId uuid.UUID, dir RunDir, unit Unit) ([]string, error) {
	switch u := unit.(type) {
	case *PrepareTrainingData:
		data, err := u.Run(ctx, dir, proc.runner)
		if err != nil {
			return nil, err
		}
		if err := proc.saveTrainData(ctx, runId, data); err != nil {
			return nil, err
		}
		return u.Summary(&data), nil

	case *LoadTrainData:
		data, err := u.Run(ctx, dir, proc.runner)
		if err != nil {
			return nil, err
		}
		if err := proc.saveTrainData(ctx, runId, data); err != nil {
			return nil, err
		}
		return u.Summary(&data), nil

	case *Train:
		out, err := u.Run(ctx, dir, proc.runner)
		if out.TrainData != nil {
			if err := proc.saveTrainData(ctx, runId, *out.TrainData); err != nil {
				return nil, err
			}
		}
		if err != nil {
			return nil, err
		}
		if err := proc.saveModel(ctx, runId, out.Model); err != nil {
			return nil, err
		}
		return u.Summary(&out), nil

	case *LoadModel:
		model, err := u.Run(ctx, dir, proc.runner)
		if err != nil {
			return nil, err
		}
		if err := proc.saveModel(ctx, runId, model); err != nil {
			return nil, err
		}
		return u.Summary(&model), nil

	case *Predict:
		return proc.executePredict(ctx, runId, dir, u)

	default:
		return nil, fmt.Errorf("unsupported unit %T", unit)
	}
}

func (proc *TaskProcessor) saveTrainData(ctx context.Context, runId uuid.UUID, data types.TrainData) error {
	row := database.NewTrainData(data, runId)
	return proc.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&row).Error; err != nil {
			return fmt.Errorf("error saving train data: %w", err)
		}
		return database.AddRunOutput(ctx, txn, runId, TrainDataOutputName, database.TrainDataOutput, row.Id)
	})
}

func (proc *TaskProcessor) saveModel(ctx context.Context, runId uuid.UUID, model types.Model) error {
	row := database.NewModel(model, runId)
	row.ObjectKey = proc.archiveModel(ctx, row.Id, model.Path)

	err := proc.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&row).Error; err != nil {
			return fmt.Errorf("error saving model: %w", err)
		}
		return database.AddRunOutput(ctx, txn, runId, ModelOutputName, database.ModelOutput, row.Id)
	})
	if err != nil && row.ObjectKey != "" {
		// Nothing references the archive without the model row.
		if derr := proc.models.Delete(context.WithoutCancel(ctx), row.Id); derr != nil {
			slog.Error("error removing archive of unsaved model", "model_id", row.Id, "error", derr)
		}
	}
	return err
}

// archiveModel returns the key of the archived model, or an empty key if it
// could not be archived.
func (proc *TaskProcessor) archiveModel(ctx context.Context, modelId uuid.UUID, path string) string {
	if proc.models == nil {
		return ""
	}

	key, err := proc.models.Save(ctx, modelId, path)
	if err != nil {
		slog.Warn("model is not archived", "model_id", modelId, "path", path, "error", err)
		return ""
	}
	return key
}

// ensureModel restores a model whose files are gone from the model archive.
// Concurrent predictions with the same model restore it once.
func (proc *TaskProcessor) ensureModel(ctx context.Context, model *types.Model) error {
	if fileExists(model.Path) || dirExists(model.Path) {
		return nil
	}

	key := model.Id.String()
	if err := proc.modelLocks.Lock(key); err != nil {
		return fmt.Errorf("error locking model %s: %w", model.Id, err)
	}
	defer func() {
		if err := proc.modelLocks.Unlock(key); err != nil {
			slog.Error("error unlocking model", "model_id", model.Id, "error", err)
		}
	}()

	row, err := database.GetModel(ctx, proc.db, model.Id)
	if err != nil {
		return err
	}
	if fileExists(row.Path) || dirExists(row.Path) {
		model.Path = row.Path
		return nil
	}

	if proc.models == nil || row.ObjectKey == "" {
		return fmt.Errorf("model %s not found at %s and it was never archived", model.Id, model.Path)
	}

	dest, err := proc.models.Restore(ctx, row.ObjectKey, filepath.Join(proc.rootDir, "models", model.Id.String()))
	if err != nil {
		return err
	}

	if err := proc.db.WithContext(ctx).Model(&database.Model{Id: model.Id}).Update("path", dest).Error; err != nil {
		return fmt.Errorf("error updating path of restored model %s: %w", model.Id, err)
	}

	slog.Info("model restored from archive", "model_id", model.Id, "path", dest)
	model.Path = dest
	return nil
}

func (proc *TaskProcessor) executePredict(ctx context.Context, runId uuid.UUID, dir RunDir, predict *Predict) ([]string, error) {
	if err := proc.ensureModel(ctx, predict.Model); err != nil {
		return nil, err
	}

	set := &types.TomogramSet{}
	set.CopyInfo(predict.Input.Reference())
	row := database.NewTomogramSet(set, runId)

	err := proc.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&row).Error; err != nil {
			return fmt.Errorf("error creating output set: %w", err)
		}
		return database.AddRunOutput(ctx, txn, runId, TomogramsOutputName, database.TomogramSetOutput, row.Id)
	})
	if err != nil {
		return nil, err
	}

	predict.OnTomogram = func(tomo types.Tomogram) error {
		return database.AppendTomogram(ctx, proc.db, row.Id, database.NewTomogram(tomo))
	}

	out, err := predict.Run(ctx, dir, proc.runner)
	return predict.Summary(out), err
}
