package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cryocare-backend/internal/core"
	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/database"
	"cryocare-backend/internal/messaging"
	"cryocare-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BackendService struct {
	db        *gorm.DB
	publisher messaging.Publisher
	env       *cryocare.Environment
}

func NewBackendService(db *gorm.DB, publisher messaging.Publisher, env *cryocare.Environment) *BackendService {
	return &BackendService{db: db, publisher: publisher, env: env}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Get("/plugin", RestHandler(s.GetPluginInfo))

	r.Route("/tomogram-sets", func(r chi.Router) {
		r.Post("/", RestHandler(s.ImportTomograms))
		r.Get("/", RestHandler(s.ListTomogramSets))
		r.Get("/{set_id}", RestHandler(s.GetTomogramSet))
	})

	r.Route("/train-data", func(r chi.Router) {
		r.Post("/prepare", RestHandler(s.PrepareTrainingData))
		r.Post("/load", RestHandler(s.LoadTrainData))
		r.Get("/", RestHandler(s.ListTrainData))
		r.Get("/{train_data_id}", RestHandler(s.GetTrainData))
	})

	r.Route("/models", func(r chi.Router) {
		r.Post("/train", RestHandler(s.Train))
		r.Post("/load", RestHandler(s.LoadModel))
		r.Get("/", RestHandler(s.ListModels))
		r.Get("/{model_id}", RestHandler(s.GetModel))
	})

	r.Post("/predictions", RestHandler(s.Predict))

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListRuns))
		r.Get("/{run_id}", RestHandler(s.GetRun))
	})
}

func (s *BackendService) GetPluginInfo(r *http.Request) (any, error) {
	recipe := s.env.Recipe()

	citations := make([]api.Citation, 0, len(cryocare.References))
	for _, ref := range cryocare.References {
		citations = append(citations, api.Citation{Key: ref.Key, Title: ref.Title, DOI: ref.DOI})
	}

	return api.PluginInfo{
		Version:         cryocare.PluginVersion,
		CryoCAREVersion: recipe.Version,
		Versions:        cryocare.Versions(),
		EnvName:         recipe.EnvName(),
		Dependencies:    s.env.Dependencies(),
		Citations:       citations,
		InstallScript:   s.env.InstallScript(),
	}, nil
}

func lookupError(err error, what string) error {
	if errors.Is(err, database.ErrNotFound) {
		return CodedErrorf(http.StatusNotFound, "%s not found", what)
	}
	slog.Error("error loading "+what, "error", err)
	return CodedErrorf(http.StatusInternalServerError, "error retrieving %s record", what)
}

// submissionError maps errors of resolving a request's references. A missing
// reference is a problem with the request, not with the lookup.
func submissionError(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return CodedError(http.StatusUnprocessableEntity, err)
	}
	slog.Error("error resolving request references", "error", err)
	return CodedErrorf(http.StatusInternalServerError, "error resolving request references")
}

// submitRun validates the unit synchronously, stores the queued run and
// publishes it.
func (s *BackendService) submitRun(ctx context.Context, protocol core.Protocol, unit core.Unit, req any) (any, error) {
	if msgs := unit.Validate(); len(msgs) > 0 {
		return nil, ValidationError(msgs)
	}

	queue, err := messaging.QueueFor(string(protocol))
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	params, err := json.Marshal(req)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, fmt.Errorf("error encoding run params: %w", err))
	}

	run := database.Run{
		Id:           uuid.New(),
		Protocol:     string(protocol),
		Status:       database.JobQueued,
		Params:       datatypes.JSON(params),
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		slog.Error("error creating run", "protocol", protocol, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create run entry")
	}

	if err := s.publisher.PublishRunTask(ctx, queue, messaging.RunTaskPayload{RunId: run.Id}); err != nil {
		slog.Error("error publishing run task", "run_id", run.Id, "error", err)
		s.failSubmission(ctx, run.Id, err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue run")
	}

	slog.Info("submitted run", "run_id", run.Id, "protocol", protocol, "queue", queue)
	return api.SubmitRunResponse{RunId: run.Id}, nil
}

func (s *BackendService) failSubmission(ctx context.Context, runId uuid.UUID, err error) {
	database.SaveRunError(ctx, s.db, runId, fmt.Sprintf("error queueing run: %v", err))
	if err := database.UpdateRunStatus(ctx, s.db, runId, database.JobFailed); err != nil {
		slog.Error("error marking unqueued run as failed", "run_id", runId, "error", err)
	}
}

func (s *BackendService) PrepareTrainingData(r *http.Request) (any, error) {
	req, err := ParseRequest[api.PrepareTrainingDataRequest](r)
	if err != nil {
		return nil, err
	}

	unit, err := core.BuildPrepareTrainingData(r.Context(), s.db, req)
	if err != nil {
		return nil, submissionError(err)
	}

	return s.submitRun(r.Context(), core.PrepareTrainingDataProtocol, unit, req)
}

func (s *BackendService) LoadTrainData(r *http.Request) (any, error) {
	req, err := ParseRequest[api.LoadTrainDataRequest](r)
	if err != nil {
		return nil, err
	}

	return s.submitRun(r.Context(), core.LoadTrainDataProtocol, core.BuildLoadTrainData(req), req)
}

func (s *BackendService) Train(r *http.Request) (any, error) {
	req, err := ParseRequest[api.TrainRequest](r)
	if err != nil {
		return nil, err
	}

	unit, err := core.BuildTrain(r.Context(), s.db, req)
	if err != nil {
		return nil, submissionError(err)
	}

	return s.submitRun(r.Context(), core.TrainProtocol, unit, req)
}

func (s *BackendService) LoadModel(r *http.Request) (any, error) {
	req, err := ParseRequest[api.LoadModelRequest](r)
	if err != nil {
		return nil, err
	}

	return s.submitRun(r.Context(), core.LoadModelProtocol, core.BuildLoadModel(req), req)
}

func (s *BackendService) Predict(r *http.Request) (any, error) {
	req, err := ParseRequest[api.PredictRequest](r)
	if err != nil {
		return nil, err
	}

	unit, err := core.BuildPredict(r.Context(), s.db, req)
	if err != nil {
		return nil, submissionError(err)
	}

	return s.submitRun(r.Context(), core.PredictProtocol, unit, req)
}

func (s *BackendService) ImportTomograms(r *http.Request) (any, error) {
	req, err := ParseRequest[api.ImportTomogramsRequest](r)
	if err != nil {
		return nil, err
	}

	set, err := buildTomogramSet(req)
	if err != nil {
		return nil, CodedError(http.StatusUnprocessableEntity, err)
	}

	row := database.NewTomogramSet(set, uuid.Nil)
	if err := s.db.WithContext(r.Context()).Create(&row).Error; err != nil {
		slog.Error("error creating tomogram set", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create tomogram set")
	}

	slog.Info("imported tomograms", "set_id", row.Id, "name", row.Name, "tomograms", len(row.Tomograms))
	return convertTomogramSet(row), nil
}

func (s *BackendService) ListTomogramSets(r *http.Request) (any, error) {
	var sets []database.TomogramSet
	if err := s.db.WithContext(r.Context()).Order("creation_time").Find(&sets).Error; err != nil {
		slog.Error("error listing tomogram sets", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving tomogram set records")
	}

	return convertList(sets, convertTomogramSet), nil
}

func (s *BackendService) GetTomogramSet(r *http.Request) (any, error) {
	setId, err := URLParamUUID(r, "set_id")
	if err != nil {
		return nil, err
	}

	set, err := database.GetTomogramSet(r.Context(), s.db, setId)
	if err != nil {
		return nil, lookupError(err, "tomogram set")
	}

	return convertTomogramSet(set), nil
}

func (s *BackendService) ListTrainData(r *http.Request) (any, error) {
	var data []database.TrainData
	if err := s.db.WithContext(r.Context()).Order("creation_time").Find(&data).Error; err != nil {
		slog.Error("error listing train data", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving train data records")
	}

	return convertList(data, convertTrainData), nil
}

func (s *BackendService) GetTrainData(r *http.Request) (any, error) {
	id, err := URLParamUUID(r, "train_data_id")
	if err != nil {
		return nil, err
	}

	data, err := database.GetTrainData(r.Context(), s.db, id)
	if err != nil {
		return nil, lookupError(err, "train data")
	}

	return convertTrainData(data), nil
}

func (s *BackendService) ListModels(r *http.Request) (any, error) {
	var models []database.Model
	if err := s.db.WithContext(r.Context()).Order("creation_time").Find(&models).Error; err != nil {
		slog.Error("error listing models", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving model records")
	}

	return convertList(models, convertModel), nil
}

func (s *BackendService) GetModel(r *http.Request) (any, error) {
	modelId, err := URLParamUUID(r, "model_id")
	if err != nil {
		return nil, err
	}

	model, err := database.GetModel(r.Context(), s.db, modelId)
	if err != nil {
		return nil, lookupError(err, "model")
	}

	return convertModel(model), nil
}

func (s *BackendService) ListRuns(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListRunsParams](r)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(r.Context()).Preload("Errors").Preload("Outputs").Order("creation_time")
	if params.Protocol != "" {
		if _, err := core.ParseProtocol(params.Protocol); err != nil {
			return nil, CodedError(http.StatusBadRequest, err)
		}
		query = query.Where("protocol = ?", params.Protocol)
	}
	if params.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(params.Status))
	}

	var runs []database.Run
	if err := query.Find(&runs).Error; err != nil {
		slog.Error("error listing runs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving run records")
	}

	return convertList(runs, convertRun), nil
}

func (s *BackendService) GetRun(r *http.Request) (any, error) {
	runId, err := URLParamUUID(r, "run_id")
	if err != nil {
		return nil, err
	}

	run, err := database.GetRun(r.Context(), s.db, runId)
	if err != nil {
		return nil, lookupError(err, "run")
	}

	return convertRun(run), nil
}
