package core

import (
	"context"
	"encoding/json"
	"fmt"

	"cryocare-backend/internal/core/types"
	"cryocare-backend/internal/database"
	"cryocare-backend/pkg/api"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Unit is an adapter unit built from a submitted request.
type Unit interface {
	Validate() []string
}

func setGiven[T any](dst *T, value *T) {
	if value != nil {
		*dst = *value
	}
}

func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(s); p {
	case PrepareTrainingDataProtocol, TrainProtocol, LoadModelProtocol, LoadTrainDataProtocol, PredictProtocol:
		return p, nil
	default:
		return "", fmt.Errorf("unknown protocol '%s'", s)
	}
}

// BuildUnit rebuilds the unit of a run from its stored request.
func BuildUnit(ctx context.Context, db *gorm.DB, protocol Protocol, params []byte) (Unit, error) {
	switch protocol {
	case PrepareTrainingDataProtocol:
		var req api.PrepareTrainingDataRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("error parsing %s params: %w", protocol, err)
		}
		return BuildPrepareTrainingData(ctx, db, req)
	case TrainProtocol:
		var req api.TrainRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("error parsing %s params: %w", protocol, err)
		}
		return BuildTrain(ctx, db, req)
	case LoadModelProtocol:
		var req api.LoadModelRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("error parsing %s params: %w", protocol, err)
		}
		return BuildLoadModel(req), nil
	case LoadTrainDataProtocol:
		var req api.LoadTrainDataRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("error parsing %s params: %w", protocol, err)
		}
		return BuildLoadTrainData(req), nil
	case PredictProtocol:
		var req api.PredictRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("error parsing %s params: %w", protocol, err)
		}
		return BuildPredict(ctx, db, req)
	default:
		return nil, fmt.Errorf("unknown protocol '%s'", protocol)
	}
}

func loadTomogramSet(ctx context.Context, db *gorm.DB, id *uuid.UUID) (*types.TomogramSet, error) {
	if id == nil {
		return nil, nil
	}
	set, err := database.GetTomogramSet(ctx, db, *id)
	if err != nil {
		return nil, err
	}
	return set.ToTypes(), nil
}

// BuildInput loads the referenced sets. Sets that are not referenced stay nil
// and are reported by InputTomograms.Validate.
func BuildInput(ctx context.Context, db *gorm.DB, req api.InputTomograms) (InputTomograms, error) {
	in := InputTomograms{AreEvenOddLinked: req.AreEvenOddLinked}
	var err error
	if req.AreEvenOddLinked {
		in.Tomograms, err = loadTomogramSet(ctx, db, req.TomogramSetId)
		return in, err
	}
	if in.EvenTomograms, err = loadTomogramSet(ctx, db, req.EvenSetId); err != nil {
		return in, err
	}
	if in.OddTomograms, err = loadTomogramSet(ctx, db, req.OddSetId); err != nil {
		return in, err
	}
	return in, nil
}

func BuildPrepareTrainingData(ctx context.Context, db *gorm.DB, req api.PrepareTrainingDataRequest) (*PrepareTrainingData, error) {
	input, err := BuildInput(ctx, db, req.Input)
	if err != nil {
		return nil, err
	}

	prep := NewPrepareTrainingData(input)
	setGiven(&prep.PatchShape, req.PatchShape)
	setGiven(&prep.NumSlices, req.NumSlices)
	setGiven(&prep.Split, req.Split)
	setGiven(&prep.NNormalizationSamples, req.NNormalizationSamples)
	if req.TiltAxis != "" {
		prep.TiltAxis = req.TiltAxis
	}
	return prep, nil
}

func BuildTrain(ctx context.Context, db *gorm.DB, req api.TrainRequest) (*Train, error) {
	train := NewTrain()

	if req.TrainDataId != nil {
		data, err := database.GetTrainData(ctx, db, *req.TrainDataId)
		if err != nil {
			return nil, err
		}
		train.TrainData = data.ToTypes()
	}
	if req.Prepare != nil {
		prep, err := BuildPrepareTrainingData(ctx, db, *req.Prepare)
		if err != nil {
			return nil, err
		}
		train.Prepare = prep
	}

	setGiven(&train.Epochs, req.Epochs)
	setGiven(&train.StepsPerEpoch, req.StepsPerEpoch)
	setGiven(&train.BatchSize, req.BatchSize)
	setGiven(&train.UNetKernSize, req.UNetKernSize)
	setGiven(&train.UNetNFirst, req.UNetNFirst)
	setGiven(&train.LearningRate, req.LearningRate)
	if req.GPUList != "" {
		train.GPUList = req.GPUList
	}
	train.UNetNDepth = req.UNetNDepth
	return train, nil
}

func BuildLoadModel(req api.LoadModelRequest) *LoadModel {
	return &LoadModel{ModelPath: req.ModelPath, TrainDataDir: req.TrainDataDir, MeanStd: req.MeanStd}
}

func BuildLoadTrainData(req api.LoadTrainDataRequest) *LoadTrainData {
	return &LoadTrainData{TrainData: req.TrainData, MeanStd: req.MeanStd, PatchSize: req.PatchSize}
}

func BuildPredict(ctx context.Context, db *gorm.DB, req api.PredictRequest) (*Predict, error) {
	input, err := BuildInput(ctx, db, req.Input)
	if err != nil {
		return nil, err
	}

	var model *types.Model
	if req.ModelId != uuid.Nil {
		row, err := database.GetModel(ctx, db, req.ModelId)
		if err != nil {
			return nil, err
		}
		model = row.ToTypes()
	}

	predict := NewPredict(input, model)
	if req.NTiles != "" {
		predict.NTiles = req.NTiles
	}
	if req.GPUList != "" {
		predict.GPUList = req.GPUList
	}
	return predict, nil
}
