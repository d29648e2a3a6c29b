package core

import (
	"context"
	"testing"

	"cryocare-backend/internal/core/types"
	"cryocare-backend/internal/database"
	"cryocare-backend/pkg/api"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrepareTrainingDataDefaults(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	set := database.NewTomogramSet(linkedSet(t, "TS_01"), uuid.Nil)
	require.NoError(t, db.Create(&set).Error)
	input := api.InputTomograms{AreEvenOddLinked: true, TomogramSetId: &set.Id}

	prep, err := BuildPrepareTrainingData(ctx, db, api.PrepareTrainingDataRequest{Input: input})
	require.NoError(t, err)
	assert.Equal(t, DefaultPatchShape, prep.PatchShape)
	assert.Equal(t, DefaultSplit, prep.Split)
	assert.Equal(t, DefaultNumSlices, prep.NumSlices)
	assert.Empty(t, prep.Validate())

	prep, err = BuildPrepareTrainingData(ctx, db, api.PrepareTrainingDataRequest{
		Input:      input,
		PatchShape: ptr(0),
		Split:      ptr(0.0),
		NumSlices:  ptr(0),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, prep.PatchShape)
	assert.Equal(t, 0.0, prep.Split)
	assert.Len(t, prep.Validate(), 3)
}

func TestBuildTrainExplicitZero(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	data := database.NewTrainData(types.TrainData{Path: "/data", PatchSize: 72}, uuid.Nil)
	require.NoError(t, db.Create(&data).Error)

	train, err := BuildTrain(ctx, db, api.TrainRequest{TrainDataId: &data.Id})
	require.NoError(t, err)
	assert.Equal(t, DefaultEpochs, train.Epochs)
	assert.Equal(t, DefaultLearningRate, train.LearningRate)
	assert.Empty(t, train.Validate())

	train, err = BuildTrain(ctx, db, api.TrainRequest{
		TrainDataId:  &data.Id,
		Epochs:       ptr(0),
		LearningRate: ptr(0.0),
		BatchSize:    ptr(-1),
	})
	require.NoError(t, err)
	msgs := train.Validate()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "Number of epochs must be positive, got 0")
}
