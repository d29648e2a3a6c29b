package database_test

import (
	"context"
	"testing"

	"cryocare-backend/internal/core/types"
	"cryocare-backend/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

func TestNewDatabaseSqlite(t *testing.T) {
	db, err := database.NewDatabase(t.TempDir() + "/cryocare.db")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Dialector.Name())
	assert.True(t, db.Migrator().HasColumn(&database.Model{}, "ObjectKey"))
}

func TestRunStatusAndErrors(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	run := database.Run{Id: uuid.New(), Protocol: "train", Status: database.JobQueued}
	require.NoError(t, db.Create(&run).Error)

	require.NoError(t, database.UpdateRunStatus(ctx, db, run.Id, database.JobRunning))
	require.NoError(t, database.UpdateRunStatus(ctx, db, run.Id, database.JobFailed))
	database.SaveRunError(ctx, db, run.Id, "cryoCARE_train.py exited with status 1")
	require.NoError(t, database.SaveRunSummary(ctx, db, run.Id, []string{"a", "b"}))

	loaded, err := database.GetRun(ctx, db, run.Id)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, loaded.Status)
	assert.True(t, loaded.StartTime.Valid)
	assert.True(t, loaded.CompletionTime.Valid)
	assert.Equal(t, "a\nb", loaded.Summary)
	require.Len(t, loaded.Errors, 1)
	assert.Contains(t, loaded.Errors[0].Error, "status 1")

	_, err = database.GetRun(ctx, db, uuid.New())
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestTomogramSetRoundTrip(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()

	set := &types.TomogramSet{
		Name:         "tomograms",
		SamplingRate: 13.48,
		Dims:         types.Dimensions{X: 464, Y: 464, Z: 200},
		Tomograms: []types.Tomogram{
			{TsId: "TS_02", FileName: "/data/TS_02.mrc", OddFile: "/data/TS_02_odd.mrc", EvenFile: "/data/TS_02_even.mrc"},
			{TsId: "TS_01", FileName: "/data/TS_01.mrc", OddFile: "/data/TS_01_odd.mrc", EvenFile: "/data/TS_01_even.mrc"},
		},
	}
	row := database.NewTomogramSet(set, uuid.Nil)
	require.NoError(t, db.Create(&row).Error)
	assert.False(t, row.RunId.Valid)

	require.NoError(t, database.AppendTomogram(ctx, db, row.Id, database.NewTomogram(types.Tomogram{TsId: "TS_00", FileName: "/data/TS_00.mrc"})))

	loaded, err := database.GetTomogramSet(ctx, db, row.Id)
	require.NoError(t, err)
	out := loaded.ToTypes()
	assert.Equal(t, row.Id, out.Id)
	assert.Equal(t, set.Dims, out.Dims)
	require.Equal(t, 3, out.Size())
	assert.Equal(t, "TS_02", out.Tomograms[0].TsId)
	assert.Equal(t, "TS_01", out.Tomograms[1].TsId)
	assert.Equal(t, "TS_00", out.Tomograms[2].TsId)
	assert.Equal(t, "/data/TS_01_odd.mrc,/data/TS_01_even.mrc", out.Tomograms[1].HalfMaps())
}

func TestModelAndTrainData(t *testing.T) {
	db := createDB(t)
	ctx := context.Background()
	runId := uuid.New()

	data := database.NewTrainData(types.TrainData{Path: "/runs/1/extra/train_data", PatchSize: 72}, runId)
	require.NoError(t, db.Create(&data).Error)
	model := database.NewModel(types.Model{Path: "/runs/2/extra/cryoCARE_model.tar.gz"}, runId)
	require.NoError(t, db.Create(&model).Error)

	loadedData, err := database.GetTrainData(ctx, db, data.Id)
	require.NoError(t, err)
	assert.Equal(t, 72, loadedData.ToTypes().PatchSize)

	loadedModel, err := database.GetModel(ctx, db, model.Id)
	require.NoError(t, err)
	assert.Equal(t, model.Id, loadedModel.ToTypes().Id)
	assert.Equal(t, runId, loadedModel.RunId.UUID)

	_, err = database.GetModel(ctx, db, uuid.New())
	assert.ErrorIs(t, err, database.ErrNotFound)
}
