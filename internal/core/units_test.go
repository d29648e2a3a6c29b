package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputTomogramsPairs(t *testing.T) {
	t.Run("linked", func(t *testing.T) {
		set := linkedSet(t, "TS_01", "TS_02")
		in := InputTomograms{AreEvenOddLinked: true, Tomograms: set}

		assert.Empty(t, in.Validate())
		pairs, err := in.Pairs()
		require.NoError(t, err)
		require.Len(t, pairs, 2)
		assert.Equal(t, "TS_01", pairs[0].TsId)
		assert.Equal(t, set.Tomograms[0].EvenFile, pairs[0].Even.FileName)
		assert.Equal(t, set.Tomograms[0].OddFile, pairs[0].Odd.FileName)
		assert.False(t, pairs[0].Even.HasHalfMaps())
		assert.Equal(t, set, in.Reference())
	})

	t.Run("separate", func(t *testing.T) {
		evenSet, oddSet := evenOddSets(t, "TS_01", "TS_02")
		in := InputTomograms{EvenTomograms: evenSet, OddTomograms: oddSet}

		assert.Empty(t, in.Validate())
		assert.Empty(t, in.ValidateSets())
		pairs, err := in.Pairs()
		require.NoError(t, err)
		require.Len(t, pairs, 2)
		assert.Equal(t, "TS_02_even", pairs[1].TsId)
		assert.Equal(t, "TS_02_even", pairs[1].Odd.TsId)
		assert.Equal(t, evenSet, in.Reference())
	})

	t.Run("missing inputs", func(t *testing.T) {
		assert.Len(t, InputTomograms{AreEvenOddLinked: true}.Validate(), 1)
		assert.Len(t, InputTomograms{}.Validate(), 1)

		set := linkedSet(t, "TS_01")
		set.Tomograms[0].OddFile = ""
		msgs := InputTomograms{AreEvenOddLinked: true, Tomograms: set}.Validate()
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0], "TS_01")
	})

	t.Run("mismatched sets", func(t *testing.T) {
		evenSet, oddSet := evenOddSets(t, "TS_01", "TS_02")
		oddSet.Tomograms = oddSet.Tomograms[:1]
		oddSet.SamplingRate = 5.1
		msgs := InputTomograms{EvenTomograms: evenSet, OddTomograms: oddSet}.ValidateSets()
		assert.Len(t, msgs, 2)

		_, err := InputTomograms{EvenTomograms: evenSet, OddTomograms: oddSet}.Pairs()
		assert.Error(t, err)
	})
}

func TestPrepareTrainingDataValidate(t *testing.T) {
	evenSet, oddSet := evenOddSets(t, "TS_01")
	prep := NewPrepareTrainingData(InputTomograms{EvenTomograms: evenSet, OddTomograms: oddSet})
	assert.Empty(t, prep.Validate())

	prep.PatchShape = 102
	prep.Split = 1
	prep.TiltAxis = "W"
	prep.NumSlices = 0
	msgs := prep.Validate()
	assert.Len(t, msgs, 4)

	prep = NewPrepareTrainingData(InputTomograms{EvenTomograms: evenSet, OddTomograms: oddSet})
	prep.PatchShape = 71
	assert.Len(t, prep.Validate(), 1)
}

func TestPrepareTrainingDataRun(t *testing.T) {
	evenSet, oddSet := evenOddSets(t, "TS_01", "TS_02")
	prep := NewPrepareTrainingData(InputTomograms{EvenTomograms: evenSet, OddTomograms: oddSet})
	prep.TiltAxis = "x"

	dir := newRunDir(t)
	runner := &fakeRunner{}
	out, err := prep.Run(context.Background(), dir, runner)
	require.NoError(t, err)

	assert.Equal(t, dir.ExtraPath(TrainDataDir), out.Path)
	assert.FileExists(t, out.TrainDataFile)
	assert.FileExists(t, out.ValidationDataFile)
	assert.Equal(t, filepath.Join(out.Path, MeanStdFile), out.MeanStd)
	assert.Equal(t, 72, out.PatchSize)

	calls := runner.callsOf(cryocare.ExtractTrainDataProgram)
	require.Len(t, calls, 1)
	assert.Equal(t, dir.ExtraPath(), calls[0].Cwd)

	config := readJSON(t, dir.ExtraPath(TrainDataConfigDir, TrainDataConfig))
	assert.Equal(t, []any{evenSet.Tomograms[0].FileName, evenSet.Tomograms[1].FileName}, config["even"])
	assert.Equal(t, []any{oddSet.Tomograms[0].FileName, oddSet.Tomograms[1].FileName}, config["odd"])
	assert.Equal(t, []any{72.0, 72.0, 72.0}, config["patch_shape"])
	assert.Equal(t, 1200.0, config["num_slices"])
	assert.Equal(t, 0.9, config["split"])
	assert.Equal(t, "X", config["tilt_axis"])
	assert.Equal(t, 500.0, config["n_normalization_samples"])
	assert.Equal(t, out.Path, config["path"])

	assert.Len(t, prep.Summary(&out), 4)
}

func TestPrepareTrainingDataMissingOutput(t *testing.T) {
	set := linkedSet(t, "TS_01")
	prep := NewPrepareTrainingData(InputTomograms{AreEvenOddLinked: true, Tomograms: set})

	_, err := prep.Run(context.Background(), newRunDir(t), runnerFunc(func() error { return nil }))
	assert.ErrorContains(t, err, TrainDataFile)
}

type runnerFunc func() error

func (f runnerFunc) Run(ctx context.Context, program string, args []string, cwd string) error {
	return f()
}

func TestTrainValidate(t *testing.T) {
	train := NewTrain()
	msgs := train.Validate()
	require.Len(t, msgs, 1)

	train.TrainData = &types.TrainData{Path: "/data", PatchSize: 72}
	assert.Empty(t, train.Validate())

	train.Prepare = NewPrepareTrainingData(InputTomograms{})
	assert.Len(t, train.Validate(), 1)

	train = NewTrain()
	train.TrainData = &types.TrainData{Path: "/data"}
	train.UNetKernSize = 4
	train.Epochs = 0
	train.GPUList = "a"
	assert.Len(t, train.Validate(), 3)
}

func TestTrainDepth(t *testing.T) {
	train := NewTrain()
	train.TrainData = &types.TrainData{PatchSize: 96}
	assert.Equal(t, 4, train.Depth())

	train.UNetNDepth = 2
	assert.Equal(t, 2, train.Depth())

	train = NewTrain()
	train.TrainData = &types.TrainData{}
	assert.Equal(t, 3, train.Depth())
}

func TestTrainRunWithPreparedData(t *testing.T) {
	evenSet, oddSet := evenOddSets(t, "TS_01")
	prep := NewPrepareTrainingData(InputTomograms{EvenTomograms: evenSet, OddTomograms: oddSet})
	prep.PatchShape = 48

	train := NewTrain()
	train.Prepare = prep
	train.GPUList = "2 3"

	dir := newRunDir(t)
	runner := &fakeRunner{}
	out, err := train.Run(context.Background(), dir, runner)
	require.NoError(t, err)

	require.NotNil(t, out.TrainData)
	assert.Equal(t, dir.ExtraPath(ModelTarball), out.Model.Path)
	assert.Equal(t, dir.ExtraPath(), out.Model.TrainDataDir)
	assert.Equal(t, out.TrainData.MeanStd, out.Model.MeanStd)

	for _, name := range []string{TrainDataFile, ValidationDataFile} {
		target, err := os.Readlink(dir.ExtraPath(name))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(out.TrainData.Path, name), target)
	}

	require.Len(t, runner.calls, 2)
	assert.Equal(t, cryocare.ExtractTrainDataProgram, runner.calls[0].Program)
	assert.Equal(t, cryocare.TrainProgram, runner.calls[1].Program)

	config := readJSON(t, dir.ExtraPath(TrainConfig))
	assert.Equal(t, out.TrainData.Path, config["train_data"])
	assert.Equal(t, 2.0, config["unet_n_depth"])
	assert.Equal(t, 2.0, config["gpu_id"])
	assert.Equal(t, ModelName, config["model_name"])
	assert.Equal(t, dir.ExtraPath(), config["path"])
	assert.Equal(t, 0.0004, config["learning_rate"])
}

func TestTrainRunWithExistingData(t *testing.T) {
	source := newRunDir(t)
	for _, name := range []string{TrainDataFile, ValidationDataFile} {
		require.NoError(t, writeFile(source.ExtraPath(TrainDataDir, name)))
	}

	train := NewTrain()
	train.TrainData = &types.TrainData{Path: source.ExtraPath(TrainDataDir), PatchSize: 72}

	dir := newRunDir(t)
	runner := &fakeRunner{}
	out, err := train.Run(context.Background(), dir, runner)
	require.NoError(t, err)
	assert.Nil(t, out.TrainData)
	assert.FileExists(t, out.Model.Path)
	assert.Len(t, runner.calls, 1)
	assert.Equal(t, 3.0, readJSON(t, dir.ExtraPath(TrainConfig))["unet_n_depth"])
}

func TestLoadModel(t *testing.T) {
	src := t.TempDir()
	tarball := filepath.Join(src, "my_model.tar.gz")
	require.NoError(t, writeFile(tarball))
	for _, name := range []string{TrainDataFile, ValidationDataFile} {
		require.NoError(t, writeFile(filepath.Join(src, "data", name)))
	}

	load := &LoadModel{ModelPath: tarball, TrainDataDir: filepath.Join(src, "data")}
	assert.Empty(t, load.Validate())

	dir := newRunDir(t)
	model, err := load.Run(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, dir.ExtraPath(ModelTarball), model.Path)
	assert.Equal(t, dir.ExtraPath(), model.TrainDataDir)
	assert.FileExists(t, dir.ExtraPath(TrainDataFile))

	model, err = (&LoadModel{ModelPath: src}).Run(context.Background(), newRunDir(t), nil)
	require.NoError(t, err)
	assert.Equal(t, src, model.Path)
	assert.Empty(t, model.TrainDataDir)

	msgs := (&LoadModel{ModelPath: filepath.Join(src, "missing"), TrainDataDir: src}).Validate()
	assert.Len(t, msgs, 3)
}

func TestLoadTrainData(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{TrainDataFile, ValidationDataFile, MeanStdFile} {
		require.NoError(t, writeFile(filepath.Join(src, name)))
	}

	load := &LoadTrainData{TrainData: filepath.Join(src, TrainDataFile), PatchSize: 64}
	assert.Empty(t, load.Validate())

	dir := newRunDir(t)
	data, err := load.Run(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, dir.ExtraPath(TrainDataDir), data.Path)
	assert.Equal(t, dir.ExtraPath(TrainDataDir, MeanStdFile), data.MeanStd)
	assert.Equal(t, 64, data.PatchSize)
	assert.FileExists(t, data.ValidationDataFile)

	assert.Len(t, (&LoadTrainData{TrainData: src, PatchSize: 63}).Validate(), 1)
	assert.Len(t, (&LoadTrainData{TrainData: t.TempDir()}).Validate(), 2)
}

func TestPredictValidate(t *testing.T) {
	evenSet, oddSet := evenOddSets(t, "TS_01")
	in := InputTomograms{EvenTomograms: evenSet, OddTomograms: oddSet}

	assert.Len(t, NewPredict(in, nil).Validate(), 1)

	p := NewPredict(in, &types.Model{Path: "model.tar.gz"})
	assert.Empty(t, p.Validate())

	p.NTiles = "1 1"
	p.GPUList = ""
	assert.Len(t, p.Validate(), 2)
}

func TestPredictValidateOutputNames(t *testing.T) {
	model := &types.Model{Path: "model.tar.gz"}

	set := linkedSet(t, "TS_01", "TS_02")
	set.Tomograms[0].TsId = "../../../escaped"
	msgs := NewPredict(InputTomograms{AreEvenOddLinked: true, Tomograms: set}, model).Validate()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "path separators")

	set = linkedSet(t, "A", "B")
	set.Tomograms[1].TsId = "evenA"
	msgs = NewPredict(InputTomograms{AreEvenOddLinked: true, Tomograms: set}, model).Validate()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "A_denoised")
}

func TestPredictRunRejectsUnsafeTsId(t *testing.T) {
	set := linkedSet(t, "TS_01")
	set.Tomograms[0].TsId = "../escaped"
	p := NewPredict(InputTomograms{AreEvenOddLinked: true, Tomograms: set}, &types.Model{Path: "/models/m"})

	dir := newRunDir(t)
	runner := &fakeRunner{}
	_, err := p.Run(context.Background(), dir, runner)
	assert.ErrorContains(t, err, "path separators")
	assert.Empty(t, runner.callsOf(cryocare.PredictProgram))
	assert.NoDirExists(t, dir.Path("escaped_denoised"))

	_, err = OutputDir(dir, "../escaped")
	assert.Error(t, err)
}

func TestPredictRun(t *testing.T) {
	evenSet, oddSet := evenOddSets(t, "Tomo110", "Tomo111", "Tomo112")
	model := &types.Model{Path: "/models/cryoCARE_model.tar.gz"}

	var registered []types.Tomogram
	p := NewPredict(InputTomograms{EvenTomograms: evenSet, OddTomograms: oddSet}, model)
	p.GPUList = "0,1"
	p.NTiles = "2 2 1"
	p.OnTomogram = func(tomo types.Tomogram) error {
		registered = append(registered, tomo)
		return nil
	}

	dir := newRunDir(t)
	runner := &fakeRunner{}
	out, err := p.Run(context.Background(), dir, runner)
	require.NoError(t, err)

	require.Equal(t, 3, out.Size())
	assert.Len(t, registered, 3)
	assert.Equal(t, "even", out.Name)
	assert.Equal(t, 10.2, out.SamplingRate)
	assert.Equal(t, testDims, out.Dims)

	first := out.Tomograms[0]
	assert.Equal(t, "Tomo110_even", first.TsId)
	assert.Equal(t, dir.ExtraPath("Tomo110__denoised", "Tomo110_.mrc"), first.FileName)
	assert.FileExists(t, first.FileName)

	calls := runner.callsOf(cryocare.PredictProgram)
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Contains(t, []any{0.0, 1.0}, c.Config["gpu_id"])
		assert.Equal(t, []any{2.0, 2.0, 1.0}, c.Config["n_tiles"])
		assert.Equal(t, false, c.Config["overwrite"])
		assert.Equal(t, model.Path, c.Config["path"])
	}

	config := readJSON(t, dir.ExtraPath(PredictConfigDir, "predict_config_Tomo111_even.json"))
	assert.Equal(t, evenSet.Tomograms[1].FileName, config["even"])
	assert.Equal(t, oddSet.Tomograms[1].FileName, config["odd"])
	assert.Equal(t, dir.ExtraPath("Tomo111__denoised"), config["output"])
}

func TestPredictRunStepFailure(t *testing.T) {
	set := linkedSet(t, "TS_01", "TS_02", "TS_03")
	p := NewPredict(InputTomograms{AreEvenOddLinked: true, Tomograms: set}, &types.Model{Path: "/models/m"})

	registered := 0
	p.OnTomogram = func(types.Tomogram) error {
		registered++
		return nil
	}

	dir := newRunDir(t)
	out, err := p.Run(context.Background(), dir, &fakeRunner{failOn: "TS_02"})
	assert.ErrorContains(t, err, "TS_02")
	require.NotNil(t, out)
	assert.Equal(t, 2, out.Size())
	assert.Equal(t, 2, registered)
	assert.Equal(t, "TS_01", out.Tomograms[0].TsId)
	assert.Equal(t, "TS_03", out.Tomograms[1].TsId)
	assert.Equal(t, dir.ExtraPath("TS_01_denoised", "TS_01_.mrc"), out.Tomograms[0].FileName)
}
