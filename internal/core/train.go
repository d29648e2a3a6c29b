package core

import (
	"context"
	"fmt"
	"log/slog"

	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/core/types"
)

const (
	DefaultEpochs        = 100
	DefaultStepsPerEpoch = 200
	DefaultBatchSize     = 16
	DefaultUNetKernSize  = 3
	DefaultUNetNFirst    = 16
	DefaultLearningRate  = 0.0004
	DefaultGPUList       = "0"

	// Used when the patch size of loaded train data is unknown.
	defaultUNetDepth = 3
)

// Train trains a cryoCARE network. It either trains from existing train data
// or runs an embedded PrepareTrainingData first.
type Train struct {
	TrainData *types.TrainData
	Prepare   *PrepareTrainingData

	Epochs        int
	StepsPerEpoch int
	BatchSize     int
	UNetKernSize  int
	UNetNDepth    int
	UNetNFirst    int
	LearningRate  float64
	GPUList       string
}

type TrainOutput struct {
	Model types.Model
	// Only set when the training data was generated by this run.
	TrainData *types.TrainData
}

type trainConfig struct {
	TrainData     string  `json:"train_data"`
	Epochs        int     `json:"epochs"`
	StepsPerEpoch int     `json:"steps_per_epoch"`
	BatchSize     int     `json:"batch_size"`
	UNetKernSize  int     `json:"unet_kern_size"`
	UNetNDepth    int     `json:"unet_n_depth"`
	UNetNFirst    int     `json:"unet_n_first"`
	LearningRate  float64 `json:"learning_rate"`
	ModelName     string  `json:"model_name"`
	Path          string  `json:"path"`
	GPUId         int     `json:"gpu_id"`
}

func NewTrain() *Train {
	return &Train{
		Epochs:        DefaultEpochs,
		StepsPerEpoch: DefaultStepsPerEpoch,
		BatchSize:     DefaultBatchSize,
		UNetKernSize:  DefaultUNetKernSize,
		UNetNFirst:    DefaultUNetNFirst,
		LearningRate:  DefaultLearningRate,
		GPUList:       DefaultGPUList,
	}
}

func (t *Train) Validate() []string {
	var msgs []string
	switch {
	case t.TrainData == nil && t.Prepare == nil:
		msgs = append(msgs, "Training data must be introduced, or generated by preparing it from tomograms.")
	case t.TrainData != nil && t.Prepare != nil:
		msgs = append(msgs, "Training data can either be introduced or generated, not both.")
	case t.Prepare != nil:
		msgs = append(msgs, t.Prepare.Validate()...)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"Number of epochs", t.Epochs},
		{"Steps per epoch", t.StepsPerEpoch},
		{"Batch size", t.BatchSize},
		{"Number of initial feature channels", t.UNetNFirst},
	}
	for _, p := range positive {
		if p.value <= 0 {
			msgs = append(msgs, fmt.Sprintf("%s must be positive, got %d.", p.name, p.value))
		}
	}
	if t.UNetKernSize <= 0 || t.UNetKernSize%2 == 0 {
		msgs = append(msgs, fmt.Sprintf("Convolution kernel size must be a positive odd number, got %d.", t.UNetKernSize))
	}
	if t.UNetNDepth < 0 {
		msgs = append(msgs, fmt.Sprintf("UNet depth must not be negative, got %d.", t.UNetNDepth))
	}
	if t.LearningRate <= 0 {
		msgs = append(msgs, fmt.Sprintf("Learning rate must be positive, got %g.", t.LearningRate))
	}
	if _, err := ParseGPUList(t.GPUList); err != nil {
		msgs = append(msgs, fmt.Sprintf("Invalid GPU list: %v.", err))
	}
	return msgs
}

func (t *Train) patchSize() int {
	if t.Prepare != nil {
		return t.Prepare.PatchShape
	}
	if t.TrainData != nil {
		return t.TrainData.PatchSize
	}
	return 0
}

// Depth is the UNet depth used for training: the configured one, or the one
// derived from the patch size.
func (t *Train) Depth() int {
	if t.UNetNDepth > 0 {
		return t.UNetNDepth
	}
	if p := t.patchSize(); p > 0 {
		return UNetDepth(p)
	}
	return defaultUNetDepth
}

func (t *Train) Run(ctx context.Context, dir RunDir, runner cryocare.Runner) (TrainOutput, error) {
	var out TrainOutput

	trainData := t.TrainData
	if t.Prepare != nil {
		generated, err := t.Prepare.Run(ctx, dir, runner)
		if err != nil {
			return out, err
		}
		trainData = &generated
		out.TrainData = &generated
	}
	if trainData == nil {
		return out, fmt.Errorf("no training data to train from")
	}

	if err := makeDatasetLinks(trainData.Path, dir.ExtraPath()); err != nil {
		return out, err
	}

	gpus, err := ParseGPUList(t.GPUList)
	if err != nil {
		return out, err
	}

	config := trainConfig{
		TrainData:     trainData.Path,
		Epochs:        t.Epochs,
		StepsPerEpoch: t.StepsPerEpoch,
		BatchSize:     t.BatchSize,
		UNetKernSize:  t.UNetKernSize,
		UNetNDepth:    t.Depth(),
		UNetNFirst:    t.UNetNFirst,
		LearningRate:  t.LearningRate,
		ModelName:     ModelName,
		Path:          dir.ExtraPath(),
		GPUId:         gpus[0],
	}
	configPath := dir.ExtraPath(TrainConfig)
	if err := writeJSONConfig(configPath, config); err != nil {
		return out, err
	}

	slog.Info("training cryoCARE model", "train_data", trainData.Path, "epochs", t.Epochs, "unet_depth", config.UNetNDepth, "gpu", config.GPUId)

	if err := runner.Run(ctx, cryocare.TrainProgram, cryocare.ConfigArgs(configPath), dir.ExtraPath()); err != nil {
		return out, fmt.Errorf("error training model: %w", err)
	}

	tarball := dir.ExtraPath(ModelTarball)
	if !fileExists(tarball) {
		return out, fmt.Errorf("expected model %s was not generated", tarball)
	}

	out.Model = types.Model{
		Path:         tarball,
		TrainDataDir: dir.ExtraPath(),
		MeanStd:      trainData.MeanStd,
	}
	return out, nil
}

func (t *Train) Summary(out *TrainOutput) []string {
	if out == nil {
		return []string{"Model not trained yet."}
	}
	lines := []string{}
	if out.TrainData != nil {
		lines = append(lines, fmt.Sprintf("Training data generated: %s", out.TrainData.Path))
	}
	return append(lines,
		fmt.Sprintf("Trained for %d epochs of %d steps, UNet depth %d.", t.Epochs, t.StepsPerEpoch, t.Depth()),
		fmt.Sprintf("Model: %s", out.Model.Path),
	)
}
