package core

import (
	"context"
	"fmt"
	"path/filepath"

	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/core/types"
)

// LoadModel registers a model trained elsewhere.
type LoadModel struct {
	ModelPath    string
	TrainDataDir string
	MeanStd      string
}

func (l *LoadModel) Validate() []string {
	var msgs []string
	if l.ModelPath == "" {
		msgs = append(msgs, "A trained cryoCARE model must be introduced.")
	} else if !fileExists(l.ModelPath) && !dirExists(l.ModelPath) {
		msgs = append(msgs, fmt.Sprintf("Model %s does not exist.", l.ModelPath))
	}
	if l.TrainDataDir != "" {
		msgs = append(msgs, validateTrainDataDir(l.TrainDataDir)...)
	}
	if l.MeanStd != "" && !fileExists(l.MeanStd) {
		msgs = append(msgs, fmt.Sprintf("Mean/std file %s does not exist.", l.MeanStd))
	}
	return msgs
}

func validateTrainDataDir(dir string) []string {
	if !dirExists(dir) {
		return []string{fmt.Sprintf("Training data directory %s does not exist.", dir)}
	}
	var msgs []string
	for _, name := range []string{TrainDataFile, ValidationDataFile} {
		if !fileExists(filepath.Join(dir, name)) {
			msgs = append(msgs, fmt.Sprintf("Training data directory %s does not contain %s.", dir, name))
		}
	}
	return msgs
}

// Run never calls cryoCARE, the runner is accepted so every unit shares the
// same signature.
func (l *LoadModel) Run(ctx context.Context, dir RunDir, _ cryocare.Runner) (types.Model, error) {
	if err := ctx.Err(); err != nil {
		return types.Model{}, err
	}

	model := types.Model{MeanStd: l.MeanStd}

	if dirExists(l.ModelPath) {
		abs, err := filepath.Abs(l.ModelPath)
		if err != nil {
			return types.Model{}, fmt.Errorf("error resolving model path: %w", err)
		}
		model.Path = abs
	} else {
		tarball := dir.ExtraPath(ModelTarball)
		if err := CreateLink(l.ModelPath, tarball); err != nil {
			return types.Model{}, err
		}
		model.Path = tarball
	}

	if l.TrainDataDir != "" {
		if err := makeDatasetLinks(l.TrainDataDir, dir.ExtraPath()); err != nil {
			return types.Model{}, err
		}
		model.TrainDataDir = dir.ExtraPath()
	}
	return model, nil
}

func (l *LoadModel) Summary(out *types.Model) []string {
	if out == nil {
		return []string{"Model not loaded yet."}
	}
	lines := []string{fmt.Sprintf("Model loaded from %s", l.ModelPath)}
	if out.TrainDataDir != "" {
		lines = append(lines, fmt.Sprintf("Training data linked from %s", l.TrainDataDir))
	}
	return lines
}

// LoadTrainData registers training data extracted elsewhere. TrainData is
// either the directory holding the datasets or the train_data.npz file itself.
type LoadTrainData struct {
	TrainData string
	MeanStd   string
	PatchSize int
}

func (l *LoadTrainData) sourceDir() string {
	if fileExists(l.TrainData) {
		return filepath.Dir(l.TrainData)
	}
	return l.TrainData
}

func (l *LoadTrainData) Validate() []string {
	var msgs []string
	switch {
	case l.TrainData == "":
		msgs = append(msgs, "Training data must be introduced.")
	case fileExists(l.TrainData):
		if val := filepath.Join(filepath.Dir(l.TrainData), ValidationDataFile); !fileExists(val) {
			msgs = append(msgs, fmt.Sprintf("Validation data %s does not exist.", val))
		}
	default:
		msgs = append(msgs, validateTrainDataDir(l.TrainData)...)
	}
	if l.MeanStd != "" && !fileExists(l.MeanStd) {
		msgs = append(msgs, fmt.Sprintf("Mean/std file %s does not exist.", l.MeanStd))
	}
	if l.PatchSize < 0 || l.PatchSize%2 != 0 {
		msgs = append(msgs, fmt.Sprintf("Patch size must be an even number, got %d.", l.PatchSize))
	}
	return msgs
}

func (l *LoadTrainData) Run(ctx context.Context, dir RunDir, _ cryocare.Runner) (types.TrainData, error) {
	if err := ctx.Err(); err != nil {
		return types.TrainData{}, err
	}

	src := l.sourceDir()
	dst := dir.ExtraPath(TrainDataDir)

	trainFile := filepath.Join(src, TrainDataFile)
	if fileExists(l.TrainData) {
		trainFile = l.TrainData
	}
	if err := CreateLink(trainFile, filepath.Join(dst, TrainDataFile)); err != nil {
		return types.TrainData{}, err
	}
	if err := CreateLink(filepath.Join(src, ValidationDataFile), filepath.Join(dst, ValidationDataFile)); err != nil {
		return types.TrainData{}, err
	}

	meanStd := l.MeanStd
	if meanStd == "" && fileExists(filepath.Join(src, MeanStdFile)) {
		meanStd = filepath.Join(src, MeanStdFile)
	}
	if meanStd != "" {
		if err := CreateLink(meanStd, filepath.Join(dst, MeanStdFile)); err != nil {
			return types.TrainData{}, err
		}
	}

	return collectTrainData(dst, l.PatchSize)
}

func (l *LoadTrainData) Summary(out *types.TrainData) []string {
	if out == nil {
		return []string{"Training data not loaded yet."}
	}
	return []string{
		fmt.Sprintf("Training data loaded from %s", l.TrainData),
		fmt.Sprintf("Train data: %s", out.TrainDataFile),
		fmt.Sprintf("Validation data: %s", out.ValidationDataFile),
	}
}
