package core

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/core/types"
)

const (
	DefaultPatchShape            = 72
	DefaultNumSlices             = 1200
	DefaultSplit                 = 0.9
	DefaultTiltAxis              = "Y"
	DefaultNNormalizationSamples = 500
)

var tiltAxes = []string{"X", "Y", "Z"}

// PrepareTrainingData extracts training patches from even/odd tomograms.
type PrepareTrainingData struct {
	Input                 InputTomograms
	PatchShape            int
	NumSlices             int
	Split                 float64
	TiltAxis              string
	NNormalizationSamples int
}

func NewPrepareTrainingData(input InputTomograms) *PrepareTrainingData {
	return &PrepareTrainingData{
		Input:                 input,
		PatchShape:            DefaultPatchShape,
		NumSlices:             DefaultNumSlices,
		Split:                 DefaultSplit,
		TiltAxis:              DefaultTiltAxis,
		NNormalizationSamples: DefaultNNormalizationSamples,
	}
}

type trainDataConfig struct {
	Even                  []string `json:"even"`
	Odd                   []string `json:"odd"`
	PatchShape            []int    `json:"patch_shape"`
	NumSlices             int      `json:"num_slices"`
	Split                 float64  `json:"split"`
	TiltAxis              string   `json:"tilt_axis"`
	NNormalizationSamples int      `json:"n_normalization_samples"`
	Path                  string   `json:"path"`
}

func (p *PrepareTrainingData) Validate() []string {
	msgs := p.Input.Validate()
	if len(msgs) > 0 {
		return msgs
	}
	msgs = append(msgs, p.Input.ValidateSets()...)
	msgs = append(msgs, ValidatePatchSize(p.PatchShape, p.Input.Dims())...)
	if msg := ValidateSplit(p.Split); msg != "" {
		msgs = append(msgs, msg)
	}
	if p.NumSlices <= 0 {
		msgs = append(msgs, fmt.Sprintf("Number of slices must be positive, got %d.", p.NumSlices))
	}
	if p.NNormalizationSamples <= 0 {
		msgs = append(msgs, fmt.Sprintf("Number of normalization samples must be positive, got %d.", p.NNormalizationSamples))
	}
	if !slices.Contains(tiltAxes, strings.ToUpper(p.TiltAxis)) {
		msgs = append(msgs, fmt.Sprintf("Tilt axis must be one of %s, got '%s'.", strings.Join(tiltAxes, ", "), p.TiltAxis))
	}
	return msgs
}

func (p *PrepareTrainingData) Run(ctx context.Context, dir RunDir, runner cryocare.Runner) (types.TrainData, error) {
	pairs, err := p.Input.Pairs()
	if err != nil {
		return types.TrainData{}, fmt.Errorf("error collecting input tomograms: %w", err)
	}

	outDir := dir.ExtraPath(TrainDataDir)
	config := trainDataConfig{
		Even:                  make([]string, 0, len(pairs)),
		Odd:                   make([]string, 0, len(pairs)),
		PatchShape:            []int{p.PatchShape, p.PatchShape, p.PatchShape},
		NumSlices:             p.NumSlices,
		Split:                 p.Split,
		TiltAxis:              strings.ToUpper(p.TiltAxis),
		NNormalizationSamples: p.NNormalizationSamples,
		Path:                  outDir,
	}
	for _, pair := range pairs {
		config.Even = append(config.Even, pair.Even.FileName)
		config.Odd = append(config.Odd, pair.Odd.FileName)
	}

	configPath := dir.ExtraPath(TrainDataConfigDir, TrainDataConfig)
	if err := writeJSONConfig(configPath, config); err != nil {
		return types.TrainData{}, err
	}

	slog.Info("extracting training data", "tomograms", len(pairs), "patch_shape", p.PatchShape, "output", outDir)

	if err := runner.Run(ctx, cryocare.ExtractTrainDataProgram, cryocare.ConfigArgs(configPath), dir.ExtraPath()); err != nil {
		return types.TrainData{}, fmt.Errorf("error extracting training data: %w", err)
	}

	return collectTrainData(outDir, p.PatchShape)
}

// collectTrainData checks that both datasets exist in dir.
func collectTrainData(dir string, patchSize int) (types.TrainData, error) {
	data := types.TrainData{
		Path:               dir,
		TrainDataFile:      filepath.Join(dir, TrainDataFile),
		ValidationDataFile: filepath.Join(dir, ValidationDataFile),
		PatchSize:          patchSize,
	}
	for _, f := range []string{data.TrainDataFile, data.ValidationDataFile} {
		if !fileExists(f) {
			return types.TrainData{}, fmt.Errorf("expected training data file %s was not generated", f)
		}
	}
	if meanStd := filepath.Join(dir, MeanStdFile); fileExists(meanStd) {
		data.MeanStd = meanStd
	}
	return data, nil
}

func (p *PrepareTrainingData) Summary(out *types.TrainData) []string {
	if out == nil {
		return []string{"Training data not ready yet."}
	}
	return []string{
		fmt.Sprintf("Training data extracted from %d tomograms.", p.inputSize()),
		fmt.Sprintf("Patch shape: %d, train/validation split: %g.", p.PatchShape, p.Split),
		fmt.Sprintf("Train data: %s", out.TrainDataFile),
		fmt.Sprintf("Validation data: %s", out.ValidationDataFile),
	}
}

func (p *PrepareTrainingData) inputSize() int {
	if ref := p.Input.Reference(); ref != nil {
		return ref.Size()
	}
	return 0
}
