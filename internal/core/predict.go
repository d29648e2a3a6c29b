package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/core/types"
	"cryocare-backend/internal/core/utils"
)

const DefaultNTiles = "1 1 1"

// Predict denoises tomograms with a trained model, one cryoCARE call per tsId.
type Predict struct {
	Input   InputTomograms
	Model   *types.Model
	NTiles  string
	GPUList string

	// Called from a single goroutine once for every denoised tomogram, as
	// soon as it is available.
	OnTomogram func(types.Tomogram) error
}

type predictConfig struct {
	Path      string `json:"path"`
	Even      string `json:"even"`
	Odd       string `json:"odd"`
	NTiles    []int  `json:"n_tiles"`
	Output    string `json:"output"`
	Overwrite bool   `json:"overwrite"`
	GPUId     int    `json:"gpu_id"`
}

func NewPredict(input InputTomograms, model *types.Model) *Predict {
	return &Predict{Input: input, Model: model, NTiles: DefaultNTiles, GPUList: DefaultGPUList}
}

func (p *Predict) Validate() []string {
	msgs := p.Input.Validate()
	if p.Model == nil {
		msgs = append(msgs, "A trained cryoCARE model must be introduced.")
	}
	if len(msgs) > 0 {
		return msgs
	}
	msgs = append(msgs, p.Input.ValidateSets()...)
	if _, err := ParseNTiles(p.NTiles); err != nil {
		msgs = append(msgs, fmt.Sprintf("Invalid number of tiles: %v.", err))
	}
	if _, err := ParseGPUList(p.GPUList); err != nil {
		msgs = append(msgs, fmt.Sprintf("Invalid GPU list: %v.", err))
	}
	if pairs, err := p.Input.Pairs(); err == nil {
		msgs = append(msgs, validateOutputNames(pairs)...)
	}
	return msgs
}

// OutputDir is the folder cryoCARE writes the denoised tomogram of tsId to.
func OutputDir(dir RunDir, tsId string) (string, error) {
	if err := ValidateTsId(tsId); err != nil {
		return "", err
	}
	return dir.ExtraPath(denoisedName(tsId)), nil
}

func (p *Predict) Run(ctx context.Context, dir RunDir, runner cryocare.Runner) (*types.TomogramSet, error) {
	pairs, err := p.Input.Pairs()
	if err != nil {
		return nil, fmt.Errorf("error collecting input tomograms: %w", err)
	}
	tiles, err := ParseNTiles(p.NTiles)
	if err != nil {
		return nil, err
	}
	gpus, err := ParseGPUList(p.GPUList)
	if err != nil {
		return nil, err
	}

	queue := make(chan TomogramPair, len(pairs))
	for _, pair := range pairs {
		queue <- pair
	}
	close(queue)

	completed := make(chan utils.CompletedTask[types.Tomogram], len(pairs))
	utils.RunInPool(func(pair TomogramPair, gpu int) (types.Tomogram, error) {
		return p.predictStep(ctx, dir, runner, pair, tiles, gpu)
	}, queue, completed, gpus)

	out := &types.TomogramSet{}
	out.CopyInfo(p.Input.Reference())

	var errs []error
	for res := range completed {
		if res.Error != nil {
			errs = append(errs, res.Error)
			continue
		}
		out.Tomograms = append(out.Tomograms, res.Result)
		if p.OnTomogram != nil {
			if err := p.OnTomogram(res.Result); err != nil {
				errs = append(errs, fmt.Errorf("error registering denoised tomogram %s: %w", res.Result.TsId, err))
			}
		}
	}

	order := make(map[string]int, len(pairs))
	for i, pair := range pairs {
		order[pair.TsId] = i
	}
	slices.SortFunc(out.Tomograms, func(a, b types.Tomogram) int {
		return order[a.TsId] - order[b.TsId]
	})

	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

func (p *Predict) predictStep(ctx context.Context, dir RunDir, runner cryocare.Runner, pair TomogramPair, tiles []int, gpu int) (types.Tomogram, error) {
	outDir, err := OutputDir(dir, pair.TsId)
	if err != nil {
		return types.Tomogram{}, err
	}
	config := predictConfig{
		Path:      p.Model.Path,
		Even:      pair.Even.FileName,
		Odd:       pair.Odd.FileName,
		NTiles:    tiles,
		Output:    outDir,
		Overwrite: false,
		GPUId:     gpu,
	}
	configPath := dir.ExtraPath(PredictConfigDir, fmt.Sprintf("%s_%s.json", PredictConfigDir, pair.TsId))
	if err = writeJSONConfig(configPath, config); err != nil {
		return types.Tomogram{}, err
	}

	slog.Info("denoising tomogram", "ts_id", pair.TsId, "gpu", gpu)

	if err := runner.Run(ctx, cryocare.PredictProgram, cryocare.ConfigArgs(configPath), dir.ExtraPath()); err != nil {
		return types.Tomogram{}, fmt.Errorf("error denoising tomogram %s: %w", pair.TsId, err)
	}

	produced, err := singleFile(outDir)
	if err != nil {
		return types.Tomogram{}, fmt.Errorf("error collecting denoised tomogram %s: %w", pair.TsId, err)
	}

	final := filepath.Join(outDir, RemoveEven(filepath.Base(produced)))
	if final != produced {
		if err := os.Rename(produced, final); err != nil {
			return types.Tomogram{}, fmt.Errorf("error renaming denoised tomogram %s: %w", produced, err)
		}
	}

	tomo := pair.Even.WithLocation(final)
	tomo.TsId = pair.TsId
	return tomo, nil
}

// validateOutputNames reports tsIds that cannot name an output folder and
// tsIds sharing one once "even" is removed.
func validateOutputNames(pairs []TomogramPair) []string {
	var msgs []string
	owners := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		if err := ValidateTsId(pair.TsId); err != nil {
			msgs = append(msgs, fmt.Sprintf("Invalid tomogram id: %v.", err))
			continue
		}
		name := denoisedName(pair.TsId)
		if other, ok := owners[name]; ok {
			msgs = append(msgs, fmt.Sprintf("Tomograms %s and %s would both be denoised into %s.", other, pair.TsId, name))
			continue
		}
		owners[name] = pair.TsId
	}
	return msgs
}

func singleFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("error reading output folder: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) != 1 {
		return "", fmt.Errorf("expected a single file in %s, found %d", dir, len(files))
	}
	return files[0], nil
}

func (p *Predict) Summary(out *types.TomogramSet) []string {
	if out == nil {
		return []string{"Tomograms not denoised yet."}
	}
	lines := []string{fmt.Sprintf("%d of %d tomograms denoised with %s.", out.Size(), p.inputSize(), p.Model)}
	for _, t := range out.Tomograms {
		lines = append(lines, fmt.Sprintf("%s: %s", t.TsId, t.FileName))
	}
	return lines
}

func (p *Predict) inputSize() int {
	if ref := p.Input.Reference(); ref != nil {
		return ref.Size()
	}
	return 0
}
