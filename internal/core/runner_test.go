package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/core/types"

	"github.com/stretchr/testify/require"
)

type runnerCall struct {
	Program string
	Config  map[string]any
	Cwd     string
}

// fakeRunner writes the files the cryoCARE programs would produce.
type fakeRunner struct {
	mu    sync.Mutex
	calls []runnerCall

	// Predictions of even files containing this substring fail.
	failOn string
}

func (r *fakeRunner) Run(ctx context.Context, program string, args []string, cwd string) error {
	if len(args) != 2 || args[0] != "--conf" {
		return fmt.Errorf("unexpected args %v", args)
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	r.mu.Lock()
	r.calls = append(r.calls, runnerCall{Program: program, Config: config, Cwd: cwd})
	r.mu.Unlock()

	switch program {
	case cryocare.ExtractTrainDataProgram:
		dir := config["path"].(string)
		for _, name := range []string{TrainDataFile, ValidationDataFile, MeanStdFile} {
			if err := writeFile(filepath.Join(dir, name)); err != nil {
				return err
			}
		}
	case cryocare.TrainProgram:
		return writeFile(filepath.Join(config["path"].(string), config["model_name"].(string)+".tar.gz"))
	case cryocare.PredictProgram:
		even := config["even"].(string)
		if r.failOn != "" && strings.Contains(even, r.failOn) {
			return fmt.Errorf("%s exited with status 1", program)
		}
		return writeFile(filepath.Join(config["output"].(string), filepath.Base(even)))
	default:
		return fmt.Errorf("unknown program %s", program)
	}
	return nil
}

func (r *fakeRunner) callsOf(program string) []runnerCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []runnerCall
	for _, c := range r.calls {
		if c.Program == program {
			out = append(out, c)
		}
	}
	return out
}

func writeFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("data"), 0644)
}

func newRunDir(t *testing.T) RunDir {
	dir, err := NewRunDir(filepath.Join(t.TempDir(), "run"))
	require.NoError(t, err)
	require.NoError(t, dir.Create())
	return dir
}

var testDims = types.Dimensions{X: 200, Y: 200, Z: 100}

// evenOddSets creates even and odd sets on disk for the given tsIds.
func evenOddSets(t *testing.T, tsIds ...string) (*types.TomogramSet, *types.TomogramSet) {
	dir := t.TempDir()
	evenSet := &types.TomogramSet{Name: "even", SamplingRate: 10.2, Dims: testDims}
	oddSet := &types.TomogramSet{Name: "odd", SamplingRate: 10.2, Dims: testDims}
	for _, tsId := range tsIds {
		evenFile := filepath.Join(dir, tsId+"_even.mrc")
		oddFile := filepath.Join(dir, tsId+"_odd.mrc")
		require.NoError(t, writeFile(evenFile))
		require.NoError(t, writeFile(oddFile))
		evenSet.Tomograms = append(evenSet.Tomograms, types.Tomogram{TsId: tsId + "_even", FileName: evenFile, SamplingRate: 10.2, Dims: testDims})
		oddSet.Tomograms = append(oddSet.Tomograms, types.Tomogram{TsId: tsId + "_odd", FileName: oddFile, SamplingRate: 10.2, Dims: testDims})
	}
	return evenSet, oddSet
}

// linkedSet creates a set whose tomograms carry their half maps.
func linkedSet(t *testing.T, tsIds ...string) *types.TomogramSet {
	evenSet, oddSet := evenOddSets(t, tsIds...)
	set := &types.TomogramSet{Name: "full", SamplingRate: 10.2, Dims: testDims}
	for i, tsId := range tsIds {
		full := filepath.Join(filepath.Dir(evenSet.Tomograms[i].FileName), tsId+".mrc")
		require.NoError(t, writeFile(full))
		set.Tomograms = append(set.Tomograms, types.Tomogram{
			TsId:         tsId,
			FileName:     full,
			SamplingRate: 10.2,
			Dims:         testDims,
			EvenFile:     evenSet.Tomograms[i].FileName,
			OddFile:      oddSet.Tomograms[i].FileName,
		})
	}
	return set
}

func readJSON(t *testing.T, path string) map[string]any {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}
