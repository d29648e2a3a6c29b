package api

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cryocare-backend/internal/core"
	"cryocare-backend/internal/core/mrc"
	"cryocare-backend/internal/core/types"
	"cryocare-backend/pkg/api"
)

const defaultSetName = "tomograms"

func tsIdFromFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("unable to access file '%s': %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("'%s' is a directory, expected a tomogram file", path)
	}
	return nil
}

func importTomogram(entry api.ImportTomogram, req api.ImportTomogramsRequest) (types.Tomogram, error) {
	if entry.FileName == "" {
		return types.Tomogram{}, fmt.Errorf("tomogram '%s' has no file", entry.TsId)
	}

	path, err := filepath.Abs(entry.FileName)
	if err != nil {
		return types.Tomogram{}, fmt.Errorf("invalid path '%s': %w", entry.FileName, err)
	}
	if err := checkFile(path); err != nil {
		return types.Tomogram{}, err
	}

	tomo := types.Tomogram{TsId: entry.TsId, FileName: path, SamplingRate: req.SamplingRate}
	if tomo.TsId == "" {
		tomo.TsId = tsIdFromFile(path)
	}
	if err := core.ValidateTsId(tomo.TsId); err != nil {
		return types.Tomogram{}, err
	}
	if req.Dims != nil {
		tomo.Dims = types.Dimensions{X: req.Dims.X, Y: req.Dims.Y, Z: req.Dims.Z}
	}

	if tomo.SamplingRate <= 0 || req.Dims == nil {
		header, err := mrc.ReadHeader(path)
		if err != nil {
			return types.Tomogram{}, fmt.Errorf("sampling rate and dimensions of '%s' not given and unable to read them from the file: %w", path, err)
		}
		if tomo.SamplingRate <= 0 {
			tomo.SamplingRate = header.VoxelSize()
		}
		if req.Dims == nil {
			tomo.Dims = header.Dims
		}
	}

	if tomo.SamplingRate <= 0 {
		return types.Tomogram{}, fmt.Errorf("tomogram '%s' has no sampling rate", tomo.TsId)
	}

	if (entry.OddFile == "") != (entry.EvenFile == "") {
		return types.Tomogram{}, fmt.Errorf("tomogram '%s' must have both odd and even half maps or none", tomo.TsId)
	}
	if entry.OddFile != "" {
		odd, err := filepath.Abs(entry.OddFile)
		if err != nil {
			return types.Tomogram{}, fmt.Errorf("invalid path '%s': %w", entry.OddFile, err)
		}
		even, err := filepath.Abs(entry.EvenFile)
		if err != nil {
			return types.Tomogram{}, fmt.Errorf("invalid path '%s': %w", entry.EvenFile, err)
		}
		if err := errors.Join(checkFile(odd), checkFile(even)); err != nil {
			return types.Tomogram{}, fmt.Errorf("half maps of tomogram '%s': %w", tomo.TsId, err)
		}
		tomo.OddFile, tomo.EvenFile = odd, even
	}

	return tomo, nil
}

// buildTomogramSet resolves an import request into a tomogram set, reporting
// every invalid entry.
func buildTomogramSet(req api.ImportTomogramsRequest) (*types.TomogramSet, error) {
	entries := make([]api.ImportTomogram, 0, len(req.Files)+len(req.Tomograms))
	for _, file := range req.Files {
		entries = append(entries, api.ImportTomogram{FileName: file})
	}
	entries = append(entries, req.Tomograms...)

	if len(entries) == 0 {
		return nil, fmt.Errorf("no tomograms provided")
	}

	if req.SamplingRate < 0 {
		return nil, fmt.Errorf("sampling rate must be positive, got %g", req.SamplingRate)
	}
	if req.Dims != nil && (req.Dims.X <= 0 || req.Dims.Y <= 0 || req.Dims.Z <= 0) {
		return nil, fmt.Errorf("dimensions must be positive, got (%d, %d, %d)", req.Dims.X, req.Dims.Y, req.Dims.Z)
	}

	set := &types.TomogramSet{Name: req.Name}
	if set.Name == "" {
		set.Name = defaultSetName
	}

	var errs []error
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		tomo, err := importTomogram(entry, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[tomo.TsId] {
			errs = append(errs, fmt.Errorf("duplicate tomogram id '%s'", tomo.TsId))
			continue
		}
		seen[tomo.TsId] = true
		set.Tomograms = append(set.Tomograms, tomo)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	set.SamplingRate = set.Tomograms[0].SamplingRate
	set.Dims = set.Tomograms[0].Dims

	return set, nil
}
