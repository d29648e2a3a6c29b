package core

import (
	"fmt"
	"strconv"
	"strings"

	"cryocare-backend/internal/core/types"
)

const MinPatchSize = 32

// CheckInputTomoSetsSize returns an empty message if both sets have the same
// dimensions and number of tomograms.
func CheckInputTomoSetsSize(evenSet, oddSet *types.TomogramSet) string {
	e, o := evenSet.Dims, oddSet.Dims
	ne, no := evenSet.Size(), oddSet.Size()
	if e == o && ne == no {
		return ""
	}
	return fmt.Sprintf("Size of even and odd set of tomograms must be the same:\n"+
		"Even --> (x, y, z, n) = (%d, %d, %d, %d)\n"+
		"Odd  --> (x, y, z, n) = (%d, %d, %d, %d)",
		e.X, e.Y, e.Z, ne, o.X, o.Y, o.Z, no)
}

func CheckSamplingRate(evenSet, oddSet *types.TomogramSet) string {
	if evenSet.SamplingRate == oddSet.SamplingRate {
		return ""
	}
	return fmt.Sprintf("The sampling rate of the introduced sets of tomograms is different:\n"+
		"Even SR %.2f != Odd SR %.2f", evenSet.SamplingRate, oddSet.SamplingRate)
}

func ValidatePatchSize(patchSize int, dims types.Dimensions) []string {
	var msgs []string
	if patchSize%2 != 0 {
		msgs = append(msgs, fmt.Sprintf("Patch shape must be an even number, got %d.", patchSize))
	}
	if patchSize < MinPatchSize {
		msgs = append(msgs, fmt.Sprintf("Patch shape must be at least %d, got %d.", MinPatchSize, patchSize))
	}
	if minDim := dims.Min(); minDim > 0 && patchSize > minDim {
		msgs = append(msgs, fmt.Sprintf("Patch shape %d is larger than the smallest tomogram dimension %d %s.", patchSize, minDim, dims))
	}
	return msgs
}

func ValidateSplit(split float64) string {
	if split <= 0 || split >= 1 {
		return fmt.Sprintf("Train/validation split must be in the range (0, 1), got %g.", split)
	}
	return ""
}

func splitIntList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// ParseNTiles accepts "1 1 1" or "1,1,1".
func ParseNTiles(s string) ([]int, error) {
	fields := splitIntList(s)
	if len(fields) != 3 {
		return nil, fmt.Errorf("number of tiles must contain one value per axis, got '%s'", s)
	}
	tiles := make([]int, 0, 3)
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("number of tiles must be positive integers, got '%s'", s)
		}
		tiles = append(tiles, n)
	}
	return tiles, nil
}

// ParseGPUList accepts "0 1 2" or "0,1,2".
func ParseGPUList(s string) ([]int, error) {
	fields := splitIntList(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("gpu list is empty")
	}
	gpus := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid gpu id '%s' in gpu list '%s'", f, s)
		}
		gpus = append(gpus, n)
	}
	return gpus, nil
}
