package core

import (
	"testing"

	"cryocare-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInputTomoSetsSize(t *testing.T) {
	evenSet := &types.TomogramSet{Dims: types.Dimensions{X: 100, Y: 100, Z: 50}, Tomograms: make([]types.Tomogram, 2)}
	oddSet := &types.TomogramSet{Dims: types.Dimensions{X: 100, Y: 100, Z: 50}, Tomograms: make([]types.Tomogram, 2)}
	assert.Empty(t, CheckInputTomoSetsSize(evenSet, oddSet))

	oddSet.Tomograms = oddSet.Tomograms[:1]
	assert.Equal(t,
		"Size of even and odd set of tomograms must be the same:\n"+
			"Even --> (x, y, z, n) = (100, 100, 50, 2)\n"+
			"Odd  --> (x, y, z, n) = (100, 100, 50, 1)",
		CheckInputTomoSetsSize(evenSet, oddSet))
}

func TestCheckSamplingRate(t *testing.T) {
	evenSet := &types.TomogramSet{SamplingRate: 13.48}
	oddSet := &types.TomogramSet{SamplingRate: 13.48}
	assert.Empty(t, CheckSamplingRate(evenSet, oddSet))

	oddSet.SamplingRate = 6.74
	assert.Equal(t,
		"The sampling rate of the introduced sets of tomograms is different:\nEven SR 13.48 != Odd SR 6.74",
		CheckSamplingRate(evenSet, oddSet))
}

func TestValidatePatchSize(t *testing.T) {
	dims := types.Dimensions{X: 300, Y: 300, Z: 80}
	assert.Empty(t, ValidatePatchSize(72, dims))
	assert.Empty(t, ValidatePatchSize(80, dims))
	assert.Len(t, ValidatePatchSize(82, dims), 1)
	assert.Len(t, ValidatePatchSize(31, dims), 2)
	assert.Empty(t, ValidatePatchSize(96, types.Dimensions{}))
}

func TestValidateSplit(t *testing.T) {
	assert.Empty(t, ValidateSplit(0.9))
	assert.NotEmpty(t, ValidateSplit(0))
	assert.NotEmpty(t, ValidateSplit(1))
}

func TestParseNTiles(t *testing.T) {
	tiles, err := ParseNTiles("1 1 1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, tiles)

	tiles, err = ParseNTiles(" 4,2, 1 ")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 1}, tiles)

	for _, bad := range []string{"", "1 1", "1 1 1 1", "1 0 1", "a b c"} {
		_, err := ParseNTiles(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseGPUList(t *testing.T) {
	gpus, err := ParseGPUList("0")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, gpus)

	gpus, err = ParseGPUList("0 1,3")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, gpus)

	for _, bad := range []string{"", " ", "-1", "x"} {
		_, err := ParseGPUList(bad)
		assert.Error(t, err, bad)
	}
}

func TestUNetDepth(t *testing.T) {
	cases := map[int]int{
		32:  2,
		48:  2,
		60:  2,
		64:  3,
		72:  3,
		84:  3,
		90:  4,
		96:  4,
		160: 4,
	}
	for patch, depth := range cases {
		assert.Equal(t, depth, UNetDepth(patch), "patch size %d", patch)
	}
}

func TestRemoveEven(t *testing.T) {
	assert.Equal(t, "Tomo110__bin6", RemoveEven("Tomo110_even_bin6"))
	assert.Equal(t, "TS_01_", RemoveEven("TS_01_EVEN"))
	assert.Equal(t, "TS_01", RemoveEven("TS_01"))
}

func TestValidateTsId(t *testing.T) {
	for _, tsId := range []string{"TS_01", "Tomo110_even", "a..b", "TS 01"} {
		assert.NoError(t, ValidateTsId(tsId), tsId)
	}
	for _, tsId := range []string{"", " ", ".", "..", "../../escaped", "a/b", `a\b`, "even", "EVENeven"} {
		assert.Error(t, ValidateTsId(tsId), tsId)
	}
}

func TestCreateLink(t *testing.T) {
	dir := t.TempDir()
	src := dir + "/a.mrc"
	require.NoError(t, writeFile(src))
	require.NoError(t, writeFile(dir+"/b.mrc"))

	require.NoError(t, CreateLink(src, dir+"/links/b.mrc"))
	require.NoError(t, CreateLink(dir+"/b.mrc", dir+"/links/b.mrc"))
	assert.FileExists(t, dir+"/links/b.mrc")
}
