package mrc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"cryocare-backend/internal/core/types"
)

const HeaderSize = 1024

var ErrInvalidHeader = errors.New("invalid mrc header")

type Header struct {
	Dims types.Dimensions
	Mode int32

	// Cell dimensions in Angstrom.
	XLen float32
	YLen float32
	ZLen float32

	HasMapTag bool
}

// VoxelSize returns the sampling rate along x, 0 if the cell size is not set.
func (h Header) VoxelSize() float64 {
	if h.Dims.X <= 0 || h.XLen <= 0 {
		return 0
	}
	return math.Round(float64(h.XLen)/float64(h.Dims.X)*1000) / 1000
}

func ParseHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	le := binary.LittleEndian
	h := Header{
		Dims: types.Dimensions{
			X: int(int32(le.Uint32(buf[0:4]))),
			Y: int(int32(le.Uint32(buf[4:8]))),
			Z: int(int32(le.Uint32(buf[8:12]))),
		},
		Mode:      int32(le.Uint32(buf[12:16])),
		XLen:      math.Float32frombits(le.Uint32(buf[40:44])),
		YLen:      math.Float32frombits(le.Uint32(buf[44:48])),
		ZLen:      math.Float32frombits(le.Uint32(buf[48:52])),
		HasMapTag: string(buf[208:212]) == "MAP ",
	}

	if h.Dims.X <= 0 || h.Dims.Y <= 0 || h.Dims.Z <= 0 {
		return Header{}, fmt.Errorf("%w: non positive dimensions %s", ErrInvalidHeader, h.Dims)
	}

	return h, nil
}

func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	h, err := ParseHeader(f)
	if err != nil {
		return Header{}, fmt.Errorf("error reading header of %s: %w", path, err)
	}
	return h, nil
}
