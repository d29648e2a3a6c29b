package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Dimensions struct {
	X int
	Y int
	Z int
}

func (d Dimensions) Min() int {
	return min(d.X, d.Y, d.Z)
}

func (d Dimensions) String() string {
	return fmt.Sprintf("(%d, %d, %d)", d.X, d.Y, d.Z)
}

type Tomogram struct {
	TsId         string
	FileName     string
	SamplingRate float64
	Dims         Dimensions

	// Half maps reconstructed from the odd and even frames, only set when the
	// even/odd tomograms are associated to this tomogram.
	OddFile  string
	EvenFile string
}

func (t Tomogram) HasHalfMaps() bool {
	return t.OddFile != "" && t.EvenFile != ""
}

// HalfMaps returns the associated half maps in the "odd,even" form.
func (t Tomogram) HalfMaps() string {
	if !t.HasHalfMaps() {
		return ""
	}
	return t.OddFile + "," + t.EvenFile
}

func (t *Tomogram) SetHalfMaps(halfMaps string) error {
	odd, even, ok := strings.Cut(halfMaps, ",")
	if !ok || strings.TrimSpace(odd) == "" || strings.TrimSpace(even) == "" {
		return fmt.Errorf("invalid half maps '%s', expected 'odd,even'", halfMaps)
	}
	t.OddFile = strings.TrimSpace(odd)
	t.EvenFile = strings.TrimSpace(even)
	return nil
}

// WithLocation returns a copy of the tomogram info pointing to another file.
func (t Tomogram) WithLocation(fileName string) Tomogram {
	out := t
	out.FileName = fileName
	out.OddFile = ""
	out.EvenFile = ""
	return out
}

type TomogramSet struct {
	Id           uuid.UUID
	Name         string
	SamplingRate float64
	Dims         Dimensions
	Tomograms    []Tomogram
}

func (s *TomogramSet) Size() int {
	return len(s.Tomograms)
}

// HasHalfMaps reports whether every tomogram in the set carries its half maps.
func (s *TomogramSet) HasHalfMaps() bool {
	if len(s.Tomograms) == 0 {
		return false
	}
	for _, t := range s.Tomograms {
		if !t.HasHalfMaps() {
			return false
		}
	}
	return true
}

// CopyInfo copies the set level metadata, but not the tomograms.
func (s *TomogramSet) CopyInfo(other *TomogramSet) {
	s.Name = other.Name
	s.SamplingRate = other.SamplingRate
	s.Dims = other.Dims
}
