package database

import (
	"time"

	"cryocare-backend/internal/core/types"

	"github.com/google/uuid"
)

func (s TomogramSet) ToTypes() *types.TomogramSet {
	out := &types.TomogramSet{
		Id:           s.Id,
		Name:         s.Name,
		SamplingRate: s.SamplingRate,
		Dims:         types.Dimensions{X: s.DimX, Y: s.DimY, Z: s.DimZ},
		Tomograms:    make([]types.Tomogram, 0, len(s.Tomograms)),
	}
	for _, t := range s.Tomograms {
		out.Tomograms = append(out.Tomograms, t.ToTypes())
	}
	return out
}

func (t Tomogram) ToTypes() types.Tomogram {
	return types.Tomogram{
		TsId:         t.TsId,
		FileName:     t.FileName,
		SamplingRate: t.SamplingRate,
		Dims:         types.Dimensions{X: t.DimX, Y: t.DimY, Z: t.DimZ},
		OddFile:      t.OddFile,
		EvenFile:     t.EvenFile,
	}
}

// NewTomogramSet builds the row for a set, assigning a new id. runId is the
// producing run, or uuid.Nil for imported sets.
func NewTomogramSet(set *types.TomogramSet, runId uuid.UUID) TomogramSet {
	row := TomogramSet{
		Id:           uuid.New(),
		Name:         set.Name,
		SamplingRate: set.SamplingRate,
		DimX:         set.Dims.X,
		DimY:         set.Dims.Y,
		DimZ:         set.Dims.Z,
		RunId:        uuid.NullUUID{UUID: runId, Valid: runId != uuid.Nil},
		CreationTime: time.Now().UTC(),
	}
	for i, t := range set.Tomograms {
		tomo := NewTomogram(t)
		tomo.SetId = row.Id
		tomo.Position = i
		row.Tomograms = append(row.Tomograms, tomo)
	}
	return row
}

func NewTomogram(t types.Tomogram) Tomogram {
	return Tomogram{
		TsId:         t.TsId,
		FileName:     t.FileName,
		SamplingRate: t.SamplingRate,
		DimX:         t.Dims.X,
		DimY:         t.Dims.Y,
		DimZ:         t.Dims.Z,
		OddFile:      t.OddFile,
		EvenFile:     t.EvenFile,
	}
}

func (d TrainData) ToTypes() *types.TrainData {
	return &types.TrainData{
		Id:                 d.Id,
		Path:               d.Path,
		TrainDataFile:      d.TrainDataFile,
		ValidationDataFile: d.ValidationDataFile,
		MeanStd:            d.MeanStd,
		PatchSize:          d.PatchSize,
	}
}

func NewTrainData(d types.TrainData, runId uuid.UUID) TrainData {
	return TrainData{
		Id:                 uuid.New(),
		RunId:              uuid.NullUUID{UUID: runId, Valid: runId != uuid.Nil},
		Path:               d.Path,
		TrainDataFile:      d.TrainDataFile,
		ValidationDataFile: d.ValidationDataFile,
		MeanStd:            d.MeanStd,
		PatchSize:          d.PatchSize,
		CreationTime:       time.Now().UTC(),
	}
}

func (m Model) ToTypes() *types.Model {
	return &types.Model{
		Id:           m.Id,
		Path:         m.Path,
		TrainDataDir: m.TrainDataDir,
		MeanStd:      m.MeanStd,
	}
}

func NewModel(m types.Model, runId uuid.UUID) Model {
	return Model{
		Id:           uuid.New(),
		RunId:        uuid.NullUUID{UUID: runId, Valid: runId != uuid.Nil},
		Path:         m.Path,
		TrainDataDir: m.TrainDataDir,
		MeanStd:      m.MeanStd,
		CreationTime: time.Now().UTC(),
	}
}
