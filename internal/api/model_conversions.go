package api

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"cryocare-backend/internal/database"
	"cryocare-backend/pkg/api"

	"github.com/google/uuid"
)

func convertList[T any, U any](items []T, convert func(T) U) []U {
	out := make([]U, 0, len(items))
	for _, item := range items {
		out = append(out, convert(item))
	}
	return out
}

func nullUUID(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	return &id.UUID
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func convertTomogram(t database.Tomogram) api.Tomogram {
	return api.Tomogram{
		TsId:         t.TsId,
		FileName:     t.FileName,
		SamplingRate: t.SamplingRate,
		Dims:         api.Dimensions{X: t.DimX, Y: t.DimY, Z: t.DimZ},
		OddFile:      t.OddFile,
		EvenFile:     t.EvenFile,
	}
}

func convertTomogramSet(s database.TomogramSet) api.TomogramSet {
	set := api.TomogramSet{
		Id:           s.Id,
		Name:         s.Name,
		SamplingRate: s.SamplingRate,
		Dims:         api.Dimensions{X: s.DimX, Y: s.DimY, Z: s.DimZ},
		RunId:        nullUUID(s.RunId),
		CreationTime: s.CreationTime,
	}
	if len(s.Tomograms) > 0 {
		set.Tomograms = convertList(s.Tomograms, convertTomogram)
	}
	return set
}

func convertTrainData(d database.TrainData) api.TrainData {
	return api.TrainData{
		Id:                 d.Id,
		RunId:              nullUUID(d.RunId),
		Path:               d.Path,
		TrainDataFile:      d.TrainDataFile,
		ValidationDataFile: d.ValidationDataFile,
		MeanStd:            d.MeanStd,
		PatchSize:          d.PatchSize,
		CreationTime:       d.CreationTime,
	}
}

func convertModel(m database.Model) api.Model {
	return api.Model{
		Id:           m.Id,
		RunId:        nullUUID(m.RunId),
		Path:         m.Path,
		TrainDataDir: m.TrainDataDir,
		MeanStd:      m.MeanStd,
		ObjectKey:    m.ObjectKey,
		CreationTime: m.CreationTime,
	}
}

func convertRun(r database.Run) api.Run {
	run := api.Run{
		Id:             r.Id,
		Protocol:       r.Protocol,
		Status:         r.Status,
		RunDir:         r.RunDir,
		Summary:        []string{},
		Errors:         make([]string, 0, len(r.Errors)),
		Outputs:        make([]api.RunOutput, 0, len(r.Outputs)),
		CreationTime:   r.CreationTime,
		StartTime:      nullTime(r.StartTime),
		CompletionTime: nullTime(r.CompletionTime),
	}

	if len(r.Params) > 0 {
		if err := json.Unmarshal(r.Params, &run.Params); err != nil {
			slog.Error("error decoding run params", "run_id", r.Id, "error", err)
		}
	}

	if r.Summary != "" {
		run.Summary = strings.Split(r.Summary, "\n")
	}

	for _, e := range r.Errors {
		run.Errors = append(run.Errors, e.Error)
	}

	for _, o := range r.Outputs {
		run.Outputs = append(run.Outputs, api.RunOutput{Name: o.Name, ObjectType: o.ObjectType, ObjectId: o.ObjectId})
	}

	return run
}
