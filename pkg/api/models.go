package api

import (
	"time"

	"github.com/google/uuid"
)

type Dimensions struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

type ImportTomogram struct {
	TsId     string `yaml:"ts_id"`
	FileName string `yaml:"file_name"`
	OddFile  string `yaml:"odd_file"`
	EvenFile string `yaml:"even_file"`
}

// ImportTomogramsRequest registers existing tomograms. Files is a shorthand
// for tomograms without half maps, their tsId is the file name without
// extension. Sampling rate and dimensions are read from the MRC headers when
// not given.
type ImportTomogramsRequest struct {
	Name         string           `yaml:"name"`
	SamplingRate float64          `yaml:"sampling_rate"`
	Dims         *Dimensions      `yaml:"dims"`
	Files        []string         `yaml:"files"`
	Tomograms    []ImportTomogram `yaml:"tomograms"`
}

// InputTomograms references either one set with associated half maps or a
// pair of even and odd sets.
type InputTomograms struct {
	AreEvenOddLinked bool       `yaml:"are_even_odd_linked"`
	TomogramSetId    *uuid.UUID `yaml:"tomogram_set_id"`
	EvenSetId        *uuid.UUID `yaml:"even_set_id"`
	OddSetId         *uuid.UUID `yaml:"odd_set_id"`
}

// Nil parameters take their defaults in the requests below. Explicit values,
// zero included, are validated as given.

type PrepareTrainingDataRequest struct {
	Input                 InputTomograms `yaml:"input"`
	PatchShape            *int           `yaml:"patch_shape"`
	NumSlices             *int           `yaml:"num_slices"`
	Split                 *float64       `yaml:"split"`
	TiltAxis              string         `yaml:"tilt_axis"`
	NNormalizationSamples *int           `yaml:"n_normalization_samples"`
}

type LoadTrainDataRequest struct {
	TrainData string `yaml:"train_data"`
	MeanStd   string `yaml:"mean_std"`
	PatchSize int    `yaml:"patch_size"`
}

// TrainRequest trains from registered train data, or from the data prepared
// by Prepare in the same run.
type TrainRequest struct {
	TrainDataId *uuid.UUID                  `yaml:"train_data_id"`
	Prepare     *PrepareTrainingDataRequest `yaml:"prepare"`

	Epochs        *int     `yaml:"epochs"`
	StepsPerEpoch *int     `yaml:"steps_per_epoch"`
	BatchSize     *int     `yaml:"batch_size"`
	UNetKernSize  *int     `yaml:"unet_kern_size"`
	UNetNFirst    *int     `yaml:"unet_n_first"`
	LearningRate  *float64 `yaml:"learning_rate"`
	GPUList       string   `yaml:"gpu_list"`

	// 0 derives the depth from the patch size.
	UNetNDepth int `yaml:"unet_n_depth"`
}

type LoadModelRequest struct {
	ModelPath    string `yaml:"model_path"`
	TrainDataDir string `yaml:"train_data_dir"`
	MeanStd      string `yaml:"mean_std"`
}

type PredictRequest struct {
	Input   InputTomograms `yaml:"input"`
	ModelId uuid.UUID      `yaml:"model_id"`
	NTiles  string         `yaml:"n_tiles"`
	GPUList string         `yaml:"gpu_list"`
}

type SubmitRunResponse struct {
	RunId uuid.UUID
}

type Tomogram struct {
	TsId         string
	FileName     string
	SamplingRate float64
	Dims         Dimensions
	OddFile      string `json:"OddFile,omitempty"`
	EvenFile     string `json:"EvenFile,omitempty"`
}

type TomogramSet struct {
	Id           uuid.UUID
	Name         string
	SamplingRate float64
	Dims         Dimensions
	RunId        *uuid.UUID `json:"RunId,omitempty"`
	CreationTime time.Time

	Tomograms []Tomogram `json:"Tomograms,omitempty"`
}

type TrainData struct {
	Id                 uuid.UUID
	RunId              *uuid.UUID `json:"RunId,omitempty"`
	Path               string
	TrainDataFile      string
	ValidationDataFile string
	MeanStd            string
	PatchSize          int
	CreationTime       time.Time
}

type Model struct {
	Id           uuid.UUID
	RunId        *uuid.UUID `json:"RunId,omitempty"`
	Path         string
	TrainDataDir string
	MeanStd      string
	ObjectKey    string
	CreationTime time.Time
}

type RunOutput struct {
	Name       string
	ObjectType string
	ObjectId   uuid.UUID
}

type Run struct {
	Id             uuid.UUID
	Protocol       string
	Status         string
	Params         map[string]any `json:"Params,omitempty"`
	RunDir         string
	Summary        []string
	Errors         []string
	Outputs        []RunOutput
	CreationTime   time.Time
	StartTime      *time.Time `json:"StartTime,omitempty"`
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`
}

type ListRunsParams struct {
	Protocol string `schema:"protocol"`
	Status   string `schema:"status"`
}

type Citation struct {
	Key   string
	Title string
	DOI   string
}

type PluginInfo struct {
	Version         string
	CryoCAREVersion string
	Versions        []string
	EnvName         string
	Dependencies    []string
	Citations       []Citation
	InstallScript   string
}
