package core

const (
	TrainDataDir       = "train_data"
	TrainDataFile      = "train_data.npz"
	ValidationDataFile = "val_data.npz"
	MeanStdFile        = "mean_std.npz"
	TrainDataConfigDir = "training_data_config"
	TrainDataConfig    = "train_data_config.json"
	TrainConfig        = "train_config.json"
	PredictConfigDir   = "predict_config"
	ModelName          = "cryoCARE_model"
	ModelTarball       = ModelName + ".tar.gz"

	DenoisedSuffix = "denoised"
	even           = "even"
)

type Protocol string

const (
	PrepareTrainingDataProtocol Protocol = "prepare_training_data"
	TrainProtocol               Protocol = "train"
	LoadModelProtocol           Protocol = "load_model"
	LoadTrainDataProtocol       Protocol = "load_train_data"
	PredictProtocol             Protocol = "predict"
)
