package types

import (
	"fmt"

	"github.com/google/uuid"
)

// TrainData references the patches extracted from even/odd tomograms.
type TrainData struct {
	Id                 uuid.UUID
	Path               string
	TrainDataFile      string
	ValidationDataFile string
	MeanStd            string
	PatchSize          int
}

func (d TrainData) String() string {
	return fmt.Sprintf("CryoCARE Train Data (path=%s)", d.Path)
}

// Model references a trained cryoCARE network, either as a tarball or as a
// model directory, and the training data directory it was trained from.
type Model struct {
	Id           uuid.UUID
	Path         string
	TrainDataDir string
	MeanStd      string
}

func (m Model) String() string {
	return fmt.Sprintf("CryoCARE Model (path=%s)", m.Path)
}
