package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Schema of the first release. Kept here so later changes to schema.go do not
// alter what this migration creates.

type Run struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Protocol       string    `gorm:"size:40;not null;index"`
	Status         string    `gorm:"size:20;not null;index"`
	Params         datatypes.JSON
	RunDir         string
	Summary        string
	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime

	Errors  []RunError  `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
	Outputs []RunOutput `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
}

type RunError struct {
	RunId     uuid.UUID `gorm:"type:uuid;primaryKey"`
	ErrorId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Error     string
	Timestamp time.Time
}

type RunOutput struct {
	RunId      uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name       string    `gorm:"primaryKey"`
	ObjectType string    `gorm:"size:20;not null"`
	ObjectId   uuid.UUID `gorm:"type:uuid;not null"`
}

type TomogramSet struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"not null"`
	SamplingRate float64
	DimX         int
	DimY         int
	DimZ         int
	RunId        uuid.NullUUID `gorm:"type:uuid"`
	CreationTime time.Time

	Tomograms []Tomogram `gorm:"foreignKey:SetId;constraint:OnDelete:CASCADE"`
}

type Tomogram struct {
	SetId        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TsId         string    `gorm:"primaryKey"`
	Position     int
	FileName     string `gorm:"not null"`
	SamplingRate float64
	DimX         int
	DimY         int
	DimZ         int
	OddFile      string
	EvenFile     string
}

type TrainData struct {
	Id                 uuid.UUID     `gorm:"type:uuid;primaryKey"`
	RunId              uuid.NullUUID `gorm:"type:uuid"`
	Path               string        `gorm:"not null"`
	TrainDataFile      string
	ValidationDataFile string
	MeanStd            string
	PatchSize          int
	CreationTime       time.Time
}

type Model struct {
	Id           uuid.UUID     `gorm:"type:uuid;primaryKey"`
	RunId        uuid.NullUUID `gorm:"type:uuid"`
	Path         string        `gorm:"not null"`
	TrainDataDir string
	MeanStd      string
	CreationTime time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Run{}, &RunError{}, &RunOutput{}, &TomogramSet{}, &Tomogram{}, &TrainData{}, &Model{}); err != nil {
		return fmt.Errorf("error creating initial schema: %w", err)
	}
	return nil
}
