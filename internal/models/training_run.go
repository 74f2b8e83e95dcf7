package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Training run statuses
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// TrainingRun records one execution of the training pipeline, successful or not.
type TrainingRun struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Version            string         `gorm:"size:64;index" json:"version"`
	Status             string         `gorm:"size:16;not null" json:"status"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
	TrainRows          int            `json:"train_rows"`
	ValidationRows     int            `json:"validation_rows"`
	TestRows           int            `json:"test_rows"`
	ClassifierFeatures FeatureList    `json:"classifier_features"`
	RegressorFeatures  FeatureList    `json:"regressor_features"`
	Metrics            datatypes.JSON `json:"metrics"`
	Error              string         `gorm:"type:text" json:"error,omitempty"`
}

func (TrainingRun) TableName() string {
	return "training_runs"
}

// FeatureList is an ordered list of feature names, stored as text[] on
// postgres and as the same array literal in a text column elsewhere.
type FeatureList []string

// Value implements the driver.Valuer interface
func (f FeatureList) Value() (driver.Value, error) {
	return pq.StringArray(f).Value()
}

// Scan implements the sql.Scanner interface
func (f *FeatureList) Scan(src interface{}) error {
	return (*pq.StringArray)(f).Scan(src)
}

// GormDBDataType picks the column type per dialect.
func (FeatureList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// All lists every model owned by the pipeline, in migration order.
func All() []interface{} {
	return []interface{}{
		&Game{},
		&TeamGameStat{},
		&MLPrediction{},
		&EloHistory{},
		&TrainingRun{},
	}
}
