package queue

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store mirrors job state for inspection across restarts. The queue treats
// it as write-behind: store failures are logged, never fatal.
type Store interface {
	Upsert(job Job) error
	List() ([]Job, error)
}

// JobRecord is the database shape of a job.
type JobRecord struct {
	ID         int64  `gorm:"primaryKey"`
	Input      string `gorm:"not null;index"`
	Output     string `gorm:"not null"`
	Status     string `gorm:"not null;index"`
	Stage      string
	Progress   float64
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	UpdatedAt  time.Time
}

// TableName keeps the table name stable regardless of struct renames.
func (JobRecord) TableName() string { return "jobs" }

// GormStore persists jobs through a gorm connection.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the schema and returns a store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&JobRecord{}); err != nil {
		return nil, fmt.Errorf("migrating job schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Upsert(job Job) error {
	rec := JobRecord{
		ID:         job.ID,
		Input:      job.Input,
		Output:     job.Output,
		Status:     string(job.Status),
		Stage:      job.Stage,
		Progress:   job.Progress,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

func (s *GormStore) List() ([]Job, error) {
	var records []JobRecord
	if err := s.db.Order("id").Find(&records).Error; err != nil {
		return nil, err
	}

	jobs := make([]Job, len(records))
	for i, rec := range records {
		jobs[i] = Job{
			ID:         rec.ID,
			Input:      rec.Input,
			Output:     rec.Output,
			Status:     Status(rec.Status),
			Stage:      rec.Stage,
			Progress:   rec.Progress,
			Error:      rec.Error,
			CreatedAt:  rec.CreatedAt,
			StartedAt:  rec.StartedAt,
			FinishedAt: rec.FinishedAt,
		}
	}
	return jobs, nil
}
