package models

import (
	"time"

	"gorm.io/gorm"
)

// MigrationRun is the header row for one batch import. Its counters are the
// caller-facing summary; per-mutation outcomes live in
// MigrationMutationResult rows.
type MigrationRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	BusinessId    string     `gorm:"index;not null" json:"business_id"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	InitiatedBy   string     `gorm:"size:255" json:"initiated_by"`
	CorrelationId string     `gorm:"size:64;index" json:"correlation_id"`
	Attempted     int        `json:"attempted"`
	Created       int        `json:"created"`
	Duplicates    int        `json:"duplicates"`
	Skipped       int        `json:"skipped"`
	Failed        int        `json:"failed"`
	RolledBack    int        `json:"rolled_back"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type MigrationMutationResult struct {
	ID              uint      `gorm:"primary_key" json:"id"`
	BusinessId      string    `gorm:"index;not null" json:"business_id"`
	MigrationRunId  uint      `gorm:"index;not null" json:"migration_run_id"`
	MutationNr      string    `gorm:"index;size:50;not null" json:"mutation_nr"`
	Status          string    `gorm:"size:20;not null" json:"status"`
	PaymentRecordId int       `gorm:"default:null" json:"payment_record_id"`
	Error           string    `gorm:"type:text" json:"error"`
	Warnings        string    `gorm:"type:text" json:"warnings"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (run *MigrationRun) Finish(db *gorm.DB, status string) error {
	now := time.Now()
	run.Status = status
	run.FinishedAt = &now
	return db.Model(run).Updates(map[string]interface{}{
		"status":      status,
		"attempted":   run.Attempted,
		"created":     run.Created,
		"duplicates":  run.Duplicates,
		"skipped":     run.Skipped,
		"failed":      run.Failed,
		"rolled_back": run.RolledBack,
		"finished_at": &now,
	}).Error
}
