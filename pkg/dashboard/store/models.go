package store

import (
	"time"
)

// RunRecord is a persisted benchmark run verdict. Decisions and
// validation errors are stored as JSON blobs so the schema stays stable
// as the decision shape evolves.
type RunRecord struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	Implementation       string    `gorm:"index;not null" json:"implementation"`
	CommitSHA            string    `gorm:"index;not null" json:"commit_sha"`
	Timestamp            time.Time `gorm:"index;not null" json:"timestamp"`
	HasRegression        bool      `gorm:"not null" json:"has_regression"`
	ChangeType           string    `json:"change_type"`
	DecisionsJSON        string    `json:"-"`
	ValidationErrorsJSON string    `json:"-"`
	CreatedAt            time.Time `json:"created_at"`
}
