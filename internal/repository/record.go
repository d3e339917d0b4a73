package repository

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("prediction record not found")
	// ErrForbidden is returned when the record exists but belongs to
	// another user.
	ErrForbidden = errors.New("prediction record belongs to another user")
)

// PredictionRecord is one persisted classification. Records are never
// updated after creation.
type PredictionRecord struct {
	ID             string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	OwnerUserID    string    `gorm:"column:owner_user_id;size:64;not null;index:idx_predictions_owner_created,priority:1" json:"owner_user_id"`
	ImageReference string    `gorm:"column:image_reference;size:255;not null" json:"image_reference"`
	PrimaryLabel   string    `gorm:"column:primary_label;size:128;not null" json:"primary_label"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index:idx_predictions_owner_created,priority:2,sort:desc" json:"created_at"`
}

// TableName overrides the default table name.
func (PredictionRecord) TableName() string {
	return "predictions"
}

// LabelCount is a per-label aggregate for one owner.
type LabelCount struct {
	Label string `gorm:"column:label" json:"label"`
	Count int64  `gorm:"column:count" json:"count"`
}

func checkOwner(rec *PredictionRecord, requestingUserID string) error {
	if rec.OwnerUserID != requestingUserID {
		return ErrForbidden
	}
	return nil
}
