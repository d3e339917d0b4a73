package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/dermscan/internal/retry"
)

// PredictionRepository stores prediction records in Postgres through gorm.
type PredictionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
	now    func() time.Time
}

// NewPredictionRepository creates a new repository instance.
func NewPredictionRepository(db *gorm.DB, logger *zap.Logger) *PredictionRepository {
	return &PredictionRepository{
		db:     db,
		logger: logger.Named("prediction_repository"),
		policy: retry.DefaultPolicy,
		now:    time.Now,
	}
}

// AutoMigrate ensures the schema is available.
func (r *PredictionRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&PredictionRecord{})
}

// Insert persists a new record and returns its generated ID.
func (r *PredictionRepository) Insert(ctx context.Context, ownerUserID, imageReference, primaryLabel string) (string, error) {
	rec := &PredictionRecord{
		ID:             uuid.NewString(),
		OwnerUserID:    ownerUserID,
		ImageReference: imageReference,
		PrimaryLabel:   primaryLabel,
		CreatedAt:      r.now().UTC(),
	}
	err := retry.Do(ctx, r.logger, r.policy, "repository.insert", rec.ID, func() error {
		return r.db.WithContext(ctx).Create(rec).Error
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// ListByOwner returns the owner's records, newest first.
func (r *PredictionRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]PredictionRecord, error) {
	var records []PredictionRecord
	err := retry.Do(ctx, r.logger, r.policy, "repository.list_by_owner", "", func() error {
		records = records[:0]
		return r.db.WithContext(ctx).
			Where("owner_user_id = ?", ownerUserID).
			Order("created_at DESC").
			Order("id DESC").
			Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FindByID loads a record on behalf of requestingUserID.
func (r *PredictionRepository) FindByID(ctx context.Context, recordID, requestingUserID string) (*PredictionRecord, error) {
	var rec PredictionRecord
	err := retry.Do(ctx, r.logger, r.policy, "repository.find_by_id", recordID, func() error {
		if err := r.db.WithContext(ctx).First(&rec, "id = ?", recordID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return checkOwner(&rec, requestingUserID)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteIfOwned removes the record only when requestingUserID owns it. The
// row is locked for the duration of the check so no other transaction can
// observe or change it between the ownership check and the delete.
func (r *PredictionRepository) DeleteIfOwned(ctx context.Context, recordID, requestingUserID string) error {
	return retry.Do(ctx, r.logger, r.policy, "repository.delete_if_owned", recordID, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var rec PredictionRecord
			err := forUpdate(tx).First(&rec, "id = ?", recordID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			if err := checkOwner(&rec, requestingUserID); err != nil {
				return err
			}
			res := tx.Where("id = ? AND owner_user_id = ?", recordID, requestingUserID).Delete(&PredictionRecord{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrNotFound
			}
			return nil
		})
	})
}

// SummarizeByOwner counts the owner's records per primary label.
func (r *PredictionRepository) SummarizeByOwner(ctx context.Context, ownerUserID string) ([]LabelCount, error) {
	var counts []LabelCount
	err := retry.Do(ctx, r.logger, r.policy, "repository.summarize_by_owner", "", func() error {
		counts = counts[:0]
		return r.db.WithContext(ctx).
			Model(&PredictionRecord{}).
			Select("primary_label AS label, COUNT(*) AS count").
			Where("owner_user_id = ?", ownerUserID).
			Group("primary_label").
			Order("count DESC").
			Order("label ASC").
			Scan(&counts).Error
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// forUpdate row-locks the next read. SQLite has no row locks; its writers
// are already serialized per database.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
