package storage

import (
	"context"

	"gorm.io/gorm"

	"coastwatch-server-go/internal/platform/errors"
)

// ReportRepository persists pollution reports.
type ReportRepository struct {
	db *gorm.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create stores a report as pending and credits the submitter one point,
// atomically.
func (r *ReportRepository) Create(ctx context.Context, rec *Report) error {
	const op = "storage.CreateReport"

	if rec.Status == "" {
		rec.Status = "pending"
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return errors.Wrap(errors.KindStorage, op, "insert report", err)
		}
		if rec.UserID != 0 {
			if err := tx.Model(&User{}).Where("id = ?", rec.UserID).
				UpdateColumn("points", gorm.Expr("points + ?", 1)).Error; err != nil {
				return errors.Wrap(errors.KindStorage, op, "credit user points", err)
			}
		}
		return nil
	})
}

// ListAll returns every report, newest first.
func (r *ReportRepository) ListAll(ctx context.Context) ([]Report, error) {
	var reports []Report
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&reports).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.ListReports", "query reports", err)
	}
	return reports, nil
}

// ListByUser returns the reports submitted by one user, newest first.
func (r *ReportRepository) ListByUser(ctx context.Context, userID uint) ([]Report, error) {
	var reports []Report
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&reports).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.ListUserReports", "query reports", err)
	}
	return reports, nil
}
