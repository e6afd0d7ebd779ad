package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

// ResultRepo persists Stage Results and their discrepancies. A session
// accumulates at most one static result, one behavioral result, and one
// unified result (voe.ValidationResult.Kind distinguishes them); none are
// ever updated in place once written.
type ResultRepo interface {
	CreateResult(ctx context.Context, tx *gorm.DB, result *voe.ValidationResult) error
	CreateDiscrepancies(ctx context.Context, tx *gorm.DB, discrepancies []*voe.ValidationDiscrepancy) error
	CreateBehavioralResults(ctx context.Context, tx *gorm.DB, results []*voe.BehavioralTestResult) error
	ListResults(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]voe.ValidationResult, error)
	ListDiscrepancies(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]voe.ValidationDiscrepancy, error)
}

type resultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResultRepo(db *gorm.DB, baseLog *logger.Logger) ResultRepo {
	return &resultRepo{db: db, log: baseLog.With("repo", "ResultRepo")}
}

func (r *resultRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *resultRepo) CreateResult(ctx context.Context, tx *gorm.DB, result *voe.ValidationResult) error {
	return r.tx(tx).WithContext(ctx).Create(result).Error
}

func (r *resultRepo) CreateDiscrepancies(ctx context.Context, tx *gorm.DB, discrepancies []*voe.ValidationDiscrepancy) error {
	if len(discrepancies) == 0 {
		return nil
	}
	return r.tx(tx).WithContext(ctx).Create(&discrepancies).Error
}

func (r *resultRepo) CreateBehavioralResults(ctx context.Context, tx *gorm.DB, results []*voe.BehavioralTestResult) error {
	if len(results) == 0 {
		return nil
	}
	return r.tx(tx).WithContext(ctx).Create(&results).Error
}

func (r *resultRepo) ListResults(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]voe.ValidationResult, error) {
	var results []voe.ValidationResult
	if err := r.tx(tx).WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *resultRepo) ListDiscrepancies(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]voe.ValidationDiscrepancy, error) {
	var discrepancies []voe.ValidationDiscrepancy
	if err := r.tx(tx).WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC").Find(&discrepancies).Error; err != nil {
		return nil, err
	}
	return discrepancies, nil
}
