package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

// APIKeyRepo persists service-to-service credentials (§2.3's X-API-Key
// scheme). Keys are looked up by ID on every request, so GetByID is the hot
// path; Create and Revoke are administrative.
type APIKeyRepo interface {
	Create(ctx context.Context, tx *gorm.DB, key *voe.APIKey) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*voe.APIKey, error)
	Revoke(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type apiKeyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAPIKeyRepo(db *gorm.DB, baseLog *logger.Logger) APIKeyRepo {
	return &apiKeyRepo{db: db, log: baseLog.With("repo", "APIKeyRepo")}
}

func (r *apiKeyRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *apiKeyRepo) Create(ctx context.Context, tx *gorm.DB, key *voe.APIKey) error {
	return r.tx(tx).WithContext(ctx).Create(key).Error
}

func (r *apiKeyRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*voe.APIKey, error) {
	var key voe.APIKey
	err := r.tx(tx).WithContext(ctx).Where("id = ?", id).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, voe.ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *apiKeyRepo) Revoke(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	now := time.Now()
	return r.tx(tx).WithContext(ctx).Model(&voe.APIKey{}).
		Where("id = ?", id).
		Update("revoked_at", now).Error
}
