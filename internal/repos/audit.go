package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

// AuditLogRepo persists §2.3's security audit trail, kept distinct from
// SessionRepo.AppendLog so a tenant's auth/cancel/delete history survives a
// session purge.
type AuditLogRepo interface {
	Append(ctx context.Context, tx *gorm.DB, entry *voe.AuditLog) error
	ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string) ([]voe.AuditLog, error)
}

type auditLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	return &auditLogRepo{db: db, log: baseLog.With("repo", "AuditLogRepo")}
}

func (r *auditLogRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *auditLogRepo) Append(ctx context.Context, tx *gorm.DB, entry *voe.AuditLog) error {
	return r.tx(tx).WithContext(ctx).Create(entry).Error
}

func (r *auditLogRepo) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID string) ([]voe.AuditLog, error) {
	var entries []voe.AuditLog
	err := r.tx(tx).WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
