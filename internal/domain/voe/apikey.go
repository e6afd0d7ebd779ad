package voe

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a service-to-service credential: the caller presents the raw
// key as `<id>.<secret>` in the X-API-Key header, the auth layer looks the
// row up by ID and compares the secret against SecretHash with bcrypt.
// Unlike a ValidationSession this is never soft-deleted; it is revoked by
// setting RevokedAt, which is permanent.
type APIKey struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID   string     `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Label      string     `gorm:"column:label" json:"label,omitempty"`
	SecretHash string     `gorm:"column:secret_hash;not null" json:"-"`
	CreatedAt  time.Time  `gorm:"not null;default:now()" json:"created_at"`
	RevokedAt  *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
}

func (APIKey) TableName() string { return "api_keys" }

// Active reports whether the key can still authenticate a caller.
func (k APIKey) Active() bool { return k.RevokedAt == nil }
