package voe

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// SessionLog is one append-only entry in a session's structured log stream.
// Never edited once written; the Session State Machine appends these
// alongside every status transition and every stage's progress notes.
type SessionLog struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`

	Timestamp time.Time `gorm:"column:ts;not null;default:now();index" json:"ts"`
	Level     string    `gorm:"column:level;not null;index" json:"level"`
	Message   string    `gorm:"column:message;type:text;not null" json:"message"`

	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
}

func (SessionLog) TableName() string { return "session_logs" }

// AuditLog is a distinct append-only trail for security-relevant events
// (auth success/failure, session cancel, session delete), kept separate
// from the session's own structured log so a tenant's audit history
// survives even if its sessions are later purged.
type AuditLog struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID  string    `gorm:"column:tenant_id;index" json:"tenant_id,omitempty"`
	ActorID   string    `gorm:"column:actor_id;index" json:"actor_id,omitempty"`
	Action    string    `gorm:"column:action;not null;index" json:"action"`
	Outcome   string    `gorm:"column:outcome;not null;index" json:"outcome"`
	SessionID *uuid.UUID `gorm:"type:uuid;index" json:"session_id,omitempty"`

	Detail datatypes.JSON `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
