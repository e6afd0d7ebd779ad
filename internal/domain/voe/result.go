package voe

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StageKind distinguishes the static pipeline (analysis + comparison) from
// the optional behavioral probing pipeline when merging into a Unified
// Result.
type StageKind string

const (
	StageKindStatic     StageKind = "static"
	StageKindBehavioral StageKind = "behavioral"
)

// OverallStatus is the outcome banding applied to a Stage Result or the
// session's Unified Result once a fidelity score is known.
type OverallStatus string

const (
	OverallApproved             OverallStatus = "approved"
	OverallApprovedWithWarnings OverallStatus = "approved-with-warnings"
	OverallRejected             OverallStatus = "rejected"
	OverallError                OverallStatus = "error"
)

// StagePayload is the JSON shape stored in ValidationResult.Payload: the
// per-side representations plus anything stage-specific a reader of the
// report wants without re-running the stage.
type StagePayload struct {
	SourceRepresentation *Representation `json:"source_representation,omitempty"`
	TargetRepresentation *Representation `json:"target_representation,omitempty"`
	Extra                map[string]any  `json:"extra,omitempty"`
}

// ValidationResult is one Stage Result, persisted. A session accumulates at
// most one static result and at most one behavioral result before
// synthesis, plus the synthesized Unified Result itself (Kind
// "unified").
type ValidationResult struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`

	Kind string `gorm:"column:kind;not null;index" json:"kind"`

	OverallStatus   string  `gorm:"column:overall_status;not null" json:"overall_status"`
	FidelityScore   float64 `gorm:"column:fidelity_score;not null" json:"fidelity_score"`
	Summary         string  `gorm:"column:summary;type:text" json:"summary,omitempty"`
	ExecutionTime   float64 `gorm:"column:execution_time" json:"execution_time_seconds"`

	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (ValidationResult) TableName() string { return "validation_results" }
