package voe

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DiscrepancySeverity ranks a discrepancy's impact on migration fidelity.
type DiscrepancySeverity string

const (
	SeverityCritical DiscrepancySeverity = "critical"
	SeverityWarning  DiscrepancySeverity = "warning"
	SeverityInfo     DiscrepancySeverity = "info"
)

// DiscrepancyKind names the shape of mismatch, e.g. "missing",
// "additional", "signature-mismatch", "semantic-drift", "behavior-mismatch".
type DiscrepancyKind string

const (
	DiscrepancyKindMissing            DiscrepancyKind = "missing"
	DiscrepancyKindAdditional         DiscrepancyKind = "additional"
	DiscrepancyKindSignatureMismatch  DiscrepancyKind = "signature-mismatch"
	DiscrepancyKindSemanticDrift      DiscrepancyKind = "semantic-drift"
	DiscrepancyKindBehaviorMismatch   DiscrepancyKind = "behavior-mismatch"
)

// ValidationDiscrepancy is one detected difference between source and
// target. ResultID points at the stage result that found it and is nil for
// behavioral findings. The column carries no foreign-key constraint, so
// deleting a result neither nulls nor removes its discrepancies.
type ValidationDiscrepancy struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID  `gorm:"type:uuid;not null;index" json:"session_id"`
	ResultID  *uuid.UUID `gorm:"type:uuid;index" json:"result_id,omitempty"`

	Kind        string  `gorm:"column:kind;not null;index:idx_discrepancies_severity_kind,priority:2" json:"kind"`
	Severity    string  `gorm:"column:severity;not null;index:idx_discrepancies_severity_kind,priority:1" json:"severity"`
	Description string  `gorm:"column:description;type:text;not null" json:"description"`

	SourceElement string `gorm:"column:source_element" json:"source_element,omitempty"`
	TargetElement string `gorm:"column:target_element" json:"target_element,omitempty"`

	Confidence     float64 `gorm:"column:confidence;not null" json:"confidence"`
	Recommendation string  `gorm:"column:recommendation;type:text" json:"recommendation,omitempty"`
	Component      string  `gorm:"column:component;index" json:"component,omitempty"`

	Context datatypes.JSON `gorm:"column:context;type:jsonb" json:"validation_context,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (ValidationDiscrepancy) TableName() string { return "validation_discrepancies" }
