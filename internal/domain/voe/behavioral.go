package voe

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BehavioralExecutionStatus is the outcome of running one scenario against
// both the source and target URL.
type BehavioralExecutionStatus string

const (
	BehavioralExecutionMatched    BehavioralExecutionStatus = "matched"
	BehavioralExecutionMismatched BehavioralExecutionStatus = "mismatched"
	BehavioralExecutionError      BehavioralExecutionStatus = "error"
)

// BehavioralTestResult is the Behavioral Stage Runner's per-scenario record:
// the trace captured from each side plus the structured comparison between
// them. SourceTrace/TargetTrace/Comparison are opaque to the domain layer —
// they are whatever shape the Behavioral Prober adapter returns.
type BehavioralTestResult struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID     uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	ScenarioName  string    `gorm:"column:scenario_name;not null;index" json:"scenario_name"`

	ExecutionStatus string `gorm:"column:execution_status;not null;index" json:"execution_status"`

	SourceTrace datatypes.JSON `gorm:"column:source_trace;type:jsonb" json:"source_trace,omitempty"`
	TargetTrace datatypes.JSON `gorm:"column:target_trace;type:jsonb" json:"target_trace,omitempty"`
	Comparison  datatypes.JSON `gorm:"column:comparison;type:jsonb" json:"comparison,omitempty"`

	ExecutionDuration float64 `gorm:"column:execution_duration" json:"execution_duration_seconds"`
	Error             string  `gorm:"column:error;type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (BehavioralTestResult) TableName() string { return "behavioral_test_results" }
