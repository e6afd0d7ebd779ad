package voe

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionStatus is a position in the session state machine:
//
//	pending -> queued -> processing -> {completed | failed | cancelled | timed_out}
//
// Transitions into a terminal status are monotonic: a terminal session never
// reverts to a non-terminal one.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusQueued     SessionStatus = "queued"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusCancelled  SessionStatus = "cancelled"
	SessionStatusTimedOut   SessionStatus = "timed_out"
)

// SessionPriority is the Scheduler's queue band (§4.8).
type SessionPriority string

const (
	PriorityInteractive SessionPriority = "interactive"
	PriorityBatch       SessionPriority = "batch"
)

func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled, SessionStatusTimedOut:
		return true
	default:
		return false
	}
}

// ValidationScope selects which representation categories the Semantic
// Comparator compares, and whether the Behavioral Stage Runner engages at
// all.
type ValidationScope string

const (
	ScopeUI            ValidationScope = "ui"
	ScopeBackendLogic  ValidationScope = "backend-logic"
	ScopeDataStructure ValidationScope = "data-structure"
	ScopeAPI           ValidationScope = "api"
	ScopeBusinessRules ValidationScope = "business-rules"
	ScopeBehavioral    ValidationScope = "behavioral"
	ScopeFull          ValidationScope = "full"
)

// RequiresBehavioral reports whether a scope requires at least one
// behavioral scenario and both source/target URLs to be present.
func (s ValidationScope) RequiresBehavioral() bool {
	return s == ScopeBehavioral || s == ScopeFull
}

// TechnologyContext names one side (source or target) of a migration: the
// technology identifier from the catalog (see Technologies()), an optional
// version string, and free-form framework metadata (build tool, ORM, etc).
type TechnologyContext struct {
	Name      string            `json:"name"`
	Version   string            `json:"version,omitempty"`
	Framework map[string]string `json:"framework,omitempty"`
}

// InputFile is one source or screenshot artifact within an InputBundle. A
// code file carries Language; a screenshot carries neither Language nor a
// meaningful Content (ContentRef points at blob storage instead).
type InputFile struct {
	Path        string `json:"path"`
	ContentRef  string `json:"content_ref"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
	Language    string `json:"language,omitempty"`
}

// InputBundle is the artifact set for one side of a validation. Exactly the
// fields relevant to the session's scope are populated; the rest are left
// empty rather than defaulted.
type InputBundle struct {
	Files       []InputFile `json:"files,omitempty"`
	Screenshots []InputFile `json:"screenshots,omitempty"`
	URL         string      `json:"url,omitempty"`
}

const (
	DefaultMaxBundleBytes   = 100 * 1024 * 1024
	DefaultMaxFileBytes     = 10 * 1024 * 1024
	DefaultMaxBundleEntries = 50
)

// TotalBytes sums file and screenshot sizes, for bundle-ceiling enforcement.
func (b InputBundle) TotalBytes() int64 {
	var total int64
	for _, f := range b.Files {
		total += f.SizeBytes
	}
	for _, f := range b.Screenshots {
		total += f.SizeBytes
	}
	return total
}

func (b InputBundle) EntryCount() int {
	return len(b.Files) + len(b.Screenshots)
}

// BehavioralScenario describes one user journey the Behavioral Stage Runner
// should reproduce against both the source and target URL.
type BehavioralScenario struct {
	Name           string        `json:"name"`
	Steps          []string      `json:"steps"`
	TimeoutSeconds int           `json:"timeout_seconds,omitempty"`
}

// BehavioralCredentials is an optional login fixture the prober injects
// before running scenarios that require an authenticated session.
type BehavioralCredentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// BehavioralConfig is the Session's behavioral probing configuration. Empty
// (zero scenarios) unless Scope requires behavioral coverage.
type BehavioralConfig struct {
	Scenarios      []BehavioralScenario    `json:"scenarios,omitempty"`
	Credentials    *BehavioralCredentials  `json:"credentials,omitempty"`
	SourceURL      string                  `json:"source_url,omitempty"`
	TargetURL      string                  `json:"target_url,omitempty"`
	TimeoutSeconds int                     `json:"timeout_seconds,omitempty"`
}

// ValidationSession is the aggregate root for one validation request. It is
// the only mutable entity in the domain model; results, discrepancies,
// behavioral results, and log entries are owned by it and are themselves
// append-only once written. Only the session's assigned worker mutates it
// after admission.
type ValidationSession struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RequestID string    `gorm:"column:request_id;not null;uniqueIndex" json:"request_id"`

	TenantID string `gorm:"column:tenant_id;index" json:"tenant_id,omitempty"`

	SourceTech datatypes.JSON `gorm:"column:source_tech;type:jsonb;not null;index:idx_sessions_tech,priority:1" json:"source_tech"`
	TargetTech datatypes.JSON `gorm:"column:target_tech;type:jsonb;not null;index:idx_sessions_tech,priority:2" json:"target_tech"`

	Scope string `gorm:"column:scope;not null;index" json:"scope"`

	// Priority is the Scheduler's queue band: interactive (API-submitted)
	// drains strictly before batch (bulk/CLI). FIFO within a band.
	Priority string `gorm:"column:priority;not null;default:'interactive';index:idx_sessions_status_created,priority:3" json:"priority"`

	SourceBundle datatypes.JSON `gorm:"column:source_bundle;type:jsonb;not null" json:"source_bundle"`
	TargetBundle datatypes.JSON `gorm:"column:target_bundle;type:jsonb;not null" json:"target_bundle"`

	BehavioralConfig datatypes.JSON `gorm:"column:behavioral_config;type:jsonb" json:"behavioral_config,omitempty"`

	Status     string `gorm:"column:status;not null;index:idx_sessions_status_created,priority:1" json:"status"`
	FailReason string `gorm:"column:fail_reason" json:"fail_reason,omitempty"`

	// Version is an optimistic concurrency counter bumped on every
	// persisted transition. The worker compares-and-swaps on it so a crash
	// recovery pass can never clobber a transition already applied by a
	// live worker.
	Version int `gorm:"column:version;not null;default:0" json:"version"`

	CreatedAt time.Time      `gorm:"not null;default:now();index:idx_sessions_status_created,priority:2" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy string         `gorm:"column:deleted_by" json:"deleted_by,omitempty"`
}

func (ValidationSession) TableName() string { return "validation_sessions" }
