package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

func repoTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.AutoMigrate(
		&voe.ValidationSession{},
		&voe.ValidationResult{},
		&voe.ValidationDiscrepancy{},
		&voe.BehavioralTestResult{},
		&voe.SessionLog{},
		&voe.APIKey{},
		&voe.AuditLog{},
	); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func repoTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func newTestSession() *voe.ValidationSession {
	return &voe.ValidationSession{
		ID:           uuid.New(),
		RequestID:    "req-" + time.Now().Format("20060102150405.000000000"),
		SourceTech:   []byte(`{"name":"rails"}`),
		TargetTech:   []byte(`{"name":"django"}`),
		Scope:        string(voe.ScopeFull),
		Priority:     string(voe.PriorityInteractive),
		SourceBundle: []byte(`{}`),
		TargetBundle: []byte(`{}`),
		Status:       string(voe.SessionStatusQueued),
	}
}

func TestClaimNextQueuedClaimsOldestInteractiveFirst(t *testing.T) {
	db := repoTestDB(t)
	repo := NewSessionRepo(db, repoTestLogger(t))
	ctx := context.Background()

	batch := newTestSession()
	batch.RequestID = "req-batch"
	batch.Priority = string(voe.PriorityBatch)
	if err := repo.Create(ctx, nil, batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	interactive := newTestSession()
	interactive.RequestID = "req-interactive"
	interactive.Priority = string(voe.PriorityInteractive)
	if err := repo.Create(ctx, nil, interactive); err != nil {
		t.Fatalf("create interactive: %v", err)
	}

	claimed, err := repo.ClaimNextQueued(ctx, nil)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed == nil {
		t.Fatalf("expected a claimed session")
	}
	if claimed.RequestID != "req-interactive" {
		t.Fatalf("expected the interactive session to be claimed first, got %s", claimed.RequestID)
	}
	if claimed.Status != string(voe.SessionStatusProcessing) {
		t.Fatalf("expected claimed session to move to processing, got %s", claimed.Status)
	}
}

func TestClaimNextQueuedReturnsNilWhenNothingIsQueued(t *testing.T) {
	db := repoTestDB(t)
	repo := NewSessionRepo(db, repoTestLogger(t))

	claimed, err := repo.ClaimNextQueued(context.Background(), nil)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected no session to be claimed, got %v", claimed)
	}
}

func TestCompareAndSwapStatusRejectsAStaleVersion(t *testing.T) {
	db := repoTestDB(t)
	repo := NewSessionRepo(db, repoTestLogger(t))
	ctx := context.Background()

	session := newTestSession()
	session.Status = string(voe.SessionStatusProcessing)
	if err := repo.Create(ctx, nil, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.CompareAndSwapStatus(ctx, nil, session.ID, 99, voe.SessionStatusProcessing, voe.SessionStatusCompleted, nil); err != voe.ErrStaleVersion {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}
}

func TestCompareAndSwapStatusIsIdempotentOnASecondApplication(t *testing.T) {
	db := repoTestDB(t)
	repo := NewSessionRepo(db, repoTestLogger(t))
	ctx := context.Background()

	session := newTestSession()
	session.Status = string(voe.SessionStatusProcessing)
	if err := repo.Create(ctx, nil, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.CompareAndSwapStatus(ctx, nil, session.ID, session.Version, voe.SessionStatusProcessing, voe.SessionStatusCompleted, nil); err != nil {
		t.Fatalf("first CAS: %v", err)
	}
	// Re-applying with the caller's stale in-memory version should be a
	// no-op, not a stale-version error, because the target status already
	// landed.
	if err := repo.CompareAndSwapStatus(ctx, nil, session.ID, session.Version, voe.SessionStatusProcessing, voe.SessionStatusCompleted, nil); err != nil {
		t.Fatalf("expected idempotent re-application to succeed, got %v", err)
	}
}

func TestReapInterruptedMarksProcessingSessionsFailed(t *testing.T) {
	db := repoTestDB(t)
	repo := NewSessionRepo(db, repoTestLogger(t))
	ctx := context.Background()

	session := newTestSession()
	session.Status = string(voe.SessionStatusProcessing)
	if err := repo.Create(ctx, nil, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	count, err := repo.ReapInterrupted(ctx, nil, "interrupted")
	if err != nil {
		t.Fatalf("ReapInterrupted: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one reaped session, got %d", count)
	}

	reloaded, err := repo.GetByID(ctx, nil, session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != string(voe.SessionStatusFailed) {
		t.Fatalf("expected failed status, got %s", reloaded.Status)
	}
	if reloaded.FailReason != "interrupted" {
		t.Fatalf("expected fail reason 'interrupted', got %q", reloaded.FailReason)
	}
}

func TestSoftDeleteRecordsTheActorAndHidesTheSessionFromGetByID(t *testing.T) {
	db := repoTestDB(t)
	repo := NewSessionRepo(db, repoTestLogger(t))
	ctx := context.Background()

	session := newTestSession()
	session.Status = string(voe.SessionStatusCompleted)
	if err := repo.Create(ctx, nil, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.SoftDelete(ctx, nil, session.ID, "actor-1"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	if _, err := repo.GetByID(ctx, nil, session.ID); err != voe.ErrSessionNotFound {
		t.Fatalf("expected a soft-deleted session to read back as not found, got %v", err)
	}

	var raw voe.ValidationSession
	if err := db.Unscoped().Where("id = ?", session.ID).First(&raw).Error; err != nil {
		t.Fatalf("unscoped lookup: %v", err)
	}
	if raw.DeletedBy != "actor-1" {
		t.Fatalf("expected deleted_by to be recorded, got %q", raw.DeletedBy)
	}
	if !raw.DeletedAt.Valid {
		t.Fatalf("expected deleted_at to be set")
	}
}

func TestSoftDeleteOnAnUnknownSessionReturnsNotFound(t *testing.T) {
	db := repoTestDB(t)
	repo := NewSessionRepo(db, repoTestLogger(t))

	if err := repo.SoftDelete(context.Background(), nil, uuid.New(), "actor-1"); err != voe.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestQueueDepthCountsOnlyQueuedSessions(t *testing.T) {
	db := repoTestDB(t)
	repo := NewSessionRepo(db, repoTestLogger(t))
	ctx := context.Background()

	queued := newTestSession()
	if err := repo.Create(ctx, nil, queued); err != nil {
		t.Fatalf("create queued: %v", err)
	}
	processing := newTestSession()
	processing.RequestID = "req-processing"
	processing.Status = string(voe.SessionStatusProcessing)
	if err := repo.Create(ctx, nil, processing); err != nil {
		t.Fatalf("create processing: %v", err)
	}

	depth, err := repo.QueueDepth(ctx, nil)
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	if depth != 1 {
		t.Fatalf("expected queue depth 1, got %d", depth)
	}
}

func TestAppendLogAndListLogsRoundTrip(t *testing.T) {
	db := repoTestDB(t)
	repo := NewSessionRepo(db, repoTestLogger(t))
	ctx := context.Background()

	session := newTestSession()
	if err := repo.Create(ctx, nil, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.AppendLog(ctx, nil, &voe.SessionLog{SessionID: session.ID, Level: string(voe.LogLevelInfo), Message: "queued"}); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	logs, err := repo.ListLogs(ctx, nil, session.ID, time.Time{})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "queued" {
		t.Fatalf("expected one log entry with message 'queued', got %+v", logs)
	}
}
