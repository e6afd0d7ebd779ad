package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/realtime"
)

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*voe.ValidationSession
	logs     []voe.SessionLog
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*voe.ValidationSession)}
}

func (f *fakeSessionRepo) Create(ctx context.Context, tx *gorm.DB, session *voe.ValidationSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*voe.ValidationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, voe.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessionRepo) GetByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*voe.ValidationSession, error) {
	return nil, voe.ErrSessionNotFound
}

func (f *fakeSessionRepo) ClaimNextQueued(ctx context.Context, tx *gorm.DB) (*voe.ValidationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.Status == string(voe.SessionStatusQueued) {
			s.Status = string(voe.SessionStatusProcessing)
			s.Version++
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) CompareAndSwapStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int, from, to voe.SessionStatus, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return voe.ErrSessionNotFound
	}
	if s.Status != string(from) || s.Version != expectedVersion {
		return voe.ErrStaleVersion
	}
	s.Status = string(to)
	s.Version++
	return nil
}

func (f *fakeSessionRepo) CountByStatus(ctx context.Context, tx *gorm.DB, tenantID string, statuses ...voe.SessionStatus) (int64, error) {
	return 0, nil
}

func (f *fakeSessionRepo) QueueDepth(ctx context.Context, tx *gorm.DB) (int64, error) { return 0, nil }

func (f *fakeSessionRepo) ReapInterrupted(ctx context.Context, tx *gorm.DB, reason string) (int64, error) {
	return 0, nil
}

func (f *fakeSessionRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actorID string) error {
	return nil
}

func (f *fakeSessionRepo) AppendLog(ctx context.Context, tx *gorm.DB, entry *voe.SessionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeSessionRepo) ListLogs(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, since time.Time) ([]voe.SessionLog, error) {
	return nil, nil
}

type fakeRunner struct {
	run func(ctx context.Context, session *voe.ValidationSession) error
}

func (f *fakeRunner) Run(ctx context.Context, session *voe.ValidationSession) error {
	return f.run(ctx, session)
}

func TestPoolCompletesASuccessfulSession(t *testing.T) {
	repo := newFakeSessionRepo()
	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusQueued)}
	repo.sessions[session.ID] = session

	runner := &fakeRunner{run: func(ctx context.Context, s *voe.ValidationSession) error { return nil }}
	pool := NewPool(nil, schedulerTestLogger(t), repo, nil, runner, 1, time.Second)

	claimed, _ := repo.ClaimNextQueued(context.Background(), nil)
	pool.process(context.Background(), claimed)

	if repo.sessions[session.ID].Status != string(voe.SessionStatusCompleted) {
		t.Fatalf("expected completed status, got %s", repo.sessions[session.ID].Status)
	}
}

func TestPoolFailsASessionWhoseRunnerErrors(t *testing.T) {
	repo := newFakeSessionRepo()
	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusQueued)}
	repo.sessions[session.ID] = session

	boom := errors.New("analysis adapter unavailable")
	runner := &fakeRunner{run: func(ctx context.Context, s *voe.ValidationSession) error { return boom }}
	pool := NewPool(nil, schedulerTestLogger(t), repo, nil, runner, 1, time.Second)

	claimed, _ := repo.ClaimNextQueued(context.Background(), nil)
	pool.process(context.Background(), claimed)

	updated := repo.sessions[session.ID]
	if updated.Status != string(voe.SessionStatusFailed) {
		t.Fatalf("expected failed status, got %s", updated.Status)
	}
}

func TestPoolRecoversFromRunnerPanic(t *testing.T) {
	repo := newFakeSessionRepo()
	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusQueued)}
	repo.sessions[session.ID] = session

	runner := &fakeRunner{run: func(ctx context.Context, s *voe.ValidationSession) error { panic("unexpected") }}
	pool := NewPool(nil, schedulerTestLogger(t), repo, nil, runner, 1, time.Second)

	claimed, _ := repo.ClaimNextQueued(context.Background(), nil)
	pool.process(context.Background(), claimed)

	if repo.sessions[session.ID].Status != string(voe.SessionStatusFailed) {
		t.Fatalf("expected a panic to be recovered into a failed session, got %s", repo.sessions[session.ID].Status)
	}
}

func TestPoolCancelSignalsTheRunningRunner(t *testing.T) {
	repo := newFakeSessionRepo()
	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusQueued)}
	repo.sessions[session.ID] = session

	started := make(chan struct{})
	runner := &fakeRunner{run: func(ctx context.Context, s *voe.ValidationSession) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	pool := NewPool(nil, schedulerTestLogger(t), repo, nil, runner, 1, time.Minute)

	claimed, _ := repo.ClaimNextQueued(context.Background(), nil)
	done := make(chan struct{})
	go func() {
		pool.process(context.Background(), claimed)
		close(done)
	}()

	<-started
	if !pool.Cancel(session.ID) {
		t.Fatalf("expected Cancel to find the in-flight session")
	}
	<-done

	if repo.sessions[session.ID].Status != string(voe.SessionStatusCancelled) {
		t.Fatalf("expected cancelled status, got %s", repo.sessions[session.ID].Status)
	}
}

// TestPoolMarksATimedOutSessionOnAWrappedDeadlineExceeded exercises finish()
// with an error shaped the way SessionService.Run actually returns it —
// wrapped with fmt.Errorf, not the raw ctx.Err() TestPoolCancelSignalsTheRunningRunner
// uses — to confirm the errors.Is check sees through the wrapping.
func TestPoolMarksATimedOutSessionOnAWrappedDeadlineExceeded(t *testing.T) {
	repo := newFakeSessionRepo()
	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusQueued)}
	repo.sessions[session.ID] = session

	wrapped := fmt.Errorf("analysis: %w", context.DeadlineExceeded)
	runner := &fakeRunner{run: func(ctx context.Context, s *voe.ValidationSession) error { return wrapped }}
	emitter := &fakeSchedulerEmitter{}
	pool := NewPool(nil, schedulerTestLogger(t), repo, emitter, runner, 1, time.Second)

	claimed, _ := repo.ClaimNextQueued(context.Background(), nil)
	pool.process(context.Background(), claimed)

	updated := repo.sessions[session.ID]
	if updated.Status != string(voe.SessionStatusTimedOut) {
		t.Fatalf("expected timed-out status, got %s", updated.Status)
	}

	if len(repo.logs) != 1 || repo.logs[0].SessionID != session.ID {
		t.Fatalf("expected a session log entry for the timeout, got %+v", repo.logs)
	}

	if len(emitter.messages) != 1 || emitter.messages[0].Event != realtime.SSEEventSessionTimedOut {
		t.Fatalf("expected a session.timed_out SSE event, got %+v", emitter.messages)
	}
}

// TestPoolMarksACancelledSessionOnAWrappedCanceled mirrors the deadline test
// above for the other branch finish() mishandled before switching to errors.Is.
func TestPoolMarksACancelledSessionOnAWrappedCanceled(t *testing.T) {
	repo := newFakeSessionRepo()
	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusQueued)}
	repo.sessions[session.ID] = session

	wrapped := fmt.Errorf("analysis: %w", context.Canceled)
	runner := &fakeRunner{run: func(ctx context.Context, s *voe.ValidationSession) error { return wrapped }}
	emitter := &fakeSchedulerEmitter{}
	pool := NewPool(nil, schedulerTestLogger(t), repo, emitter, runner, 1, time.Second)

	claimed, _ := repo.ClaimNextQueued(context.Background(), nil)
	pool.process(context.Background(), claimed)

	updated := repo.sessions[session.ID]
	if updated.Status != string(voe.SessionStatusCancelled) {
		t.Fatalf("expected cancelled status, got %s", updated.Status)
	}

	if len(emitter.messages) != 1 || emitter.messages[0].Event != realtime.SSEEventSessionCancelled {
		t.Fatalf("expected a session.cancelled SSE event, got %+v", emitter.messages)
	}
}

// TestPoolSuppressesADuplicateCompletedEventButStillLogs confirms the
// completed path still appends a session log (the atomic-with-persistence
// requirement) while leaving the SSE emit to SessionService.Run, which
// already sends SSEEventSessionCompleted with the richer score payload.
func TestPoolSuppressesADuplicateCompletedEventButStillLogs(t *testing.T) {
	repo := newFakeSessionRepo()
	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusQueued)}
	repo.sessions[session.ID] = session

	runner := &fakeRunner{run: func(ctx context.Context, s *voe.ValidationSession) error { return nil }}
	emitter := &fakeSchedulerEmitter{}
	pool := NewPool(nil, schedulerTestLogger(t), repo, emitter, runner, 1, time.Second)

	claimed, _ := repo.ClaimNextQueued(context.Background(), nil)
	pool.process(context.Background(), claimed)

	if len(repo.logs) != 1 {
		t.Fatalf("expected a completed session log entry, got %+v", repo.logs)
	}
	if len(emitter.messages) != 0 {
		t.Fatalf("expected no SSE emit from the pool for completed, got %+v", emitter.messages)
	}
}
