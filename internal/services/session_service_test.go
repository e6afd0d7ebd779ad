package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/behavioral"
	"github.com/luissimon96/migration-validation-voe/internal/comparator"
	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
	"github.com/luissimon96/migration-validation-voe/internal/realtime"
	"github.com/luissimon96/migration-validation-voe/internal/synthesizer"
)

func serviceTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

type fakeResultRepo struct {
	mu            sync.Mutex
	results       []*voe.ValidationResult
	discrepancies []*voe.ValidationDiscrepancy
	behavioral    []*voe.BehavioralTestResult
}

func (f *fakeResultRepo) CreateResult(ctx context.Context, tx *gorm.DB, result *voe.ValidationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	f.results = append(f.results, result)
	return nil
}

func (f *fakeResultRepo) CreateDiscrepancies(ctx context.Context, tx *gorm.DB, discrepancies []*voe.ValidationDiscrepancy) error {
	if len(discrepancies) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discrepancies = append(f.discrepancies, discrepancies...)
	return nil
}

func (f *fakeResultRepo) CreateBehavioralResults(ctx context.Context, tx *gorm.DB, results []*voe.BehavioralTestResult) error {
	if len(results) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behavioral = append(f.behavioral, results...)
	return nil
}

func (f *fakeResultRepo) ListResults(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]voe.ValidationResult, error) {
	return nil, nil
}

func (f *fakeResultRepo) ListDiscrepancies(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]voe.ValidationDiscrepancy, error) {
	return nil, nil
}

type fakeSvcSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*voe.ValidationSession
}

func newFakeSvcSessionRepo() *fakeSvcSessionRepo {
	return &fakeSvcSessionRepo{sessions: make(map[uuid.UUID]*voe.ValidationSession)}
}

func (f *fakeSvcSessionRepo) Create(ctx context.Context, tx *gorm.DB, session *voe.ValidationSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSvcSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*voe.ValidationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, voe.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSvcSessionRepo) GetByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*voe.ValidationSession, error) {
	return nil, voe.ErrSessionNotFound
}

func (f *fakeSvcSessionRepo) ClaimNextQueued(ctx context.Context, tx *gorm.DB) (*voe.ValidationSession, error) {
	return nil, nil
}

func (f *fakeSvcSessionRepo) CompareAndSwapStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int, from, to voe.SessionStatus, updates map[string]interface{}) error {
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
	if deletedBy, ok := updates["deleted_by"].(string); ok {
		s.DeletedBy = deletedBy
	}
	return nil
}

func (f *fakeSvcSessionRepo) CountByStatus(ctx context.Context, tx *gorm.DB, tenantID string, statuses ...voe.SessionStatus) (int64, error) {
	return 0, nil
}

func (f *fakeSvcSessionRepo) QueueDepth(ctx context.Context, tx *gorm.DB) (int64, error) { return 0, nil }

func (f *fakeSvcSessionRepo) ReapInterrupted(ctx context.Context, tx *gorm.DB, reason string) (int64, error) {
	return 0, nil
}

func (f *fakeSvcSessionRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actorID string) error {
	return nil
}

func (f *fakeSvcSessionRepo) AppendLog(ctx context.Context, tx *gorm.DB, entry *voe.SessionLog) error {
	return nil
}

func (f *fakeSvcSessionRepo) ListLogs(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, since time.Time) ([]voe.SessionLog, error) {
	return nil, nil
}

type fakeEmitter struct {
	mu       sync.Mutex
	messages []realtime.SSEMessage
}

func (e *fakeEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
}

func newTestSessionService(t *testing.T, sessions *fakeSvcSessionRepo, results *fakeResultRepo, emitter SSEEmitter) *SessionService {
	t.Helper()
	return NewSessionService(nil, serviceTestLogger(t), sessions, results, nil, nil, nil, emitter)
}

func TestPersistUnifiedStoresAUnifiedResultRow(t *testing.T) {
	results := &fakeResultRepo{}
	svc := newTestSessionService(t, newFakeSvcSessionRepo(), results, &fakeEmitter{})

	session := &voe.ValidationSession{ID: uuid.New()}
	unified := synthesizer.UnifiedResult{
		Score:  0.91,
		Status: voe.OverallApprovedWithWarnings,
		Discrepancies: []comparator.Discrepancy{
			{Kind: voe.DiscrepancyKindMissing, Severity: voe.SeverityWarning},
		},
	}

	if err := svc.persistUnified(context.Background(), session, unified, 4.5); err != nil {
		t.Fatalf("persistUnified: %v", err)
	}
	if len(results.results) != 1 {
		t.Fatalf("expected one persisted result, got %d", len(results.results))
	}
	stored := results.results[0]
	if stored.Kind != "unified" {
		t.Fatalf("expected kind unified, got %s", stored.Kind)
	}
	if stored.OverallStatus != string(voe.OverallApprovedWithWarnings) {
		t.Fatalf("expected approved-with-warnings, got %s", stored.OverallStatus)
	}
	if stored.ExecutionTime != 4.5 {
		t.Fatalf("expected execution time 4.5, got %f", stored.ExecutionTime)
	}
}

func TestPersistUnifiedUsesErrorNoteAsSummaryWhenPresent(t *testing.T) {
	results := &fakeResultRepo{}
	svc := newTestSessionService(t, newFakeSvcSessionRepo(), results, &fakeEmitter{})

	session := &voe.ValidationSession{ID: uuid.New()}
	unified := synthesizer.UnifiedResult{
		Score:     0.4,
		Status:    voe.OverallRejected,
		ErrorNote: "behavioral stage errored",
	}

	if err := svc.persistUnified(context.Background(), session, unified, 1.0); err != nil {
		t.Fatalf("persistUnified: %v", err)
	}
	if results.results[0].Summary != "behavioral stage errored" {
		t.Fatalf("expected summary to carry the error note, got %q", results.results[0].Summary)
	}
}

func TestFlattenStaticDiscrepanciesCollectsAcrossCategories(t *testing.T) {
	result := comparator.Result{
		Categories: []comparator.CategoryResult{
			{Discrepancies: []comparator.Discrepancy{{Description: "a"}, {Description: "b"}}},
			{Discrepancies: []comparator.Discrepancy{{Description: "c"}}},
		},
	}
	flat := flattenStaticDiscrepancies(result)
	if len(flat) != 3 {
		t.Fatalf("expected 3 flattened discrepancies, got %d", len(flat))
	}
}

func TestPersistDiscrepanciesSkipsEmptySlice(t *testing.T) {
	results := &fakeResultRepo{}
	svc := newTestSessionService(t, newFakeSvcSessionRepo(), results, &fakeEmitter{})

	svc.persistDiscrepancies(context.Background(), uuid.New(), nil, nil)
	if len(results.discrepancies) != 0 {
		t.Fatalf("expected no rows persisted for an empty slice, got %d", len(results.discrepancies))
	}
}

func TestPersistDiscrepanciesCarriesResultIDWhenGiven(t *testing.T) {
	results := &fakeResultRepo{}
	svc := newTestSessionService(t, newFakeSvcSessionRepo(), results, &fakeEmitter{})

	sessionID := uuid.New()
	resultID := uuid.New()
	svc.persistDiscrepancies(context.Background(), sessionID, &resultID, []comparator.Discrepancy{
		{Kind: voe.DiscrepancyKindBehaviorMismatch, Severity: voe.SeverityCritical, Description: "trace diverged"},
	})

	if len(results.discrepancies) != 1 {
		t.Fatalf("expected one persisted discrepancy, got %d", len(results.discrepancies))
	}
	row := results.discrepancies[0]
	if row.SessionID != sessionID {
		t.Fatalf("expected session id to propagate")
	}
	if row.ResultID == nil || *row.ResultID != resultID {
		t.Fatalf("expected result id to propagate")
	}
}

func TestEmitProgressSendsASessionProgressEvent(t *testing.T) {
	emitter := &fakeEmitter{}
	svc := newTestSessionService(t, newFakeSvcSessionRepo(), &fakeResultRepo{}, emitter)

	session := &voe.ValidationSession{ID: uuid.New(), RequestID: "req-1"}
	svc.emitProgress(session, "static stage complete")

	if len(emitter.messages) != 1 {
		t.Fatalf("expected one emitted message, got %d", len(emitter.messages))
	}
	msg := emitter.messages[0]
	if msg.Event != realtime.SSEEventSessionProgress {
		t.Fatalf("expected a progress event, got %s", msg.Event)
	}
	if msg.Channel != "req-1" {
		t.Fatalf("expected the channel to be the request id, got %s", msg.Channel)
	}
}

func TestRunBehavioralSkipsWhenScopeDoesNotRequireIt(t *testing.T) {
	svc := newTestSessionService(t, newFakeSvcSessionRepo(), &fakeResultRepo{}, &fakeEmitter{})
	session := &voe.ValidationSession{ID: uuid.New()}

	input := svc.runBehavioral(context.Background(), session, voe.ScopeUI)
	if input.Result != nil || input.Err {
		t.Fatalf("expected a zero-value BehavioralInput for a scope with no behavioral requirement")
	}
}

func TestRunBehavioralMarksErrWhenScenariosAreMissing(t *testing.T) {
	svc := NewSessionService(nil, serviceTestLogger(t), newFakeSvcSessionRepo(), &fakeResultRepo{}, nil, nil, behavioral.NewRunner(serviceTestLogger(t), nil), &fakeEmitter{})
	session := &voe.ValidationSession{ID: uuid.New(), BehavioralConfig: []byte(`{}`)}

	input := svc.runBehavioral(context.Background(), session, voe.ScopeFull)
	if !input.Err {
		t.Fatalf("expected Err to be set when no scenarios are configured")
	}
}

func TestCancelRejectsAnAlreadyTerminalSession(t *testing.T) {
	sessions := newFakeSvcSessionRepo()
	svc := newTestSessionService(t, sessions, &fakeResultRepo{}, &fakeEmitter{})

	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusCompleted)}
	sessions.sessions[session.ID] = session

	if err := svc.Cancel(context.Background(), session.ID, "actor-1"); err != voe.ErrAlreadyTerminal {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestCancelTransitionsAQueuedSessionDirectly(t *testing.T) {
	sessions := newFakeSvcSessionRepo()
	svc := newTestSessionService(t, sessions, &fakeResultRepo{}, &fakeEmitter{})

	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusQueued), Version: 0}
	sessions.sessions[session.ID] = session

	if err := svc.Cancel(context.Background(), session.ID, "actor-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if sessions.sessions[session.ID].Status != string(voe.SessionStatusCancelled) {
		t.Fatalf("expected cancelled status, got %s", sessions.sessions[session.ID].Status)
	}
}

func TestCancelRecordsTheActorAsDeletedBy(t *testing.T) {
	sessions := newFakeSvcSessionRepo()
	svc := newTestSessionService(t, sessions, &fakeResultRepo{}, &fakeEmitter{})

	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusQueued), Version: 0}
	sessions.sessions[session.ID] = session

	if err := svc.Cancel(context.Background(), session.ID, "actor-7"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := sessions.sessions[session.ID].DeletedBy; got != "actor-7" {
		t.Fatalf("expected deleted_by to be set to the cancelling actor, got %q", got)
	}
}

func TestCancelRoutesAProcessingSessionToTheSchedulerPool(t *testing.T) {
	sessions := newFakeSvcSessionRepo()
	svc := newTestSessionService(t, sessions, &fakeResultRepo{}, &fakeEmitter{})

	session := &voe.ValidationSession{ID: uuid.New(), Status: string(voe.SessionStatusProcessing)}
	sessions.sessions[session.ID] = session

	if err := svc.Cancel(context.Background(), session.ID, "actor-1"); err == nil {
		t.Fatalf("expected an error directing the caller to the scheduler pool")
	}
}
