package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/analysis"
	"github.com/luissimon96/migration-validation-voe/internal/behavioral"
	"github.com/luissimon96/migration-validation-voe/internal/comparator"
	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
	"github.com/luissimon96/migration-validation-voe/internal/realtime"
	"github.com/luissimon96/migration-validation-voe/internal/repos"
	"github.com/luissimon96/migration-validation-voe/internal/synthesizer"
)

// SessionService is the concrete scheduler.PipelineRunner: it drives one
// session from `processing` entry to a synthesized UnifiedResult, wiring
// C3 (analysis), C4 (comparison), C5 (behavioral probing), and C6
// (synthesis) together, persisting every stage result as it lands and
// emitting a progress event at each transition.
type SessionService struct {
	db  *gorm.DB
	log *logger.Logger

	sessions repos.SessionRepo
	results  repos.ResultRepo

	analysisRunner   *analysis.Runner
	comparator       *comparator.Comparator
	behavioralRunner *behavioral.Runner

	emitter SSEEmitter
}

func NewSessionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions repos.SessionRepo,
	results repos.ResultRepo,
	analysisRunner *analysis.Runner,
	comp *comparator.Comparator,
	behavioralRunner *behavioral.Runner,
	emitter SSEEmitter,
) *SessionService {
	return &SessionService{
		db:               db,
		log:              baseLog.With("service", "SessionService"),
		sessions:         sessions,
		results:          results,
		analysisRunner:   analysisRunner,
		comparator:       comp,
		behavioralRunner: behavioralRunner,
		emitter:          emitter,
	}
}

// Run implements scheduler.PipelineRunner. Any error returned here is
// unrecoverable for the session as a whole (the Scheduler marks it
// failed); a stage that merely produced no usable score is instead folded
// into the synthesizer as a StageInput.Err so the other stage can still
// carry the session to a status.
func (s *SessionService) Run(ctx context.Context, session *voe.ValidationSession) error {
	start := time.Now()
	scope := voe.ValidationScope(session.Scope)

	var sourceBundle, targetBundle voe.InputBundle
	if err := json.Unmarshal(session.SourceBundle, &sourceBundle); err != nil {
		return fmt.Errorf("decode source bundle: %w", err)
	}
	if err := json.Unmarshal(session.TargetBundle, &targetBundle); err != nil {
		return fmt.Errorf("decode target bundle: %w", err)
	}

	s.log.Info("analysis stage starting", "session_id", session.ID)
	sourceRep, targetRep, err := s.analyzeBothSides(ctx, sourceBundle, targetBundle, scope)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	staticInput := s.runStatic(ctx, session, sourceRep, targetRep, scope)
	s.emitProgress(session, "static stage complete")

	behavioralInput := s.runBehavioral(ctx, session, scope)
	if behavioralInput.Result != nil || behavioralInput.Err {
		s.emitProgress(session, "behavioral stage complete")
	}

	unified := synthesizer.Synthesize(staticInput, behavioralInput, nil)
	if err := s.persistUnified(ctx, session, unified, time.Since(start).Seconds()); err != nil {
		return fmt.Errorf("persist unified result: %w", err)
	}

	s.emitter.Emit(ctx, realtime.SSEMessage{
		Channel: session.RequestID,
		Event:   realtime.SSEEventSessionCompleted,
		Data: map[string]any{
			"score":  unified.Score,
			"status": unified.Status,
		},
	})
	return nil
}

func (s *SessionService) analyzeBothSides(ctx context.Context, sourceBundle, targetBundle voe.InputBundle, scope voe.ValidationScope) (voe.Representation, voe.Representation, error) {
	type outcome struct {
		rep voe.Representation
		err error
	}
	sourceCh := make(chan outcome, 1)
	targetCh := make(chan outcome, 1)

	go func() {
		rep, err := s.analysisRunner.Analyze(ctx, "source", sourceBundle, scope)
		sourceCh <- outcome{rep: rep, err: err}
	}()
	go func() {
		rep, err := s.analysisRunner.Analyze(ctx, "target", targetBundle, scope)
		targetCh <- outcome{rep: rep, err: err}
	}()

	source := <-sourceCh
	target := <-targetCh
	if source.err != nil {
		return voe.Representation{}, voe.Representation{}, source.err
	}
	if target.err != nil {
		return voe.Representation{}, voe.Representation{}, target.err
	}
	return source.rep, target.rep, nil
}

func (s *SessionService) runStatic(ctx context.Context, session *voe.ValidationSession, sourceRep, targetRep voe.Representation, scope voe.ValidationScope) synthesizer.StageInput {
	result, err := s.comparator.Compare(ctx, sourceRep, targetRep, scope)
	if err != nil {
		s.log.Warn("static comparison failed", "session_id", session.ID, "error", err)
		return synthesizer.StageInput{Err: true}
	}

	payload, _ := json.Marshal(voe.StagePayload{
		SourceRepresentation: &sourceRep,
		TargetRepresentation: &targetRep,
	})
	discrepancies := flattenStaticDiscrepancies(result)
	stored := &voe.ValidationResult{
		SessionID:     session.ID,
		Kind:          string(voe.StageKindStatic),
		OverallStatus: string(voe.OverallApproved),
		FidelityScore: result.Score,
		Payload:       payload,
	}
	if err := s.results.CreateResult(ctx, nil, stored); err != nil {
		s.log.Warn("failed to persist static result", "session_id", session.ID, "error", err)
		return synthesizer.StageInput{Result: &result}
	}
	s.persistDiscrepancies(ctx, session.ID, &stored.ID, discrepancies)

	return synthesizer.StageInput{Result: &result}
}

func (s *SessionService) runBehavioral(ctx context.Context, session *voe.ValidationSession, scope voe.ValidationScope) synthesizer.BehavioralInput {
	if !scope.RequiresBehavioral() {
		return synthesizer.BehavioralInput{}
	}
	if s.behavioralRunner == nil {
		return synthesizer.BehavioralInput{}
	}

	var cfg voe.BehavioralConfig
	if err := json.Unmarshal(session.BehavioralConfig, &cfg); err != nil || len(cfg.Scenarios) == 0 {
		s.log.Warn("behavioral scope with no usable scenarios", "session_id", session.ID)
		return synthesizer.BehavioralInput{Err: true}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	result := s.behavioralRunner.Probe(ctx, cfg.SourceURL, cfg.TargetURL, cfg.Scenarios, cfg.Credentials, timeout)

	rows := make([]*voe.BehavioralTestResult, 0, len(result.Scenarios))
	for _, sc := range result.Scenarios {
		sourceTrace, _ := json.Marshal(sc.SourceTrace)
		targetTrace, _ := json.Marshal(sc.TargetTrace)
		comparisonJSON, _ := json.Marshal(sc.Discrepancies)
		rows = append(rows, &voe.BehavioralTestResult{
			SessionID:       session.ID,
			ScenarioName:    sc.Scenario.Name,
			ExecutionStatus: string(sc.Status),
			SourceTrace:     sourceTrace,
			TargetTrace:     targetTrace,
			Comparison:      comparisonJSON,
			Error:           sc.Error,
		})
	}
	if err := s.results.CreateBehavioralResults(ctx, nil, rows); err != nil {
		s.log.Warn("failed to persist behavioral results", "session_id", session.ID, "error", err)
	}

	var behavioralDiscrepancies []comparator.Discrepancy
	for _, sc := range result.Scenarios {
		behavioralDiscrepancies = append(behavioralDiscrepancies, sc.Discrepancies...)
	}
	s.persistDiscrepancies(ctx, session.ID, nil, behavioralDiscrepancies)

	return synthesizer.BehavioralInput{Result: &result}
}

func (s *SessionService) persistUnified(ctx context.Context, session *voe.ValidationSession, unified synthesizer.UnifiedResult, executionSeconds float64) error {
	summary := fmt.Sprintf("%d discrepancies found", len(unified.Discrepancies))
	if unified.ErrorNote != "" {
		summary = unified.ErrorNote
	}
	result := &voe.ValidationResult{
		SessionID:     session.ID,
		Kind:          "unified",
		OverallStatus: string(unified.Status),
		FidelityScore: unified.Score,
		Summary:       summary,
		ExecutionTime: executionSeconds,
	}
	return s.results.CreateResult(ctx, nil, result)
}

func flattenStaticDiscrepancies(result comparator.Result) []comparator.Discrepancy {
	var out []comparator.Discrepancy
	for _, cat := range result.Categories {
		out = append(out, cat.Discrepancies...)
	}
	return out
}

func (s *SessionService) persistDiscrepancies(ctx context.Context, sessionID uuid.UUID, resultID *uuid.UUID, discrepancies []comparator.Discrepancy) {
	if len(discrepancies) == 0 {
		return
	}
	rows := make([]*voe.ValidationDiscrepancy, 0, len(discrepancies))
	for _, d := range discrepancies {
		rows = append(rows, &voe.ValidationDiscrepancy{
			SessionID:      sessionID,
			ResultID:       resultID,
			Kind:           string(d.Kind),
			Severity:       string(d.Severity),
			Description:    d.Description,
			SourceElement:  d.SourceElement,
			TargetElement:  d.TargetElement,
			Confidence:     d.Confidence,
			Recommendation: d.Recommendation,
			Component:      d.Component,
		})
	}
	if err := s.results.CreateDiscrepancies(ctx, nil, rows); err != nil {
		s.log.Warn("failed to persist discrepancies", "session_id", sessionID, "error", err)
	}
}

func (s *SessionService) emitProgress(session *voe.ValidationSession, message string) {
	s.emitter.Emit(context.Background(), realtime.SSEMessage{
		Channel: session.RequestID,
		Event:   realtime.SSEEventSessionProgress,
		Data:    map[string]any{"message": message},
	})
}

// Cancel handles the `queued` half of §4.7's cancel transition: a queued
// session is CAS-ed to `cancelled` with deleted_by set to actorID. A
// terminal session returns ErrAlreadyTerminal; a processing one returns an
// error, since the Scheduler's pool owns its CancelFunc.
func (s *SessionService) Cancel(ctx context.Context, sessionID uuid.UUID, actorID string) error {
	session, err := s.sessions.GetByID(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	if voe.SessionStatus(session.Status).Terminal() {
		return voe.ErrAlreadyTerminal
	}
	if session.Status == string(voe.SessionStatusQueued) {
		return s.sessions.CompareAndSwapStatus(ctx, nil, session.ID, session.Version, voe.SessionStatusQueued, voe.SessionStatusCancelled, map[string]interface{}{"deleted_by": actorID})
	}
	// processing: the caller is expected to also signal the Scheduler
	// pool's Cancel(sessionID); the status transition itself happens once
	// that cooperative cancel lands.
	return errors.New("session is processing; cancel must be routed through the scheduler pool")
}
