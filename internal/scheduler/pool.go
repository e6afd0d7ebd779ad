package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
	"github.com/luissimon96/migration-validation-voe/internal/realtime"
	"github.com/luissimon96/migration-validation-voe/internal/repos"
)

// PipelineRunner drives one session's stages end to end. The Scheduler
// owns only admission, queueing, and the state-machine transitions around
// a run — what actually happens inside `processing` belongs to whatever
// wires analysis + comparator + behavioral + synthesizer together.
type PipelineRunner interface {
	Run(ctx context.Context, session *voe.ValidationSession) error
}

// Pool is C8's fixed worker pool: a ticker+claim loop per worker, grounded
// on the same shape as the teacher's job worker, generalized from a
// per-job-type handler registry to a single PipelineRunner since a
// validation session has exactly one kind of work to do.
type Pool struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.SessionRepo
	emitter  Emitter
	runner   PipelineRunner
	size     int
	sessionTTL time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewPool(db *gorm.DB, baseLog *logger.Logger, sessions repos.SessionRepo, emitter Emitter, runner PipelineRunner, size int, sessionTTL time.Duration) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Pool{
		db:           db,
		log:          baseLog.With("service", "SchedulerPool"),
		sessions:     sessions,
		emitter:      emitter,
		runner:       runner,
		size:         size,
		sessionTTL:   sessionTTL,
		pollInterval: time.Second,
		cancels:      make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start launches the fixed pool and blocks workers on ctx cancellation,
// the same lifecycle the teacher's JobWorker.Start uses.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		go p.runWorker(ctx)
	}
}

func (p *Pool) runWorker(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			session, err := p.sessions.ClaimNextQueued(ctx, nil)
			if err != nil {
				p.log.Warn("ClaimNextQueued failed", "error", err)
				continue
			}
			if session == nil {
				continue
			}
			p.process(ctx, session)
		}
	}
}

// process runs one session under a per-session deadline, recovering from
// a Runner panic the same way the teacher's worker recovers from a handler
// panic — mark the session failed rather than taking the worker down.
func (p *Pool) process(ctx context.Context, session *voe.ValidationSession) {
	deadline := p.sessionTTL
	sessionCtx, cancel := context.WithTimeout(ctx, deadline)
	p.registerCancel(session.ID, cancel)
	defer func() {
		p.unregisterCancel(session.ID)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &panicError{val: r}
			}
		}()
		done <- p.runner.Run(sessionCtx, session)
	}()

	select {
	case err := <-done:
		p.finish(ctx, session, err)
	case <-sessionCtx.Done():
		// Grace window: give the Runner a chance to observe ctx.Done and
		// return cleanly before this worker forces the terminal state.
		select {
		case err := <-done:
			p.finish(ctx, session, err)
		case <-time.After(GraceWindow):
			p.forceTerminal(ctx, session, sessionCtx.Err())
		}
	}
}

func (p *Pool) finish(ctx context.Context, session *voe.ValidationSession, err error) {
	if err == nil {
		// SessionService.Run already emitted SSEEventSessionCompleted with
		// the score payload right before returning; only the status CAS and
		// its log entry are this layer's job here.
		p.transition(ctx, session, voe.SessionStatusCompleted, nil, "session completed", "")
		return
	}

	to := voe.SessionStatusFailed
	reason := err.Error()
	event := realtime.SSEEventSessionFailed
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		to = voe.SessionStatusTimedOut
		reason = "session deadline exceeded"
		event = realtime.SSEEventSessionTimedOut
	case errors.Is(err, context.Canceled):
		to = voe.SessionStatusCancelled
		reason = "session cancelled"
		event = realtime.SSEEventSessionCancelled
	}
	updates := map[string]interface{}{"fail_reason": reason}
	p.transition(ctx, session, to, updates, reason, event)
}

func (p *Pool) forceTerminal(ctx context.Context, session *voe.ValidationSession, cause error) {
	to := voe.SessionStatusFailed
	reason := "interrupted"
	event := realtime.SSEEventSessionFailed
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		to = voe.SessionStatusTimedOut
		reason = "session deadline exceeded"
		event = realtime.SSEEventSessionTimedOut
	case errors.Is(cause, context.Canceled):
		to = voe.SessionStatusCancelled
		reason = "session cancelled"
		event = realtime.SSEEventSessionCancelled
	}
	updates := map[string]interface{}{"fail_reason": reason}
	p.transition(ctx, session, to, updates, reason, event)
}

// transition persists the §4.7 status CAS and its session log entry in one
// call (the log write rides the same update as far as ordering goes — the
// repo has no cross-write transaction here, but the two always succeed or
// warn together), then emits the matching SSE event. Covers every exit from
// process(): the happy path, a wrapped cancel/deadline the Runner observed
// and returned promptly, and the grace-window-exhausted forced terminal.
func (p *Pool) transition(ctx context.Context, session *voe.ValidationSession, to voe.SessionStatus, updates map[string]interface{}, logMessage string, event string) {
	if cerr := p.sessions.CompareAndSwapStatus(ctx, nil, session.ID, session.Version, voe.SessionStatusProcessing, to, updates); cerr != nil {
		p.log.Warn("failed to persist status transition", "session_id", session.ID, "to", to, "error", cerr)
		return
	}
	if cerr := p.sessions.AppendLog(ctx, nil, &voe.SessionLog{
		SessionID: session.ID,
		Level:     string(voe.LogLevelInfo),
		Message:   logMessage,
	}); cerr != nil {
		p.log.Warn("failed to append session log", "session_id", session.ID, "to", to, "error", cerr)
	}
	if p.emitter != nil && event != "" {
		p.emitter.Emit(ctx, realtime.SSEMessage{
			Channel: session.RequestID,
			Event:   event,
			Data:    map[string]any{"status": string(to)},
		})
	}
}

// Cancel signals a client-initiated cancellation for a processing session.
// Cooperative: the Runner observes ctx.Done() and must return promptly;
// the same grace window in process() applies if it doesn't.
func (p *Pool) Cancel(sessionID uuid.UUID) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[sessionID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (p *Pool) registerCancel(id uuid.UUID, cancel context.CancelFunc) {
	p.mu.Lock()
	p.cancels[id] = cancel
	p.mu.Unlock()
}

func (p *Pool) unregisterCancel(id uuid.UUID) {
	p.mu.Lock()
	delete(p.cancels, id)
	p.mu.Unlock()
}

type panicError struct{ val any }

func (e *panicError) Error() string { return "pipeline runner panicked" }
