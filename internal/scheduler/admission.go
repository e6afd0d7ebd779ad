// Package scheduler implements the Scheduler / Job Pool (C8): admission,
// priority-banded queueing, a fixed worker pool, timeouts, and cooperative
// cancellation over the §4.7 session state machine.
package scheduler

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
	"github.com/luissimon96/migration-validation-voe/internal/realtime"
	"github.com/luissimon96/migration-validation-voe/internal/repos"
)

// Emitter is the minimal surface Admission/Pool need to publish SSE events
// alongside a status transition; satisfied by services.HubEmitter and
// services.RedisEmitter via structural typing, without scheduler importing
// the services package.
type Emitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

const (
	DefaultGlobalCap  = 32
	DefaultTenantCap  = 8
	DefaultPoolSize   = 32
	DefaultSessionTTL = 30 * time.Minute
	GraceWindow       = 30 * time.Second
)

// Admission owns §4.8's admission rule: create in pending, check caps,
// promote to queued or refuse with voe.ErrOverloaded.
type Admission struct {
	db         *gorm.DB
	log        *logger.Logger
	sessions   repos.SessionRepo
	emitter    Emitter
	globalCap  int64
	tenantCap  int64
	poolSize   int64
}

func NewAdmission(db *gorm.DB, baseLog *logger.Logger, sessions repos.SessionRepo, emitter Emitter, globalCap, tenantCap, poolSize int) *Admission {
	if globalCap <= 0 {
		globalCap = DefaultGlobalCap
	}
	if tenantCap <= 0 {
		tenantCap = DefaultTenantCap
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &Admission{
		db:        db,
		log:       baseLog.With("service", "SchedulerAdmission"),
		sessions:  sessions,
		emitter:   emitter,
		globalCap: int64(globalCap),
		tenantCap: int64(tenantCap),
		poolSize:  int64(poolSize),
	}
}

// Admit creates session and either commits it as `queued` or rolls the
// whole thing back and returns voe.ErrOverloaded, per §4.8: a refused
// admission leaves no trace, rather than stranding a `pending` row nothing
// will ever promote.
func (a *Admission) Admit(ctx context.Context, session *voe.ValidationSession) error {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		depth, err := a.sessions.QueueDepth(ctx, tx)
		if err != nil {
			return err
		}
		if depth >= a.poolSize*4 {
			return voe.ErrOverloaded
		}

		inflight, err := a.sessions.CountByStatus(ctx, tx, "", voe.SessionStatusQueued, voe.SessionStatusProcessing)
		if err != nil {
			return err
		}
		if inflight >= a.globalCap {
			return voe.ErrOverloaded
		}

		if session.TenantID != "" {
			tenantInflight, err := a.sessions.CountByStatus(ctx, tx, session.TenantID, voe.SessionStatusQueued, voe.SessionStatusProcessing)
			if err != nil {
				return err
			}
			if tenantInflight >= a.tenantCap {
				return voe.ErrOverloaded
			}
		}

		session.Status = string(voe.SessionStatusPending)
		if session.Priority == "" {
			session.Priority = string(voe.PriorityInteractive)
		}
		if err := a.sessions.Create(ctx, tx, session); err != nil {
			return err
		}

		if err := a.sessions.CompareAndSwapStatus(ctx, tx, session.ID, session.Version, voe.SessionStatusPending, voe.SessionStatusQueued, nil); err != nil {
			return err
		}
		session.Status = string(voe.SessionStatusQueued)
		session.Version++

		return a.sessions.AppendLog(ctx, tx, &voe.SessionLog{
			SessionID: session.ID,
			Level:     string(voe.LogLevelInfo),
			Message:   "session admitted to queue",
		})
	})
	if err != nil {
		return err
	}

	a.emit(ctx, session, realtime.SSEEventSessionQueued, map[string]any{"status": string(voe.SessionStatusQueued)})
	return nil
}

func (a *Admission) emit(ctx context.Context, session *voe.ValidationSession, event string, data map[string]any) {
	if a.emitter == nil {
		return
	}
	a.emitter.Emit(ctx, realtime.SSEMessage{
		Channel: session.RequestID,
		Event:   event,
		Data:    data,
	})
}

// BackpressureReleased reports whether queue depth has drained back below
// the 2x-pool resume threshold §4.8 requires before admission reopens.
// Admit itself already refuses above 4x; callers that want to surface a
// "still overloaded, retry later" signal to clients poll this instead of
// retrying Admit blindly.
func (a *Admission) BackpressureReleased(ctx context.Context) (bool, error) {
	depth, err := a.sessions.QueueDepth(ctx, nil)
	if err != nil {
		return false, err
	}
	return depth < a.poolSize*2, nil
}
