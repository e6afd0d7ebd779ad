package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

// SessionRepo persists the §4.7 state machine. ClaimNextQueued is the
// admission-side counterpart to the Scheduler's worker pool: it atomically
// moves one `queued` session to `processing` under SKIP LOCKED so two
// workers can never claim the same session.
type SessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, session *voe.ValidationSession) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*voe.ValidationSession, error)
	GetByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*voe.ValidationSession, error)
	ClaimNextQueued(ctx context.Context, tx *gorm.DB) (*voe.ValidationSession, error)
	CompareAndSwapStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int, from, to voe.SessionStatus, updates map[string]interface{}) error
	CountByStatus(ctx context.Context, tx *gorm.DB, tenantID string, statuses ...voe.SessionStatus) (int64, error)
	QueueDepth(ctx context.Context, tx *gorm.DB) (int64, error)
	ReapInterrupted(ctx context.Context, tx *gorm.DB, reason string) (int64, error)
	SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actorID string) error
	AppendLog(ctx context.Context, tx *gorm.DB, entry *voe.SessionLog) error
	ListLogs(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, since time.Time) ([]voe.SessionLog, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *sessionRepo) Create(ctx context.Context, tx *gorm.DB, session *voe.ValidationSession) error {
	return r.tx(tx).WithContext(ctx).Create(session).Error
}

func (r *sessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*voe.ValidationSession, error) {
	var session voe.ValidationSession
	err := r.tx(tx).WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, voe.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) GetByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*voe.ValidationSession, error) {
	var session voe.ValidationSession
	err := r.tx(tx).WithContext(ctx).Where("request_id = ?", requestID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, voe.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ClaimNextQueued implements the "queued -> processing, worker starts"
// transition of §4.7's table under SKIP LOCKED, the same mechanism
// job_run.go's ClaimNextRunnable uses for its runnable pool. Unlike that
// job-retry pool, a session never re-enters `queued` from `failed` — §4.7
// has no retry-backoff reclaim, so the predicate is a plain status filter
// with no attempts/heartbeat clauses.
func (r *sessionRepo) ClaimNextQueued(ctx context.Context, tx *gorm.DB) (*voe.ValidationSession, error) {
	var claimed *voe.ValidationSession
	err := r.tx(tx).WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var session voe.ValidationSession
		err := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", string(voe.SessionStatusQueued)).
			Order("CASE priority WHEN 'interactive' THEN 0 ELSE 1 END ASC, created_at ASC").
			First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now()
		res := txx.Model(&voe.ValidationSession{}).
			Where("id = ? AND version = ?", session.ID, session.Version).
			Updates(map[string]interface{}{
				"status":     string(voe.SessionStatusProcessing),
				"version":    session.Version + 1,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to a concurrent claim or transition; leave it
			// for the next tick rather than retrying inline.
			return nil
		}
		session.Status = string(voe.SessionStatusProcessing)
		session.Version++
		claimed = &session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompareAndSwapStatus is every other §4.7 transition. The optimistic
// version counter is the serialization point §4.7 requires: "losers retry
// and re-read" means a caller who gets voe.ErrStaleVersion must reload the
// session and decide whether the transition is still applicable.
func (r *sessionRepo) CompareAndSwapStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int, from, to voe.SessionStatus, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = string(to)
	updates["version"] = expectedVersion + 1
	updates["updated_at"] = time.Now()

	res := r.tx(tx).WithContext(ctx).Model(&voe.ValidationSession{}).
		Where("id = ? AND status = ? AND version = ?", id, string(from), expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Idempotent no-op: the transition already landed with this
		// target status at a newer version.
		var current voe.ValidationSession
		if err := r.tx(tx).WithContext(ctx).Where("id = ?", id).First(&current).Error; err != nil {
			return err
		}
		if current.Status == string(to) {
			return nil
		}
		return voe.ErrStaleVersion
	}
	return nil
}

func (r *sessionRepo) CountByStatus(ctx context.Context, tx *gorm.DB, tenantID string, statuses ...voe.SessionStatus) (int64, error) {
	q := r.tx(tx).WithContext(ctx).Model(&voe.ValidationSession{})
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}
	q = q.Where("status IN ?", strs)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *sessionRepo) QueueDepth(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	err := r.tx(tx).WithContext(ctx).Model(&voe.ValidationSession{}).
		Where("status = ?", string(voe.SessionStatusQueued)).
		Count(&count).Error
	return count, err
}

// ReapInterrupted implements §4.7's crash-recovery rule: a session found
// still `processing` at startup never resumed, so it is marked `failed`
// with reason "interrupted"; re-running is a fresh session, not a retry.
func (r *sessionRepo) ReapInterrupted(ctx context.Context, tx *gorm.DB, reason string) (int64, error) {
	res := r.tx(tx).WithContext(ctx).Model(&voe.ValidationSession{}).
		Where("status = ?", string(voe.SessionStatusProcessing)).
		Updates(map[string]interface{}{
			"status":      string(voe.SessionStatusFailed),
			"fail_reason": reason,
			"updated_at":  time.Now(),
			"version":     gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

// SoftDelete implements the other half of `DELETE /api/validate/{request_id}`:
// a session already in a terminal status has nothing left to cancel, so the
// endpoint soft-deletes the row instead — gorm's DeletedAt clause on
// ValidationSession means this is a plain Delete, not a status transition,
// and it never touches `status`/`version`.
func (r *sessionRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actorID string) error {
	res := r.tx(tx).WithContext(ctx).Model(&voe.ValidationSession{}).
		Where("id = ?", id).
		Update("deleted_by", actorID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return voe.ErrSessionNotFound
	}
	return r.tx(tx).WithContext(ctx).Where("id = ?", id).Delete(&voe.ValidationSession{}).Error
}

func (r *sessionRepo) AppendLog(ctx context.Context, tx *gorm.DB, entry *voe.SessionLog) error {
	return r.tx(tx).WithContext(ctx).Create(entry).Error
}

func (r *sessionRepo) ListLogs(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, since time.Time) ([]voe.SessionLog, error) {
	var logs []voe.SessionLog
	q := r.tx(tx).WithContext(ctx).Where("session_id = ?", sessionID)
	if !since.IsZero() {
		q = q.Where("ts > ?", since)
	}
	if err := q.Order("ts ASC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
