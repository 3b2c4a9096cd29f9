package repositories

import (
	"context"

	"orchestrion/internal/domain/models"
)

// Storage is the required backend interface, per §6.1. It is the sole
// synchronization point between concurrent attempts against the same
// session, and must implement try_acquire_session_lock transactionally.
type Storage interface {
	// TryAcquireSessionLock attempts to take the lease for session, subject
	// to the per-user maxActive cap. ttlSeconds bounds how long the lease is
	// held before it is eligible for reclaim by a future caller.
	TryAcquireSessionLock(ctx context.Context, sessionID, userID, agentID string, ttlSeconds float64, maxActive int64) (models.SessionLockStatus, error)

	TouchSessionLock(ctx context.Context, sessionID string, ttlSeconds float64) error
	ReleaseSessionLock(ctx context.Context, sessionID string) error

	// AppendStreamEvent is idempotent on (sessionID, eventID): a re-insert of
	// an already-written id is a no-op, not an error.
	AppendStreamEvent(ctx context.Context, sessionID, userID string, eventID int64, eventType string, payload []byte) error

	// LoadStreamEvents returns records for sessionID with EventID > afterEventID,
	// ordered ascending, capped at limit.
	LoadStreamEvents(ctx context.Context, sessionID string, afterEventID int64, limit int) ([]models.StreamEventRecord, error)

	GetMaxStreamEventID(ctx context.Context, sessionID string) (int64, error)

	// DeleteStreamEventsBefore removes records with Timestamp before the
	// given cutoff and returns the number of rows removed.
	DeleteStreamEventsBefore(ctx context.Context, cutoffEpochSeconds int64) (int64, error)

	// ConsumeUserQuota atomically decrements the user's daily allowance for
	// date and returns the resulting status. A nil status with nil error
	// means quota tracking is disabled for this user/date.
	ConsumeUserQuota(ctx context.Context, userID, date string) (*models.UserQuotaStatus, error)
}
