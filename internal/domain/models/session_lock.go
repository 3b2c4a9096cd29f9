package models

import "time"

// SessionLockStatus is the result of a try-acquire attempt on a session lock.
type SessionLockStatus string

const (
	SessionLockAcquired   SessionLockStatus = "acquired"
	SessionLockUserBusy   SessionLockStatus = "user_busy"
	SessionLockSystemBusy SessionLockStatus = "system_busy"
)

// SessionLock is a TTL-bound exclusion lease keyed by session id. At most one
// live lock exists per SessionID; total live locks per UserID are bounded by
// the caller's configured max_active.
type SessionLock struct {
	SessionID  string    `db:"session_id"`
	UserID     string    `db:"user_id"`
	AgentID    string    `db:"agent_id"`
	AcquiredAt time.Time `db:"acquired_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}
