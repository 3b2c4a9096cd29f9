// Package limiter implements request gating (§4.2): acquiring, refreshing,
// and releasing the per-session execution lease, with a poll loop for
// queued callers. Grounded on the teacher's turn-start guard in
// internal/service/llm/streaming/service.go and the acquire/touch/release
// poll loop in original_source/src/orchestrator/limiter.rs.
package limiter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"orchestrion/internal/domain/models"
	"orchestrion/internal/domain/repositories"
)

// Limiter bounds concurrent work per user and systemwide via the storage
// backend's session lock primitive, plus a soft systemwide request-rate
// throttle ahead of it.
type Limiter struct {
	storage        repositories.Storage
	logger         *slog.Logger
	maxActive      int64
	pollIntervalS  float64
	lockTTLS       float64
	userBusyRetryS float64
	systemRate     *rate.Limiter
}

// New builds a Limiter. systemRPS/systemBurst configure a token-bucket
// throttle applied before every Acquire attempt, independent of the
// per-session storage lock — this bounds total request admission rate
// regardless of how many distinct sessions are in flight. A non-positive
// systemRPS disables the throttle.
func New(storage repositories.Storage, logger *slog.Logger, maxActive int64, lockTTLS, pollIntervalS, userBusyRetryS float64, systemRPS float64, systemBurst int) *Limiter {
	if maxActive < 1 {
		maxActive = 1
	}
	var systemLimiter *rate.Limiter
	if systemRPS > 0 {
		if systemBurst < 1 {
			systemBurst = 1
		}
		systemLimiter = rate.NewLimiter(rate.Limit(systemRPS), systemBurst)
	}
	return &Limiter{
		storage:        storage,
		logger:         logger,
		maxActive:      maxActive,
		pollIntervalS:  pollIntervalS,
		lockTTLS:       lockTTLS,
		userBusyRetryS: userBusyRetryS,
		systemRate:     systemLimiter,
	}
}

// Acquire takes the session lease. With allowQueue=false it makes a single
// attempt. With allowQueue=true it polls: UserBusy is retried only until the
// per-user retry window elapses; SystemBusy is retried until ctx is
// cancelled (§4.2).
func (l *Limiter) Acquire(ctx context.Context, sessionID, userID, agentID string, allowQueue bool) (bool, error) {
	sessionID, userID, agentID = strings.TrimSpace(sessionID), strings.TrimSpace(userID), strings.TrimSpace(agentID)
	if sessionID == "" || userID == "" {
		return false, nil
	}

	if !allowQueue {
		if l.systemRate != nil && !l.systemRate.Allow() {
			return false, nil
		}
		status, err := l.storage.TryAcquireSessionLock(ctx, sessionID, userID, agentID, l.lockTTLS, l.maxActive)
		if err != nil {
			return false, err
		}
		return status == models.SessionLockAcquired, nil
	}

	if l.systemRate != nil {
		if err := l.systemRate.Wait(ctx); err != nil {
			return false, ctx.Err()
		}
	}

	retryWindow := l.userBusyRetryS
	if l.pollIntervalS > retryWindow {
		retryWindow = l.pollIntervalS
	}
	deadline := time.Now().Add(time.Duration(retryWindow * float64(time.Second)))
	pollInterval := time.Duration(l.pollIntervalS * float64(time.Second))

	for {
		status, err := l.storage.TryAcquireSessionLock(ctx, sessionID, userID, agentID, l.lockTTLS, l.maxActive)
		if err != nil {
			return false, err
		}
		switch status {
		case models.SessionLockAcquired:
			return true, nil
		case models.SessionLockUserBusy:
			if time.Now().After(deadline) {
				return false, nil
			}
		case models.SessionLockSystemBusy:
			// retried indefinitely until ctx cancellation
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Touch refreshes the lease. Storage errors here are logged, not
// propagated — they must not interrupt an in-flight round (§4.2).
func (l *Limiter) Touch(ctx context.Context, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	if err := l.storage.TouchSessionLock(ctx, sessionID, l.lockTTLS); err != nil {
		l.logger.Warn("failed to touch session lock", "session_id", sessionID, "error", err)
	}
}

// Release is mandatory on every exit path, including errors and
// cancellation. Storage errors here are logged, not propagated.
func (l *Limiter) Release(ctx context.Context, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	if err := l.storage.ReleaseSessionLock(ctx, sessionID); err != nil {
		l.logger.Warn("failed to release session lock", "session_id", sessionID, "error", err)
	}
}
