// Package postgres implements the storage backend (§6.1) on top of pgx,
// following the query-templating and error-classification conventions of
// the teacher's repository layer (fmt.Sprintf table-name substitution,
// GetExecutor transaction participation, IsPgDuplicateError/IsPgNoRowsError
// classification).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orchestrion/internal/domain/models"
	"orchestrion/internal/domain/repositories"
)

// Storage is the Postgres-backed implementation of repositories.Storage.
type Storage struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

func NewStorage(pool *pgxpool.Pool, tables *TableNames) *Storage {
	return &Storage{pool: pool, tables: tables}
}

// TryAcquireSessionLock implements the transactional CAS described in
// Design Note "Session lock primitive": delete expired rows, count the
// user's live locks, and insert only if under max_active and no row exists
// for this session already.
func (s *Storage) TryAcquireSessionLock(ctx context.Context, sessionID, userID, agentID string, ttlSeconds float64, maxActive int64) (models.SessionLockStatus, error) {
	var status models.SessionLockStatus
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at < now()`, s.tables.SessionLocks)); err != nil {
			return fmt.Errorf("sweep expired locks: %w", err)
		}

		var existing int
		err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE session_id = $1`, s.tables.SessionLocks), sessionID).Scan(&existing)
		if err == nil {
			// Another attempt already holds this exact session; the caller
			// should retry until it releases or expires, not give up.
			status = models.SessionLockSystemBusy
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check existing lock: %w", err)
		}

		var activeCount int64
		if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE user_id = $1`, s.tables.SessionLocks), userID).Scan(&activeCount); err != nil {
			return fmt.Errorf("count active locks: %w", err)
		}
		if activeCount >= maxActive {
			// The user is at their per-user cap; this is the (k+1)-th
			// concurrent session, which gives up after the user-retry window.
			status = models.SessionLockUserBusy
			return nil
		}

		expiresAt := time.Now().Add(time.Duration(ttlSeconds * float64(time.Second)))
		_, err = tx.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (session_id, user_id, agent_id, acquired_at, expires_at) VALUES ($1, $2, $3, now(), $4)`,
			s.tables.SessionLocks,
		), sessionID, userID, agentID, expiresAt)
		if err != nil {
			return fmt.Errorf("insert lock: %w", err)
		}
		status = models.SessionLockAcquired
		return nil
	})
	return status, err
}

func (s *Storage) TouchSessionLock(ctx context.Context, sessionID string, ttlSeconds float64) error {
	expiresAt := time.Now().Add(time.Duration(ttlSeconds * float64(time.Second)))
	_, err := GetExecutor(ctx, s.pool).Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET expires_at = $2 WHERE session_id = $1`, s.tables.SessionLocks,
	), sessionID, expiresAt)
	return err
}

func (s *Storage) ReleaseSessionLock(ctx context.Context, sessionID string) error {
	_, err := GetExecutor(ctx, s.pool).Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE session_id = $1`, s.tables.SessionLocks,
	), sessionID)
	return err
}

// AppendStreamEvent is idempotent on (session_id, event_id) via ON CONFLICT
// DO NOTHING, per §6.1.
func (s *Storage) AppendStreamEvent(ctx context.Context, sessionID, userID string, eventID int64, eventType string, payload []byte) error {
	_, err := GetExecutor(ctx, s.pool).Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (session_id, user_id, event_id, event_type, payload, timestamp)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (session_id, event_id) DO NOTHING`,
		s.tables.StreamEvents,
	), sessionID, userID, eventID, eventType, payload)
	return err
}

func (s *Storage) LoadStreamEvents(ctx context.Context, sessionID string, afterEventID int64, limit int) ([]models.StreamEventRecord, error) {
	rows, err := GetExecutor(ctx, s.pool).Query(ctx, fmt.Sprintf(
		`SELECT session_id, user_id, event_id, event_type, payload, timestamp
		 FROM %s WHERE session_id = $1 AND event_id > $2
		 ORDER BY event_id ASC LIMIT $3`,
		s.tables.StreamEvents,
	), sessionID, afterEventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.StreamEventRecord, 0)
	for rows.Next() {
		var rec models.StreamEventRecord
		if err := rows.Scan(&rec.SessionID, &rec.UserID, &rec.EventID, &rec.EventType, &rec.Payload, &rec.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Storage) GetMaxStreamEventID(ctx context.Context, sessionID string) (int64, error) {
	var maxID *int64
	err := GetExecutor(ctx, s.pool).QueryRow(ctx, fmt.Sprintf(
		`SELECT max(event_id) FROM %s WHERE session_id = $1`, s.tables.StreamEvents,
	), sessionID).Scan(&maxID)
	if err != nil {
		return 0, err
	}
	if maxID == nil {
		return 0, nil
	}
	return *maxID, nil
}

func (s *Storage) DeleteStreamEventsBefore(ctx context.Context, cutoffEpochSeconds int64) (int64, error) {
	cutoff := time.Unix(cutoffEpochSeconds, 0).UTC()
	tag, err := GetExecutor(ctx, s.pool).Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE timestamp < $1`, s.tables.StreamEvents,
	), cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ConsumeUserQuota atomically upserts the day's row and increments `used`,
// returning the resulting status without a second round trip (so a failed
// call performs exactly one state change: bumping used to the limit, per §3
// invariant).
func (s *Storage) ConsumeUserQuota(ctx context.Context, userID, date string) (*models.UserQuotaStatus, error) {
	var dailyQuota, used int64
	err := GetExecutor(ctx, s.pool).QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (user_id, date, daily_quota, used)
		VALUES ($1, $2, (SELECT daily_quota FROM %s WHERE user_id = $1 ORDER BY date DESC LIMIT 1), 0)
		ON CONFLICT (user_id, date) DO UPDATE
		SET used = %s.used + CASE WHEN %s.used < %s.daily_quota THEN 1 ELSE 0 END
		RETURNING daily_quota, used
	`, s.tables.UserQuotas, s.tables.UserQuotas, s.tables.UserQuotas, s.tables.UserQuotas, s.tables.UserQuotas),
		userID, date).Scan(&dailyQuota, &used)
	if err != nil {
		return nil, fmt.Errorf("consume user quota: %w", err)
	}
	allowed := used <= dailyQuota
	remaining := dailyQuota - used
	if remaining < 0 {
		remaining = 0
	}
	return &models.UserQuotaStatus{
		DailyQuota: uint64(dailyQuota),
		Used:       uint64(used),
		Remaining:  uint64(remaining),
		Date:       date,
		Allowed:    allowed,
	}, nil
}

// withTx runs fn inside a transaction, injecting it into ctx via
// repositories.SetTx so any nested GetExecutor(ctx, pool) call - including
// ones made by code this package doesn't own - transparently joins it
// instead of running against the pool outside the transaction.
func (s *Storage) withTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	txCtx := repositories.SetTx(ctx, tx)
	if err := fn(txCtx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
