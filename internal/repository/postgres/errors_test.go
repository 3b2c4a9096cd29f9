package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"orchestrion/internal/domain/repositories"
)

func TestIsPgDuplicateError(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	if !IsPgDuplicateError(dup) {
		t.Fatal("expected 23505 to classify as a duplicate error")
	}
	if IsPgDuplicateError(fmt.Errorf("wrapped: %w", dup)) != true {
		t.Fatal("expected errors.As to unwrap before classifying")
	}
	if IsPgDuplicateError(errors.New("boom")) {
		t.Fatal("expected a non-pg error to not classify as duplicate")
	}
	if IsPgDuplicateError(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("expected a foreign-key code to not classify as duplicate")
	}
}

func TestIsPgNoRowsError(t *testing.T) {
	if !IsPgNoRowsError(pgx.ErrNoRows) {
		t.Fatal("expected pgx.ErrNoRows to classify as no-rows")
	}
	if !IsPgNoRowsError(fmt.Errorf("query: %w", pgx.ErrNoRows)) {
		t.Fatal("expected errors.Is to unwrap before classifying")
	}
	if IsPgNoRowsError(errors.New("boom")) {
		t.Fatal("expected an unrelated error to not classify as no-rows")
	}
}

func TestIsPgForeignKeyError(t *testing.T) {
	if !IsPgForeignKeyError(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("expected 23503 to classify as a foreign-key error")
	}
	if IsPgForeignKeyError(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected a duplicate code to not classify as foreign-key")
	}
}

func TestNewTableNames(t *testing.T) {
	tables := NewTableNames("dev_")
	if tables.SessionLocks != "dev_session_locks" {
		t.Errorf("SessionLocks = %q, want dev_session_locks", tables.SessionLocks)
	}
	if tables.StreamEvents != "dev_stream_events" {
		t.Errorf("StreamEvents = %q, want dev_stream_events", tables.StreamEvents)
	}
	if tables.UserQuotas != "dev_user_quotas" {
		t.Errorf("UserQuotas = %q, want dev_user_quotas", tables.UserQuotas)
	}

	empty := NewTableNames("")
	if empty.SessionLocks != "session_locks" {
		t.Errorf("empty prefix: SessionLocks = %q, want session_locks", empty.SessionLocks)
	}
}

// fakeTx is a minimal pgx.Tx stand-in (every method unimplemented) used only
// to prove GetExecutor picks a context-carried transaction over the pool by
// identity, without a live database: go-sqlmock mocks the database/sql
// driver, which this package's pgxpool-native Storage never touches, so it
// can't stand in here.
type fakeTx struct {
	pgx.Tx
	marker string
}

func TestGetExecutorPrefersContextTx(t *testing.T) {
	tx := &fakeTx{marker: "in-flight"}
	ctx := repositories.SetTx(context.Background(), tx)

	got := GetExecutor(ctx, nil)
	gotTx, ok := got.(*fakeTx)
	if !ok {
		t.Fatalf("expected GetExecutor to return the context tx, got %T", got)
	}
	if gotTx.marker != "in-flight" {
		t.Fatalf("expected the exact context tx instance, got marker %q", gotTx.marker)
	}
}
