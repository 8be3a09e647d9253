package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/comanda-pos/api/internal/database"
)

// rowFunc adapts a function to pgx.Row.
type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

// flakyDB is a DBTX whose row scans fail with the queued errors before
// succeeding. Only QueryRow is implemented; the other methods panic so we
// catch accidental calls.
type flakyDB struct {
	errs  []error
	calls int
}

func (db *flakyDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (db *flakyDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (db *flakyDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return rowFunc(func(dest ...any) error {
		db.calls++
		if len(db.errs) > 0 {
			err := db.errs[0]
			db.errs = db.errs[1:]
			return err
		}
		*dest[0].(*int64) = 7             // id
		*dest[2].(*string) = "la-esquina" // slug
		return nil
	})
}

func TestStoreReadRetriesTransientFailure(t *testing.T) {
	db := &flakyDB{errs: []error{errors.New("unexpected EOF")}}
	store := database.New(db)

	tenant, err := store.GetTenantBySlug(context.Background(), "la-esquina")
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if tenant.ID != 7 {
		t.Errorf("tenant ID: got %d, want 7", tenant.ID)
	}
	if db.calls != 2 {
		t.Errorf("query calls: got %d, want 2", db.calls)
	}
}

func TestStoreReadDoesNotRetryNoRows(t *testing.T) {
	db := &flakyDB{errs: []error{pgx.ErrNoRows}}
	store := database.New(db)

	_, err := store.GetTenantBySlug(context.Background(), "nope")
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows, got %v", err)
	}
	if db.calls != 1 {
		t.Errorf("query calls: got %d, want 1", db.calls)
	}
}

func TestStoreReadDoesNotRetryServerErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
	db := &flakyDB{errs: []error{pgErr}}
	store := database.New(db)

	_, err := store.GetTenantBySlug(context.Background(), "la-esquina")
	var got *pgconn.PgError
	if !errors.As(err, &got) {
		t.Fatalf("expected the server error, got %v", err)
	}
	if db.calls != 1 {
		t.Errorf("query calls: got %d, want 1", db.calls)
	}
}

func TestStoreReadExhaustsPolicy(t *testing.T) {
	down := errors.New("connection refused")
	db := &flakyDB{errs: []error{down, down, down, down}}
	store := database.New(db)

	_, err := store.GetTenantBySlug(context.Background(), "la-esquina")
	if !errors.Is(err, down) {
		t.Fatalf("expected the connectivity error, got %v", err)
	}
	if db.calls != database.ReadPolicy.Attempts {
		t.Errorf("query calls: got %d, want %d", db.calls, database.ReadPolicy.Attempts)
	}
}
