package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("insert appointment: %w", &pgconn.PgError{Code: CodeUniqueViolation})
	if !HasCode(err, CodeUniqueViolation) {
		t.Fatal("expected unique violation to be detected through wrapping")
	}
	if HasCode(err, CodeExclusion) {
		t.Fatal("unexpected exclusion match")
	}
	if HasCode(errors.New("boom"), CodeUniqueViolation) {
		t.Fatal("plain errors carry no code")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("fetch: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to match")
	}
}

func TestReadyCheck_NilPool(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
