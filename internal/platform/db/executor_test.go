package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify_PreservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Classify(ctx, fmt.Errorf("conn closed"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if IsTransient(err) {
		t.Error("cancellation must not be classified as a transient failure")
	}
}

func TestClassify_DeadlineIsTransient(t *testing.T) {
	err := Classify(context.Background(), context.DeadlineExceeded)
	if !IsTransient(err) {
		t.Error("statement timeout should be transient")
	}
}

func TestClassify_SQLStates(t *testing.T) {
	cases := []struct {
		code      string
		transient bool
	}{
		{"08006", true},  // connection_failure
		{"53300", true},  // too_many_connections
		{"57014", true},  // query_canceled (server timeout)
		{"40001", true},  // serialization_failure
		{"42601", false}, // syntax_error
		{"42P01", false}, // undefined_table
		{"22012", false}, // division_by_zero
	}
	for _, c := range cases {
		err := Classify(context.Background(), &pgconn.PgError{Code: c.code})
		if got := IsTransient(err); got != c.transient {
			t.Errorf("code %s: transient = %v, want %v", c.code, got, c.transient)
		}
	}
}

func TestClassify_UnknownIsStructural(t *testing.T) {
	err := Classify(context.Background(), fmt.Errorf("driver exploded"))
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExecutionError, got %T", err)
	}
	if ee.Transient {
		t.Error("unknown errors must default to structural (never auto-retried)")
	}
}
