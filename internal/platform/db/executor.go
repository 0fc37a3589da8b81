package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor runs one compiled statement against a clinical warehouse. The
// engine is handed a pre-configured executor and never chooses dialects
// itself; any compliant implementation works unmodified.
type Executor interface {
	Execute(ctx context.Context, sql string, timeout time.Duration, args ...any) (RowReader, error)
}

// ExecutionError classifies a warehouse failure. Transient failures
// (connectivity, timeout, resource pressure) are safe to retry at a higher
// layer; structural failures (bad SQL, missing objects) never are.
type ExecutionError struct {
	Transient bool
	Err       error
}

func (e *ExecutionError) Error() string {
	kind := "structural"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("db: %s execution failure: %v", kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsTransient reports whether err wraps a retryable execution failure.
func IsTransient(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee) && ee.Transient
}

// PgxExecutor executes statements on a pgx pool.
type PgxExecutor struct {
	pool *pgxpool.Pool
}

func NewPgxExecutor(pool *pgxpool.Pool) *PgxExecutor {
	return &PgxExecutor{pool: pool}
}

func (e *PgxExecutor) Execute(ctx context.Context, sql string, timeout time.Duration, args ...any) (RowReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	rows, err := e.pool.Query(runCtx, sql, args...)
	if err != nil {
		cancel()
		return nil, Classify(ctx, err)
	}
	return NewPgxRowReader(rows, cancel), nil
}

// Classify wraps a driver error as an ExecutionError, preserving caller
// cancellation: if the parent context was cancelled the cancellation is
// propagated unwrapped so it is never mistaken for a warehouse fault.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExecutionError{Transient: true, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &ExecutionError{Transient: transientSQLState(pgErr.Code), Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ExecutionError{Transient: true, Err: err}
	}

	return &ExecutionError{Transient: false, Err: err}
}

// transientSQLState maps SQLSTATE classes to retryability.
func transientSQLState(code string) bool {
	// 57014 query_canceled covers server-side statement timeouts.
	if code == "57014" {
		return true
	}
	for _, class := range []string{"08", "53", "57", "58", "40"} {
		if strings.HasPrefix(code, class) {
			return true
		}
	}
	return false
}
