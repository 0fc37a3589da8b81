package panel

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/uwrit/leafgo/internal/domain/preflight"
)

// State summarizes why a request can or cannot proceed to compilation.
type State int

const (
	StateOk State = iota
	StatePreflightFailed
	StateQueryNotFound
	StateDatasetNotFound
)

func (s State) String() string {
	switch s {
	case StateOk:
		return "ok"
	case StatePreflightFailed:
		return "preflight_failed"
	case StateQueryNotFound:
		return "query_not_found"
	case StateDatasetNotFound:
		return "dataset_not_found"
	}
	return "unknown"
}

// ValidationContext carries a resolved request through validation and
// compilation. Allowed is populated only when preflight passed.
type ValidationContext struct {
	State     State
	QueryID   uuid.UUID
	Requested *Definition
	Preflight *preflight.Resources
	Allowed   []Panel
}

func (c *ValidationContext) PreflightPassed() bool {
	return c.State == StateOk
}

// CompilerError marks a request that is well-formed JSON but cannot be
// compiled into SQL. Callers map it to a client error, never a server fault.
type CompilerError struct {
	Reason string
}

func NewCompilerError(format string, args ...any) *CompilerError {
	return &CompilerError{Reason: fmt.Sprintf(format, args...)}
}

func (e *CompilerError) Error() string {
	return "compiler: " + e.Reason
}

func IsCompilerError(err error) bool {
	var ce *CompilerError
	return errors.As(err, &ce)
}
