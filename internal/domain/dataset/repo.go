package dataset

import (
	"context"

	"github.com/google/uuid"
)

// Repo loads dataset definitions from the application database.
type Repo interface {
	ByID(ctx context.Context, id uuid.UUID) (*Query, error)
	ByUniversalID(ctx context.Context, universalID string) (*Query, error)
}
