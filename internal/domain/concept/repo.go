package concept

import (
	"context"

	"github.com/google/uuid"
)

// Reader hydrates concepts in batches. Lookups are batched because a query
// definition can reference dozens of concepts and a round trip per concept
// would dominate latency.
type Reader interface {
	ByIDs(ctx context.Context, ids []uuid.UUID) ([]*Concept, error)
	ByUniversalIDs(ctx context.Context, universalIDs []string) ([]*Concept, error)
}
