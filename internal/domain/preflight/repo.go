package preflight

import (
	"context"

	"github.com/uwrit/leafgo/internal/domain/concept"
	"github.com/uwrit/leafgo/internal/platform/auth"
)

// Repo resolves presence and authorization for a batch of references in a
// bounded number of round trips, regardless of how many references the
// definition carries.
type Repo interface {
	CheckConcepts(ctx context.Context, user *auth.UserContext, refs []concept.Ref) ([]ConceptCheckResult, error)
	CheckQueries(ctx context.Context, user *auth.UserContext, refs []QueryRef) ([]QueryCheckResult, error)
}
