package cohort

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/uwrit/leafgo/internal/platform/auth"
)

// ErrNotFound covers both a query id that does not exist and one owned by a
// different user. The two cases are indistinguishable to callers so a query
// id cannot be probed for existence.
var ErrNotFound = errors.New("cohort: query not found")

// CachedCohort is a cohort read back from the cache, with its export
// decisions and salts intact.
type CachedCohort struct {
	QueryID  uuid.UUID
	Patients []SeasonedPatient
}

// ExportedIDs returns the identifiers of the exported subset.
func (c *CachedCohort) ExportedIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(c.Patients))
	for _, p := range c.Patients {
		if p.Exported {
			out[p.ID] = struct{}{}
		}
	}
	return out
}

// SaltFor returns the pseudonymization salt for an exported patient.
func (c *CachedCohort) SaltFor(id string) (uuid.UUID, bool) {
	for _, p := range c.Patients {
		if p.Exported && p.ID == id {
			return p.Salt, true
		}
	}
	return uuid.Nil, false
}

// Cache persists executed cohorts keyed by query id and owner. Create is
// called exactly once per query id; Fetch enforces ownership.
type Cache interface {
	Create(ctx context.Context, user *auth.UserContext, cohort *PatientCohort) error
	Fetch(ctx context.Context, user *auth.UserContext, queryID uuid.UUID) (*CachedCohort, error)
	DeleteUnsaved(ctx context.Context, user *auth.UserContext) error
}
