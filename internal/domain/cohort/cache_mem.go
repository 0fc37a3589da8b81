package cohort

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/uwrit/leafgo/internal/platform/auth"
)

type memEntry struct {
	owner    string
	nonce    uuid.UUID
	patients []SeasonedPatient
}

// memCache is the in-process cache used in gateway mode and in tests, where
// no application database is available. Semantics mirror the database cache,
// including ownership-blind not-found results.
type memCache struct {
	mu          sync.RWMutex
	rowLimit    int
	exportLimit int
	entries     map[uuid.UUID]*memEntry
}

func NewCacheMem(rowLimit, exportLimit int) Cache {
	return &memCache{
		rowLimit:    rowLimit,
		exportLimit: exportLimit,
		entries:     make(map[uuid.UUID]*memEntry),
	}
}

func (c *memCache) Create(_ context.Context, user *auth.UserContext, cohort *PatientCohort) error {
	entry := &memEntry{owner: user.UserID(), nonce: user.SessionNonce}
	if cohort.Count() <= c.rowLimit {
		entry.patients = cohort.SeasonedPatients(c.exportLimit)
	}
	c.mu.Lock()
	c.entries[cohort.QueryID] = entry
	c.mu.Unlock()
	return nil
}

func (c *memCache) Fetch(_ context.Context, user *auth.UserContext, queryID uuid.UUID) (*CachedCohort, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[queryID]
	if !ok || entry.owner != user.UserID() {
		return nil, ErrNotFound
	}
	return &CachedCohort{QueryID: queryID, Patients: entry.patients}, nil
}

func (c *memCache) DeleteUnsaved(_ context.Context, user *auth.UserContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.entries {
		if entry.owner == user.UserID() && entry.nonce == user.SessionNonce {
			delete(c.entries, id)
		}
	}
	return nil
}
