package cohort

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/uwrit/leafgo/internal/platform/auth"
)

func cacheUser(subject string) *auth.UserContext {
	return &auth.UserContext{Subject: subject, Issuer: "leaf.test", SessionNonce: uuid.New()}
}

func TestMemCacheRoundTrip(t *testing.T) {
	cache := NewCacheMem(1000, 2)
	user := cacheUser("alice")
	cohort := NewPatientCohort(uuid.New(), set("p1", "p2", "p3"), nil)

	if err := cache.Create(context.Background(), user, cohort); err != nil {
		t.Fatalf("Create: %v", err)
	}

	cached, err := cache.Fetch(context.Background(), user, cohort.QueryID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(cached.Patients) != 3 {
		t.Fatalf("patients = %d, want 3", len(cached.Patients))
	}
	if got := len(cached.ExportedIDs()); got != 2 {
		t.Errorf("exported = %d, want export limit 2", got)
	}
	for id := range cached.ExportedIDs() {
		if _, ok := cached.SaltFor(id); !ok {
			t.Errorf("exported patient %s has no salt", id)
		}
	}
}

func TestMemCacheOwnershipReadsAsNotFound(t *testing.T) {
	cache := NewCacheMem(1000, 10)
	owner := cacheUser("alice")
	cohort := NewPatientCohort(uuid.New(), set("p1"), nil)
	if err := cache.Create(context.Background(), owner, cohort); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := cache.Fetch(context.Background(), cacheUser("mallory"), cohort.QueryID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign fetch err = %v, want ErrNotFound", err)
	}
	_, err = cache.Fetch(context.Background(), owner, uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id err = %v, want ErrNotFound", err)
	}
}

func TestMemCacheRowLimit(t *testing.T) {
	cache := NewCacheMem(2, 10)
	user := cacheUser("alice")
	cohort := NewPatientCohort(uuid.New(), set("p1", "p2", "p3"), nil)
	if err := cache.Create(context.Background(), user, cohort); err != nil {
		t.Fatalf("Create: %v", err)
	}

	cached, err := cache.Fetch(context.Background(), user, cohort.QueryID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(cached.Patients) != 0 {
		t.Errorf("patients = %d, want 0 above the row limit", len(cached.Patients))
	}
}

func TestMemCacheDeleteUnsaved(t *testing.T) {
	cache := NewCacheMem(1000, 10)
	user := cacheUser("alice")
	other := cacheUser("bob")

	mine := NewPatientCohort(uuid.New(), set("p1"), nil)
	theirs := NewPatientCohort(uuid.New(), set("p2"), nil)
	if err := cache.Create(context.Background(), user, mine); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := cache.Create(context.Background(), other, theirs); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := cache.DeleteUnsaved(context.Background(), user); err != nil {
		t.Fatalf("DeleteUnsaved: %v", err)
	}
	if _, err := cache.Fetch(context.Background(), user, mine.QueryID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted cohort still fetchable: %v", err)
	}
	if _, err := cache.Fetch(context.Background(), other, theirs.QueryID); err != nil {
		t.Errorf("other user's cohort was deleted: %v", err)
	}
}
