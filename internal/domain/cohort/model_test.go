package cohort

import (
	"testing"

	"github.com/google/uuid"
)

func TestSeasonedPatientsDeterministicSample(t *testing.T) {
	queryID := uuid.New()
	ids := set("p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8")

	first := NewPatientCohort(queryID, ids, nil).SeasonedPatients(3)
	second := NewPatientCohort(queryID, ids, nil).SeasonedPatients(3)

	exported := func(ps []SeasonedPatient) map[string]struct{} {
		out := map[string]struct{}{}
		for _, p := range ps {
			if p.Exported {
				out[p.ID] = struct{}{}
			}
		}
		return out
	}

	e1, e2 := exported(first), exported(second)
	if len(e1) != 3 {
		t.Fatalf("exported = %d, want 3", len(e1))
	}
	if !equalSets(e1, e2) {
		t.Errorf("export sample differs across calls: %v vs %v", e1, e2)
	}

	// A different query id over the same patients draws its own sample
	// eventually; at minimum it must not panic and must keep the bound.
	other := NewPatientCohort(uuid.New(), ids, nil).SeasonedPatients(3)
	if got := len(exported(other)); got != 3 {
		t.Errorf("exported = %d, want 3", got)
	}
}

func TestSeasonedPatientsSaltsAreFresh(t *testing.T) {
	queryID := uuid.New()
	ids := set("p1", "p2")

	first := NewPatientCohort(queryID, ids, nil).SeasonedPatients(2)
	second := NewPatientCohort(queryID, ids, nil).SeasonedPatients(2)

	if first[0].Salt == second[0].Salt {
		t.Error("salts must differ across materializations")
	}
	for _, p := range first {
		if p.Salt == uuid.Nil {
			t.Error("salt must never be nil")
		}
	}
}

func TestSeasonedPatientsSmallCohort(t *testing.T) {
	cohort := NewPatientCohort(uuid.New(), set("p1", "p2"), nil)
	ps := cohort.SeasonedPatients(10)
	if len(ps) != 2 {
		t.Fatalf("patients = %d, want 2", len(ps))
	}
	for _, p := range ps {
		if !p.Exported {
			t.Errorf("patient %s not exported in a cohort below the export limit", p.ID)
		}
	}
}

func TestSeasonedPatientsEmptyCohort(t *testing.T) {
	cohort := NewPatientCohort(uuid.New(), nil, nil)
	if cohort.Count() != 0 {
		t.Fatalf("count = %d, want 0", cohort.Count())
	}
	if ps := cohort.SeasonedPatients(5); len(ps) != 0 {
		t.Errorf("patients = %d, want 0", len(ps))
	}
}
