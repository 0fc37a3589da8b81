package cohort

import (
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// PatientCohort is the resolved patient set for one executed query, plus the
// SQL that produced it.
type PatientCohort struct {
	QueryID       uuid.UUID
	PatientIDs    map[string]struct{}
	SqlStatements []string
}

func NewPatientCohort(queryID uuid.UUID, patientIDs map[string]struct{}, statements []string) *PatientCohort {
	if patientIDs == nil {
		patientIDs = map[string]struct{}{}
	}
	return &PatientCohort{QueryID: queryID, PatientIDs: patientIDs, SqlStatements: statements}
}

func (c *PatientCohort) Count() int {
	return len(c.PatientIDs)
}

// SeasonedPatient is one cached cohort row. Exported rows are the only ones
// visible to downstream dataset extraction, identified by their salt rather
// than the clinical identifier.
type SeasonedPatient struct {
	ID       string
	Exported bool
	Salt     uuid.UUID
}

// SeasonedPatients materializes the cache rows. At most maxExport patients
// are marked exported, chosen by a shuffle seeded from the query id so the
// same cohort and query always exports the same sample. Salts are fresh per
// call.
func (c *PatientCohort) SeasonedPatients(maxExport int) []SeasonedPatient {
	ids := make([]string, 0, len(c.PatientIDs))
	for id := range c.PatientIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rng := rand.New(rand.NewSource(seedFor(c.QueryID)))
	rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})

	out := make([]SeasonedPatient, len(ids))
	for i, id := range ids {
		out[i] = SeasonedPatient{
			ID:       id,
			Exported: i < maxExport,
			Salt:     uuid.New(),
		}
	}
	return out
}

func seedFor(queryID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte(queryID.String()))
	return int64(h.Sum64())
}

// PatientCount is the client-facing query result after any de-identification
// noise has been applied.
type PatientCount struct {
	Value          int  `json:"value"`
	PlusMinus      int  `json:"plus_minus,omitempty"`
	UnderThreshold bool `json:"under_threshold,omitempty"`
}
