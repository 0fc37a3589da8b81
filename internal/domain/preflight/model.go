package preflight

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/uwrit/leafgo/internal/domain/concept"
)

// ConceptCheckResult is the presence/authorization outcome for one concept
// reference. A missing or unauthorized reference is not an error condition;
// it is data the caller turns into a validation failure.
type ConceptCheckResult struct {
	Ref          concept.Ref
	IsPresent    bool
	IsAuthorized bool
	// Concept is hydrated only when the check passed.
	Concept *concept.Concept
}

func (r ConceptCheckResult) Ok() bool {
	return r.IsPresent && r.IsAuthorized
}

// QueryURNPrefix marks a federated saved-query identifier.
const QueryURNPrefix = "urn:leaf:query:"

// QueryRef references a previously saved query embedded as a criterion.
type QueryRef struct {
	ID          uuid.UUID
	UniversalID string
}

func (r QueryRef) UseUniversalID() bool { return r.UniversalID != "" }

func (r QueryRef) String() string {
	if r.UseUniversalID() {
		return r.UniversalID
	}
	return r.ID.String()
}

// ParseQueryRef accepts either a local uuid or a leaf query urn.
func ParseQueryRef(identifier string) (QueryRef, error) {
	if id, err := uuid.Parse(identifier); err == nil {
		return QueryRef{ID: id}, nil
	}
	if strings.HasPrefix(identifier, QueryURNPrefix) && len(identifier) > len(QueryURNPrefix) {
		return QueryRef{UniversalID: identifier}, nil
	}
	return QueryRef{}, fmt.Errorf("query identifier %q is not a valid uuid or urn", identifier)
}

// QueryCheckResult is the presence/authorization outcome for one saved-query
// reference.
type QueryCheckResult struct {
	Ref          QueryRef
	IsPresent    bool
	IsAuthorized bool
}

func (r QueryCheckResult) Ok() bool {
	return r.IsPresent && r.IsAuthorized
}

// Resources is the batched preflight result for every resource a query
// definition references, directly or transitively.
type Resources struct {
	Concepts []ConceptCheckResult
	Queries  []QueryCheckResult
}

// Ok is true only if every referenced resource is both present and
// authorized.
func (r *Resources) Ok() bool {
	for _, c := range r.Concepts {
		if !c.Ok() {
			return false
		}
	}
	for _, q := range r.Queries {
		if !q.Ok() {
			return false
		}
	}
	return true
}

// RefError describes one failed reference for the client.
type RefError struct {
	Ref          string `json:"ref"`
	IsPresent    bool   `json:"is_present"`
	IsAuthorized bool   `json:"is_authorized"`
}

// Errors returns the failed references, empty when Ok.
func (r *Resources) Errors() []RefError {
	var errs []RefError
	for _, c := range r.Concepts {
		if !c.Ok() {
			errs = append(errs, RefError{Ref: c.Ref.String(), IsPresent: c.IsPresent, IsAuthorized: c.IsAuthorized})
		}
	}
	for _, q := range r.Queries {
		if !q.Ok() {
			errs = append(errs, RefError{Ref: q.Ref.String(), IsPresent: q.IsPresent, IsAuthorized: q.IsAuthorized})
		}
	}
	return errs
}

// SyntheticOpts parameterizes the synthetic concepts generated for
// saved-query references.
type SyntheticOpts struct {
	FieldPersonID string
	AppDB         string
}

// HydratedConcepts returns every concept usable for panel hydration: the
// checked concepts plus one synthetic concept per saved query, selecting
// that query's cached cohort. Empty unless Ok.
func (r *Resources) HydratedConcepts(opts SyntheticOpts) []*concept.Concept {
	if !r.Ok() {
		return nil
	}
	out := make([]*concept.Concept, 0, len(r.Concepts)+len(r.Queries))
	for _, c := range r.Concepts {
		out = append(out, c.Concept)
	}
	for _, q := range r.Queries {
		out = append(out, queryConcept(q.Ref, opts))
	}
	return out
}

func queryConcept(ref QueryRef, opts SyntheticOpts) *concept.Concept {
	return &concept.Concept{
		ID:          ref.ID,
		UniversalID: ref.UniversalID,
		SqlSetFrom: fmt.Sprintf("(SELECT %s FROM %s.app.cohort WHERE query_id = '%s')",
			opts.FieldPersonID, opts.AppDB, ref.ID),
	}
}
