package concept

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Concept is an administrator-authored clinical data element. The SQL
// fragments are opaque text: the engine interpolates them into generated
// statements but never interprets them. They are the trust boundary between
// admin-authored and user-authored SQL.
type Concept struct {
	ID          uuid.UUID
	UniversalID string
	ParentID    *uuid.UUID
	RootID      uuid.UUID
	ExternalID  string

	IsNumeric        bool
	IsEventBased     bool
	IsEncounterBased bool
	IsSpecializable  bool

	SqlSetFrom      string
	SqlSetWhere     string
	SqlFieldDate    string
	SqlFieldNumeric string
	SqlFieldEventID string

	UIDisplayName string

	SpecializationGroups []SpecializationGroup
}

// Specialization is a concept refinement, e.g. "inpatient only", carrying an
// additional WHERE predicate.
type Specialization struct {
	ID          uuid.UUID
	GroupID     int
	UniversalID string
	SqlSetWhere string
	UIDisplay   string
}

type SpecializationGroup struct {
	ID              int
	UIDefaultText   string
	Specializations []Specialization
}

const urnPrefix = "urn:leaf:concept:"

// Ref references a concept by local id (institutional mode) or universal id
// (federated mode). Exactly one of the two fields is authoritative.
type Ref struct {
	ID          uuid.UUID
	UniversalID string
}

// UseUniversalID reports whether the federated identifier is authoritative.
func (r Ref) UseUniversalID() bool {
	return r.UniversalID != ""
}

func (r Ref) String() string {
	if r.UseUniversalID() {
		return r.UniversalID
	}
	return r.ID.String()
}

// ParseRef accepts either a local uuid or a leaf concept urn.
func ParseRef(identifier string) (Ref, error) {
	if id, err := uuid.Parse(identifier); err == nil {
		return Ref{ID: id}, nil
	}
	if strings.HasPrefix(identifier, urnPrefix) && len(identifier) > len(urnPrefix) {
		return Ref{UniversalID: identifier}, nil
	}
	return Ref{}, fmt.Errorf("concept identifier %q is not a valid uuid or urn", identifier)
}

// NewRef builds the authoritative reference for a resolved concept.
func NewRef(c *Concept) Ref {
	if c.UniversalID != "" {
		return Ref{ID: c.ID, UniversalID: c.UniversalID}
	}
	return Ref{ID: c.ID}
}
