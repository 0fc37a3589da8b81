package panel

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uwrit/leafgo/internal/domain/concept"
	"github.com/uwrit/leafgo/internal/domain/preflight"
	"github.com/uwrit/leafgo/internal/platform/auth"
)

type stubPreflightRepo struct {
	concepts map[string]*concept.Concept
	queries  map[string]uuid.UUID
	denied   map[string]bool
}

func (s *stubPreflightRepo) CheckConcepts(_ context.Context, _ *auth.UserContext, refs []concept.Ref) ([]preflight.ConceptCheckResult, error) {
	out := make([]preflight.ConceptCheckResult, 0, len(refs))
	for _, r := range refs {
		res := preflight.ConceptCheckResult{Ref: r}
		if c, ok := s.concepts[r.String()]; ok {
			res.IsPresent = true
			res.IsAuthorized = !s.denied[r.String()]
			if res.IsAuthorized {
				res.Concept = c
			}
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *stubPreflightRepo) CheckQueries(_ context.Context, _ *auth.UserContext, refs []preflight.QueryRef) ([]preflight.QueryCheckResult, error) {
	out := make([]preflight.QueryCheckResult, 0, len(refs))
	for _, r := range refs {
		res := preflight.QueryCheckResult{Ref: r}
		if id, ok := s.queries[r.String()]; ok {
			res.IsPresent = true
			res.IsAuthorized = true
			res.Ref.ID = id
		}
		out = append(out, res)
	}
	return out, nil
}

func newResolver(repo preflight.Repo) *Resolver {
	checker := preflight.NewChecker(repo, zerolog.Nop())
	synth := preflight.SyntheticOpts{FieldPersonID: "person_id", AppDB: "leaf_app"}
	return NewResolver(checker, synth, zerolog.Nop())
}

func testUser() *auth.UserContext {
	return &auth.UserContext{Subject: "alice", Issuer: "leaf.test", IsInstitutional: true}
}

func singleItemDefinition(ref ResourceRefDTO) *Definition {
	return &Definition{
		Panels: []PanelDTO{{
			IncludePanel: true,
			SubPanels: []SubPanelDTO{{
				IncludeSubPanel: true,
				PanelItems:      []PanelItemDTO{{Resource: ref}},
			}},
		}},
	}
}

func TestResolveHydratesConcepts(t *testing.T) {
	c := diagnosisConcept()
	repo := &stubPreflightRepo{concepts: map[string]*concept.Concept{c.ID.String(): c}}

	vc, err := newResolver(repo).Resolve(context.Background(), testUser(),
		singleItemDefinition(ResourceRefDTO{ID: c.ID.String()}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if vc.State != StateOk {
		t.Fatalf("state = %s, want ok", vc.State)
	}
	if vc.QueryID == uuid.Nil {
		t.Error("expected an allocated query id")
	}
	got := vc.Allowed[0].SubPanels[0].PanelItems[0].Concept
	if got == nil || got.ID != c.ID {
		t.Errorf("hydrated concept = %v, want %s", got, c.ID)
	}
}

func TestResolvePreflightFailureShortCircuits(t *testing.T) {
	c := diagnosisConcept()
	repo := &stubPreflightRepo{
		concepts: map[string]*concept.Concept{c.ID.String(): c},
		denied:   map[string]bool{c.ID.String(): true},
	}

	vc, err := newResolver(repo).Resolve(context.Background(), testUser(),
		singleItemDefinition(ResourceRefDTO{ID: c.ID.String()}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if vc.State != StatePreflightFailed {
		t.Errorf("state = %s, want preflight_failed", vc.State)
	}
	if vc.Allowed != nil {
		t.Error("no panels may be hydrated after a failed preflight")
	}
	if errs := vc.Preflight.Errors(); len(errs) != 1 || errs[0].IsAuthorized {
		t.Errorf("preflight errors = %+v, want one unauthorized ref", errs)
	}
}

func TestResolveSavedQueryBecomesCohortSubquery(t *testing.T) {
	savedID := uuid.New()
	urn := "urn:leaf:query:288f39a0"
	repo := &stubPreflightRepo{queries: map[string]uuid.UUID{urn: savedID}}

	vc, err := newResolver(repo).Resolve(context.Background(), testUser(),
		singleItemDefinition(ResourceRefDTO{UniversalID: urn}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if vc.State != StateOk {
		t.Fatalf("state = %s, want ok", vc.State)
	}
	c := vc.Allowed[0].SubPanels[0].PanelItems[0].Concept
	want := "(SELECT person_id FROM leaf_app.app.cohort WHERE query_id = '" + savedID.String() + "')"
	if c.SqlSetFrom != want {
		t.Errorf("SqlSetFrom = %q, want %q", c.SqlSetFrom, want)
	}
}

func TestResolveMintsFreshQueryID(t *testing.T) {
	c := diagnosisConcept()
	repo := &stubPreflightRepo{concepts: map[string]*concept.Concept{c.ID.String(): c}}
	def := singleItemDefinition(ResourceRefDTO{ID: c.ID.String()})
	r := newResolver(repo)

	first, err := r.Resolve(context.Background(), testUser(), def)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), testUser(), def)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.QueryID == uuid.Nil || second.QueryID == uuid.Nil {
		t.Fatal("expected allocated query ids")
	}
	if first.QueryID == second.QueryID {
		t.Error("replaying a definition must never reuse a query id")
	}
}

func TestResolveSpecializations(t *testing.T) {
	specID := uuid.New()
	c := diagnosisConcept()
	c.IsSpecializable = true
	c.SpecializationGroups = []concept.SpecializationGroup{{
		Specializations: []concept.Specialization{{ID: specID, SqlSetWhere: "AND type = 'primary'"}},
	}}
	repo := &stubPreflightRepo{concepts: map[string]*concept.Concept{c.ID.String(): c}}

	def := singleItemDefinition(ResourceRefDTO{ID: c.ID.String()})
	def.Panels[0].SubPanels[0].PanelItems[0].Specializations = []ResourceRefDTO{{ID: specID.String()}}

	vc, err := newResolver(repo).Resolve(context.Background(), testUser(), def)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	item := vc.Allowed[0].SubPanels[0].PanelItems[0]
	if len(item.Specializations) != 1 || item.Specializations[0].ID != specID {
		t.Errorf("specializations = %+v, want the selected one", item.Specializations)
	}

	// A specialization not defined for the concept is an internal error.
	def.Panels[0].SubPanels[0].PanelItems[0].Specializations = []ResourceRefDTO{{ID: uuid.NewString()}}
	if _, err := newResolver(repo).Resolve(context.Background(), testUser(), def); err == nil {
		t.Error("expected an error for an unknown specialization")
	}
}

func TestResolveMalformedReference(t *testing.T) {
	repo := &stubPreflightRepo{}
	_, err := newResolver(repo).Resolve(context.Background(), testUser(),
		singleItemDefinition(ResourceRefDTO{ID: "not-a-uuid"}))
	if !IsCompilerError(err) {
		t.Fatalf("err = %v, want compiler error", err)
	}
}
