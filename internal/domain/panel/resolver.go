package panel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uwrit/leafgo/internal/domain/concept"
	"github.com/uwrit/leafgo/internal/domain/preflight"
	"github.com/uwrit/leafgo/internal/platform/auth"
)

// Resolver turns a wire definition into hydrated panels. Every resource
// reference is preflighted first; a failed preflight yields a context with
// no panels, never an error.
type Resolver struct {
	checker *preflight.Checker
	synth   preflight.SyntheticOpts
	log     zerolog.Logger
}

func NewResolver(checker *preflight.Checker, synth preflight.SyntheticOpts, log zerolog.Logger) *Resolver {
	return &Resolver{checker: checker, synth: synth, log: log.With().Str("component", "panel.resolver").Logger()}
}

// Resolve preflights and hydrates def. An error return means the request
// itself is malformed or an internal failure occurred; authorization and
// presence failures come back in the ValidationContext state instead.
func (r *Resolver) Resolve(ctx context.Context, user *auth.UserContext, def *Definition) (*ValidationContext, error) {
	crefs, qrefs, err := def.Refs()
	if err != nil {
		return nil, NewCompilerError("%v", err)
	}

	res, err := r.checker.Check(ctx, user, crefs, qrefs)
	if err != nil {
		return nil, fmt.Errorf("preflight check: %w", err)
	}

	// The query id is minted here and nowhere else. Accepting a
	// client-chosen id would let one session overwrite or test for
	// another session's cached cohort.
	vc := &ValidationContext{
		QueryID:   uuid.New(),
		Requested: def,
		Preflight: res,
	}
	if !res.Ok() {
		vc.State = StatePreflightFailed
		r.log.Info().
			Str("user", user.UserID()).
			Int("failed_refs", len(res.Errors())).
			Msg("preflight failed, request will not compile")
		return vc, nil
	}

	byLocal, byUniversal := indexConcepts(res.HydratedConcepts(r.synth))

	panels := make([]Panel, 0, len(def.Panels))
	for pi := range def.Panels {
		p, err := r.resolvePanel(&def.Panels[pi], pi, user, byLocal, byUniversal)
		if err != nil {
			return nil, err
		}
		panels = append(panels, p)
	}

	vc.State = StateOk
	vc.Allowed = panels
	return vc, nil
}

func (r *Resolver) resolvePanel(dto *PanelDTO, index int, user *auth.UserContext, byLocal map[uuid.UUID]*concept.Concept, byUniversal map[string]*concept.Concept) (Panel, error) {
	p := Panel{
		Index:        index,
		IncludePanel: dto.IncludePanel,
		Domain:       dto.Domain,
		DateFilter:   resolveDateFilter(dto.DateFilter),
	}
	for si := range dto.SubPanels {
		spDTO := &dto.SubPanels[si]
		sp := SubPanel{
			Index:           si,
			PanelIndex:      index,
			IncludeSubPanel: spDTO.IncludeSubPanel,
			MinimumCount:    spDTO.MinimumCount,
			JoinSequence:    resolveJoinSequence(spDTO.JoinSequence),
		}
		for ii := range spDTO.PanelItems {
			item, err := r.resolveItem(&spDTO.PanelItems[ii], ii, si, index, user, byLocal, byUniversal)
			if err != nil {
				return Panel{}, err
			}
			sp.PanelItems = append(sp.PanelItems, item)
		}
		p.SubPanels = append(p.SubPanels, sp)
	}
	return p, nil
}

func (r *Resolver) resolveItem(dto *PanelItemDTO, index, subIndex, panelIndex int, user *auth.UserContext, byLocal map[uuid.UUID]*concept.Concept, byUniversal map[string]*concept.Concept) (PanelItem, error) {
	c, err := lookupConcept(dto.Resource, user, byLocal, byUniversal)
	if err != nil {
		// Preflight passed, so every reference must hydrate. A miss here is
		// an internal inconsistency, not a client mistake.
		return PanelItem{}, err
	}

	item := PanelItem{
		Index:         index,
		SubPanelIndex: subIndex,
		PanelIndex:    panelIndex,
		Concept:       c,
	}
	if dto.NumericFilter != nil {
		item.NumericFilter = &NumericFilter{
			Op:     NumericOp(dto.NumericFilter.Op),
			Bounds: dto.NumericFilter.Bounds,
		}
	}
	for _, sref := range dto.Specializations {
		spec, ok := findSpecialization(c, sref)
		if !ok {
			return PanelItem{}, fmt.Errorf("specialization %q not defined for concept %s", sref.identifier(), c.ID)
		}
		item.Specializations = append(item.Specializations, spec)
	}
	return item, nil
}

func lookupConcept(ref ResourceRefDTO, user *auth.UserContext, byLocal map[uuid.UUID]*concept.Concept, byUniversal map[string]*concept.Concept) (*concept.Concept, error) {
	if !user.IsInstitutional && ref.UniversalID != "" {
		if c, ok := byUniversal[ref.UniversalID]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("concept %q passed preflight but is missing from the hydrated map", ref.UniversalID)
	}
	if id, err := uuid.Parse(ref.ID); err == nil {
		if c, ok := byLocal[id]; ok {
			return c, nil
		}
	}
	if c, ok := byUniversal[ref.UniversalID]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("concept %q passed preflight but is missing from the hydrated map", ref.identifier())
}

func findSpecialization(c *concept.Concept, ref ResourceRefDTO) (concept.Specialization, bool) {
	for _, g := range c.SpecializationGroups {
		for _, s := range g.Specializations {
			if ref.ID != "" && s.ID.String() == ref.ID {
				return s, true
			}
			if ref.UniversalID != "" && s.UniversalID == ref.UniversalID {
				return s, true
			}
		}
	}
	return concept.Specialization{}, false
}

func resolveDateFilter(dto *DateFilterDTO) *DateFilter {
	if dto == nil {
		return nil
	}
	return &DateFilter{
		Start: resolveBoundary(dto.Start),
		End:   resolveBoundary(dto.End),
	}
}

func resolveBoundary(dto DateBoundaryDTO) DateBoundary {
	b := DateBoundary{
		IncrementType: DateIncrementType(dto.IncrementType),
		Increment:     dto.Increment,
	}
	if dto.Date != nil {
		b.Date = *dto.Date
	}
	return b
}

func resolveJoinSequence(dto *JoinSequenceDTO) *JoinSequence {
	if dto == nil {
		return nil
	}
	return &JoinSequence{
		FirstItemIndex:  dto.FirstItemIndex,
		SecondItemIndex: dto.SecondItemIndex,
		Type:            SequenceType(dto.SequenceType),
		Increment:       dto.Increment,
		IncrementType:   DateIncrementType(dto.IncrementType),
	}
}

func indexConcepts(concepts []*concept.Concept) (map[uuid.UUID]*concept.Concept, map[string]*concept.Concept) {
	byLocal := make(map[uuid.UUID]*concept.Concept, len(concepts))
	byUniversal := make(map[string]*concept.Concept, len(concepts))
	for _, c := range concepts {
		byLocal[c.ID] = c
		if c.UniversalID != "" {
			byUniversal[c.UniversalID] = c
		}
	}
	return byLocal, byUniversal
}
