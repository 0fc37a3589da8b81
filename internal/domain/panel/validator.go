package panel

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CountQuery is a validated, compilable cohort query.
type CountQuery struct {
	QueryID uuid.UUID
	Panels  []Panel
}

// Validator enforces the structural invariants a definition must satisfy
// before SQL generation. Every violation is a CompilerError.
type Validator struct {
	log zerolog.Logger
}

func NewValidator(log zerolog.Logger) *Validator {
	return &Validator{log: log.With().Str("component", "panel.validator").Logger()}
}

// Validate prunes empty panels, normalizes defaults, and checks invariants.
// The returned query contains only panels that contribute criteria.
func (v *Validator) Validate(vc *ValidationContext) (*CountQuery, error) {
	if !vc.PreflightPassed() {
		return nil, NewCompilerError("request failed preflight and cannot be compiled")
	}

	var panels []Panel
	for _, p := range vc.Allowed {
		p.SubPanels = pruneSubPanels(p.SubPanels)
		if len(p.SubPanels) == 0 {
			continue
		}
		if err := validatePanel(&p); err != nil {
			v.log.Info().Int("panel", p.Index).Err(err).Msg("panel failed validation")
			return nil, err
		}
		panels = append(panels, p)
	}

	if !anyInclusion(panels) {
		return nil, NewCompilerError("a query must have at least one inclusion panel")
	}

	return &CountQuery{QueryID: vc.QueryID, Panels: panels}, nil
}

func pruneSubPanels(subs []SubPanel) []SubPanel {
	out := subs[:0:0]
	for _, sp := range subs {
		if len(sp.PanelItems) > 0 {
			out = append(out, sp)
		}
	}
	return out
}

func anyInclusion(panels []Panel) bool {
	for i := range panels {
		if panels[i].IncludePanel {
			return true
		}
	}
	return false
}

func validatePanel(p *Panel) error {
	if err := validateDateFilter(p); err != nil {
		return err
	}
	for i := range p.SubPanels {
		if err := validateSubPanel(p, &p.SubPanels[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateDateFilter(p *Panel) error {
	f := p.DateFilter
	if f == nil {
		return nil
	}
	for _, b := range []DateBoundary{f.Start, f.End} {
		switch {
		case b.IncrementType == IncrementNow, b.IncrementType == IncrementSpecific, b.IncrementType.IsUnit():
		default:
			return NewCompilerError("panel %d has an invalid date boundary type %q", p.Index, b.IncrementType)
		}
	}
	if f.Start.IncrementType == IncrementSpecific && f.End.IncrementType == IncrementSpecific {
		if f.Start.Date.After(f.End.Date) {
			return NewCompilerError("panel %d date filter starts after it ends", p.Index)
		}
	}
	return nil
}

func validateSubPanel(p *Panel, sp *SubPanel) error {
	if sp.MinimumCount == 0 {
		sp.MinimumCount = 1
	}
	if sp.MinimumCount < 1 || sp.MinimumCount > len(sp.PanelItems) {
		return NewCompilerError("panel %d sub-panel %d requires %d matches but has %d items",
			p.Index, sp.Index, sp.MinimumCount, len(sp.PanelItems))
	}
	for i := range sp.PanelItems {
		if err := validateItem(p, sp, &sp.PanelItems[i]); err != nil {
			return err
		}
	}
	return validateJoinSequence(p, sp)
}

func validateItem(p *Panel, sp *SubPanel, item *PanelItem) error {
	c := item.Concept
	if c == nil {
		return NewCompilerError("panel %d sub-panel %d item %d has no concept", p.Index, sp.Index, item.Index)
	}
	if c.SqlSetFrom == "" {
		return NewCompilerError("concept %s has no clinical set to query", c.ID)
	}
	if p.IsDateFiltered() && c.SqlFieldDate == "" && !isSavedQuery(c.SqlSetFrom) {
		return NewCompilerError("concept %s cannot be date filtered", c.ID)
	}
	if nf := item.NumericFilter; nf != nil {
		if !c.IsNumeric || c.SqlFieldNumeric == "" {
			return NewCompilerError("concept %s cannot be numerically filtered", c.ID)
		}
		if len(nf.Bounds) != nf.Op.Bounds() {
			return NewCompilerError("numeric filter %q on concept %s requires %d bounds, got %d",
				nf.Op, c.ID, nf.Op.Bounds(), len(nf.Bounds))
		}
	}
	if item.HasSpecializations() && !c.IsSpecializable {
		return NewCompilerError("concept %s is not specializable", c.ID)
	}
	return nil
}

// isSavedQuery detects the synthetic cohort subquery generated for a
// saved-query reference, which has no date field of its own.
func isSavedQuery(sqlSetFrom string) bool {
	return len(sqlSetFrom) > 0 && sqlSetFrom[0] == '('
}

func validateJoinSequence(p *Panel, sp *SubPanel) error {
	js := sp.JoinSequence
	if js == nil {
		return nil
	}
	first := itemAt(sp, js.FirstItemIndex)
	second := itemAt(sp, js.SecondItemIndex)
	if first == nil || second == nil || js.FirstItemIndex == js.SecondItemIndex {
		return NewCompilerError("panel %d sub-panel %d sequence references items %d and %d which do not both exist",
			p.Index, sp.Index, js.FirstItemIndex, js.SecondItemIndex)
	}
	switch js.Type {
	case SequenceEncounter:
		if !first.Concept.IsEncounterBased || !second.Concept.IsEncounterBased {
			return NewCompilerError("panel %d sub-panel %d sequences by encounter but both concepts are not encounter based", p.Index, sp.Index)
		}
	case SequenceEvent:
		if !first.Concept.IsEventBased || !second.Concept.IsEventBased {
			return NewCompilerError("panel %d sub-panel %d sequences by event but both concepts are not event based", p.Index, sp.Index)
		}
		if first.Concept.SqlFieldEventID == "" || second.Concept.SqlFieldEventID == "" {
			return NewCompilerError("panel %d sub-panel %d sequences by event but both concepts do not carry an event id field", p.Index, sp.Index)
		}
	case SequencePlusMinus, SequenceWithinFollowing:
		if js.Increment < 0 || !js.IncrementType.IsUnit() {
			return NewCompilerError("panel %d sub-panel %d sequence has an invalid window of %d %s",
				p.Index, sp.Index, js.Increment, js.IncrementType)
		}
		fallthrough
	case SequenceAnytimeFollowing:
		if first.Concept.SqlFieldDate == "" || second.Concept.SqlFieldDate == "" {
			return NewCompilerError("panel %d sub-panel %d sequences by time but both concepts do not carry dates", p.Index, sp.Index)
		}
	default:
		return NewCompilerError("panel %d sub-panel %d has an unknown sequence type %q", p.Index, sp.Index, js.Type)
	}
	return nil
}

func itemAt(sp *SubPanel, index int) *PanelItem {
	for i := range sp.PanelItems {
		if sp.PanelItems[i].Index == index {
			return &sp.PanelItems[i]
		}
	}
	return nil
}
