package panel

import (
	"fmt"
	"strings"
	"time"

	"github.com/uwrit/leafgo/internal/domain/concept"
	"github.com/uwrit/leafgo/internal/domain/preflight"
)

// Definition is the wire form of a cohort query as submitted by a client.
// Resource references are unresolved; the resolver hydrates them.
type Definition struct {
	Panels []PanelDTO `json:"panels"`
}

type PanelDTO struct {
	Index        int            `json:"index"`
	IncludePanel bool           `json:"include_panel"`
	Domain       string         `json:"domain,omitempty"`
	DateFilter   *DateFilterDTO `json:"date_filter,omitempty"`
	SubPanels    []SubPanelDTO  `json:"sub_panels"`
}

type DateFilterDTO struct {
	Start DateBoundaryDTO `json:"start"`
	End   DateBoundaryDTO `json:"end"`
}

type DateBoundaryDTO struct {
	IncrementType string     `json:"increment_type"`
	Increment     int        `json:"increment"`
	Date          *time.Time `json:"date,omitempty"`
}

type SubPanelDTO struct {
	Index           int              `json:"index"`
	IncludeSubPanel bool             `json:"include_sub_panel"`
	MinimumCount    int              `json:"minimum_count"`
	JoinSequence    *JoinSequenceDTO `json:"join_sequence,omitempty"`
	PanelItems      []PanelItemDTO   `json:"panel_items"`
}

type JoinSequenceDTO struct {
	FirstItemIndex  int    `json:"first_item_index"`
	SecondItemIndex int    `json:"second_item_index"`
	SequenceType    string `json:"sequence_type"`
	Increment       int    `json:"increment"`
	IncrementType   string `json:"increment_type"`
}

type PanelItemDTO struct {
	Index           int               `json:"index"`
	Resource        ResourceRefDTO    `json:"resource"`
	NumericFilter   *NumericFilterDTO `json:"numeric_filter,omitempty"`
	Specializations []ResourceRefDTO  `json:"specializations,omitempty"`
}

type NumericFilterDTO struct {
	Op     string    `json:"op"`
	Bounds []float64 `json:"bounds"`
}

// ResourceRefDTO points at a concept, a specialization, or a previously
// saved query. Saved queries are identified by the urn:leaf:query prefix;
// everything else is treated as a concept reference.
type ResourceRefDTO struct {
	ID            string `json:"id,omitempty"`
	UniversalID   string `json:"universal_id,omitempty"`
	UIDisplayName string `json:"ui_display_name,omitempty"`
}

func (r ResourceRefDTO) identifier() string {
	if r.UniversalID != "" {
		return r.UniversalID
	}
	return r.ID
}

func (r ResourceRefDTO) isQuery() bool {
	return strings.HasPrefix(r.UniversalID, preflight.QueryURNPrefix)
}

// Refs partitions every resource reference in the definition into concept
// and saved-query references for a single preflight pass.
func (d *Definition) Refs() ([]concept.Ref, []preflight.QueryRef, error) {
	var crefs []concept.Ref
	var qrefs []preflight.QueryRef
	for pi := range d.Panels {
		for si := range d.Panels[pi].SubPanels {
			for ii := range d.Panels[pi].SubPanels[si].PanelItems {
				res := d.Panels[pi].SubPanels[si].PanelItems[ii].Resource
				id := res.identifier()
				if id == "" {
					return nil, nil, fmt.Errorf("panel %d item %d has no resource identifier", pi, ii)
				}
				if res.isQuery() {
					qr, err := preflight.ParseQueryRef(id)
					if err != nil {
						return nil, nil, fmt.Errorf("panel %d item %d: %w", pi, ii, err)
					}
					qrefs = append(qrefs, qr)
					continue
				}
				cr, err := concept.ParseRef(id)
				if err != nil {
					return nil, nil, fmt.Errorf("panel %d item %d: %w", pi, ii, err)
				}
				crefs = append(crefs, cr)
			}
		}
	}
	return crefs, qrefs, nil
}
