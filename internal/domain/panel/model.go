package panel

import (
	"time"

	"github.com/uwrit/leafgo/internal/domain/concept"
)

// NumericOp is a comparison applied to a concept's numeric field.
type NumericOp string

const (
	NumericEq      NumericOp = "eq"
	NumericGt      NumericOp = "gt"
	NumericGte     NumericOp = "gte"
	NumericLt      NumericOp = "lt"
	NumericLte     NumericOp = "lte"
	NumericBetween NumericOp = "between"
)

// Bounds returns how many operands the operator requires.
func (op NumericOp) Bounds() int {
	if op == NumericBetween {
		return 2
	}
	return 1
}

type NumericFilter struct {
	Op     NumericOp
	Bounds []float64
}

// DateIncrementType is the unit of a relative date boundary, or one of the
// two anchors (now, a specific date).
type DateIncrementType string

const (
	IncrementNone     DateIncrementType = ""
	IncrementMinute   DateIncrementType = "minute"
	IncrementHour     DateIncrementType = "hour"
	IncrementDay      DateIncrementType = "day"
	IncrementWeek     DateIncrementType = "week"
	IncrementMonth    DateIncrementType = "month"
	IncrementYear     DateIncrementType = "year"
	IncrementNow      DateIncrementType = "now"
	IncrementSpecific DateIncrementType = "specific"
)

// IsUnit reports whether the type is a relative time unit.
func (t DateIncrementType) IsUnit() bool {
	switch t {
	case IncrementMinute, IncrementHour, IncrementDay, IncrementWeek, IncrementMonth, IncrementYear:
		return true
	}
	return false
}

// DateBoundary anchors one side of a panel date filter: a specific date, the
// current moment, or an offset from the current moment.
type DateBoundary struct {
	IncrementType DateIncrementType
	Increment     int
	Date          time.Time
}

type DateFilter struct {
	Start DateBoundary
	End   DateBoundary
}

// SequenceType relates two panel items in time.
type SequenceType string

const (
	SequenceEncounter        SequenceType = "encounter"
	SequenceEvent            SequenceType = "event"
	SequencePlusMinus        SequenceType = "plusminus"
	SequenceWithinFollowing  SequenceType = "within-following"
	SequenceAnytimeFollowing SequenceType = "anytime-following"
)

// JoinSequence orders two items of a sub-panel in time: the second item's
// event must relate to the first item's event per Type. Ordering constraints
// are compiled as self-joins, not per-item predicates.
type JoinSequence struct {
	FirstItemIndex  int
	SecondItemIndex int
	Type            SequenceType
	Increment       int
	IncrementType   DateIncrementType
}

// PanelItem is one clinical concept placed in a query.
type PanelItem struct {
	Index         int
	SubPanelIndex int
	PanelIndex    int

	Concept         *concept.Concept
	NumericFilter   *NumericFilter
	Specializations []concept.Specialization
}

func (pi *PanelItem) UseNumericFilter() bool {
	return pi.NumericFilter != nil && pi.Concept != nil && pi.Concept.IsNumeric
}

func (pi *PanelItem) HasSpecializations() bool {
	return len(pi.Specializations) > 0
}

// SubPanel is an AND-combined group of items. A patient satisfies the
// sub-panel by matching at least MinimumCount of its items, subject to the
// optional JoinSequence.
type SubPanel struct {
	Index           int
	PanelIndex      int
	IncludeSubPanel bool
	MinimumCount    int
	JoinSequence    *JoinSequence
	PanelItems      []PanelItem
}

func (sp *SubPanel) HasCountFilter() bool {
	return sp.MinimumCount > 1
}

// Panel is one clinical question, marked inclusion or exclusion. The date
// filter, when present, bounds every item in the panel.
type Panel struct {
	Index        int
	IncludePanel bool
	Domain       string
	DateFilter   *DateFilter
	SubPanels    []SubPanel
}

func (p *Panel) IsDateFiltered() bool {
	return p.DateFilter != nil
}

// Concepts returns every hydrated concept placed in the panel.
func (p *Panel) Concepts() []*concept.Concept {
	var out []*concept.Concept
	for i := range p.SubPanels {
		for j := range p.SubPanels[i].PanelItems {
			out = append(out, p.SubPanels[i].PanelItems[j].Concept)
		}
	}
	return out
}
