package cohort

import (
	"testing"

	"github.com/google/uuid"

	"github.com/uwrit/leafgo/internal/domain/concept"
	"github.com/uwrit/leafgo/internal/domain/panel"
)

func queryWith(conceptIDs ...uuid.UUID) *panel.CountQuery {
	items := make([]panel.PanelItem, len(conceptIDs))
	for i, id := range conceptIDs {
		items[i] = panel.PanelItem{Concept: &concept.Concept{ID: id}}
	}
	return &panel.CountQuery{
		QueryID: uuid.New(),
		Panels: []panel.Panel{{
			IncludePanel: true,
			SubPanels:    []panel.SubPanel{{PanelItems: items}},
		}},
	}
}

func TestObfuscateDisabled(t *testing.T) {
	count := &PatientCount{Value: 42}
	Obfuscator{}.Obfuscate(count, queryWith(uuid.New()))
	if count.Value != 42 || count.PlusMinus != 0 || count.UnderThreshold {
		t.Errorf("disabled obfuscator changed the count: %+v", count)
	}
}

func TestObfuscateMasksLowCells(t *testing.T) {
	o := Obfuscator{Enabled: true, Shift: 10, LowCellThreshold: 10}
	count := &PatientCount{Value: 4}
	o.Obfuscate(count, queryWith(uuid.New()))
	if count.Value != 10 || !count.UnderThreshold {
		t.Errorf("low cell not masked: %+v", count)
	}

	count = &PatientCount{Value: 0}
	o.Obfuscate(count, queryWith(uuid.New()))
	if count.Value != 10 || !count.UnderThreshold {
		t.Errorf("zero count not masked: %+v", count)
	}
}

func TestObfuscateShiftsWithinBounds(t *testing.T) {
	o := Obfuscator{Enabled: true, Shift: 5, LowCellThreshold: 5}
	count := &PatientCount{Value: 100}
	o.Obfuscate(count, queryWith(uuid.New()))
	if count.Value < 95 || count.Value > 105 {
		t.Errorf("shifted value %d outside [95, 105]", count.Value)
	}
	if count.PlusMinus != 5 {
		t.Errorf("plus minus = %d, want 5", count.PlusMinus)
	}
	if count.UnderThreshold {
		t.Error("count above threshold flagged as under")
	}
}

func TestObfuscateDeterministicAcrossRearrangement(t *testing.T) {
	o := Obfuscator{Enabled: true, Shift: 5, LowCellThreshold: 5}
	id1, id2, id3 := uuid.New(), uuid.New(), uuid.New()

	// The same concepts in a different item order within a sub-panel.
	a := queryWith(id1, id2, id3)
	b := queryWith(id3, id1, id2)

	ca := &PatientCount{Value: 100}
	cb := &PatientCount{Value: 100}
	o.Obfuscate(ca, a)
	o.Obfuscate(cb, b)
	if ca.Value != cb.Value {
		t.Errorf("rearranged query shifted differently: %d vs %d", ca.Value, cb.Value)
	}

	// Different concepts may shift differently.
	cc := &PatientCount{Value: 100}
	o.Obfuscate(cc, queryWith(uuid.New()))
	if cc.Value < 95 || cc.Value > 105 {
		t.Errorf("shifted value %d outside bounds", cc.Value)
	}
}

func TestObfuscateDeterministicAcrossPanelOrder(t *testing.T) {
	o := Obfuscator{Enabled: true, Shift: 5, LowCellThreshold: 5}
	id1, id2 := uuid.New(), uuid.New()

	twoPanels := func(first, second uuid.UUID) *panel.CountQuery {
		return &panel.CountQuery{
			QueryID: uuid.New(),
			Panels: []panel.Panel{
				{IncludePanel: true, SubPanels: []panel.SubPanel{{PanelItems: []panel.PanelItem{{Concept: &concept.Concept{ID: first}}}}}},
				{IncludePanel: true, SubPanels: []panel.SubPanel{{PanelItems: []panel.PanelItem{{Concept: &concept.Concept{ID: second}}}}}},
			},
		}
	}

	ca := &PatientCount{Value: 100}
	cb := &PatientCount{Value: 100}
	o.Obfuscate(ca, twoPanels(id1, id2))
	o.Obfuscate(cb, twoPanels(id2, id1))
	if ca.Value != cb.Value {
		t.Errorf("reordered panels shifted differently: %d vs %d", ca.Value, cb.Value)
	}
}
