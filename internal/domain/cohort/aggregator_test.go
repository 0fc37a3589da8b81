package cohort

import (
	"testing"
)

func set(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func equalSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

func TestAggregateIntersectsAndSubtracts(t *testing.T) {
	partials := []PartialCount{
		{PatientIDs: set("1", "2", "3", "4"), IsInclusion: true},
		{PatientIDs: set("2", "3", "4", "5"), IsInclusion: true},
		{PatientIDs: set("3"), IsInclusion: false},
	}
	got := Aggregate(partials)
	if !equalSets(got, set("2", "4")) {
		t.Errorf("Aggregate = %v, want {2 4}", got)
	}
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	a := []PartialCount{
		{PatientIDs: set("1", "2", "3"), IsInclusion: true},
		{PatientIDs: set("2", "3"), IsInclusion: true},
		{PatientIDs: set("2"), IsInclusion: false},
	}
	b := []PartialCount{a[2], a[1], a[0]}
	c := []PartialCount{a[1], a[0], a[2]}

	want := Aggregate(a)
	if !equalSets(Aggregate(b), want) || !equalSets(Aggregate(c), want) {
		t.Errorf("aggregation depends on partial order")
	}
	if !equalSets(want, set("3")) {
		t.Errorf("Aggregate = %v, want {3}", want)
	}
}

func TestAggregateNoInclusionsIsEmpty(t *testing.T) {
	got := Aggregate([]PartialCount{
		{PatientIDs: set("1", "2"), IsInclusion: false},
	})
	if len(got) != 0 {
		t.Errorf("Aggregate = %v, want empty set", got)
	}
	if got := Aggregate(nil); len(got) != 0 {
		t.Errorf("Aggregate(nil) = %v, want empty set", got)
	}
}

func TestAggregateDisjointInclusions(t *testing.T) {
	got := Aggregate([]PartialCount{
		{PatientIDs: set("1", "2"), IsInclusion: true},
		{PatientIDs: set("3", "4"), IsInclusion: true},
	})
	if len(got) != 0 {
		t.Errorf("Aggregate = %v, want empty intersection", got)
	}
}
