package cohort

// PartialCount is the patient set returned by one sub-panel statement.
type PartialCount struct {
	PatientIDs    map[string]struct{}
	IsInclusion   bool
	PanelIndex    int
	SubPanelIndex int
}

// Aggregate reduces the partials to the final patient set: the intersection
// of every inclusion set minus the union of every exclusion set. Order of
// the partials never affects the result.
func Aggregate(partials []PartialCount) map[string]struct{} {
	var result map[string]struct{}
	seen := false

	for _, p := range partials {
		if !p.IsInclusion {
			continue
		}
		if !seen {
			result = make(map[string]struct{}, len(p.PatientIDs))
			for id := range p.PatientIDs {
				result[id] = struct{}{}
			}
			seen = true
			continue
		}
		for id := range result {
			if _, ok := p.PatientIDs[id]; !ok {
				delete(result, id)
			}
		}
	}
	if !seen {
		return map[string]struct{}{}
	}

	for _, p := range partials {
		if p.IsInclusion {
			continue
		}
		for id := range p.PatientIDs {
			delete(result, id)
		}
	}
	return result
}
