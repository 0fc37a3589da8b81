package demographic

import "time"

// Patient is one demographics row for a cohort member. Pointer fields are
// unknowable values the warehouse left null; they are skipped during
// aggregation rather than counted as either side.
type Patient struct {
	ID         string
	Gender     string
	BirthDate  *time.Time
	IsDeceased *bool
	IsHispanic *bool
	Race       string
	Language   string
}

// Age computes completed years as of now, or -1 when birth date is unknown.
func (p *Patient) Age(now time.Time) int {
	if p.BirthDate == nil {
		return -1
	}
	years := now.Year() - p.BirthDate.Year()
	if now.YearDay() < p.BirthDate.YearDay() {
		years--
	}
	return years
}

// BinarySplit is one side of a two-way population breakdown.
type BinarySplit struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

type BinarySplitPair struct {
	Category string      `json:"category"`
	Left     BinarySplit `json:"left"`
	Right    BinarySplit `json:"right"`
}

// AgeByGenderBucket counts one age band split by gender.
type AgeByGenderBucket struct {
	Females int `json:"females"`
	Males   int `json:"males"`
	Others  int `json:"others"`
}

// Statistics is the aggregated, patient-free demographic summary.
type Statistics struct {
	BinarySplits []BinarySplitPair             `json:"binary_splits"`
	AgeByGender  map[string]*AgeByGenderBucket `json:"age_by_gender"`
	PatientCount int                           `json:"patient_count"`
}

// Result pairs the summary with the row-level demographics, which are only
// populated for identified callers.
type Result struct {
	Statistics *Statistics `json:"statistics"`
	Patients   []Patient   `json:"patients,omitempty"`
}
