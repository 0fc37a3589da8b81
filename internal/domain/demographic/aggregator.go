package demographic

import (
	"strings"
	"time"
)

// AgeBuckets are the fixed age bands of the summary, in display order.
var AgeBuckets = []string{"<1", "1-9", "10-17", "18-24", "25-34", "35-44", "45-54", "55-64", "65-74", "75-84", ">84"}

func bucketFor(age int) string {
	switch {
	case age < 1:
		return AgeBuckets[0]
	case age <= 9:
		return AgeBuckets[1]
	case age <= 17:
		return AgeBuckets[2]
	case age <= 24:
		return AgeBuckets[3]
	case age <= 34:
		return AgeBuckets[4]
	case age <= 44:
		return AgeBuckets[5]
	case age <= 54:
		return AgeBuckets[6]
	case age <= 64:
		return AgeBuckets[7]
	case age <= 74:
		return AgeBuckets[8]
	case age <= 84:
		return AgeBuckets[9]
	}
	return AgeBuckets[10]
}

func isFemale(p *Patient) bool {
	g := strings.ToLower(p.Gender)
	return g == "f" || g == "female"
}

func isMale(p *Patient) bool {
	g := strings.ToLower(p.Gender)
	return g == "m" || g == "male"
}

// Aggregate reduces the cohort rows to population statistics. Unknown values
// never contribute to a split.
func Aggregate(patients []Patient, now time.Time) *Statistics {
	gender := BinarySplitPair{Category: "Gender", Left: BinarySplit{Label: "Female"}, Right: BinarySplit{Label: "Male"}}
	vital := BinarySplitPair{Category: "VitalStatus", Left: BinarySplit{Label: "Living"}, Right: BinarySplit{Label: "Deceased"}}
	aarp := BinarySplitPair{Category: "AARP", Left: BinarySplit{Label: "65 and Older"}, Right: BinarySplit{Label: "Under 65"}}
	hispanic := BinarySplitPair{Category: "Hispanic", Left: BinarySplit{Label: "Hispanic"}, Right: BinarySplit{Label: "Not Hispanic"}}

	ages := make(map[string]*AgeByGenderBucket, len(AgeBuckets))
	for _, b := range AgeBuckets {
		ages[b] = &AgeByGenderBucket{}
	}

	for i := range patients {
		p := &patients[i]

		switch {
		case isFemale(p):
			gender.Left.Value++
		case isMale(p):
			gender.Right.Value++
		}

		if p.IsDeceased != nil {
			if *p.IsDeceased {
				vital.Right.Value++
			} else {
				vital.Left.Value++
			}
		}

		if p.IsHispanic != nil {
			if *p.IsHispanic {
				hispanic.Left.Value++
			} else {
				hispanic.Right.Value++
			}
		}

		if age := p.Age(now); age >= 0 {
			if age >= 65 {
				aarp.Left.Value++
			} else {
				aarp.Right.Value++
			}
			bucket := ages[bucketFor(age)]
			switch {
			case isFemale(p):
				bucket.Females++
			case isMale(p):
				bucket.Males++
			default:
				bucket.Others++
			}
		}
	}

	return &Statistics{
		BinarySplits: []BinarySplitPair{gender, vital, aarp, hispanic},
		AgeByGender:  ages,
		PatientCount: len(patients),
	}
}
