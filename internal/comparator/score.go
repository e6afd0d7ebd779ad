package comparator

// categoryScore implements §4.4.4's per-category formula:
//
//	1 - (weighted discrepancy mass) / max(paired+unpaired count, 1)
//
// pairedAndUnpaired is the count of elements considered (every paired
// element plus every missing/additional element); mass is the sum of
// severityWeight over the category's discrepancies.
func categoryScore(pairedAndUnpaired int, discrepancies []Discrepancy) float64 {
	denom := pairedAndUnpaired
	if denom < 1 {
		denom = 1
	}
	var mass float64
	for _, d := range discrepancies {
		mass += severityWeight(d.Severity)
	}
	score := 1 - mass/float64(denom)
	if score < 0 {
		score = 0
	}
	return roundScore(score)
}
