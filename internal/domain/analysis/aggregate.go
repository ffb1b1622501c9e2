package analysis

// Scoring weights per severity. The weights are a design decision, not a
// derived constant; downstream consumers depend on the exact values.
const (
	weightCritical = 3.0
	weightHigh     = 2.0
	weightMedium   = 1.0
	weightLow      = 0.5
)

// AggregateFindings counts findings per severity and computes the overall
// 0-10 score: clamp(10 - (3*critical + 2*high + 1*medium + 0.5*low), 0, 10).
// Zero findings score exactly 10.
func AggregateFindings(findings []FindingCandidate) (SeverityCounts, float64) {
	var c SeverityCounts
	for _, f := range findings {
		switch Severity(f.Severity) {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		}
	}
	c.Total = c.Critical + c.High + c.Medium + c.Low

	score := 10.0 -
		(weightCritical*float64(c.Critical) +
			weightHigh*float64(c.High) +
			weightMedium*float64(c.Medium) +
			weightLow*float64(c.Low))
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return c, score
}
