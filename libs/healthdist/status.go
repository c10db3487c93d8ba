package healthdist

// Status is the overall condition category stored on a tree record.
type Status string

const (
	StatusVeryPoor  Status = "very_poor"
	StatusPoor      Status = "poor"
	StatusGood      Status = "good"
	StatusVeryGood  Status = "very_good"
	StatusExcellent Status = "excellent"
)

// Statuses lists every status from worst to best.
var Statuses = []Status{StatusVeryPoor, StatusPoor, StatusGood, StatusVeryGood, StatusExcellent}

// ValidStatus reports whether raw names a known status.
func ValidStatus(raw string) bool {
	for _, status := range Statuses {
		if string(status) == raw {
			return true
		}
	}
	return false
}

// DeriveStatus classifies a distribution. An empty distribution is good.
func DeriveStatus(counts Counts) Status {
	total := counts.Total()
	if total <= 0 {
		return StatusGood
	}
	healthyPct := float64(counts.Healthy) / float64(total) * 100
	goodPct := float64(counts.Good) / float64(total) * 100

	switch {
	case healthyPct >= 60:
		return StatusExcellent
	case healthyPct >= 40 || healthyPct+goodPct >= 70:
		return StatusVeryGood
	case healthyPct >= 20 || healthyPct+goodPct >= 50:
		return StatusGood
	case float64(counts.Deceased)/float64(total) <= 0.3:
		return StatusPoor
	default:
		return StatusVeryPoor
	}
}

// DistributionFor places the whole population in the bucket that matches
// status. Unknown statuses count as good.
func DistributionFor(status Status, population int) Counts {
	population = nonNegative(population)
	switch status {
	case StatusExcellent, StatusVeryGood:
		return Counts{Healthy: population}
	case StatusPoor, StatusVeryPoor:
		return Counts{Bad: population}
	default:
		return Counts{Good: population}
	}
}
