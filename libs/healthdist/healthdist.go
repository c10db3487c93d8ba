// Package healthdist reconciles the per-category health counts of a tree record
// with its declared population.
package healthdist

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// State is the outcome of a reconciliation.
type State string

const (
	StateMatch   State = "match"
	StateExceeds State = "exceeds"
	StateDeficit State = "deficit"
)

// MatchMessage is shown when the counts add up to the population.
const MatchMessage = "Health status counts match the total population!"

// MaxCount is the largest population or sub-count a record can store (the
// range of a PostgreSQL INTEGER column). Larger inputs are clamped to it.
const MaxCount = math.MaxInt32

// Counts holds the four health sub-counts of a record.
type Counts struct {
	Healthy  int `json:"healthy_count"`
	Good     int `json:"good_count"`
	Bad      int `json:"bad_count"`
	Deceased int `json:"deceased_count"`
}

// Total returns the sum of all four sub-counts. The sum is taken in int64 so
// four values up to MaxCount cannot overflow.
func (c Counts) Total() int64 {
	return int64(c.Healthy) + int64(c.Good) + int64(c.Bad) + int64(c.Deceased)
}

// Result is the computed reconciliation state for one set of inputs.
type Result struct {
	Population    int    `json:"population"`
	Total         int64  `json:"total"`
	Difference    int64  `json:"difference"`
	Percentage    int    `json:"percentage"`
	State         State  `json:"state"`
	SubmitEnabled bool   `json:"submit_enabled"`
	Message       string `json:"message"`
}

// Reconcile compares the sum of counts with population. Negative inputs are
// treated as zero and inputs above MaxCount as MaxCount. Percentage is clamped to [0,100] for display; the state is
// decided on the unclamped total.
func Reconcile(population int, counts Counts) Result {
	population = clampCount(population)
	counts = Counts{
		Healthy:  clampCount(counts.Healthy),
		Good:     clampCount(counts.Good),
		Bad:      clampCount(counts.Bad),
		Deceased: clampCount(counts.Deceased),
	}
	total := counts.Total()
	declared := int64(population)

	result := Result{
		Population: population,
		Total:      total,
		Percentage: displayPercentage(total, population),
	}

	switch {
	case total == declared:
		result.State = StateMatch
		result.SubmitEnabled = true
		result.Message = MatchMessage
	case total > declared:
		result.State = StateExceeds
		result.Difference = total - declared
		result.Message = fmt.Sprintf("Health status total (%d) exceeds population (%d) by %d!", total, population, result.Difference)
	default:
		result.State = StateDeficit
		result.Difference = declared - total
		result.Message = fmt.Sprintf("Health status total (%d) is less than population (%d) by %d", total, population, result.Difference)
	}
	return result
}

// ReconcileRaw parses raw form values with ParseCount and reconciles them.
func ReconcileRaw(population, healthy, good, bad, deceased string) Result {
	return Reconcile(ParseCount(population), Counts{
		Healthy:  ParseCount(healthy),
		Good:     ParseCount(good),
		Bad:      ParseCount(bad),
		Deceased: ParseCount(deceased),
	})
}

// ParseCount converts a raw form value to a count. Empty, non-numeric and
// negative values become zero, values above MaxCount become MaxCount, and a
// fractional value is truncated.
func ParseCount(raw string) int {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	switch {
	case math.IsNaN(parsed), err == nil && math.IsInf(parsed, 0):
		return 0
	case parsed <= 0:
		return 0
	case parsed >= MaxCount:
		return MaxCount
	}
	return int(parsed)
}

// Err returns nil for a matching result and a server-side rejection otherwise.
func (r Result) Err() error {
	if r.State == StateMatch {
		return nil
	}
	return &MismatchError{Total: r.Total, Population: r.Population}
}

// MismatchError reports a distribution that does not add up to the population.
type MismatchError struct {
	Total      int64
	Population int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("Health status total (%d) must equal the total population (%d).", e.Total, e.Population)
}

func displayPercentage(total int64, population int) int {
	if population <= 0 {
		return 0
	}
	pct := int(math.Round(float64(total) / float64(population) * 100))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

func nonNegative(value int) int {
	if value < 0 {
		return 0
	}
	return value
}

func clampCount(value int) int {
	if value > MaxCount {
		return MaxCount
	}
	return nonNegative(value)
}
