package healthdist

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcileStates(t *testing.T) {
	tests := []struct {
		name       string
		population int
		counts     Counts
		state      State
		enabled    bool
		percentage int
	}{
		{"all zero matches", 0, Counts{}, StateMatch, true, 0},
		{"exact sum", 10, Counts{4, 3, 2, 1}, StateMatch, true, 100},
		{"one over", 10, Counts{4, 3, 2, 2}, StateExceeds, false, 100},
		{"short", 10, Counts{4, 3, 1, 0}, StateDeficit, false, 80},
		{"counts without population", 0, Counts{Healthy: 3}, StateExceeds, false, 0},
		{"negative treated as zero", 5, Counts{Healthy: 5, Bad: -2}, StateMatch, true, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Reconcile(tt.population, tt.counts)
			assert.Equal(t, tt.state, result.State)
			assert.Equal(t, tt.enabled, result.SubmitEnabled)
			assert.Equal(t, tt.percentage, result.Percentage)
		})
	}
}

func TestReconcileStateMatchesSumForAllSmallInputs(t *testing.T) {
	for population := 0; population <= 6; population++ {
		for healthy := 0; healthy <= 3; healthy++ {
			for good := 0; good <= 3; good++ {
				for bad := 0; bad <= 2; bad++ {
					for deceased := 0; deceased <= 2; deceased++ {
						counts := Counts{healthy, good, bad, deceased}
						result := Reconcile(population, counts)
						sum := healthy + good + bad + deceased
						switch {
						case sum == population:
							assert.Equal(t, StateMatch, result.State)
						case sum > population:
							assert.Equal(t, StateExceeds, result.State)
						default:
							assert.Equal(t, StateDeficit, result.State)
						}
						assert.Equal(t, result.State == StateMatch, result.SubmitEnabled)
					}
				}
			}
		}
	}
}

func TestReconcileMessagesCiteTotals(t *testing.T) {
	exceeds := Reconcile(10, Counts{4, 3, 2, 2})
	assert.Contains(t, exceeds.Message, "11")
	assert.Contains(t, exceeds.Message, "10")
	assert.Equal(t, int64(1), exceeds.Difference)

	deficit := Reconcile(10, Counts{Healthy: 8})
	assert.Equal(t, "Health status total (8) is less than population (10) by 2", deficit.Message)

	assert.Equal(t, MatchMessage, Reconcile(3, Counts{Good: 3}).Message)
}

func TestReconcileRawTreatsGarbageAsZero(t *testing.T) {
	result := ReconcileRaw("10", "abc", "", "  4 ", "6")
	assert.Equal(t, int64(10), result.Total)
	assert.Equal(t, StateMatch, result.State)
}

func TestParseCount(t *testing.T) {
	cases := map[string]int{
		"":           0,
		" 7 ":        7,
		"x":          0,
		"-3":         0,
		"2.9":        2,
		"NaN":        0,
		"Inf":        0,
		"1e2":        100,
		"00012":      12,
		"1e20":       MaxCount,
		"1e400":      MaxCount,
		"2147483648": MaxCount,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseCount(raw), "raw=%q", raw)
	}
}

func TestReconcileLargeCountsDoNotWrap(t *testing.T) {
	result := Reconcile(0, Counts{Healthy: math.MaxInt, Good: math.MaxInt, Bad: 2})
	assert.Equal(t, StateExceeds, result.State)
	assert.False(t, result.SubmitEnabled)
	assert.Equal(t, int64(2*MaxCount+2), result.Total)

	raw := ReconcileRaw("5", "1e20", "5", "", "")
	assert.Equal(t, StateExceeds, raw.State)
	assert.Equal(t, int64(MaxCount)+5, raw.Total)

	assert.Equal(t, StateMatch, Reconcile(MaxCount, Counts{Healthy: MaxCount}).State)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Reconcile(2, Counts{Good: 2}).Err())

	err := Reconcile(10, Counts{4, 3, 2, 2}).Err()
	var mismatch *MismatchError
	if assert.True(t, errors.As(err, &mismatch)) {
		assert.Equal(t, int64(11), mismatch.Total)
		assert.Equal(t, 10, mismatch.Population)
	}
	assert.Equal(t, "Health status total (11) must equal the total population (10).", err.Error())
}

func TestApplyGatesSubmit(t *testing.T) {
	form := &Form{SubmitEnabled: true}
	Apply(Reconcile(10, Counts{Healthy: 11}), form)
	assert.False(t, form.SubmitEnabled)
	assert.Equal(t, StateExceeds, form.State)
	assert.Equal(t, 100, form.Percentage)

	Apply(Reconcile(10, Counts{Healthy: 10}), form)
	assert.True(t, form.SubmitEnabled)
	assert.Equal(t, MatchMessage, form.Message)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		counts Counts
		want   Status
	}{
		{Counts{}, StatusGood},
		{Counts{Healthy: 6, Good: 4}, StatusExcellent},
		{Counts{Healthy: 4, Bad: 6}, StatusVeryGood},
		{Counts{Healthy: 1, Good: 6, Bad: 3}, StatusVeryGood},
		{Counts{Healthy: 2, Bad: 8}, StatusGood},
		{Counts{Good: 5, Bad: 5}, StatusGood},
		{Counts{Good: 1, Bad: 7, Deceased: 2}, StatusPoor},
		{Counts{Bad: 6, Deceased: 4}, StatusVeryPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveStatus(tt.counts), "counts=%+v", tt.counts)
	}
	assert.True(t, ValidStatus("very_good"))
	assert.False(t, ValidStatus("fine"))
}

func TestDistributionForPlacesPopulationInOneBucket(t *testing.T) {
	assert.Equal(t, Counts{Healthy: 12}, DistributionFor(StatusExcellent, 12))
	assert.Equal(t, Counts{Healthy: 12}, DistributionFor(StatusVeryGood, 12))
	assert.Equal(t, Counts{Good: 12}, DistributionFor(StatusGood, 12))
	assert.Equal(t, Counts{Bad: 12}, DistributionFor(StatusVeryPoor, 12))
	assert.Equal(t, Counts{Good: 3}, DistributionFor(Status("wilting"), 3))
	assert.Equal(t, Counts{}, DistributionFor(StatusGood, -4))
}
