package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const secondsPerDay = 3600 * 24

func TestParseRepeatAfter_Hours(t *testing.T) {
	for _, seconds := range []float64{3600, 5 * 3600, 25 * 3600, 5400} {
		r := ParseRepeatAfter(seconds)
		assert.Equal(t, RepeatHours, r.Unit, "seconds=%v", seconds)
		assert.Equal(t, seconds/3600, r.Amount, "seconds=%v", seconds)
	}
}

func TestParseRepeatAfter_YearsWinOverMonthsAndWeeks(t *testing.T) {
	// 365*30*7 days is divisible by all three divisors
	for _, years := range []float64{1, 2, 210} {
		r := ParseRepeatAfter(years * 365 * secondsPerDay)
		assert.Equal(t, RepeatYears, r.Unit)
		assert.Equal(t, years, r.Amount)
	}
}

func TestParseRepeatAfter_MonthsBeforeWeeks(t *testing.T) {
	r := ParseRepeatAfter(210 * secondsPerDay)

	assert.Equal(t, RepeatMonths, r.Unit)
	assert.Equal(t, float64(7), r.Amount)
}

func TestParseRepeatAfter_WeeksAndDays(t *testing.T) {
	assert.Equal(t, RepeatAfter{Unit: RepeatWeeks, Amount: 2}, ParseRepeatAfter(14*secondsPerDay))
	assert.Equal(t, RepeatAfter{Unit: RepeatDays, Amount: 1}, ParseRepeatAfter(secondsPerDay))
	assert.Equal(t, RepeatAfter{Unit: RepeatDays, Amount: 10}, ParseRepeatAfter(10*secondsPerDay))
	assert.Equal(t, RepeatAfter{Unit: RepeatMonths, Amount: 1}, ParseRepeatAfter(30*secondsPerDay))
}

func TestParseRepeatAfter_ZeroIsZeroYears(t *testing.T) {
	r := ParseRepeatAfter(0)

	assert.Equal(t, RepeatYears, r.Unit)
	assert.Zero(t, r.Amount)
	assert.False(t, r.IsRepeating())
}

func TestRepeatAfter_SecondsInvertsParse(t *testing.T) {
	for _, seconds := range []float64{3600, 5400, secondsPerDay, 14 * secondsPerDay, 60 * secondsPerDay, 730 * secondsPerDay} {
		assert.Equal(t, seconds, ParseRepeatAfter(seconds).Seconds(), "seconds=%v", seconds)
	}
}
