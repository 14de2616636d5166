package entities

import "math"

// RepeatUnit is the human-scale unit of a repeat interval
type RepeatUnit string

const (
	RepeatHours  RepeatUnit = "hours"
	RepeatDays   RepeatUnit = "days"
	RepeatWeeks  RepeatUnit = "weeks"
	RepeatMonths RepeatUnit = "months"
	RepeatYears  RepeatUnit = "years"
)

// RepeatAfter is a repeat interval expressed in its largest whole unit
type RepeatAfter struct {
	Unit   RepeatUnit `json:"unit"`
	Amount float64    `json:"amount"`
}

// Checked in this order: a 210 day interval is 7 months, not 30 weeks,
// and a zero interval is 0 years.
var dayUnits = []struct {
	unit RepeatUnit
	days float64
}{
	{RepeatYears, 365},
	{RepeatMonths, 30},
	{RepeatWeeks, 7},
}

// ParseRepeatAfter converts a repeat interval in seconds into a unit and amount.
func ParseRepeatAfter(seconds float64) RepeatAfter {
	hours := seconds / 3600
	if math.Mod(hours, 24) != 0 {
		return RepeatAfter{Unit: RepeatHours, Amount: hours}
	}

	days := hours / 24
	for _, u := range dayUnits {
		if math.Mod(days, u.days) == 0 {
			return RepeatAfter{Unit: u.unit, Amount: days / u.days}
		}
	}

	return RepeatAfter{Unit: RepeatDays, Amount: days}
}

// Seconds converts the interval back into seconds.
func (r RepeatAfter) Seconds() float64 {
	const day = 24 * 3600

	switch r.Unit {
	case RepeatHours:
		return r.Amount * 3600
	case RepeatDays:
		return r.Amount * day
	case RepeatWeeks:
		return r.Amount * 7 * day
	case RepeatMonths:
		return r.Amount * 30 * day
	case RepeatYears:
		return r.Amount * 365 * day
	default:
		return 0
	}
}

// IsRepeating reports whether the interval is non-zero.
func (r RepeatAfter) IsRepeating() bool {
	return r.Amount != 0
}
