package entities

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Instant is a point in time that may be invalid. An invalid Instant is what
// unparsable raw input turns into; it is never an error.
type Instant struct {
	t     time.Time
	valid bool
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// InstantOf wraps t as a valid Instant.
func InstantOf(t time.Time) Instant {
	return Instant{t: t.UTC(), valid: true}
}

// InvalidInstant returns the invalid-date sentinel.
func InvalidInstant() Instant {
	return Instant{}
}

// ParseInstant converts a raw value into an Instant. Numbers (and numeric
// strings) are epoch seconds, other strings are ISO-8601 timestamps and nil
// is the Unix epoch.
func ParseInstant(v interface{}) Instant {
	switch x := v.(type) {
	case nil:
		return fromEpochSeconds(0)
	case Instant:
		return x
	case *Instant:
		if x == nil {
			return fromEpochSeconds(0)
		}
		return *x
	case time.Time:
		return InstantOf(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return InvalidInstant()
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpochSeconds(f)
		}
		for _, layout := range instantLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return InstantOf(t)
			}
		}
		return InvalidInstant()
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return InvalidInstant()
	}
	return fromEpochSeconds(f)
}

func fromEpochSeconds(f float64) Instant {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return InvalidInstant()
	}
	sec, frac := math.Modf(f)
	return InstantOf(time.Unix(int64(sec), int64(frac*1e9)))
}

// Valid reports whether the instant holds a real point in time.
func (i Instant) Valid() bool {
	return i.valid
}

// Time returns the underlying time; the zero time for an invalid instant.
func (i Instant) Time() time.Time {
	return i.t
}

// Before reports whether i is a valid instant strictly before t.
func (i Instant) Before(t time.Time) bool {
	return i.valid && i.t.Before(t)
}

func (i Instant) String() string {
	if !i.valid {
		return "Invalid Date"
	}
	return i.t.Format(time.RFC3339)
}

func (i Instant) MarshalJSON() ([]byte, error) {
	if !i.valid {
		return []byte("null"), nil
	}
	return json.Marshal(i.t.Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts anything ParseInstant does; null is an invalid instant.
func (i *Instant) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = InvalidInstant()
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*i = ParseInstant(v)
	return nil
}

// recordValue is the raw representation sent back to the server.
func (i Instant) recordValue() interface{} {
	if !i.valid {
		return nil
	}
	return i.t.Format(time.RFC3339Nano)
}
