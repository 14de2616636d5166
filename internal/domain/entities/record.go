package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Record is a raw key/value record as delivered by the server.
type Record map[string]interface{}

// withDefaults returns a copy of r where every key missing from r is taken from defaults.
func (r Record) withDefaults(defaults Record) Record {
	out := make(Record, len(defaults)+len(r))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Int64 coerces the value under key to an integer.
// Non-numeric input yields InvalidID.
func (r Record) Int64(key string) int64 {
	return toInt64(r[key])
}

// Float64 coerces the value under key to a float. Non-numeric input yields NaN.
func (r Record) Float64(key string) float64 {
	switch v := r[key].(type) {
	case nil:
		return 0
	case string:
		if strings.TrimSpace(v) == "" {
			return 0
		}
	}
	f, err := cast.ToFloat64E(r[key])
	if err != nil {
		return math.NaN()
	}
	return f
}

func (r Record) String(key string) string {
	return cast.ToString(r[key])
}

func (r Record) Bool(key string) bool {
	return cast.ToBool(r[key])
}

func (r Record) Instant(key string) Instant {
	return ParseInstant(r[key])
}

// Record returns the nested record under key, or an empty record.
func (r Record) Record(key string) Record {
	return toRecord(r[key])
}

// Slice returns the list under key, or nil.
func (r Record) Slice(key string) []interface{} {
	return toSlice(r[key])
}

func toInt64(v interface{}) int64 {
	switch s := v.(type) {
	case nil:
		return 0
	case json.Number:
		return stringToInt64(string(s))
	case string:
		return stringToInt64(s)
	}

	n, err := cast.ToInt64E(v)
	if err != nil {
		return InvalidID
	}
	return n
}

// stringToInt64 reads s as a decimal number the way a browser's Number()
// does: leading zeros are not octal, exponents are allowed and fractions are
// truncated. 0x, 0o and 0b prefixes select another base.
func stringToInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			n, err := strconv.ParseInt(s, 0, 64)
			if err != nil || strings.Contains(s, "_") {
				return InvalidID
			}
			return n
		}
	}

	if strings.Contains(s, "_") {
		return InvalidID
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return InvalidID
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return InvalidID
	}
	return int64(f)
}

func toRecord(v interface{}) Record {
	switch m := v.(type) {
	case nil:
		return Record{}
	case Record:
		return m
	case map[string]interface{}:
		return Record(m)
	}

	m, err := cast.ToStringMapE(v)
	if err != nil {
		return Record{}
	}
	return Record(m)
}

func toSlice(v interface{}) []interface{} {
	switch s := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return s
	case []Record:
		out := make([]interface{}, 0, len(s))
		for _, item := range s {
			out = append(out, item)
		}
		return out
	}

	s, err := cast.ToSliceE(v)
	if err != nil {
		return nil
	}
	return s
}

// RecordsFromJSON decodes either a single JSON object or an array of objects
// into raw records. Numbers are kept as json.Number so large ids survive.
func RecordsFromJSON(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode task records: %w", err)
	}

	switch p := payload.(type) {
	case map[string]interface{}:
		return []Record{Record(p)}, nil
	case []interface{}:
		if len(p) == 0 {
			return nil, ErrEmptyRecordSource
		}
		records := make([]Record, 0, len(p))
		for i, item := range p {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: element %d is not an object", ErrInvalidRecord, i)
			}
			records = append(records, Record(m))
		}
		return records, nil
	default:
		return nil, fmt.Errorf("%w: expected an object or an array of objects", ErrInvalidRecord)
	}
}
