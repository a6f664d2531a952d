// Package value compares and converts computed values with database-like semantics.
package value

import (
	"cmp"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// IsNull reports whether v is absent: nil, or a nil pointer/map/slice.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// ToFloat converts numeric values and numeric strings.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToTime converts time values and date/datetime strings.
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// ToBool converts booleans and the usual textual/numeric spellings.
func ToBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	}
	if f, ok := ToFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

// ToString renders v the way a comparison against text would see it.
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// Compare orders a against b. Numbers compare numerically, times chronologically,
// booleans false<true, everything else as text. Nulls sort before any value.
// ok is false when the pair has no meaningful order (e.g. number vs non-numeric text).
func Compare(a, b any) (result int, ok bool) {
	an, bn := IsNull(a), IsNull(b)
	switch {
	case an && bn:
		return 0, true
	case an:
		return -1, true
	case bn:
		return 1, true
	}

	if ta, isTime := a.(time.Time); isTime {
		if tb, ok := ToTime(b); ok {
			return ta.Compare(tb), true
		}
		return 0, false
	}
	if tb, isTime := b.(time.Time); isTime {
		if ta, ok := ToTime(a); ok {
			return ta.Compare(tb), true
		}
		return 0, false
	}

	if ba, isBool := a.(bool); isBool {
		if bb, ok := ToBool(b); ok {
			return compareBool(ba, bb), true
		}
		return 0, false
	}

	_, aIsText := a.(string)
	_, bIsText := b.(string)
	if !aIsText || !bIsText {
		fa, okA := ToFloat(a)
		fb, okB := ToFloat(b)
		if okA && okB {
			return cmp.Compare(fa, fb), true
		}
		if !aIsText && !bIsText {
			return cmp.Compare(ToString(a), ToString(b)), true
		}
		return 0, false
	}
	return cmp.Compare(a.(string), b.(string)), true
}

// Equal reports loose equality: numerically for numbers, textually otherwise.
func Equal(a, b any) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return ToString(a) == ToString(b)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
