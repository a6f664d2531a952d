package value

import (
	"math"
	"time"

	"github.com/kailas-cloud/vfields/internal/domain/field"
)

// Coerce restores the Go type of a value that went through a lossy codec (JSON).
// Values that cannot be converted are returned unchanged.
func Coerce(t field.Type, v any) any {
	if IsNull(v) {
		return nil
	}
	switch t {
	case field.Integer:
		if f, ok := ToFloat(v); ok && f == math.Trunc(f) {
			return int64(f)
		}
	case field.Float:
		if f, ok := ToFloat(v); ok {
			return f
		}
	case field.Boolean:
		if b, ok := ToBool(v); ok {
			return b
		}
	case field.Date, field.DateTime:
		if tm, ok := ToTime(v); ok {
			return tm
		}
	case field.String, field.Enum:
		if s, ok := v.(string); ok {
			return s
		}
	}
	return v
}

// Truncate normalises a time to a calendar date.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
