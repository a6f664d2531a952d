package field

import "slices"

// Type is the value type of a virtual field.
type Type string

// Field type constants.
const (
	String   Type = "string"
	Integer  Type = "integer"
	Float    Type = "float"
	Boolean  Type = "boolean"
	Date     Type = "date"
	DateTime Type = "datetime"
	Enum     Type = "enum"
	Array    Type = "array"
	Object   Type = "object"
)

var knownTypes = []Type{String, Integer, Float, Boolean, Date, DateTime, Enum, Array, Object}

// Types returns every known field type.
func Types() []Type { return slices.Clone(knownTypes) }

// Valid reports whether t is a known type.
func (t Type) Valid() bool { return slices.Contains(knownTypes, t) }

// Numeric reports whether values of t are ordered numerically or chronologically.
func (t Type) Numeric() bool {
	switch t {
	case Integer, Float, Date, DateTime:
		return true
	default:
		return false
	}
}

// Scalar reports whether t holds a single comparable value.
func (t Type) Scalar() bool { return t != Array && t != Object }
