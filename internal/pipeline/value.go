package pipeline

import (
	"encoding/json"
	"fmt"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

// Value variants. Suppressed cells (privacy threshold) and
// not-applicable cells are distinct from zero and from each other.
const (
	ValueNumeric ValueKind = iota
	ValueSuppressed
	ValueNotApplicable
)

// Value is a statistical observation: a number, a suppressed marker, or
// a not-applicable marker. The zero Value is NotApplicable.
type Value struct {
	kind ValueKind
	num  float64
}

// Numeric wraps a concrete observation.
func Numeric(v float64) Value {
	return Value{kind: ValueNumeric, num: v}
}

// Suppressed marks a cell withheld by the source.
func Suppressed() Value {
	return Value{kind: ValueSuppressed}
}

// NotApplicable marks a combination the source does not report.
func NotApplicable() Value {
	return Value{kind: ValueNotApplicable}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value carries no number.
func (v Value) IsNull() bool { return v.kind != ValueNumeric }

// Float returns the numeric value; ok is false for null variants.
func (v Value) Float() (float64, bool) {
	if v.kind != ValueNumeric {
		return 0, false
	}
	return v.num, true
}

// Ptr returns a *float64 suitable for nullable database columns.
func (v Value) Ptr() *float64 {
	if v.kind != ValueNumeric {
		return nil
	}
	f := v.num
	return &f
}

// MarshalJSON encodes null variants as JSON null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind != ValueNumeric {
		return []byte("null"), nil
	}
	return json.Marshal(v.num)
}

func (v Value) String() string {
	switch v.kind {
	case ValueNumeric:
		return fmt.Sprintf("%g", v.num)
	case ValueSuppressed:
		return "suppressed"
	default:
		return "n/a"
	}
}
