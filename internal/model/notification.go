package model

import (
	"strconv"
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/gnmipath"
)

// ValueKind tags the scalar carried by a notification.
type ValueKind int

const (
	ValueUnknown ValueKind = iota
	ValueInt
	ValueUint
	ValueFloat
	ValueString
	ValueBool
)

// Value is the typed scalar of one update. Numeric kinds share the Num
// field; counters larger than 2^53 lose precision, which Prometheus
// float exposition loses anyway.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
}

func IntValue(v int64) Value     { return Value{Kind: ValueInt, Num: float64(v)} }
func UintValue(v uint64) Value   { return Value{Kind: ValueUint, Num: float64(v)} }
func FloatValue(v float64) Value { return Value{Kind: ValueFloat, Num: v} }
func StringValue(v string) Value { return Value{Kind: ValueString, Str: v} }
func BoolValue(v bool) Value     { return Value{Kind: ValueBool, Bool: v} }

// Float returns the numeric value. The second return is false for
// non-numeric kinds (bool maps to 0/1 and is considered numeric).
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case ValueInt, ValueUint, ValueFloat:
		return v.Num, true
	case ValueBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Text renders the value for use as a label value.
func (v Value) Text() string {
	switch v.Kind {
	case ValueInt, ValueUint:
		return strconv.FormatInt(int64(v.Num), 10)
	case ValueFloat:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueString:
		return v.Str
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Notification is one immutable update event received from a device
// stream: a full schema path, a typed value, and a timestamp. Delete
// events carry no value.
type Notification struct {
	Target     string
	Path       gnmipath.Path
	Value      Value
	Timestamp  time.Time
	Duplicates uint32
	Delete     bool
}
