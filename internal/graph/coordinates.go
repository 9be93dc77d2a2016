package graph

import (
	"slices"
	"strings"
	"time"
)

// DateAxis is the reserved axis name for the cycle date coordinate.
const DateAxis = "date"

// Value is a single coordinate value: either a scalar parameter value or a
// date. Dates are normalized to UTC so that equal instants render and compare
// identically.
type Value struct {
	str    string
	date   time.Time
	isDate bool
}

// ParamValue wraps a scalar parameter value.
func ParamValue(s string) Value {
	return Value{str: s}
}

// DateValue wraps a date coordinate value.
func DateValue(t time.Time) Value {
	return Value{date: t.UTC(), isDate: true}
}

// IsDate reports whether the value is a date.
func (v Value) IsDate() bool { return v.isDate }

// Date returns the date of a date value and the zero time otherwise.
func (v Value) Date() time.Time { return v.date }

// String renders the value canonically; this rendering is what coordinate
// keys and labels are built from.
func (v Value) String() string {
	if v.isDate {
		return v.date.Format(time.RFC3339)
	}
	return v.str
}

// Coordinates maps axis names to values. The axis order used for keys and
// labels is canonical (see axisOrder), not the map order.
type Coordinates map[string]Value

// axisOrder returns the canonical ordering of the given axis names:
// parameter axes sorted alphabetically, the date axis last.
func axisOrder(names []string) []string {
	ordered := slices.Clone(names)
	slices.SortFunc(ordered, func(a, b string) int {
		switch {
		case a == DateAxis:
			return 1
		case b == DateAxis:
			return -1
		default:
			return strings.Compare(a, b)
		}
	})
	return ordered
}

// coordKey renders the values of coords along dims into a unique map key.
// Every dim must be present in coords; the caller checks that.
func coordKey(dims []string, coords Coordinates) string {
	parts := make([]string, len(dims))
	for i, dim := range dims {
		parts[i] = coords[dim].String()
	}
	return strings.Join(parts, "\x1f")
}

// Label derives the unique human-readable identifier of a graph item from
// its name and coordinates. It is deterministic, filesystem-safe and used
// for job names, run directories and link deduplication.
func Label(name string, coords Coordinates) string {
	dims := axisOrder(axisNames(coords))
	var b strings.Builder
	b.WriteString(name)
	for _, dim := range dims {
		b.WriteByte('_')
		v := coords[dim]
		if v.IsDate() {
			b.WriteString(v.Date().Format("20060102T150405"))
		} else {
			b.WriteString(v.String())
		}
	}
	return b.String()
}

func axisNames(coords Coordinates) []string {
	names := make([]string, 0, len(coords))
	for name := range coords {
		names = append(names, name)
	}
	return names
}
