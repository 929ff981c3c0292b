// Package temporal parses ISO-8601 time expressions of variable precision
// into instants and periods.
package temporal

import (
	"strings"
	"time"
)

type Precision int

const (
	Year Precision = iota + 1
	Month
	Day
	Hour
	Minute
	Second
	Fraction
)

func (p Precision) String() string {
	switch p {
	case Year:
		return "year"
	case Month:
		return "month"
	case Day:
		return "day"
	case Hour:
		return "hour"
	case Minute:
		return "minute"
	case Second:
		return "second"
	case Fraction:
		return "fraction"
	default:
		return "unknown"
	}
}

// EndOf returns the last millisecond of the unit t falls in. t is expected
// to be truncated to p already, which is what parsing produces.
func (p Precision) EndOf(t time.Time) time.Time {
	var next time.Time
	switch p {
	case Year:
		next = t.AddDate(1, 0, 0)
	case Month:
		next = t.AddDate(0, 1, 0)
	case Day:
		next = t.AddDate(0, 0, 1)
	case Hour:
		next = t.Add(time.Hour)
	case Minute:
		next = t.Add(time.Minute)
	case Second:
		next = t.Add(time.Second)
	default:
		return t
	}
	return next.Add(-time.Millisecond)
}

// Indeterminate marks an instant given as a keyword rather than a position.
type Indeterminate string

const (
	Determinate Indeterminate = ""
	After       Indeterminate = "after"
	Before      Indeterminate = "before"
	Now         Indeterminate = "now"
	Unknown     Indeterminate = "unknown"
	// SOS extensions referring to the first and latest observation.
	First  Indeterminate = "first"
	Latest Indeterminate = "latest"
)

var indeterminates = map[string]Indeterminate{
	"after":   After,
	"before":  Before,
	"now":     Now,
	"unknown": Unknown,
	"first":   First,
	"latest":  Latest,
}

// LookupIndeterminate resolves a keyword case-insensitively.
func LookupIndeterminate(s string) (Indeterminate, bool) {
	v, ok := indeterminates[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// Value is either an Instant or a Period.
type Value interface {
	IsPeriod() bool
	String() string
	value()
}

type Instant struct {
	Time          time.Time
	Precision     Precision
	Indeterminate Indeterminate

	layout string
}

func (Instant) value()           {}
func (Instant) IsPeriod() bool   { return false }
func (i Instant) String() string { return i.Format() }

// IsIndeterminate is true for keyword instants, including "now".
func (i Instant) IsIndeterminate() bool { return i.Indeterminate != Determinate }

// Resolved reports whether the instant has a usable position on the time line.
func (i Instant) Resolved() bool {
	return i.Indeterminate == Determinate || i.Indeterminate == Now
}

// Format renders the instant with the precision and zone style it was
// parsed with.
func (i Instant) Format() string {
	if i.Indeterminate != Determinate {
		return string(i.Indeterminate)
	}
	if i.layout == "" {
		return i.Time.Format(time.RFC3339Nano)
	}
	return i.Time.Format(i.layout)
}

// EndOfPrecision widens the instant to the last millisecond of its most
// precise unit, e.g. 2020 becomes 2020-12-31T23:59:59.999.
func (i Instant) EndOfPrecision() Instant {
	if i.Indeterminate != Determinate {
		return i
	}
	out := i
	out.Time = i.Precision.EndOf(i.Time)
	return out
}

type Period struct {
	Start Instant
	End   Instant
}

func (Period) value()           {}
func (Period) IsPeriod() bool   { return true }
func (p Period) String() string { return p.Start.Format() + "/" + p.End.Format() }

// NewInstant wraps t at full precision.
func NewInstant(t time.Time) Instant {
	return Instant{Time: t, Precision: Fraction, layout: time.RFC3339Nano}
}

// NewPeriod wraps two times at full precision.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: NewInstant(start), End: NewInstant(end)}
}

// Bounds returns the extent of v on the time line. ok is false when v holds
// an instant that cannot be placed (before, after, unknown, first, latest).
// Unplaceable period bounds are reported as open.
func Bounds(v Value) (start, end time.Time, openStart, openEnd, ok bool) {
	switch t := v.(type) {
	case Instant:
		if !t.Resolved() {
			return time.Time{}, time.Time{}, false, false, false
		}
		return t.Time, t.Time, false, false, true
	case Period:
		openStart = !t.Start.Resolved()
		openEnd = !t.End.Resolved()
		return t.Start.Time, t.End.Time, openStart, openEnd, true
	}
	return time.Time{}, time.Time{}, false, false, false
}
