package temporal

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
)

// year[-month[-day[Thour[:minute[:second[.fraction]]]]]][zone]
var isoPattern = regexp.MustCompile(
	`^(\d{4})(?:-(\d{2})(?:-(\d{2})(?:T(\d{2})(?::(\d{2})(?::(\d{2})(?:\.(\d{1,9}))?)?)?)?)?)?(Z|[+-]\d{2}:\d{2}|[+-]\d{4})?$`,
)

var (
	errTooManyParts = errors.New("more than two '/' separated parts")
	errZoneNoTime   = errors.New("a time zone requires a time of day")
	errNotISO       = errors.New("not an ISO-8601 date-time or indeterminate time")
	errEmpty        = errors.New("empty time value")
	errStartAfter   = errors.New("period start is after period end")
)

// Parser turns time strings into Values. The zero value uses time.Now for
// the "now" keyword.
type Parser struct {
	Now func() time.Time
}

var std Parser

// Parse parses s with the default parser; see Parser.Parse.
func Parse(param, s string) (Value, error) { return std.Parse(param, s) }

// ParseInstant parses s with the default parser; see Parser.ParseInstant.
func ParseInstant(param, s string) (Instant, error) { return std.ParseInstant(param, s) }

func (p Parser) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// Parse accepts an instant or a "/"-separated period. The end of a period is
// widened to the end of its most precise unit.
func (p Parser) Parse(param, s string) (Value, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		return p.ParseInstant(param, s)
	case 2:
		start, err := p.ParseInstant(param, parts[0])
		if err != nil {
			return nil, err
		}
		end, err := p.ParseInstant(param, parts[1])
		if err != nil {
			return nil, err
		}
		end = end.EndOfPrecision()
		if start.Resolved() && end.Resolved() && start.Time.After(end.Time) {
			return nil, owserr.InvalidParameterValueCause(param, s, errStartAfter)
		}
		return Period{Start: start, End: end}, nil
	default:
		return nil, owserr.InvalidParameterValueCause(param, s, errTooManyParts)
	}
}

// ParseInstant accepts an indeterminate keyword or an ISO-8601 date-time of
// year to fractional-second precision. Values without a zone are UTC.
func (p Parser) ParseInstant(param, s string) (Instant, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Instant{}, owserr.InvalidParameterValueCause(param, s, errEmpty)
	}
	if ind, ok := LookupIndeterminate(s); ok {
		in := Instant{Indeterminate: ind, Precision: Fraction}
		if ind == Now {
			in.Time = p.now()
			in.layout = time.RFC3339Nano
		}
		return in, nil
	}

	layout, prec, err := layoutFor(s)
	if err != nil {
		return Instant{}, owserr.InvalidParameterValueCause(param, s, err)
	}
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return Instant{}, owserr.InvalidParameterValueCause(param, s, err)
	}
	return Instant{Time: t, Precision: prec, layout: layout}, nil
}

// layoutFor derives the Go reference layout matching the shape of s.
func layoutFor(s string) (string, Precision, error) {
	m := isoPattern.FindStringSubmatch(s)
	if m == nil {
		return "", 0, errNotISO
	}
	month, day, hour, minute, second, frac, zone := m[2], m[3], m[4], m[5], m[6], m[7], m[8]

	var b strings.Builder
	b.WriteString("2006")
	prec := Year
	if month != "" {
		b.WriteString("-01")
		prec = Month
	}
	if day != "" {
		b.WriteString("-02")
		prec = Day
	}
	if hour != "" {
		b.WriteString("T15")
		prec = Hour
	}
	if minute != "" {
		b.WriteString(":04")
		prec = Minute
	}
	if second != "" {
		b.WriteString(":05")
		prec = Second
	}
	if frac != "" {
		b.WriteString(".")
		b.WriteString(strings.Repeat("0", len(frac)))
		prec = Fraction
	}
	if zone != "" {
		if prec < Hour {
			return "", 0, errZoneNoTime
		}
		switch {
		case zone == "Z":
			b.WriteString("Z07:00")
		case strings.Contains(zone, ":"):
			b.WriteString("-07:00")
		default:
			b.WriteString("-0700")
		}
	}
	return b.String(), prec, nil
}

// FormatValue is the inverse of Parse for values it produced.
func FormatValue(v Value) string {
	if v == nil {
		return ""
	}
	return v.String()
}
