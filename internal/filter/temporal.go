package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/temporal"
)

const (
	PhenomenonTime = "om:phenomenonTime"
	ResultTime     = "om:resultTime"
)

type TemporalFilter struct {
	ValueReference string
	Operator       TimeOperator
	Time           temporal.Value
}

func (f TemporalFilter) String() string {
	return fmt.Sprintf("%s,%s,%s", f.ValueReference, f.Operator, temporal.FormatValue(f.Time))
}

// NewTemporalFilter infers the operator from the number of time segments:
// an instant means TM_Equals, a period TM_During.
func (b Builder) NewTemporalFilter(param, valueRef, value string) (TemporalFilter, error) {
	if strings.TrimSpace(valueRef) == "" {
		return TemporalFilter{}, owserr.InvalidParameterValueError(param, value,
			"The parameter '%s' requires a value reference", param)
	}
	v, err := b.Parser.Parse(param, value)
	if err != nil {
		return TemporalFilter{}, err
	}
	op := TMEquals
	if v.IsPeriod() {
		op = TMDuring
	}
	return TemporalFilter{ValueReference: strings.TrimSpace(valueRef), Operator: op, Time: v}, nil
}

// NewTemporalFilterWithOperator builds a filter from an explicit FES 1.0 or
// FES 2.0 operator name.
func (b Builder) NewTemporalFilterWithOperator(param, valueRef, opName, value string) (TemporalFilter, error) {
	op, ok := LookupTimeOperator(opName)
	if !ok {
		return TemporalFilter{}, owserr.InvalidParameterValueError(param, opName,
			"The temporal operator '%s' of the parameter '%s' is not supported", opName, param)
	}
	if strings.TrimSpace(valueRef) == "" {
		return TemporalFilter{}, owserr.InvalidParameterValueError(param, value,
			"The parameter '%s' requires a value reference", param)
	}
	v, err := b.Parser.Parse(param, value)
	if err != nil {
		return TemporalFilter{}, err
	}
	if op.RequiresPeriod() != v.IsPeriod() {
		want := "a time instant"
		if op.RequiresPeriod() {
			want = "a time period"
		}
		return TemporalFilter{}, owserr.InvalidParameterValueError(param, value,
			"The operator '%s' of the parameter '%s' requires %s", op, param, want)
	}
	return TemporalFilter{ValueReference: strings.TrimSpace(valueRef), Operator: op, Time: v}, nil
}

// ParseTemporalFilterTokens accepts [valueRef, time] or
// [valueRef, operator, time].
func (b Builder) ParseTemporalFilterTokens(param string, tokens []string) (TemporalFilter, error) {
	switch len(tokens) {
	case 2:
		return b.NewTemporalFilter(param, tokens[0], tokens[1])
	case 3:
		return b.NewTemporalFilterWithOperator(param, tokens[0], tokens[1], tokens[2])
	default:
		return TemporalFilter{}, owserr.InvalidParameterValueError(param, strings.Join(tokens, ","),
			"The parameter '%s' expects 'valueReference,[operator,]time' but got %d values", param, len(tokens))
	}
}

var (
	farPast   = time.Date(-9999, 1, 1, 0, 0, 0, 0, time.UTC)
	farFuture = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

type interval struct{ start, end time.Time }

func toInterval(v temporal.Value) (interval, bool) {
	s, e, openStart, openEnd, ok := temporal.Bounds(v)
	if !ok {
		return interval{}, false
	}
	if openStart {
		s = farPast
	}
	if openEnd {
		e = farFuture
	}
	return interval{start: s, end: e}, true
}

// Matches evaluates the filter against an observation time. Filter instants
// that cannot be placed on the time line (first, latest, before, …) never
// match; callers resolve first/latest themselves.
func (f TemporalFilter) Matches(obs temporal.Value) bool {
	fi, ok := toInterval(f.Time)
	if !ok {
		return false
	}
	oi, ok := toInterval(obs)
	if !ok {
		return false
	}
	ob, oe, fb, fe := oi.start, oi.end, fi.start, fi.end
	switch f.Operator {
	case TMBefore:
		return oe.Before(fb)
	case TMAfter:
		return ob.After(fe)
	case TMBegins:
		return ob.Equal(fb) && oe.Before(fe)
	case TMEnds:
		return oe.Equal(fe) && ob.After(fb)
	case TMBegunBy:
		return ob.Equal(fb) && oe.After(fe)
	case TMEndedBy:
		return oe.Equal(fe) && ob.Before(fb)
	case TMDuring:
		return !ob.Before(fb) && !oe.After(fe)
	case TMEquals:
		return ob.Equal(fb) && oe.Equal(fe)
	case TMContains:
		return !ob.After(fb) && !oe.Before(fe)
	case TMOverlaps:
		return ob.Before(fb) && oe.After(fb) && oe.Before(fe)
	case TMOverlappedBy:
		return ob.After(fb) && ob.Before(fe) && oe.After(fe)
	case TMMeets:
		return oe.Equal(fb)
	case TMMetBy:
		return ob.Equal(fe)
	}
	return false
}

// Extreme reports whether the filter asks for the first or latest
// observation instead of a position on the time line.
func (f TemporalFilter) Extreme() (temporal.Indeterminate, bool) {
	in, ok := f.Time.(temporal.Instant)
	if !ok || f.Operator != TMEquals {
		return temporal.Determinate, false
	}
	switch in.Indeterminate {
	case temporal.First, temporal.Latest:
		return in.Indeterminate, true
	}
	return temporal.Determinate, false
}
