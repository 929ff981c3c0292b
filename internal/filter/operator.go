// Package filter builds the temporal and spatial filters shared by the
// query operations of every binding.
package filter

import (
	"strings"
)

// TimeOperator is the canonical temporal operator. FES 1.0 and FES 2.0
// names both resolve to it.
type TimeOperator string

const (
	TMBefore       TimeOperator = "TM_Before"
	TMAfter        TimeOperator = "TM_After"
	TMBegins       TimeOperator = "TM_Begins"
	TMEnds         TimeOperator = "TM_Ends"
	TMEndedBy      TimeOperator = "TM_EndedBy"
	TMBegunBy      TimeOperator = "TM_BegunBy"
	TMDuring       TimeOperator = "TM_During"
	TMEquals       TimeOperator = "TM_Equals"
	TMContains     TimeOperator = "TM_Contains"
	TMOverlaps     TimeOperator = "TM_Overlaps"
	TMMeets        TimeOperator = "TM_Meets"
	TMMetBy        TimeOperator = "TM_MetBy"
	TMOverlappedBy TimeOperator = "TM_OverlappedBy"
)

// FES 1.0 names.
var legacyOperators = map[string]TimeOperator{
	"tm_before":       TMBefore,
	"tm_after":        TMAfter,
	"tm_begins":       TMBegins,
	"tm_ends":         TMEnds,
	"tm_endedby":      TMEndedBy,
	"tm_begunby":      TMBegunBy,
	"tm_during":       TMDuring,
	"tm_equals":       TMEquals,
	"tm_contains":     TMContains,
	"tm_overlaps":     TMOverlaps,
	"tm_meets":        TMMeets,
	"tm_metby":        TMMetBy,
	"tm_overlappedby": TMOverlappedBy,
}

// FES 2.0 names.
var fes2Operators = map[string]TimeOperator{
	"before":       TMBefore,
	"after":        TMAfter,
	"begins":       TMBegins,
	"ends":         TMEnds,
	"endedby":      TMEndedBy,
	"begunby":      TMBegunBy,
	"during":       TMDuring,
	"tequals":      TMEquals,
	"tcontains":    TMContains,
	"toverlaps":    TMOverlaps,
	"meets":        TMMeets,
	"metby":        TMMetBy,
	"overlappedby": TMOverlappedBy,
}

// LookupTimeOperator tries the FES 1.0 names first and falls back to FES 2.0.
// Matching ignores case and an optional "fes:" prefix.
func LookupTimeOperator(name string) (TimeOperator, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "fes:")
	if op, ok := legacyOperators[key]; ok {
		return op, true
	}
	op, ok := fes2Operators[key]
	return op, ok
}

// RequiresPeriod reports whether op takes a period operand.
func (op TimeOperator) RequiresPeriod() bool { return op == TMDuring }

func (op TimeOperator) String() string { return string(op) }

type SpatialOperator string

const BBOX SpatialOperator = "BBOX"

func (op SpatialOperator) String() string { return string(op) }
