// Package model defines the decoded SOS requests shared across bindings.
package model

import (
	"strings"

	"github.com/mohammed-shakir/sos-core/internal/filter"
)

const (
	ServiceSOS = "SOS"
	Version200 = "2.0.0"
)

type Operation string

const (
	GetCapabilities      Operation = "GetCapabilities"
	GetObservation       Operation = "GetObservation"
	GetFeatureOfInterest Operation = "GetFeatureOfInterest"
	GetResult            Operation = "GetResult"
)

// Operations lists the operations the service answers.
var Operations = []Operation{GetCapabilities, GetObservation, GetFeatureOfInterest, GetResult}

// LookupOperation matches an operation name case-insensitively.
func LookupOperation(name string) (Operation, bool) {
	for _, op := range Operations {
		if strings.EqualFold(string(op), strings.TrimSpace(name)) {
			return op, true
		}
	}
	return "", false
}

// Binding names the protocol binding a request arrived on.
const (
	BindingKVP  = "kvp"
	BindingREST = "rest"
)

type Header struct {
	Service   string
	Version   string
	Operation Operation
	Binding   string
}

func (h Header) RequestHeader() Header { return h }

// Request is any decoded operation request.
type Request interface {
	RequestHeader() Header
}

type GetCapabilitiesRequest struct {
	Header
	AcceptVersions []string
	Sections       []string
}

type GetObservationRequest struct {
	Header
	Offerings          []string
	Procedures         []string
	ObservedProperties []string
	FeaturesOfInterest []string
	TemporalFilters    []filter.TemporalFilter
	SpatialFilter      *filter.SpatialFilter
	ResponseFormat     string
}

type GetFeatureOfInterestRequest struct {
	Header
	Procedures         []string
	ObservedProperties []string
	FeaturesOfInterest []string
	SpatialFilters     []filter.SpatialFilter
	// FeatureID is set when a single feature is addressed by identifier.
	FeatureID string
}

type GetResultRequest struct {
	Header
	Offering           string
	ObservedProperty   string
	FeaturesOfInterest []string
	TemporalFilters    []filter.TemporalFilter
	SpatialFilter      *filter.SpatialFilter
}
