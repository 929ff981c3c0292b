// Package rest decodes the resource-oriented REST binding into the same
// requests the KVP binding produces.
package rest

import (
	"net/url"
	"strings"

	"github.com/mohammed-shakir/sos-core/internal/binding"
	"github.com/mohammed-shakir/sos-core/internal/core/model"
	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/filter"
)

// Resource names under /rest.
const (
	Observations = "observations"
	Features     = "features"
	Capabilities = "capabilities"
)

const (
	pProcedure        = "procedure"
	pObservedProperty = "observedproperty"
	pOffering         = "offering"
	pFeature          = "feature"
	pTemporalFilter   = "temporalfilter"
	pSpatialFilter    = "spatialfilter"
	pSections         = "sections"
)

type Decoder struct {
	filters filter.Builder
}

// NewDecoder takes the same filter builder as the KVP decoder, so a bbox
// without CRS falls back to the configured storage EPSG here as well.
func NewDecoder(b filter.Builder) *Decoder { return &Decoder{filters: b} }

// Decode maps a resource, an optional resource id and the query string to
// a request.
func (d *Decoder) Decode(resource, id string, values url.Values) (model.Request, error) {
	var errs owserr.Composite
	p := binding.Normalize(values, nil, &errs)
	id = strings.TrimSpace(id)

	var req model.Request
	switch {
	case resource == Observations && id == "":
		p.RejectUnknown([]string{pProcedure, pObservedProperty, pOffering, pFeature, pTemporalFilter, pSpatialFilter}, &errs)
		req = &model.GetObservationRequest{
			Header:             header(model.GetObservation),
			Offerings:          p.List(pOffering),
			Procedures:         p.List(pProcedure),
			ObservedProperties: p.List(pObservedProperty),
			FeaturesOfInterest: p.List(pFeature),
			TemporalFilters:    binding.TemporalFilter(d.filters, p, pTemporalFilter, &errs),
			SpatialFilter:      binding.SpatialFilter(d.filters, p, pSpatialFilter, &errs),
		}
	case resource == Features && id == "":
		p.RejectUnknown([]string{pProcedure, pObservedProperty, pFeature, pSpatialFilter}, &errs)
		r := &model.GetFeatureOfInterestRequest{
			Header:             header(model.GetFeatureOfInterest),
			Procedures:         p.List(pProcedure),
			ObservedProperties: p.List(pObservedProperty),
			FeaturesOfInterest: p.List(pFeature),
		}
		if sf := binding.SpatialFilter(d.filters, p, pSpatialFilter, &errs); sf != nil {
			r.SpatialFilters = []filter.SpatialFilter{*sf}
		}
		req = r
	case resource == Features:
		p.RejectUnknown(nil, &errs)
		req = &model.GetFeatureOfInterestRequest{
			Header:             header(model.GetFeatureOfInterest),
			FeaturesOfInterest: []string{id},
			FeatureID:          id,
		}
	case resource == Capabilities && id == "":
		p.RejectUnknown([]string{pSections}, &errs)
		req = &model.GetCapabilitiesRequest{
			Header:   header(model.GetCapabilities),
			Sections: p.List(pSections),
		}
	default:
		errs.Add(owserr.OperationNotSupportedError(strings.Trim(resource+"/"+id, "/")))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

func header(op model.Operation) model.Header {
	return model.Header{Service: model.ServiceSOS, Version: model.Version200, Operation: op, Binding: model.BindingREST}
}
