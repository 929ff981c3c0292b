// Package kvp decodes SOS 2.0 key-value-pair requests.
package kvp

import (
	"net/url"

	"github.com/mohammed-shakir/sos-core/internal/binding"
	"github.com/mohammed-shakir/sos-core/internal/core/model"
	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/filter"
)

// lower-case parameter names
const (
	pService           = "service"
	pVersion           = "version"
	pRequest           = "request"
	pAcceptVersions    = "acceptversions"
	pSections          = "sections"
	pOffering          = "offering"
	pProcedure         = "procedure"
	pObservedProperty  = "observedproperty"
	pFeatureOfInterest = "featureofinterest"
	pTemporalFilter    = "temporalfilter"
	pSpatialFilter     = "spatialfilter"
	pResponseFormat    = "responseformat"
	pNamespaces        = "namespaces"
)

// names used as exception locators
var locators = map[string]string{
	pAcceptVersions:    "AcceptVersions",
	pSections:          "Sections",
	pObservedProperty:  "observedProperty",
	pFeatureOfInterest: "featureOfInterest",
	pTemporalFilter:    "temporalFilter",
	pSpatialFilter:     "spatialFilter",
	pResponseFormat:    "responseFormat",
}

func locator(key string) string {
	if l, ok := locators[key]; ok {
		return l
	}
	return key
}

var allowed = map[model.Operation][]string{
	model.GetCapabilities: {pAcceptVersions, pSections},
	model.GetObservation: {pOffering, pProcedure, pObservedProperty, pFeatureOfInterest,
		pTemporalFilter, pSpatialFilter, pResponseFormat, pNamespaces},
	model.GetFeatureOfInterest: {pProcedure, pObservedProperty, pFeatureOfInterest, pSpatialFilter, pNamespaces},
	model.GetResult:            {pOffering, pObservedProperty, pFeatureOfInterest, pTemporalFilter, pSpatialFilter, pNamespaces},
}

type Decoder struct {
	filters filter.Builder
}

func NewDecoder(b filter.Builder) *Decoder { return &Decoder{filters: b} }

// Decode turns query parameters into one of the model request types.
// Every parameter problem found is reported in a single owserr.Composite.
func (d *Decoder) Decode(values url.Values) (model.Request, error) {
	var errs owserr.Composite
	p := binding.Normalize(values, locator, &errs)

	if svc, ok := p.Get(pService); ok && svc != model.ServiceSOS {
		errs.Add(owserr.InvalidParameterValueError("service", svc,
			"The value of the mandatory parameter 'service' must be '%s'. Delivered value was: %s", model.ServiceSOS, svc))
	} else if !ok {
		p.Require(pService, &errs)
	}

	rawOp, ok := p.Get(pRequest)
	if !ok {
		p.Require(pRequest, &errs)
		return nil, errs.Err()
	}
	op, ok := model.LookupOperation(rawOp)
	if !ok {
		errs.Add(owserr.OperationNotSupportedError(rawOp))
		return nil, errs.Err()
	}

	version, ok := p.Get(pVersion)
	switch {
	case ok && version != model.Version200:
		errs.Add(owserr.InvalidParameterValueError("version", version,
			"The requested version '%s' is not supported; supported is %s", version, model.Version200))
	case !ok && op != model.GetCapabilities:
		p.Require(pVersion, &errs)
	case !ok:
		version = model.Version200
	}

	p.RejectUnknown(append([]string{pService, pVersion, pRequest}, allowed[op]...), &errs)

	h := model.Header{Service: model.ServiceSOS, Version: version, Operation: op, Binding: model.BindingKVP}
	var req model.Request
	switch op {
	case model.GetCapabilities:
		req = &model.GetCapabilitiesRequest{
			Header:         h,
			AcceptVersions: p.List(pAcceptVersions),
			Sections:       p.List(pSections),
		}
	case model.GetObservation:
		req = &model.GetObservationRequest{
			Header:             h,
			Offerings:          p.List(pOffering),
			Procedures:         p.List(pProcedure),
			ObservedProperties: p.List(pObservedProperty),
			FeaturesOfInterest: p.List(pFeatureOfInterest),
			TemporalFilters:    binding.TemporalFilter(d.filters, p, pTemporalFilter, &errs),
			SpatialFilter:      binding.SpatialFilter(d.filters, p, pSpatialFilter, &errs),
			ResponseFormat:     p.Values[pResponseFormat],
		}
	case model.GetFeatureOfInterest:
		r := &model.GetFeatureOfInterestRequest{
			Header:             h,
			Procedures:         p.List(pProcedure),
			ObservedProperties: p.List(pObservedProperty),
			FeaturesOfInterest: p.List(pFeatureOfInterest),
		}
		if sf := binding.SpatialFilter(d.filters, p, pSpatialFilter, &errs); sf != nil {
			r.SpatialFilters = []filter.SpatialFilter{*sf}
		}
		req = r
	case model.GetResult:
		for _, k := range []string{pOffering, pObservedProperty} {
			if _, ok := p.Get(k); !ok {
				p.Require(k, &errs)
			}
		}
		req = &model.GetResultRequest{
			Header:             h,
			Offering:           p.Values[pOffering],
			ObservedProperty:   p.Values[pObservedProperty],
			FeaturesOfInterest: p.List(pFeatureOfInterest),
			TemporalFilters:    binding.TemporalFilter(d.filters, p, pTemporalFilter, &errs),
			SpatialFilter:      binding.SpatialFilter(d.filters, p, pSpatialFilter, &errs),
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return req, nil
}
