package service

import (
	"context"
	"sort"
	"strings"

	"github.com/mohammed-shakir/sos-core/internal/core/model"
	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/feature"
	"github.com/mohammed-shakir/sos-core/internal/filter"
	"github.com/mohammed-shakir/sos-core/internal/observation"
	"github.com/mohammed-shakir/sos-core/internal/temporal"
)

const (
	SectionServiceIdentification = "ServiceIdentification"
	SectionServiceProvider       = "ServiceProvider"
	SectionOperationsMetadata    = "OperationsMetadata"
	SectionFilterCapabilities    = "FilterCapabilities"
	SectionContents              = "Contents"
	SectionAll                   = "All"
)

var sections = []string{
	SectionServiceIdentification,
	SectionServiceProvider,
	SectionOperationsMetadata,
	SectionFilterCapabilities,
	SectionContents,
}

var timeOperators = []filter.TimeOperator{
	filter.TMBefore, filter.TMAfter, filter.TMBegins, filter.TMEnds,
	filter.TMEndedBy, filter.TMBegunBy, filter.TMDuring, filter.TMEquals,
	filter.TMContains, filter.TMOverlaps, filter.TMMeets, filter.TMMetBy,
	filter.TMOverlappedBy,
}

type Capabilities struct {
	Version               string                 `json:"version"`
	ServiceIdentification *ServiceIdentification `json:"serviceIdentification,omitempty"`
	ServiceProvider       *ServiceProvider       `json:"serviceProvider,omitempty"`
	OperationsMetadata    *OperationsMetadata    `json:"operationsMetadata,omitempty"`
	FilterCapabilities    *FilterCapabilities    `json:"filterCapabilities,omitempty"`
	Contents              *Contents              `json:"contents,omitempty"`
}

type ServiceIdentification struct {
	Title               string   `json:"title"`
	ServiceType         string   `json:"serviceType"`
	ServiceTypeVersions []string `json:"serviceTypeVersion"`
	Profile             string   `json:"profile"`
	ProfileDefinition   string   `json:"profileDefinition,omitempty"`
	ResponseFormat      string   `json:"observationResponseFormat,omitempty"`
}

type ServiceProvider struct {
	Name string `json:"providerName,omitempty"`
	Site string `json:"providerSite,omitempty"`
}

type OperationsMetadata struct {
	Operations []OperationMetadata `json:"operations"`
}

type OperationMetadata struct {
	Name       string              `json:"name"`
	Parameters map[string][]string `json:"parameters,omitempty"`
}

type FilterCapabilities struct {
	TemporalOperators []string `json:"temporalOperators"`
	TemporalOperands  []string `json:"temporalOperands"`
	SpatialOperators  []string `json:"spatialOperators"`
	SpatialOperands   []string `json:"spatialOperands"`
}

type Contents struct {
	Offerings []OfferingSummary `json:"offerings"`
}

type OfferingSummary struct {
	Identifier         string   `json:"identifier"`
	Procedures         []string `json:"procedures"`
	ObservedProperties []string `json:"observableProperties"`
	FeaturesOfInterest []string `json:"featuresOfInterest"`
	PhenomenonTime     string   `json:"phenomenonTime,omitempty"`
	ResponseFormats    []string `json:"responseFormats"`
}

// GetCapabilities reports the requested sections, all of them when none is
// named.
func (s *Service) GetCapabilities(_ context.Context, req *model.GetCapabilitiesRequest) (*Capabilities, error) {
	var errs owserr.Composite
	if len(req.AcceptVersions) > 0 && !containsFold(req.AcceptVersions, model.Version200) {
		errs.Add(owserr.InvalidParameterValueError("AcceptVersions", strings.Join(req.AcceptVersions, ","),
			"none of the accepted versions is supported; supported is %s", model.Version200))
	}
	want := map[string]bool{}
	for _, sec := range req.Sections {
		name, ok := lookupSection(sec)
		if !ok {
			errs.Add(owserr.InvalidParameterValueError("Sections", sec, "the section '%s' is not supported", sec))
			continue
		}
		if name == SectionAll {
			for _, n := range sections {
				want[n] = true
			}
			continue
		}
		want[name] = true
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	if len(want) == 0 {
		for _, n := range sections {
			want[n] = true
		}
	}

	p := s.profiles.Active()
	formats := responseFormats(p)
	offerings := s.obs.Offerings()
	caps := &Capabilities{Version: model.Version200}

	if want[SectionServiceIdentification] {
		caps.ServiceIdentification = &ServiceIdentification{
			Title:               s.title,
			ServiceType:         "OGC:" + model.ServiceSOS,
			ServiceTypeVersions: []string{model.Version200},
			Profile:             p.Identifier,
			ProfileDefinition:   p.Definition,
			ResponseFormat:      p.ObservationResponseFormat,
		}
	}
	if want[SectionServiceProvider] {
		caps.ServiceProvider = &ServiceProvider{Name: s.providerName, Site: s.providerSite}
	}
	if want[SectionOperationsMetadata] {
		caps.OperationsMetadata = s.operationsMetadata(offerings, formats)
	}
	if want[SectionFilterCapabilities] {
		ops := make([]string, len(timeOperators))
		for i, op := range timeOperators {
			ops[i] = op.String()
		}
		caps.FilterCapabilities = &FilterCapabilities{
			TemporalOperators: ops,
			TemporalOperands:  []string{filter.PhenomenonTime, filter.ResultTime},
			SpatialOperators:  []string{filter.BBOX.String()},
			SpatialOperands:   []string{filter.FeatureShape},
		}
	}
	if want[SectionContents] {
		c := &Contents{Offerings: make([]OfferingSummary, 0, len(offerings))}
		for _, o := range offerings {
			sum := OfferingSummary{
				Identifier:         o.Identifier,
				Procedures:         o.Procedures,
				ObservedProperties: o.ObservedProperties,
				FeaturesOfInterest: o.FeaturesOfInterest,
				ResponseFormats:    formats,
			}
			if o.PhenomenonTime != nil {
				sum.PhenomenonTime = temporal.FormatValue(*o.PhenomenonTime)
			}
			c.Offerings = append(c.Offerings, sum)
		}
		caps.Contents = c
	}
	return caps, nil
}

func (s *Service) operationsMetadata(offerings []observation.Offering, formats []string) *OperationsMetadata {
	var offs, procs, props, feats []string
	seen := map[string]bool{}
	add := func(dst *[]string, kind string, vs []string) {
		for _, v := range vs {
			if !seen[kind+v] {
				seen[kind+v] = true
				*dst = append(*dst, v)
			}
		}
	}
	for _, o := range offerings {
		add(&offs, "o", []string{o.Identifier})
		add(&procs, "p", o.Procedures)
		add(&props, "q", o.ObservedProperties)
		add(&feats, "f", o.FeaturesOfInterest)
	}
	for _, l := range [][]string{procs, props, feats} {
		sort.Strings(l)
	}

	md := &OperationsMetadata{}
	for _, op := range model.Operations {
		om := OperationMetadata{Name: string(op)}
		switch op {
		case model.GetCapabilities:
			om.Parameters = map[string][]string{
				"AcceptVersions": {model.Version200},
				"Sections":       append(append([]string(nil), sections...), SectionAll),
			}
		case model.GetObservation:
			om.Parameters = map[string][]string{
				"offering":          offs,
				"procedure":         procs,
				"observedProperty":  props,
				"featureOfInterest": feats,
				"responseFormat":    formats,
			}
		case model.GetFeatureOfInterest:
			om.Parameters = map[string][]string{
				"procedure":         procs,
				"observedProperty":  props,
				"featureOfInterest": feature.IDs(s.features.All()),
			}
		case model.GetResult:
			om.Parameters = map[string][]string{
				"offering":         offs,
				"observedProperty": props,
			}
		}
		md.Operations = append(md.Operations, om)
	}
	return md
}

func lookupSection(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, SectionAll) {
		return SectionAll, true
	}
	for _, s := range sections {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
