package service

import (
	"context"
	"strings"

	"github.com/mohammed-shakir/sos-core/internal/core/model"
	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/observation"
	"github.com/mohammed-shakir/sos-core/internal/profile"
	"github.com/mohammed-shakir/sos-core/internal/temporal"
)

const (
	FormatOM20 = "http://www.opengis.net/om/2.0"
	FormatJSON = "application/json"

	observationTypePrefix = "http://www.opengis.net/def/observationType/OGC-OM/2.0/"
	TypeMeasurement       = observationTypePrefix + "OM_Measurement"
	TypeText              = observationTypePrefix + "OM_TextObservation"
	TypeObservation       = observationTypePrefix + "OM_Observation"

	TokenSeparator = ","
	BlockSeparator = "@@"
)

type ObservationResponse struct {
	ResponseFormat string            `json:"responseFormat"`
	Profile        string            `json:"profile"`
	Observations   []ObservationJSON `json:"observations,omitempty"`
	Series         []SeriesJSON      `json:"series,omitempty"`
}

type ObservationJSON struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	Procedure         any    `json:"procedure"`
	Offering          string `json:"offering"`
	ObservedProperty  string `json:"observableProperty"`
	FeatureOfInterest any    `json:"featureOfInterest"`
	PhenomenonTime    string `json:"phenomenonTime"`
	ResultTime        string `json:"resultTime"`
	Result            Result `json:"result"`
}

type Result struct {
	Value any    `json:"value"`
	UOM   string `json:"uom,omitempty"`
}

// SeriesJSON is a run of observations of one series with merged values.
type SeriesJSON struct {
	Type              string  `json:"type"`
	Procedure         any     `json:"procedure"`
	Offering          string  `json:"offering"`
	ObservedProperty  string  `json:"observableProperty"`
	FeatureOfInterest any     `json:"featureOfInterest"`
	UOM               string  `json:"uom,omitempty"`
	Values            [][]any `json:"values"`
}

// ProcedureJSON is the encoded form of a procedure reference.
type ProcedureJSON struct {
	Identifier string `json:"identifier"`
}

type ResultResponse struct {
	ResultValues   string `json:"resultValues"`
	Count          int    `json:"count"`
	TokenSeparator string `json:"tokenSeparator"`
	BlockSeparator string `json:"blockSeparator"`
}

// responseFormats lists the formats observations can be requested in under
// profile p.
func responseFormats(p profile.Profile) []string {
	out := []string{FormatOM20, FormatJSON}
	if f := p.ObservationResponseFormat; f != "" && f != FormatOM20 && f != FormatJSON {
		out = append(out, f)
	}
	return out
}

func (s *Service) GetObservation(ctx context.Context, req *model.GetObservationRequest) (*ObservationResponse, error) {
	p := s.profiles.Active()

	format := req.ResponseFormat
	if format == "" {
		format = p.ObservationResponseFormat
	}
	if format == "" {
		format = FormatOM20
	}

	var errs owserr.Composite
	if !contains(responseFormats(p), format) {
		errs.Add(owserr.InvalidParameterValueError("responseFormat", format,
			"the response format '%s' is not supported", format))
	}
	errs.Add(s.validateIDs(req.Offerings, req.Procedures, req.ObservedProperties, req.FeaturesOfInterest))
	if err := errs.Err(); err != nil {
		return nil, err
	}

	obs, err := s.obs.Query(observation.Query{
		Offerings:          req.Offerings,
		Procedures:         req.Procedures,
		ObservedProperties: req.ObservedProperties,
		FeaturesOfInterest: req.FeaturesOfInterest,
		TemporalFilters:    req.TemporalFilters,
		SpatialFilter:      req.SpatialFilter,
	}, p, s.features)
	if err != nil {
		return nil, err
	}
	if !p.ShowMetadataOfEmptyObservations {
		kept := obs[:0]
		for _, o := range obs {
			if o.Value != nil {
				kept = append(kept, o)
			}
		}
		obs = kept
	}
	s.log.DebugContext(ctx, "observations selected", "count", len(obs), "profile", p.Identifier, "format", format)

	resp := &ObservationResponse{ResponseFormat: format, Profile: p.Identifier}
	if p.MergeValues {
		resp.Series = s.mergeSeries(obs, p, format)
		return resp, nil
	}
	resp.Observations = make([]ObservationJSON, 0, len(obs))
	for _, o := range obs {
		resp.Observations = append(resp.Observations, ObservationJSON{
			ID:                o.ID,
			Type:              observationType(p, format, o.Value),
			Procedure:         encodeProcedure(p, format, o.Procedure),
			Offering:          o.Offering,
			ObservedProperty:  o.ObservedProperty,
			FeatureOfInterest: s.encodeFeature(p, o.FeatureOfInterest),
			PhenomenonTime:    temporal.FormatValue(o.PhenomenonTime),
			ResultTime:        o.ResultTime.Format(),
			Result:            Result{Value: o.Value, UOM: o.UOM},
		})
	}
	return resp, nil
}

// mergeSeries folds observations into one entry per series, keeping the
// order in which series first appear.
func (s *Service) mergeSeries(obs []observation.Observation, p profile.Profile, format string) []SeriesJSON {
	index := map[observation.SeriesKey]int{}
	out := []SeriesJSON{}
	for _, o := range obs {
		k := o.Series()
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, SeriesJSON{
				Type:              observationType(p, format, o.Value),
				Procedure:         encodeProcedure(p, format, o.Procedure),
				Offering:          o.Offering,
				ObservedProperty:  o.ObservedProperty,
				FeatureOfInterest: s.encodeFeature(p, o.FeatureOfInterest),
				UOM:               o.UOM,
				Values:            [][]any{},
			})
		}
		out[i].Values = append(out[i].Values, []any{temporal.FormatValue(o.PhenomenonTime), o.Value})
	}
	return out
}

// GetResult returns the values of one offering and property as a
// separator-encoded block string.
func (s *Service) GetResult(ctx context.Context, req *model.GetResultRequest) (*ResultResponse, error) {
	p := s.profiles.Active()
	var errs owserr.Composite
	if req.Offering == "" {
		errs.Add(owserr.MissingParameterValueError("offering"))
	}
	if req.ObservedProperty == "" {
		errs.Add(owserr.MissingParameterValueError("observedProperty"))
	}
	errs.Add(s.validateIDs(nonEmpty(req.Offering), nil, nonEmpty(req.ObservedProperty), req.FeaturesOfInterest))
	if err := errs.Err(); err != nil {
		return nil, err
	}

	obs, err := s.obs.Query(observation.Query{
		Offerings:          []string{req.Offering},
		ObservedProperties: []string{req.ObservedProperty},
		FeaturesOfInterest: req.FeaturesOfInterest,
		TemporalFilters:    req.TemporalFilters,
		SpatialFilter:      req.SpatialFilter,
	}, p, s.features)
	if err != nil {
		return nil, err
	}

	blocks := make([]string, 0, len(obs))
	for _, o := range obs {
		blocks = append(blocks, temporal.FormatValue(o.PhenomenonTime)+TokenSeparator+o.ValueString())
	}
	s.log.DebugContext(ctx, "result values encoded", "count", len(blocks), "offering", req.Offering)
	return &ResultResponse{
		ResultValues:   strings.Join(blocks, BlockSeparator),
		Count:          len(blocks),
		TokenSeparator: TokenSeparator,
		BlockSeparator: BlockSeparator,
	}, nil
}

// validateIDs reports every identifier the repository has never seen.
func (s *Service) validateIDs(offerings, procedures, properties, features []string) error {
	offs, procs, props, feats := map[string]bool{}, map[string]bool{}, map[string]bool{}, map[string]bool{}
	for _, o := range s.obs.Offerings() {
		offs[o.Identifier] = true
		mark(procs, o.Procedures)
		mark(props, o.ObservedProperties)
		mark(feats, o.FeaturesOfInterest)
	}
	knownFeature := func(id string) bool {
		if feats[id] {
			return true
		}
		_, ok := s.features.Get(id)
		return ok
	}

	var errs owserr.Composite
	errs.Add(unknownIDs("offering", offerings, func(id string) bool { return offs[id] }))
	errs.Add(unknownIDs("procedure", procedures, func(id string) bool { return procs[id] }))
	errs.Add(unknownIDs("observedProperty", properties, func(id string) bool { return props[id] }))
	errs.Add(unknownIDs("featureOfInterest", features, knownFeature))
	return errs.Err()
}

func observationType(p profile.Profile, format string, v any) string {
	if t, ok := p.ObservationTypeFor(format); ok && t != "" {
		return t
	}
	switch v.(type) {
	case float64:
		return TypeMeasurement
	case string:
		return TypeText
	default:
		return TypeObservation
	}
}

func encodeProcedure(p profile.Profile, format, id string) any {
	if encode, ok := p.EncodeProcedureFor(format); ok && encode {
		return ProcedureJSON{Identifier: id}
	}
	return id
}

// encodeFeature embeds the feature as GeoJSON when the profile asks for it
// and the feature is known; otherwise the identifier is returned.
func (s *Service) encodeFeature(p profile.Profile, id string) any {
	if !p.EncodeFeatureOfInterestInObservations {
		return id
	}
	f, ok := s.features.Get(id)
	if !ok {
		return id
	}
	return s.geoJSON(f, p.EncodingNamespaceForFeatureOfInterest)
}

func mark(m map[string]bool, vs []string) {
	for _, v := range vs {
		m[v] = true
	}
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
