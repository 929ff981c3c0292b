// Package profile holds the encoding profiles of the service. Exactly one
// profile is active at a time; it controls response encoding switches such
// as the observation response format and no-data placeholders.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const DefaultIdentifier = "SOS_20_PROFILE"

var (
	ErrUnknownProfile = errors.New("unknown profile")
	ErrNoIdentifier   = errors.New("profile identifier is required")
)

type NamespaceFlag struct {
	Namespace string `json:"namespace"`
	Encode    bool   `json:"encode"`
}

type NamespaceType struct {
	Namespace       string `json:"namespace"`
	ObservationType string `json:"observationType"`
}

type NoDataPlaceholder struct {
	ResponsePlaceholder string   `json:"responsePlaceholder"`
	Placeholders        []string `json:"placeholder,omitempty"`
}

type Profile struct {
	Identifier                                 string            `json:"identifier"`
	Active                                     bool              `json:"activeProfile"`
	Definition                                 string            `json:"definition,omitempty"`
	ObservationResponseFormat                  string            `json:"observationResponseFormat,omitempty"`
	EncodeFeatureOfInterestInObservations      bool              `json:"encodeFeatureOfInterestInObservations"`
	EncodingNamespaceForFeatureOfInterest      string            `json:"encodingNamespaceForFeatureOfInterestEncoding,omitempty"`
	ShowMetadataOfEmptyObservations            bool              `json:"showMetadataOfEmptyObservations"`
	AllowSubsettingForSOS20OM20                bool              `json:"allowSubsettingForSOS20OM20"`
	MergeValues                                bool              `json:"mergeValues"`
	ReturnLatestValueIfTemporalFilterIsMissing bool              `json:"returnLatestValueIfTemporalFilterIsMissingInGetObservation"`
	EncodeProcedure                            []NamespaceFlag   `json:"encodeProcedure,omitempty"`
	DefaultObservationTypes                    []NamespaceType   `json:"defaultObservationTypesForEncoding,omitempty"`
	NoData                                     NoDataPlaceholder `json:"noDataPlaceholder"`
}

// Default is the profile inserted before any source is loaded.
func Default() Profile {
	return Profile{
		Identifier:                DefaultIdentifier,
		Active:                    true,
		Definition:                "Default SOS 2.0 profile",
		ObservationResponseFormat: "http://www.opengis.net/om/2.0",
		NoData: NoDataPlaceholder{
			ResponsePlaceholder: "noData",
			Placeholders:        []string{"noData"},
		},
	}
}

// EncodeProcedureFor reports the encode-procedure switch for namespace ns.
func (p Profile) EncodeProcedureFor(ns string) (encode, ok bool) {
	for _, f := range p.EncodeProcedure {
		if f.Namespace == ns {
			return f.Encode, true
		}
	}
	return false, false
}

// ObservationTypeFor returns the default observation type for namespace ns.
func (p Profile) ObservationTypeFor(ns string) (string, bool) {
	for _, t := range p.DefaultObservationTypes {
		if t.Namespace == ns {
			return t.ObservationType, true
		}
	}
	return "", false
}

// IsNoData reports whether v is one of the configured no-data placeholders.
func (p Profile) IsNoData(v string) bool {
	v = strings.TrimSpace(v)
	for _, s := range p.NoData.Placeholders {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// Clone deep-copies the slices so the handler never shares backing arrays
// with callers.
func (p Profile) Clone() Profile {
	out := p
	out.EncodeProcedure = append([]NamespaceFlag(nil), p.EncodeProcedure...)
	out.DefaultObservationTypes = append([]NamespaceType(nil), p.DefaultObservationTypes...)
	out.NoData.Placeholders = append([]string(nil), p.NoData.Placeholders...)
	return out
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Identifier) == "" {
		return ErrNoIdentifier
	}
	return nil
}

type document struct {
	Profiles []Profile `json:"profiles"`
}

// Decode parses a profiles.json document.
func Decode(data []byte) ([]Profile, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	for i, p := range doc.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		doc.Profiles[i].Identifier = strings.TrimSpace(p.Identifier)
	}
	return doc.Profiles, nil
}

// Encode writes profiles as a profiles.json document.
func Encode(profiles []Profile) ([]byte, error) {
	if profiles == nil {
		profiles = []Profile{}
	}
	b, err := json.MarshalIndent(document{Profiles: profiles}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode profiles: %w", err)
	}
	return b, nil
}
