// Package observation is the in-memory observation repository behind
// GetObservation and GetResult.
package observation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mohammed-shakir/sos-core/internal/temporal"
)

type Observation struct {
	ID                string
	Procedure         string
	Offering          string
	ObservedProperty  string
	FeatureOfInterest string
	PhenomenonTime    temporal.Value
	ResultTime        temporal.Instant
	// Value is a float64, a string or nil.
	Value any
	UOM   string
}

// SeriesKey identifies the time series an observation belongs to.
type SeriesKey struct {
	Procedure         string
	Offering          string
	ObservedProperty  string
	FeatureOfInterest string
}

func (o Observation) Series() SeriesKey {
	return SeriesKey{o.Procedure, o.Offering, o.ObservedProperty, o.FeatureOfInterest}
}

// Start and End are the phenomenon time extent.
func (o Observation) Start() time.Time {
	s, _ := extent(o.PhenomenonTime)
	return s
}

func (o Observation) End() time.Time {
	_, e := extent(o.PhenomenonTime)
	return e
}

func extent(v temporal.Value) (time.Time, time.Time) {
	s, e, _, _, _ := temporal.Bounds(v)
	return s, e
}

// ValueString renders the result value the way no-data placeholders are
// compared.
func (o Observation) ValueString() string {
	switch v := o.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatNumber(v)
	default:
		return fmt.Sprint(v)
	}
}

type record struct {
	ID                string          `json:"id"`
	Procedure         string          `json:"procedure"`
	Offering          string          `json:"offering"`
	ObservedProperty  string          `json:"observedProperty"`
	FeatureOfInterest string          `json:"featureOfInterest"`
	PhenomenonTime    string          `json:"phenomenonTime"`
	ResultTime        string          `json:"resultTime,omitempty"`
	Value             json.RawMessage `json:"value"`
	UOM               string          `json:"uom,omitempty"`
}

// Decode parses a JSON array of observations. phenomenonTime is an instant
// or a start/end period; resultTime defaults to the end of the phenomenon
// time.
func Decode(data []byte) ([]Observation, error) {
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	out := make([]Observation, 0, len(recs))
	for i, rec := range recs {
		o, err := rec.observation()
		if err != nil {
			return nil, fmt.Errorf("observation %d (%s): %w", i, rec.ID, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func (rec record) observation() (Observation, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return Observation{}, errors.New("missing id")
	}
	for name, v := range map[string]string{
		"procedure":         rec.Procedure,
		"offering":          rec.Offering,
		"observedProperty":  rec.ObservedProperty,
		"featureOfInterest": rec.FeatureOfInterest,
	} {
		if strings.TrimSpace(v) == "" {
			return Observation{}, fmt.Errorf("missing %s", name)
		}
	}

	pt, err := parseDataTime(rec.PhenomenonTime)
	if err != nil {
		return Observation{}, fmt.Errorf("phenomenonTime: %w", err)
	}
	var rt temporal.Instant
	if strings.TrimSpace(rec.ResultTime) != "" {
		if rt, err = temporal.ParseInstant("resultTime", rec.ResultTime); err != nil {
			return Observation{}, fmt.Errorf("resultTime: %w", err)
		}
	} else {
		switch v := pt.(type) {
		case temporal.Period:
			rt = v.End
		case temporal.Instant:
			rt = v
		}
	}

	val, err := decodeValue(rec.Value)
	if err != nil {
		return Observation{}, fmt.Errorf("value: %w", err)
	}
	return Observation{
		ID:                rec.ID,
		Procedure:         rec.Procedure,
		Offering:          rec.Offering,
		ObservedProperty:  rec.ObservedProperty,
		FeatureOfInterest: rec.FeatureOfInterest,
		PhenomenonTime:    pt,
		ResultTime:        rt,
		Value:             val,
		UOM:               rec.UOM,
	}, nil
}

// parseDataTime reads stored times as exact positions: unlike request
// periods the end is not widened to its precision.
func parseDataTime(s string) (temporal.Value, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	switch len(parts) {
	case 1:
		in, err := temporal.ParseInstant("phenomenonTime", parts[0])
		if err != nil {
			return nil, err
		}
		if in.IsIndeterminate() {
			return nil, fmt.Errorf("stored time %q must be a position", s)
		}
		return in, nil
	case 2:
		start, err := temporal.ParseInstant("phenomenonTime", parts[0])
		if err != nil {
			return nil, err
		}
		end, err := temporal.ParseInstant("phenomenonTime", parts[1])
		if err != nil {
			return nil, err
		}
		if start.IsIndeterminate() || end.IsIndeterminate() {
			return nil, fmt.Errorf("stored time %q must be a position", s)
		}
		if end.Time.Before(start.Time) {
			return nil, fmt.Errorf("period %q ends before it starts", s)
		}
		return temporal.Period{Start: start, End: end}, nil
	}
	return nil, fmt.Errorf("invalid time %q", s)
}

func decodeValue(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case float64, string:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported value %s", raw)
}

// Load reads observations from path. An empty path yields an empty
// repository.
func Load(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return NewRepository(nil), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	obs, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return NewRepository(obs), nil
}

// sortObservations orders by phenomenon start, then identifier.
func sortObservations(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		si, sj := obs[i].Start(), obs[j].Start()
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return obs[i].ID < obs[j].ID
	})
}
