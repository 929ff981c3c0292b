package observation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/feature"
	"github.com/mohammed-shakir/sos-core/internal/filter"
	"github.com/mohammed-shakir/sos-core/internal/profile"
	"github.com/mohammed-shakir/sos-core/internal/temporal"
)

// FeatureQuerier resolves a spatial filter to features.
type FeatureQuerier interface {
	Query(sf filter.SpatialFilter) ([]feature.Feature, error)
}

// Query selects observations. Empty identifier lists match everything.
type Query struct {
	Offerings          []string
	Procedures         []string
	ObservedProperties []string
	FeaturesOfInterest []string
	TemporalFilters    []filter.TemporalFilter
	SpatialFilter      *filter.SpatialFilter
}

type Repository struct {
	obs []Observation
}

func NewRepository(obs []Observation) *Repository {
	cp := append([]Observation(nil), obs...)
	sortObservations(cp)
	return &Repository{obs: cp}
}

func (r *Repository) Len() int { return len(r.obs) }

// Offering summarises one offering for the capabilities document.
type Offering struct {
	Identifier         string
	Procedures         []string
	ObservedProperties []string
	FeaturesOfInterest []string
	PhenomenonTime     *temporal.Period
}

// Offerings lists the offerings in the repository sorted by identifier.
func (r *Repository) Offerings() []Offering {
	type acc struct {
		procs, props, feats map[string]struct{}
		start, end          time.Time
	}
	byID := map[string]*acc{}
	for _, o := range r.obs {
		a, ok := byID[o.Offering]
		if !ok {
			a = &acc{procs: map[string]struct{}{}, props: map[string]struct{}{}, feats: map[string]struct{}{}, start: o.Start(), end: o.End()}
			byID[o.Offering] = a
		}
		a.procs[o.Procedure] = struct{}{}
		a.props[o.ObservedProperty] = struct{}{}
		a.feats[o.FeatureOfInterest] = struct{}{}
		if o.Start().Before(a.start) {
			a.start = o.Start()
		}
		if o.End().After(a.end) {
			a.end = o.End()
		}
	}
	out := make([]Offering, 0, len(byID))
	for id, a := range byID {
		p := temporal.NewPeriod(a.start, a.end)
		out = append(out, Offering{
			Identifier:         id,
			Procedures:         keys(a.procs),
			ObservedProperties: keys(a.props),
			FeaturesOfInterest: keys(a.feats),
			PhenomenonTime:     &p,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// FeatureIDs returns the features observed by the given procedures and
// properties. Empty lists match everything.
func (r *Repository) FeatureIDs(procedures, properties []string) []string {
	procs, props := set(procedures), set(properties)
	found := map[string]struct{}{}
	for _, o := range r.obs {
		if in(procs, o.Procedure) && in(props, o.ObservedProperty) {
			found[o.FeatureOfInterest] = struct{}{}
		}
	}
	return keys(found)
}

// Query applies q under profile p. Temporal filters sharing a value
// reference are alternatives; filters on different value references must
// all match. Without temporal filters and with the profile switch
// returnLatestValueIfTemporalFilterIsMissingInGetObservation set, only the
// latest observation of every series is returned. No-data values are
// replaced by the profile's response placeholder.
func (r *Repository) Query(q Query, p profile.Profile, features FeatureQuerier) ([]Observation, error) {
	offerings, procs, props, feats := set(q.Offerings), set(q.Procedures), set(q.ObservedProperties), set(q.FeaturesOfInterest)

	var spatial map[string]struct{}
	if q.SpatialFilter != nil {
		if features == nil {
			return nil, owserr.NoApplicableCodeError(fmt.Errorf("no feature registry for spatial filtering"))
		}
		fs, err := features.Query(*q.SpatialFilter)
		if err != nil {
			return nil, owserr.InvalidParameterValueCause("spatialFilter", q.SpatialFilter.String(), err)
		}
		spatial = make(map[string]struct{}, len(fs))
		for _, f := range fs {
			spatial[f.ID] = struct{}{}
		}
	}

	groups, extremes := groupTemporal(q.TemporalFilters)

	var out []Observation
	for _, o := range r.obs {
		if !in(offerings, o.Offering) || !in(procs, o.Procedure) ||
			!in(props, o.ObservedProperty) || !in(feats, o.FeatureOfInterest) {
			continue
		}
		if spatial != nil {
			if _, ok := spatial[o.FeatureOfInterest]; !ok {
				continue
			}
		}
		if !matchesAll(groups, o) {
			continue
		}
		out = append(out, o)
	}

	for _, x := range extremes {
		out = selectExtreme(out, x.ref, x.which)
	}
	if len(q.TemporalFilters) == 0 && p.ReturnLatestValueIfTemporalFilterIsMissing {
		out = selectExtreme(out, filter.PhenomenonTime, temporal.Latest)
	}

	for i := range out {
		if out[i].Value != nil && p.IsNoData(out[i].ValueString()) {
			if p.NoData.ResponsePlaceholder == "" {
				out[i].Value = nil
			} else {
				out[i].Value = p.NoData.ResponsePlaceholder
			}
		}
	}
	return out, nil
}

type extreme struct {
	ref   string
	which temporal.Indeterminate
}

func groupTemporal(tfs []filter.TemporalFilter) (map[string][]filter.TemporalFilter, []extreme) {
	groups := map[string][]filter.TemporalFilter{}
	var extremes []extreme
	for _, tf := range tfs {
		ref := normalizeRef(tf.ValueReference)
		if which, ok := tf.Extreme(); ok {
			extremes = append(extremes, extreme{ref: ref, which: which})
			continue
		}
		groups[ref] = append(groups[ref], tf)
	}
	return groups, extremes
}

// normalizeRef maps result time, with or without the om prefix, onto
// ResultTime. Every other value reference is evaluated against phenomenon
// time.
func normalizeRef(ref string) string {
	switch strings.ToLower(strings.TrimSpace(ref)) {
	case "om:resulttime", "resulttime":
		return filter.ResultTime
	}
	return filter.PhenomenonTime
}

func timeOf(o Observation, ref string) temporal.Value {
	if ref == filter.ResultTime {
		return o.ResultTime
	}
	return o.PhenomenonTime
}

func matchesAll(groups map[string][]filter.TemporalFilter, o Observation) bool {
	for ref, tfs := range groups {
		v := timeOf(o, ref)
		ok := false
		for _, tf := range tfs {
			if tf.Matches(v) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// selectExtreme keeps the first or latest observation of every series.
func selectExtreme(obs []Observation, ref string, which temporal.Indeterminate) []Observation {
	best := map[SeriesKey]int{}
	var order []SeriesKey
	for i, o := range obs {
		k := o.Series()
		j, ok := best[k]
		if !ok {
			best[k] = i
			order = append(order, k)
			continue
		}
		if better(o, obs[j], ref, which) {
			best[k] = i
		}
	}
	out := make([]Observation, 0, len(order))
	for _, k := range order {
		out = append(out, obs[best[k]])
	}
	sortObservations(out)
	return out
}

func better(a, b Observation, ref string, which temporal.Indeterminate) bool {
	as, ae := extent(timeOf(a, ref))
	bs, be := extent(timeOf(b, ref))
	if which == temporal.First {
		return as.Before(bs)
	}
	return ae.After(be)
}

func set(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[strings.TrimSpace(id)] = struct{}{}
	}
	return m
}

func in(m map[string]struct{}, id string) bool {
	if m == nil {
		return true
	}
	_, ok := m[id]
	return ok
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func formatNumber(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
