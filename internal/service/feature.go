package service

import (
	"context"
	"sort"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/sos-core/internal/core/model"
	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/feature"
	"github.com/mohammed-shakir/sos-core/internal/filter"
)

// GetFeatureOfInterest returns the matching features as a GeoJSON
// FeatureCollection. Identifier, procedure and property constraints must
// all hold; several spatial filters are alternatives.
//
// A request addressing one feature by identifier fails with ErrNotFound
// when the feature does not exist.
func (s *Service) GetFeatureOfInterest(ctx context.Context, req *model.GetFeatureOfInterestRequest) (*geojson.FeatureCollection, error) {
	if req.FeatureID != "" {
		f, ok := s.features.Get(req.FeatureID)
		if !ok {
			return nil, notFound("featureOfInterest", req.FeatureID)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(s.geoJSON(f, ""))
		return fc, nil
	}

	if err := s.validateIDs(nil, req.Procedures, req.ObservedProperties, nil); err != nil {
		return nil, err
	}

	candidates := s.features.All()
	if len(req.FeaturesOfInterest) > 0 {
		candidates = candidates[:0:0]
		for _, id := range req.FeaturesOfInterest {
			if f, ok := s.features.Get(id); ok {
				candidates = append(candidates, f)
			}
		}
	}
	if len(req.Procedures) > 0 || len(req.ObservedProperties) > 0 {
		observed := map[string]bool{}
		mark(observed, s.obs.FeatureIDs(req.Procedures, req.ObservedProperties))
		candidates = keep(candidates, func(f feature.Feature) bool { return observed[f.ID] })
	}
	if len(req.SpatialFilters) > 0 {
		inside, err := s.spatialMatches(req.SpatialFilters)
		if err != nil {
			return nil, err
		}
		candidates = keep(candidates, func(f feature.Feature) bool { return inside[f.ID] })
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	fc := geojson.NewFeatureCollection()
	for _, f := range candidates {
		fc.Append(s.geoJSON(f, ""))
	}
	s.log.DebugContext(ctx, "features selected", "count", len(candidates))
	return fc, nil
}

// spatialMatches returns the ids of features inside any of sfs.
func (s *Service) spatialMatches(sfs []filter.SpatialFilter) (map[string]bool, error) {
	var errs owserr.Composite
	inside := map[string]bool{}
	for _, sf := range sfs {
		fs, err := s.features.Query(sf)
		if err != nil {
			errs.Add(owserr.InvalidParameterValueCause("spatialFilter", sf.String(), err))
			continue
		}
		mark(inside, feature.IDs(fs))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return inside, nil
}

func (s *Service) geoJSON(f feature.Feature, namespace string) *geojson.Feature {
	gf := geojson.NewFeature(f.Point)
	gf.ID = f.ID
	for k, v := range f.Properties {
		gf.Properties[k] = v
	}
	gf.Properties["identifier"] = f.ID
	if f.Name != "" {
		gf.Properties["name"] = f.Name
	}
	gf.Properties["srid"] = f.SRID
	if namespace != "" {
		gf.Properties["encoding"] = namespace
	}
	return gf
}

func keep(fs []feature.Feature, pred func(feature.Feature) bool) []feature.Feature {
	out := fs[:0:0]
	for _, f := range fs {
		if pred(f) {
			out = append(out, f)
		}
	}
	return out
}
