// Package feature holds the features of interest observations refer to.
package feature

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/sos-core/internal/core/observability"
	"github.com/mohammed-shakir/sos-core/internal/filter"
)

// ErrSRIDMismatch is returned for spatial filters in a CRS other than the
// one the features are stored in.
var ErrSRIDMismatch = errors.New("spatial filter CRS does not match storage CRS")

// Feature is a sampling point.
type Feature struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Point      orb.Point      `json:"-"`
	SRID       int            `json:"srid"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Coordinates returns the point as [x, y].
func (f Feature) Coordinates() [2]float64 { return [2]float64{f.Point.X(), f.Point.Y()} }

type Options struct {
	Logger *slog.Logger
	// SRID of the stored coordinates.
	SRID int
	// Resolution of the H3 index; used only for SRID 4326.
	Resolution int
	// CacheSize bounds the bbox coverage cache.
	CacheSize int
}

type Registry struct {
	log      *slog.Logger
	srid     int
	features map[string]Feature
	ids      []string
	index    *cellIndex
}

// Load reads a GeoJSON FeatureCollection from path. An empty path yields an
// empty registry.
func Load(path string, opts Options) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return New(nil, opts)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	return Decode(b, opts)
}

// Decode parses a GeoJSON FeatureCollection of point features. A feature's
// identifier is its GeoJSON id or, failing that, its "identifier" property.
func Decode(data []byte, opts Options) (*Registry, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	out := make([]Feature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		f, err := fromGeoJSON(gf)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		out = append(out, f)
	}
	return New(out, opts)
}

func fromGeoJSON(gf *geojson.Feature) (Feature, error) {
	id := ""
	if gf.ID != nil {
		id = strings.TrimSpace(fmt.Sprint(gf.ID))
	}
	if id == "" {
		id = strings.TrimSpace(gf.Properties.MustString("identifier", ""))
	}
	if id == "" {
		return Feature{}, errors.New("missing id")
	}
	pt, ok := gf.Geometry.(orb.Point)
	if !ok {
		return Feature{}, fmt.Errorf("feature %q: only point geometries are supported, got %T", id, gf.Geometry)
	}
	props := map[string]any(gf.Properties.Clone())
	delete(props, "identifier")
	name := gf.Properties.MustString("name", "")
	delete(props, "name")
	if len(props) == 0 {
		props = nil
	}
	return Feature{ID: id, Name: name, Point: pt, Properties: props}, nil
}

// New builds a registry from fs. Every feature takes the registry SRID.
// Duplicate identifiers are an error.
func New(fs []Feature, opts Options) (*Registry, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SRID == 0 {
		opts.SRID = 4326
	}
	r := &Registry{
		log:      opts.Logger,
		srid:     opts.SRID,
		features: make(map[string]Feature, len(fs)),
	}
	for _, f := range fs {
		if _, dup := r.features[f.ID]; dup {
			return nil, fmt.Errorf("duplicate feature %q", f.ID)
		}
		f.SRID = opts.SRID
		r.features[f.ID] = f
		r.ids = append(r.ids, f.ID)
	}
	sort.Strings(r.ids)

	if opts.SRID == 4326 {
		idx, err := newCellIndex(opts.Resolution, opts.CacheSize)
		if err != nil {
			return nil, err
		}
		for _, id := range r.ids {
			if err := idx.add(id, r.features[id].Point); err != nil {
				return nil, fmt.Errorf("index feature %q: %w", id, err)
			}
		}
		r.index = idx
	}
	r.log.Info("features loaded", "count", len(r.ids), "srid", r.srid, "indexed", r.index != nil)
	return r, nil
}

func (r *Registry) SRID() int { return r.srid }

func (r *Registry) Len() int { return len(r.ids) }

func (r *Registry) Get(id string) (Feature, bool) {
	f, ok := r.features[strings.TrimSpace(id)]
	return f, ok
}

// All returns every feature sorted by identifier.
func (r *Registry) All() []Feature {
	out := make([]Feature, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.features[id])
	}
	return out
}

// Query returns the features inside sf, sorted by identifier.
func (r *Registry) Query(sf filter.SpatialFilter) ([]Feature, error) {
	if sf.SRID != r.srid {
		return nil, fmt.Errorf("%w: EPSG:%d, features are stored in EPSG:%d", ErrSRIDMismatch, sf.SRID, r.srid)
	}
	b := sf.Bound()

	candidates := r.ids
	path, cache := "scan", "none"
	if r.index != nil {
		if ids, hit, ok := r.index.candidates(b); ok {
			candidates = ids
			path, cache = "index", "miss"
			if hit {
				cache = "hit"
			}
		}
	}
	observability.IncFeatureLookup(path, cache)

	var out []Feature
	for _, id := range candidates {
		f := r.features[id]
		if sf.Contains(f.Point) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// IDs returns the identifiers of fs.
func IDs(fs []Feature) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.ID
	}
	return out
}
