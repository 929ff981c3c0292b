package feature

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/sos-core/internal/filter"
)

const sample = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "stockholm", "geometry": {"type": "Point", "coordinates": [18.0686, 59.3293]},
     "properties": {"name": "Stockholm gauge", "river": "Norrström"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [11.9746, 57.7089]},
     "properties": {"identifier": "goteborg"}},
    {"type": "Feature", "id": "malmo", "geometry": {"type": "Point", "coordinates": [13.0038, 55.6050]},
     "properties": {}}
  ]
}`

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func bbox(t *testing.T, srid int, x1, y1, x2, y2 float64) filter.SpatialFilter {
	t.Helper()
	tokens := []string{filter.FeatureShape,
		fmt.Sprint(x1), fmt.Sprint(y1), fmt.Sprint(x2), fmt.Sprint(y2),
		fmt.Sprintf("%s%d", filter.CRSURNPrefix, srid)}
	sf, err := filter.NewBBoxFilter("spatialFilter", tokens, srid)
	require.NoError(t, err)
	return sf
}

func TestDecode_Features(t *testing.T) {
	r, err := Decode([]byte(sample), Options{Logger: quiet()})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"goteborg", "malmo", "stockholm"}, IDs(r.All()))

	f, ok := r.Get("stockholm")
	require.True(t, ok)
	assert.Equal(t, "Stockholm gauge", f.Name)
	assert.Equal(t, "Norrström", f.Properties["river"])
	assert.Equal(t, 4326, f.SRID)
	assert.Equal(t, [2]float64{18.0686, 59.3293}, f.Coordinates())

	g, ok := r.Get("goteborg")
	require.True(t, ok)
	assert.Nil(t, g.Properties)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},"properties":{"identifier":"x"}}]}`), Options{Logger: quiet()})
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}]}`), Options{Logger: quiet()})
	assert.Error(t, err)

	_, err = New([]Feature{{ID: "a"}, {ID: "a"}}, Options{Logger: quiet()})
	assert.Error(t, err)

	_, err = New(nil, Options{Logger: quiet(), Resolution: 16})
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	r, err := Load(path, Options{Logger: quiet()})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	empty, err := Load("", Options{Logger: quiet()})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"), Options{Logger: quiet()})
	assert.Error(t, err)
}

func TestQuery_IndexedBBox(t *testing.T) {
	r, err := Decode([]byte(sample), Options{Logger: quiet()})
	require.NoError(t, err)

	got, err := r.Query(bbox(t, 4326, 17.9, 59.2, 18.2, 59.4))
	require.NoError(t, err)
	assert.Equal(t, []string{"stockholm"}, IDs(got))

	// same bbox again is served from the coverage cache
	got, err = r.Query(bbox(t, 4326, 17.9, 59.2, 18.2, 59.4))
	require.NoError(t, err)
	assert.Equal(t, []string{"stockholm"}, IDs(got))

	// corners given upper first
	got, err = r.Query(bbox(t, 4326, 14, 58, 11, 55))
	require.NoError(t, err)
	assert.Equal(t, []string{"goteborg", "malmo"}, IDs(got))

	// the whole globe falls back to a scan
	got, err = r.Query(bbox(t, 4326, -180, -90, 180, 90))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestQuery_EdgeInclusive(t *testing.T) {
	r, err := Decode([]byte(sample), Options{Logger: quiet()})
	require.NoError(t, err)
	got, err := r.Query(bbox(t, 4326, 18.0686, 59.3293, 18.0686, 59.3293))
	require.NoError(t, err)
	assert.Equal(t, []string{"stockholm"}, IDs(got))
}

func TestQuery_SRID(t *testing.T) {
	r, err := Decode([]byte(sample), Options{Logger: quiet()})
	require.NoError(t, err)
	_, err = r.Query(bbox(t, 3857, 0, 0, 1, 1))
	assert.True(t, errors.Is(err, ErrSRIDMismatch))

	// projected storage is scanned
	pr, err := New([]Feature{{ID: "p", Point: orb.Point{500000, 6500000}}}, Options{Logger: quiet(), SRID: 3006})
	require.NoError(t, err)
	got, err := pr.Query(bbox(t, 3006, 400000, 6400000, 600000, 6600000))
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, IDs(got))
}

// The index must agree with an exhaustive scan.
func TestQuery_IndexMatchesScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var fs []Feature
	for i := range 500 {
		fs = append(fs, Feature{
			ID:    fmt.Sprintf("f%03d", i),
			Point: orb.Point{18 + rng.Float64()*0.5, 59 + rng.Float64()*0.5},
		})
	}
	r, err := New(fs, Options{Logger: quiet(), Resolution: 8})
	require.NoError(t, err)

	for range 50 {
		x1, y1 := 18+rng.Float64()*0.5, 59+rng.Float64()*0.5
		x2, y2 := x1+rng.Float64()*0.1, y1+rng.Float64()*0.1
		sf := bbox(t, 4326, x1, y1, x2, y2)

		var want []string
		for _, f := range r.All() {
			if sf.Contains(f.Point) {
				want = append(want, f.ID)
			}
		}
		got, err := r.Query(sf)
		require.NoError(t, err)
		if len(want) == 0 {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, want, IDs(got))
	}
}
