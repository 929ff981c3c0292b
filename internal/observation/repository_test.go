package observation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/sos-core/internal/feature"
	"github.com/mohammed-shakir/sos-core/internal/filter"
	"github.com/mohammed-shakir/sos-core/internal/profile"
)

const data = `[
  {"id": "o1", "procedure": "p1", "offering": "off1", "observedProperty": "level", "featureOfInterest": "stockholm",
   "phenomenonTime": "2020-01-01T00:00:00Z", "value": 1.5, "uom": "m"},
  {"id": "o2", "procedure": "p1", "offering": "off1", "observedProperty": "level", "featureOfInterest": "stockholm",
   "phenomenonTime": "2020-06-01T00:00:00Z", "value": 2.5, "uom": "m"},
  {"id": "o3", "procedure": "p1", "offering": "off1", "observedProperty": "level", "featureOfInterest": "stockholm",
   "phenomenonTime": "2021-01-01T00:00:00Z", "value": -9999, "uom": "m"},
  {"id": "o4", "procedure": "p2", "offering": "off2", "observedProperty": "temp", "featureOfInterest": "malmo",
   "phenomenonTime": "2020-03-01T00:00:00Z/2020-03-02T00:00:00Z", "resultTime": "2020-03-05T00:00:00Z", "value": "noData"},
  {"id": "o5", "procedure": "p2", "offering": "off2", "observedProperty": "temp", "featureOfInterest": "malmo",
   "phenomenonTime": "2020-07-01T12:00:00Z", "value": 20}
]`

const features = `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":"stockholm","geometry":{"type":"Point","coordinates":[18.0686,59.3293]},"properties":{}},
  {"type":"Feature","id":"malmo","geometry":{"type":"Point","coordinates":[13.0038,55.6050]},"properties":{}}
]}`

func repo(t *testing.T) *Repository {
	t.Helper()
	obs, err := Decode([]byte(data))
	require.NoError(t, err)
	return NewRepository(obs)
}

func ids(obs []Observation) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.ID
	}
	return out
}

func temporalFilter(t *testing.T, tokens ...string) filter.TemporalFilter {
	t.Helper()
	tf, err := filter.NewBuilder(4326).ParseTemporalFilterTokens("temporalFilter", tokens)
	require.NoError(t, err)
	return tf
}

func TestDecode(t *testing.T) {
	obs, err := Decode([]byte(data))
	require.NoError(t, err)
	require.Len(t, obs, 5)

	o4 := obs[3]
	assert.True(t, o4.PhenomenonTime.IsPeriod())
	assert.Equal(t, "2020-03-05T00:00:00Z", o4.ResultTime.Format())
	// stored period ends are not widened
	assert.Equal(t, "2020-03-02T00:00:00Z", o4.End().Format("2006-01-02T15:04:05Z07:00"))

	o1 := obs[0]
	assert.Equal(t, o1.End(), o1.ResultTime.Time)
	assert.Equal(t, "1.5", o1.ValueString())

	_, err = Decode([]byte(`[{"id":"x","procedure":"p","offering":"o","observedProperty":"q","featureOfInterest":"f","phenomenonTime":"latest"}]`))
	assert.Error(t, err)
	_, err = Decode([]byte(`[{"id":"x","procedure":"p","offering":"o","observedProperty":"q","phenomenonTime":"2020"}]`))
	assert.Error(t, err)
	_, err = Decode([]byte(`[{"id":"x","procedure":"p","offering":"o","observedProperty":"q","featureOfInterest":"f","phenomenonTime":"2020","value":[1]}]`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Len())

	r, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestQuery_IdentifierFilters(t *testing.T) {
	r := repo(t)
	got, err := r.Query(Query{Procedures: []string{"p2"}}, profile.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"o4", "o5"}, ids(got))

	got, err = r.Query(Query{Offerings: []string{"off1"}, FeaturesOfInterest: []string{"stockholm"}}, profile.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2", "o3"}, ids(got))
}

func TestQuery_TemporalFilters(t *testing.T) {
	r := repo(t)
	p := profile.Default()

	got, err := r.Query(Query{TemporalFilters: []filter.TemporalFilter{
		temporalFilter(t, filter.PhenomenonTime, "2020"),
	}}, p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o4", "o2", "o5"}, ids(got))

	// alternatives on the same value reference
	got, err = r.Query(Query{TemporalFilters: []filter.TemporalFilter{
		temporalFilter(t, filter.PhenomenonTime, "2020-01-01T00:00:00Z"),
		temporalFilter(t, filter.PhenomenonTime, "2021-01-01T00:00:00Z"),
	}}, p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o3"}, ids(got))

	// different value references must all match
	got, err = r.Query(Query{TemporalFilters: []filter.TemporalFilter{
		temporalFilter(t, filter.PhenomenonTime, "2020"),
		temporalFilter(t, filter.ResultTime, "TM_After", "2020-03-04T00:00:00Z"),
	}}, p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"o4", "o2", "o5"}, ids(got))

	// other value references fall back to phenomenon time
	got, err = r.Query(Query{TemporalFilters: []filter.TemporalFilter{
		temporalFilter(t, "om:samplingTime", "2020-01-01/2020-12-31"),
	}}, p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o4", "o2", "o5"}, ids(got))
}

func TestQuery_FirstLatest(t *testing.T) {
	r := repo(t)
	got, err := r.Query(Query{TemporalFilters: []filter.TemporalFilter{
		temporalFilter(t, filter.PhenomenonTime, "latest"),
	}}, profile.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"o5", "o3"}, ids(got))

	got, err = r.Query(Query{TemporalFilters: []filter.TemporalFilter{
		temporalFilter(t, filter.PhenomenonTime, "first"),
	}}, profile.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o4"}, ids(got))
}

func TestQuery_LatestValueProfileSwitch(t *testing.T) {
	r := repo(t)
	p := profile.Default()
	p.ReturnLatestValueIfTemporalFilterIsMissing = true

	got, err := r.Query(Query{}, p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"o5", "o3"}, ids(got))

	// an explicit temporal filter wins over the switch
	got, err = r.Query(Query{TemporalFilters: []filter.TemporalFilter{
		temporalFilter(t, filter.PhenomenonTime, "2020"),
	}}, p, nil)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestQuery_NoDataPlaceholder(t *testing.T) {
	r := repo(t)

	p := profile.Default()
	got, err := r.Query(Query{Procedures: []string{"p2"}}, p, nil)
	require.NoError(t, err)
	assert.Equal(t, "noData", got[0].Value)
	assert.Equal(t, 20.0, got[1].Value)

	p.NoData = profile.NoDataPlaceholder{ResponsePlaceholder: "", Placeholders: []string{"-9999", "noData"}}
	got, err = r.Query(Query{FeaturesOfInterest: []string{"stockholm"}}, p, nil)
	require.NoError(t, err)
	assert.Nil(t, got[2].Value)
	assert.Equal(t, 1.5, got[0].Value)

	// the repository copy is untouched
	again, err := r.Query(Query{FeaturesOfInterest: []string{"stockholm"}}, profile.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, -9999.0, again[2].Value)
}

func TestQuery_Spatial(t *testing.T) {
	r := repo(t)
	reg, err := feature.Decode([]byte(features), feature.Options{})
	require.NoError(t, err)

	sf, err := filter.NewBBoxFilter("spatialFilter", []string{filter.FeatureShape, "17", "59", "19", "60"}, 4326)
	require.NoError(t, err)
	got, err := r.Query(Query{SpatialFilter: &sf}, profile.Default(), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2", "o3"}, ids(got))

	other, err := filter.NewBBoxFilter("spatialFilter", []string{filter.FeatureShape, "17", "59", "19", "60", filter.CRSURNPrefix + "3857"}, 4326)
	require.NoError(t, err)
	_, err = r.Query(Query{SpatialFilter: &other}, profile.Default(), reg)
	assert.Error(t, err)
}

func TestOfferings(t *testing.T) {
	r := repo(t)
	offs := r.Offerings()
	require.Len(t, offs, 2)
	assert.Equal(t, "off1", offs[0].Identifier)
	assert.Equal(t, []string{"p1"}, offs[0].Procedures)
	assert.Equal(t, "2020-01-01T00:00:00Z/2021-01-01T00:00:00Z", offs[0].PhenomenonTime.String())
	assert.Equal(t, []string{"malmo"}, offs[1].FeaturesOfInterest)

	assert.Equal(t, []string{"malmo", "stockholm"}, r.FeatureIDs(nil, nil))
	assert.Equal(t, []string{"stockholm"}, r.FeatureIDs(nil, []string{"level"}))
}
