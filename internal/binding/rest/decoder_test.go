package rest

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/sos-core/internal/core/model"
	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/filter"
)

func query(t *testing.T, raw string) url.Values {
	t.Helper()
	v, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return v
}

func TestDecode_Observations(t *testing.T) {
	d := NewDecoder(filter.NewBuilder(4326))
	req, err := d.Decode(Observations, "", query(t,
		"procedure=p1&observedProperty=level&feature=a,b&temporalFilter=om:phenomenonTime,latest"))
	require.NoError(t, err)

	obs := req.(*model.GetObservationRequest)
	assert.Equal(t, model.BindingREST, obs.Binding)
	assert.Equal(t, model.Version200, obs.Version)
	assert.Equal(t, []string{"a", "b"}, obs.FeaturesOfInterest)
	require.Len(t, obs.TemporalFilters, 1)
	which, ok := obs.TemporalFilters[0].Extreme()
	assert.True(t, ok)
	assert.EqualValues(t, "latest", which)
}

// Both bindings fall back to the storage EPSG for a bbox without CRS.
func TestDecode_SpatialFilterUsesStorageSRID(t *testing.T) {
	d := NewDecoder(filter.NewBuilder(3006))
	req, err := d.Decode(Features, "", query(t, "spatialfilter=om:featureOfInterest/*/sams:shape,0,0,10,10"))
	require.NoError(t, err)
	foi := req.(*model.GetFeatureOfInterestRequest)
	require.Len(t, foi.SpatialFilters, 1)
	assert.Equal(t, 3006, foi.SpatialFilters[0].SRID)
}

func TestDecode_FeatureByID(t *testing.T) {
	d := NewDecoder(filter.NewBuilder(4326))
	req, err := d.Decode(Features, "stockholm", nil)
	require.NoError(t, err)
	foi := req.(*model.GetFeatureOfInterestRequest)
	assert.Equal(t, []string{"stockholm"}, foi.FeaturesOfInterest)
	assert.Equal(t, "stockholm", foi.FeatureID)

	_, err = d.Decode(Features, "stockholm", query(t, "procedure=p1"))
	assert.True(t, owserr.HasCode(err, owserr.InvalidParameterValue))
}

func TestDecode_Errors(t *testing.T) {
	d := NewDecoder(filter.NewBuilder(4326))

	_, err := d.Decode(Observations, "", query(t, "temporalfilter=om:phenomenonTime,2020-13&spatialfilter=x,1,2&bogus=1"))
	require.Error(t, err)
	assert.Len(t, owserr.Flatten(err), 3)

	_, err = d.Decode("sensors", "", nil)
	assert.True(t, owserr.HasCode(err, owserr.OperationNotSupported))

	req, err := d.Decode(Capabilities, "", query(t, "sections=Contents"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Contents"}, req.(*model.GetCapabilitiesRequest).Sections)
}
