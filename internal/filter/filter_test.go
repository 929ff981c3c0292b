package filter

import (
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
	"github.com/mohammed-shakir/sos-core/internal/temporal"
)

func TestLookupTimeOperator_LegacyThenFES2(t *testing.T) {
	cases := map[string]TimeOperator{
		"TM_During":       TMDuring,
		"tm_equals":       TMEquals,
		"During":          TMDuring,
		"fes:During":      TMDuring,
		"TEquals":         TMEquals,
		"TContains":       TMContains,
		"TOverlaps":       TMOverlaps,
		"OverlappedBy":    TMOverlappedBy,
		"TM_OverlappedBy": TMOverlappedBy,
	}
	for in, want := range cases {
		got, ok := LookupTimeOperator(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := LookupTimeOperator("AnyInteracts")
	assert.False(t, ok)
}

func TestNewTemporalFilter_InfersOperator(t *testing.T) {
	var b Builder
	f, err := b.NewTemporalFilter("temporalFilter", PhenomenonTime, "2020-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, TMEquals, f.Operator)
	assert.False(t, f.Time.IsPeriod())

	f, err = b.NewTemporalFilter("temporalFilter", PhenomenonTime, "2020-01-01/2020-02-01")
	require.NoError(t, err)
	assert.Equal(t, TMDuring, f.Operator)
	assert.True(t, f.Time.IsPeriod())
	assert.Equal(t, PhenomenonTime, f.ValueReference)
}

func TestNewTemporalFilterWithOperator_SegmentMismatch(t *testing.T) {
	var b Builder
	_, err := b.NewTemporalFilterWithOperator("temporalFilter", PhenomenonTime, "TM_During", "2020-01-01")
	require.Error(t, err)
	assert.True(t, owserr.HasCode(err, owserr.InvalidParameterValue))
	assert.Equal(t, "temporalFilter", owserr.Flatten(err)[0].Locator)

	_, err = b.NewTemporalFilterWithOperator("temporalFilter", PhenomenonTime, "TM_Before", "2020/2021")
	require.Error(t, err)

	_, err = b.NewTemporalFilterWithOperator("temporalFilter", PhenomenonTime, "Sometime", "2020")
	require.Error(t, err)

	f, err := b.NewTemporalFilterWithOperator("temporalFilter", ResultTime, "After", "2020-06")
	require.NoError(t, err)
	assert.Equal(t, TMAfter, f.Operator)
	assert.Equal(t, ResultTime, f.ValueReference)
}

func TestParseTemporalFilterTokens(t *testing.T) {
	var b Builder
	f, err := b.ParseTemporalFilterTokens("temporalfilter", []string{"om:phenomenonTime", "during", "2012-11-19T13:00:00+00:00/2012-11-19T13:05:00+00:00"})
	require.NoError(t, err)
	assert.Equal(t, TMDuring, f.Operator)

	_, err = b.ParseTemporalFilterTokens("temporalfilter", []string{"om:phenomenonTime"})
	require.Error(t, err)

	_, err = b.ParseTemporalFilterTokens("temporalfilter", []string{"", "2020"})
	require.Error(t, err)

	_, err = b.ParseTemporalFilterTokens("temporalfilter", []string{"om:phenomenonTime", "2020/2021/2022"})
	require.Error(t, err)
	assert.True(t, owserr.HasCode(err, owserr.InvalidParameterValue))
}

func at(h int) time.Time { return time.Date(2020, 1, 1, h, 0, 0, 0, time.UTC) }

func TestTemporalFilter_Matches(t *testing.T) {
	window := temporal.NewPeriod(at(10), at(12))
	cases := []struct {
		op   TimeOperator
		fv   temporal.Value
		obs  temporal.Value
		want bool
	}{
		{TMDuring, window, temporal.NewInstant(at(11)), true},
		{TMDuring, window, temporal.NewInstant(at(10)), true},
		{TMDuring, window, temporal.NewInstant(at(13)), false},
		{TMDuring, window, temporal.NewPeriod(at(10), at(11)), true},
		{TMEquals, temporal.NewInstant(at(10)), temporal.NewInstant(at(10)), true},
		{TMEquals, temporal.NewInstant(at(10)), temporal.NewInstant(at(11)), false},
		{TMBefore, temporal.NewInstant(at(10)), temporal.NewInstant(at(9)), true},
		{TMBefore, temporal.NewInstant(at(10)), temporal.NewInstant(at(10)), false},
		{TMAfter, temporal.NewInstant(at(10)), temporal.NewInstant(at(11)), true},
		{TMBegins, window, temporal.NewPeriod(at(10), at(11)), true},
		{TMEnds, window, temporal.NewPeriod(at(11), at(12)), true},
		{TMBegunBy, window, temporal.NewPeriod(at(10), at(13)), true},
		{TMEndedBy, window, temporal.NewPeriod(at(9), at(12)), true},
		{TMContains, window, temporal.NewPeriod(at(9), at(13)), true},
		{TMOverlaps, window, temporal.NewPeriod(at(9), at(11)), true},
		{TMOverlappedBy, window, temporal.NewPeriod(at(11), at(13)), true},
		{TMMeets, window, temporal.NewPeriod(at(8), at(10)), true},
		{TMMetBy, window, temporal.NewPeriod(at(12), at(14)), true},
	}
	for _, tc := range cases {
		f := TemporalFilter{ValueReference: PhenomenonTime, Operator: tc.op, Time: tc.fv}
		assert.Equal(t, tc.want, f.Matches(tc.obs), "%s %s vs %s", tc.op, tc.fv, tc.obs)
	}
}

func TestTemporalFilter_OpenPeriodAndExtremes(t *testing.T) {
	var b Builder
	f, err := b.NewTemporalFilter("temporalFilter", PhenomenonTime, "2020-01-01T10:00:00Z/after")
	require.NoError(t, err)
	assert.True(t, f.Matches(temporal.NewInstant(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))))
	assert.False(t, f.Matches(temporal.NewInstant(at(9))))

	f, err = b.NewTemporalFilter("temporalFilter", PhenomenonTime, "latest")
	require.NoError(t, err)
	ind, ok := f.Extreme()
	require.True(t, ok)
	assert.Equal(t, temporal.Latest, ind)
	assert.False(t, f.Matches(temporal.NewInstant(at(9))))
}

func TestNewBBoxFilter_DefaultSRID(t *testing.T) {
	f, err := NewBBoxFilter("spatialFilter", []string{"prop", "1.0", "2.0", "3.0", "4.0"}, 4258)
	require.NoError(t, err)
	assert.Equal(t, 4258, f.SRID)
	assert.Equal(t, "prop", f.ValueReference)
	assert.Equal(t, BBOX, f.Operator)
	assert.Equal(t, orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}, f.Bound())
	assert.Equal(t, "POLYGON((1 2,1 4,3 4,3 2,1 2))", strings.ReplaceAll(f.WKT(), ", ", ","))
}

func TestNewBBoxFilter_CRSSuffix(t *testing.T) {
	f, err := NewBBoxFilter("spatialFilter", []string{"prop", "1.0", "2.0", "3.0", "4.0", "urn:ogc:def:crs:EPSG::4326"}, 31467)
	require.NoError(t, err)
	assert.Equal(t, 4326, f.SRID)

	f, err = NewBBoxFilter("spatialFilter", []string{"prop", "7.5", "51.9", "7.7", "52.0", "http://www.opengis.net/def/crs/EPSG/0/3857"}, 4326)
	require.NoError(t, err)
	assert.Equal(t, 3857, f.SRID)
	assert.True(t, f.Contains(orb.Point{7.6, 51.95}))
	assert.True(t, f.Contains(orb.Point{7.5, 51.9}))
	assert.False(t, f.Contains(orb.Point{8, 51.95}))
}

func TestNewBBoxFilter_OrdinateCount(t *testing.T) {
	bad := [][]string{
		{"prop", "1", "2", "3"},
		{"prop", "1", "2", "3", "4", "5"},
		{"prop", "1", "2", "3", "urn:ogc:def:crs:EPSG::4326"},
		{"prop"},
	}
	for _, tokens := range bad {
		_, err := NewBBoxFilter("spatialFilter", tokens, 4326)
		require.Error(t, err, "%v", tokens)
		assert.True(t, owserr.HasCode(err, owserr.InvalidParameterValue))
		assert.Equal(t, "spatialFilter", owserr.Flatten(err)[0].Locator)
	}
}

func TestNewBBoxFilter_NumericParsing(t *testing.T) {
	_, err := NewBBoxFilter("spatialFilter", []string{"prop", "1,5", "2", "3", "4"}, 4326)
	require.Error(t, err)

	_, err = NewBBoxFilter("spatialFilter", []string{"prop", "abc", "2", "3", "4"}, 4326)
	require.Error(t, err)

	_, err = NewBBoxFilter("spatialFilter", []string{"prop", "1", "2", "3", "4", "urn:ogc:def:crs:EPSG::x"}, 4326)
	require.Error(t, err)

	f, err := NewBBoxFilter("spatialFilter", []string{"prop", "-0.125", "1e1", "3.5", "40"}, 4326)
	require.NoError(t, err)
	assert.Equal(t, "POLYGON((-0.125 10,-0.125 40,3.5 40,3.5 10,-0.125 10))", strings.ReplaceAll(f.WKT(), ", ", ","))
}

func TestBuilder_SharedDefaults(t *testing.T) {
	b := NewBuilder(31466)
	f, err := b.ParseSpatialFilter("spatialfilter", SplitTokens("om:featureOfInterest/*/sams:shape, 1, 2, 3, 4"))
	require.NoError(t, err)
	assert.Equal(t, 31466, f.SRID)
	assert.Equal(t, FeatureShape, f.ValueReference)
	assert.Nil(t, SplitTokens("  "))
}

func TestEnvelopeWKT_FixedDecimalSeparator(t *testing.T) {
	assert.Equal(t, "POLYGON((0.5 1, 0.5 2.25, 3 2.25, 3 1, 0.5 1))", EnvelopeWKT(0.5, 1, 3, 2.25))
}
