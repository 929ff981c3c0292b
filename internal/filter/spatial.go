package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
)

const (
	CRSURNPrefix = "urn:ogc:def:crs:EPSG::"
	CRSURLPrefix = "http://www.opengis.net/def/crs/EPSG/0/"
)

// FeatureShape is the common spatial value reference of SOS 2.0 requests.
const FeatureShape = "om:featureOfInterest/*/sams:shape"

type SpatialFilter struct {
	ValueReference string
	Operator       SpatialOperator
	Geometry       orb.Polygon
	SRID           int
}

func (f SpatialFilter) WKT() string { return wkt.MarshalString(f.Geometry) }

func (f SpatialFilter) Bound() orb.Bound { return f.Geometry.Bound() }

// Contains reports whether p falls inside the envelope, edges included.
func (f SpatialFilter) Contains(p orb.Point) bool { return f.Bound().Contains(p) }

func (f SpatialFilter) String() string {
	return fmt.Sprintf("%s,%s,SRID=%d;%s", f.ValueReference, f.Operator, f.SRID, f.WKT())
}

// CRSToSRID extracts the EPSG code from a recognised CRS URI.
func CRSToSRID(s string) (int, bool, error) {
	t := strings.TrimSpace(s)
	lower := strings.ToLower(t)
	for _, prefix := range []string{CRSURNPrefix, CRSURLPrefix} {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			code, err := strconv.Atoi(t[len(prefix):])
			if err != nil {
				return 0, true, err
			}
			return code, true, nil
		}
	}
	return 0, false, nil
}

// NewBBoxFilter builds a BBOX filter from [valueRef, x1, y1, x2, y2, crs?].
// Without a CRS URI the filter takes defaultSRID.
func NewBBoxFilter(param string, tokens []string, defaultSRID int) (SpatialFilter, error) {
	raw := strings.Join(tokens, ",")
	if len(tokens) == 0 || strings.TrimSpace(tokens[0]) == "" {
		return SpatialFilter{}, owserr.InvalidParameterValueError(param, raw,
			"The parameter '%s' requires a value reference", param)
	}
	valueRef := strings.TrimSpace(tokens[0])
	ordinates := tokens[1:]

	srid := defaultSRID
	if n := len(ordinates); n > 0 {
		code, isCRS, err := CRSToSRID(ordinates[n-1])
		if isCRS {
			if err != nil {
				return SpatialFilter{}, owserr.InvalidParameterValueCause(param, ordinates[n-1], err)
			}
			srid = code
			ordinates = ordinates[:n-1]
		}
	}
	if len(ordinates) != 4 {
		return SpatialFilter{}, owserr.InvalidParameterValueError(param, raw,
			"The parameter '%s' requires exactly 4 ordinates for a bounding box but got %d", param, len(ordinates))
	}

	var c [4]float64
	for i, o := range ordinates {
		f, err := strconv.ParseFloat(strings.TrimSpace(o), 64)
		if err != nil {
			return SpatialFilter{}, owserr.InvalidParameterValueCause(param, o, err)
		}
		c[i] = f
	}

	poly, err := wkt.UnmarshalPolygon(EnvelopeWKT(c[0], c[1], c[2], c[3]))
	if err != nil {
		return SpatialFilter{}, owserr.InvalidParameterValueCause(param, raw, err)
	}
	return SpatialFilter{
		ValueReference: valueRef,
		Operator:       BBOX,
		Geometry:       poly,
		SRID:           srid,
	}, nil
}

// EnvelopeWKT writes the envelope with lower corner (x1,y1) and upper corner
// (x2,y2) as a closed polygon. Numbers always use '.' as decimal separator.
func EnvelopeWKT(x1, y1, x2, y2 float64) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	lx, ly, ux, uy := f(x1), f(y1), f(x2), f(y2)
	return fmt.Sprintf("POLYGON((%s %s, %s %s, %s %s, %s %s, %s %s))",
		lx, ly, lx, uy, ux, uy, ux, ly, lx, ly)
}
