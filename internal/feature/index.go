package feature

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

const (
	DefaultResolution = 7
	DefaultCacheSize  = 1024

	// bboxes needing more cells than this are answered by a scan
	maxCoverCells = 20000
)

// average hexagon area (km²) and edge length (km) per H3 resolution
var (
	hexAreaKm2 = [16]float64{
		4357449.416, 609788.442, 86801.780, 12393.435, 1770.348, 252.904, 36.129, 5.161,
		0.737, 0.105, 0.015, 0.002, 0.0003, 0.00004, 0.000006, 0.0000009,
	}
	hexEdgeKm = [16]float64{
		1281.256, 483.057, 182.513, 68.979, 26.072, 9.854, 3.725, 1.406,
		0.531, 0.201, 0.076, 0.029, 0.011, 0.004, 0.0015, 0.0006,
	}
)

type coverage struct {
	bound orb.Bound
	cells []h3.Cell
}

// cellIndex maps H3 cells to the features whose point lies in them.
type cellIndex struct {
	res   int
	cells map[h3.Cell][]string
	cache *lru.Cache[uint64, coverage]
}

func newCellIndex(res, cacheSize int) (*cellIndex, error) {
	if res == 0 {
		res = DefaultResolution
	}
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	c, err := lru.New[uint64, coverage](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("coverage cache: %w", err)
	}
	return &cellIndex{res: res, cells: map[h3.Cell][]string{}, cache: c}, nil
}

func (ix *cellIndex) add(id string, p orb.Point) error {
	c, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat(), Lng: p.Lon()}, ix.res)
	if err != nil {
		return fmt.Errorf("h3 cell: %w", err)
	}
	ix.cells[c] = append(ix.cells[c], id)
	return nil
}

// candidates returns the features in cells covering b. ok is false when b
// is too large for the index or cannot be covered; the caller then scans.
// The result is a superset of the features inside b.
func (ix *cellIndex) candidates(b orb.Bound) (ids []string, hit, ok bool) {
	if estimateCells(b, ix.res) > maxCoverCells {
		return nil, false, false
	}
	cov, hit, err := ix.coverage(b)
	if err != nil {
		return nil, false, false
	}
	ids = []string{}
	for _, c := range cov {
		ids = append(ids, ix.cells[c]...)
	}
	return ids, hit, true
}

func (ix *cellIndex) coverage(b orb.Bound) ([]h3.Cell, bool, error) {
	key := coverageKey(ix.res, b)
	if cov, ok := ix.cache.Get(key); ok && cov.bound == b {
		return cov.cells, true, nil
	}
	cells, err := cover(b, ix.res)
	if err != nil {
		return nil, false, err
	}
	ix.cache.Add(key, coverage{bound: b, cells: cells})
	return cells, false, nil
}

func coverageKey(res int, b orb.Bound) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%d|%v|%v|%v|%v", res, b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()))
}

// cover polyfills b and adds the neighbourhood of cells along its edges, so
// cells whose centre lies outside b but whose area overlaps it are included.
func cover(b orb.Bound, res int) ([]h3.Cell, error) {
	set := map[h3.Cell]struct{}{}

	if b.Max.X() > b.Min.X() && b.Max.Y() > b.Min.Y() {
		loop := h3.GeoLoop{
			{Lat: b.Min.Y(), Lng: b.Min.X()},
			{Lat: b.Min.Y(), Lng: b.Max.X()},
			{Lat: b.Max.Y(), Lng: b.Max.X()},
			{Lat: b.Max.Y(), Lng: b.Min.X()},
		}
		inner, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: loop}, res)
		if err != nil {
			return nil, fmt.Errorf("h3 polyfill: %w", err)
		}
		for _, c := range inner {
			set[c] = struct{}{}
		}
	}

	// sample step in degrees of latitude; a degree of longitude is never
	// longer than that, so the step is dense enough along both axes
	step := hexEdgeKm[res] / 2 / 111.32
	corners := []orb.Point{
		b.Min, {b.Max.X(), b.Min.Y()}, b.Max, {b.Min.X(), b.Max.Y()}, b.Min,
	}
	for i := 0; i+1 < len(corners); i++ {
		from, to := corners[i], corners[i+1]
		length := math.Max(math.Abs(to.X()-from.X()), math.Abs(to.Y()-from.Y()))
		n := int(math.Ceil(length/step)) + 1
		for k := 0; k <= n; k++ {
			t := float64(k) / float64(n)
			ll := h3.LatLng{
				Lat: from.Y() + t*(to.Y()-from.Y()),
				Lng: from.X() + t*(to.X()-from.X()),
			}
			c, err := h3.LatLngToCell(ll, res)
			if err != nil {
				return nil, fmt.Errorf("h3 cell: %w", err)
			}
			disk, err := h3.GridDisk(c, 1)
			if err != nil {
				return nil, fmt.Errorf("h3 grid disk: %w", err)
			}
			for _, d := range disk {
				set[d] = struct{}{}
			}
		}
	}

	out := make([]h3.Cell, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out, nil
}

// estimateCells approximates how many cells cover b, edges included.
func estimateCells(b orb.Bound, res int) float64 {
	midLat := (b.Min.Y() + b.Max.Y()) / 2 * math.Pi / 180
	wKm := (b.Max.X() - b.Min.X()) * 111.32 * math.Cos(midLat)
	hKm := (b.Max.Y() - b.Min.Y()) * 110.57
	area := math.Abs(wKm * hKm)
	perimeter := 2 * (math.Abs(wKm) + math.Abs(hKm))
	return area/hexAreaKm2[res] + 7*(perimeter/(hexEdgeKm[res]/2)+5)
}
