// Package h3coverage maps editor shapes to H3 cells for map previews of the
// area a request actually covers.
package h3coverage

import (
	"errors"
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
	"github.com/mohammed-shakir/geofilter-editor/internal/geo"
)

// circleVertices is the ring resolution used to approximate circles.
const circleVertices = 36

// Coverage is the cell set of one slot of an effective request.
type Coverage struct {
	Slot  string   `json:"slot"`
	Kind  string   `json:"kind"`
	Res   int      `json:"res"`
	Cells []string `json:"cells"`
}

type Mapper struct {
	maxCells int
}

// New returns a mapper that coarsens the resolution until a shape fits in
// maxCells (<=0 means unbounded).
func New(maxCells int) *Mapper { return &Mapper{maxCells: maxCells} }

// CellsForShape covers f at res. A shape too small to contain any cell
// centre is covered by the cell holding its centre. None yields no cells.
func (m *Mapper) CellsForShape(f model.ShapeFilter, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	var (
		loop   h3.GeoLoop
		center model.GeoPoint
	)
	switch {
	case f.IsNone():
		return nil, nil
	case f.Kind() == model.KindCircle:
		c, _ := f.Circle()
		center = c.Center
		if c.Radius > 0 {
			loop = toLoop(geo.CircleRing(c, circleVertices))
		}
	default:
		r, _ := f.Rectangle()
		center = model.GeoPoint{
			Latitude:  (r.Low.Latitude + r.High.Latitude) / 2,
			Longitude: (r.Low.Longitude + r.High.Longitude) / 2,
		}
		if r.Low.Latitude != r.High.Latitude && r.Low.Longitude != r.High.Longitude {
			loop = toLoop(geo.RectRing(r))
		}
	}

	var cells []string
	if len(loop) > 0 {
		var err error
		if cells, err = polyfill(loop, res); err != nil {
			return nil, err
		}
	}
	if len(cells) == 0 {
		c, err := h3.LatLngToCell(h3.LatLng{Lat: center.Latitude, Lng: center.Longitude}, res)
		if err != nil {
			return nil, fmt.Errorf("h3 centre cell: %w", err)
		}
		cells = []string{c.String()}
	}
	return cells, nil
}

// Cover covers every non-empty slot of snap, starting at res and stepping
// down (never below minRes) while a slot exceeds the cell budget.
func (m *Mapper) Cover(snap model.RequestSnapshot, res, minRes int) ([]Coverage, error) {
	if minRes > res {
		minRes = res
	}
	var out []Coverage
	for _, slot := range model.Slots {
		f := snap.Shape(slot)
		if f.IsNone() {
			continue
		}
		r := res
		cells, err := m.CellsForShape(f, r)
		for err == nil && m.maxCells > 0 && len(cells) > m.maxCells && r > minRes {
			r--
			cells, err = m.CellsForShape(f, r)
		}
		if err != nil {
			return nil, fmt.Errorf("cover %s: %w", slot, err)
		}
		out = append(out, Coverage{Slot: slot.String(), Kind: f.Kind().String(), Res: r, Cells: cells})
	}
	return out, nil
}

// ToParent lifts cells to parentRes, deduplicated and sorted.
func (m *Mapper) ToParent(cells []string, parentRes int) ([]string, error) {
	if err := validateRes(parentRes); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(cells))
	out := make([]string, 0, len(cells))
	for _, s := range cells {
		var c h3.Cell
		if err := c.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("parse cell: %w", err)
		}
		if !c.IsValid() {
			return nil, fmt.Errorf("invalid h3 cell %q", s)
		}
		if parentRes > c.Resolution() {
			return nil, fmt.Errorf("parentRes %d must be <= cell resolution %d", parentRes, c.Resolution())
		}
		p := c
		if parentRes < c.Resolution() {
			var err error
			if p, err = c.Parent(parentRes); err != nil {
				return nil, fmt.Errorf("h3 parent: %w", err)
			}
		}
		if _, ok := seen[p.String()]; ok {
			continue
		}
		seen[p.String()] = struct{}{}
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func toLoop(ring []model.GeoPoint) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(ring))
	for _, p := range ring {
		loop = append(loop, h3.LatLng{Lat: p.Latitude, Lng: p.Longitude})
	}
	return loop
}

// polyfill returns unique cells sorted for determinism.
func polyfill(outer h3.GeoLoop, res int) ([]string, error) {
	if len(outer) < 3 {
		return nil, errors.New("ring has < 3 vertices")
	}
	idx, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	seen := make(map[string]struct{}, len(idx))
	out := make([]string, 0, len(idx))
	for _, c := range idx {
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
