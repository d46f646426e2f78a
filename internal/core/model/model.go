// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strings"
)

// GeoPoint is a coordinate in degrees. No range is enforced.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String renders the point as "lat,lng", the same form the origin text field accepts.
func (p GeoPoint) String() string {
	return fmt.Sprintf("%s,%s", formatFloat(p.Latitude), formatFloat(p.Longitude))
}

type Circle struct {
	Center GeoPoint `json:"center"`
	Radius float64  `json:"radius"` // meters
}

// Rectangle has Low as the south-west corner and High as the north-east corner.
// The ordering is not enforced; see Inverted.
type Rectangle struct {
	Low  GeoPoint `json:"low"`
	High GeoPoint `json:"high"`
}

// Inverted reports whether Low lies north or east of High.
func (r Rectangle) Inverted() bool {
	return r.Low.Latitude > r.High.Latitude || r.Low.Longitude > r.High.Longitude
}

type ShapeKind int

const (
	KindNone ShapeKind = iota
	KindCircle
	KindRectangle
)

func (k ShapeKind) String() string {
	switch k {
	case KindCircle:
		return "circle"
	case KindRectangle:
		return "rectangle"
	default:
		return "none"
	}
}

func ParseShapeKind(s string) (ShapeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return KindNone, nil
	case "circle":
		return KindCircle, nil
	case "rectangle":
		return KindRectangle, nil
	default:
		return KindNone, fmt.Errorf("unknown shape type %q (must be none|circle|rectangle)", s)
	}
}

// ShapeFilter is the value of one slot: exactly one of None, Circle or Rectangle.
// The zero value is None.
type ShapeFilter struct {
	kind   ShapeKind
	circle Circle
	rect   Rectangle
}

func NoShape() ShapeFilter { return ShapeFilter{} }

func CircleShape(c Circle) ShapeFilter { return ShapeFilter{kind: KindCircle, circle: c} }

func RectangleShape(r Rectangle) ShapeFilter { return ShapeFilter{kind: KindRectangle, rect: r} }

func (f ShapeFilter) Kind() ShapeKind { return f.kind }

func (f ShapeFilter) IsNone() bool { return f.kind == KindNone }

func (f ShapeFilter) Circle() (Circle, bool) {
	if f.kind != KindCircle {
		return Circle{}, false
	}
	return f.circle, true
}

func (f ShapeFilter) Rectangle() (Rectangle, bool) {
	if f.kind != KindRectangle {
		return Rectangle{}, false
	}
	return f.rect, true
}

// Equal is structural equality; payloads of the inactive kind are ignored.
func (f ShapeFilter) Equal(o ShapeFilter) bool {
	if f.kind != o.kind {
		return false
	}
	switch f.kind {
	case KindCircle:
		return f.circle == o.circle
	case KindRectangle:
		return f.rect == o.rect
	default:
		return true
	}
}

func (f ShapeFilter) String() string {
	switch f.kind {
	case KindCircle:
		return fmt.Sprintf("circle(center=%s radius=%s)", f.circle.Center, formatFloat(f.circle.Radius))
	case KindRectangle:
		return fmt.Sprintf("rectangle(low=%s high=%s)", f.rect.Low, f.rect.High)
	default:
		return "none"
	}
}

type Slot int

const (
	SlotBias Slot = iota
	SlotRestriction
)

// Slots lists every filter slot in a stable order.
var Slots = [...]Slot{SlotBias, SlotRestriction}

func (s Slot) String() string {
	if s == SlotRestriction {
		return "restriction"
	}
	return "bias"
}

func (s Slot) Valid() bool { return s == SlotBias || s == SlotRestriction }

func ParseSlot(s string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bias", "locationbias":
		return SlotBias, nil
	case "restriction", "locationrestriction":
		return SlotRestriction, nil
	default:
		return SlotBias, fmt.Errorf("unknown slot %q (must be bias|restriction)", s)
	}
}

// RequestSnapshot is the effective request handed downstream. It is derived at
// submission time and never written back into the editor.
type RequestSnapshot struct {
	Input       string
	Origin      *GeoPoint
	Bias        ShapeFilter
	Restriction ShapeFilter
}

// Shape returns the snapshot's filter for a slot.
func (s RequestSnapshot) Shape(slot Slot) ShapeFilter {
	if slot == SlotRestriction {
		return s.Restriction
	}
	return s.Bias
}
