package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// WireShape is the request-body form of a filter: at most one of Circle/Rectangle.
type WireShape struct {
	Circle    *Circle    `json:"circle,omitempty"`
	Rectangle *Rectangle `json:"rectangle,omitempty"`
}

// Wire returns nil for None.
func (f ShapeFilter) Wire() *WireShape {
	switch f.kind {
	case KindCircle:
		c := f.circle
		return &WireShape{Circle: &c}
	case KindRectangle:
		r := f.rect
		return &WireShape{Rectangle: &r}
	default:
		return nil
	}
}

// FromWire converts a wire shape back into a tagged filter. A nil or empty
// shape is None; a shape carrying both kinds is rejected.
func FromWire(w *WireShape) (ShapeFilter, error) {
	if w == nil {
		return NoShape(), nil
	}
	switch {
	case w.Circle != nil && w.Rectangle != nil:
		return NoShape(), errors.New("shape must carry exactly one of circle or rectangle")
	case w.Circle != nil:
		return CircleShape(*w.Circle), nil
	case w.Rectangle != nil:
		return RectangleShape(*w.Rectangle), nil
	default:
		return NoShape(), nil
	}
}

func (f ShapeFilter) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(f.Wire())
	if err != nil {
		return nil, fmt.Errorf("marshal shape: %w", err)
	}
	return b, nil
}

func (f *ShapeFilter) UnmarshalJSON(b []byte) error {
	var w *WireShape
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("unmarshal shape: %w", err)
	}
	v, err := FromWire(w)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

type wireSnapshot struct {
	Input               string     `json:"input"`
	Origin              *GeoPoint  `json:"origin,omitempty"`
	LocationBias        *WireShape `json:"locationBias,omitempty"`
	LocationRestriction *WireShape `json:"locationRestriction,omitempty"`
}

func (s RequestSnapshot) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(wireSnapshot{
		Input:               s.Input,
		Origin:              s.Origin,
		LocationBias:        s.Bias.Wire(),
		LocationRestriction: s.Restriction.Wire(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return b, nil
}

func (s *RequestSnapshot) UnmarshalJSON(b []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	bias, err := FromWire(w.LocationBias)
	if err != nil {
		return fmt.Errorf("locationBias: %w", err)
	}
	restr, err := FromWire(w.LocationRestriction)
	if err != nil {
		return fmt.Errorf("locationRestriction: %w", err)
	}
	*s = RequestSnapshot{Input: w.Input, Origin: w.Origin, Bias: bias, Restriction: restr}
	return nil
}

// Fingerprint hashes the canonical JSON form so identical effective requests
// share a key downstream.
func (s RequestSnapshot) Fingerprint() uint64 {
	b, err := json.Marshal(s)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}

// FingerprintHex is Fingerprint as fixed-width hex.
func (s RequestSnapshot) FingerprintHex() string {
	return fmt.Sprintf("%016x", s.Fingerprint())
}

// MapCircle builds a circle from map coordinate order: center is [lng, lat].
func MapCircle(center [2]float64, radius float64) ShapeFilter {
	return CircleShape(Circle{
		Center: GeoPoint{Latitude: center[1], Longitude: center[0]},
		Radius: radius,
	})
}

// MapBounds builds a rectangle from map coordinate order: sw and ne are [lng, lat].
func MapBounds(sw, ne [2]float64) ShapeFilter {
	return RectangleShape(Rectangle{
		Low:  GeoPoint{Latitude: sw[1], Longitude: sw[0]},
		High: GeoPoint{Latitude: ne[1], Longitude: ne[0]},
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
