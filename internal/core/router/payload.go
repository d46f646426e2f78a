package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
	"github.com/mohammed-shakir/geofilter-editor/internal/editor"
)

const maxBody = 1 << 20

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func badRequestf(format string, a ...any) error { return badRequest{msg: fmt.Sprintf(format, a...)} }

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequestf("request body is required")
		}
		return badRequestf("invalid json: %v", err)
	}
	return nil
}

// mapGeometry is a shape in map coordinate order ([lng, lat]).
type mapGeometry struct {
	Type   string         `json:"type"`
	Center *[2]float64    `json:"center,omitempty"`
	Radius *float64       `json:"radius,omitempty"`
	Bounds *[2][2]float64 `json:"bounds,omitempty"`
}

func (g mapGeometry) shape() (model.ShapeFilter, error) {
	switch strings.ToLower(strings.TrimSpace(g.Type)) {
	case "circle":
		if g.Center == nil || g.Radius == nil {
			return model.NoShape(), badRequestf("circle requires center and radius")
		}
		return model.MapCircle(*g.Center, *g.Radius), nil
	case "rectangle":
		if g.Bounds == nil {
			return model.NoShape(), badRequestf("rectangle requires bounds")
		}
		return model.MapBounds(g.Bounds[0], g.Bounds[1]), nil
	default:
		return model.NoShape(), badRequestf(`unsupported geometry type %q (must be circle or rectangle)`, g.Type)
	}
}

// mapPoint is [lng, lat].
type mapPoint [2]float64

func (p mapPoint) geo() model.GeoPoint {
	return model.GeoPoint{Latitude: p[1], Longitude: p[0]}
}

type slotView struct {
	Kind   string            `json:"kind"`
	Shape  model.ShapeFilter `json:"shape"`
	Fields map[string]string `json:"fields,omitempty"`
}

type sessionView struct {
	ID            string                `json:"id"`
	Input         string                `json:"input"`
	Origin        *model.GeoPoint       `json:"origin"`
	PlacingOrigin bool                  `json:"placingOrigin"`
	Drawing       *string               `json:"drawing"`
	Slots         map[string]slotView   `json:"slots"`
	Effective     model.RequestSnapshot `json:"effective"`
	Advisories    []editor.Advisory     `json:"advisories,omitempty"`
}
