package editor

import (
	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
	"github.com/mohammed-shakir/geofilter-editor/internal/geo"
)

type Placement string

const (
	InsideRestriction Placement = "inside_restriction"
	InsideBias        Placement = "inside_bias"
	Outside           Placement = "outside"
)

// Classify places p relative to an effective snapshot. A restriction, when
// present, is the only shape consulted.
func Classify(snap model.RequestSnapshot, p model.GeoPoint) Placement {
	if !snap.Restriction.IsNone() {
		if geo.Contains(snap.Restriction, p) {
			return InsideRestriction
		}
		return Outside
	}
	if geo.Contains(snap.Bias, p) {
		return InsideBias
	}
	return Outside
}
