package editor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
)

// Field paths addressable by text inputs.
const (
	FieldCenterLatitude  = "center.latitude"
	FieldCenterLongitude = "center.longitude"
	FieldRadius          = "radius"
	FieldLowLatitude     = "low.latitude"
	FieldLowLongitude    = "low.longitude"
	FieldHighLatitude    = "high.latitude"
	FieldHighLongitude   = "high.longitude"
)

func fieldKind(path string) (model.ShapeKind, error) {
	switch path {
	case FieldCenterLatitude, FieldCenterLongitude, FieldRadius:
		return model.KindCircle, nil
	case FieldLowLatitude, FieldLowLongitude, FieldHighLatitude, FieldHighLongitude:
		return model.KindRectangle, nil
	default:
		return model.KindNone, fmt.Errorf("%w %q", ErrUnknownField, path)
	}
}

// ParseFieldNumber coerces free text to a number. Blank or non-numeric text
// reads as 0; a numeric prefix wins over trailing garbage.
func ParseFieldNumber(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	v, ok := leadingFloat(text)
	if !ok {
		return 0
	}
	return v
}

// withField returns f with path set to v. The caller guarantees the kinds match.
func withField(f model.ShapeFilter, path string, v float64) model.ShapeFilter {
	if c, ok := f.Circle(); ok {
		switch path {
		case FieldCenterLatitude:
			c.Center.Latitude = v
		case FieldCenterLongitude:
			c.Center.Longitude = v
		case FieldRadius:
			c.Radius = v
		}
		return model.CircleShape(c)
	}
	if r, ok := f.Rectangle(); ok {
		switch path {
		case FieldLowLatitude:
			r.Low.Latitude = v
		case FieldLowLongitude:
			r.Low.Longitude = v
		case FieldHighLatitude:
			r.High.Latitude = v
		case FieldHighLongitude:
			r.High.Longitude = v
		}
		return model.RectangleShape(r)
	}
	return f
}

// fieldText renders path of f for display. None, placeholders and fields of
// the other kind render blank.
func fieldText(f model.ShapeFilter, path string) string {
	if !IsConfigured(f) {
		return ""
	}
	var v float64
	if c, ok := f.Circle(); ok {
		switch path {
		case FieldCenterLatitude:
			v = c.Center.Latitude
		case FieldCenterLongitude:
			v = c.Center.Longitude
		case FieldRadius:
			v = c.Radius
		default:
			return ""
		}
	}
	if r, ok := f.Rectangle(); ok {
		switch path {
		case FieldLowLatitude:
			v = r.Low.Latitude
		case FieldLowLongitude:
			v = r.Low.Longitude
		case FieldHighLatitude:
			v = r.High.Latitude
		case FieldHighLongitude:
			v = r.High.Longitude
		default:
			return ""
		}
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
