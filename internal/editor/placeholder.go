package editor

import "github.com/mohammed-shakir/geofilter-editor/internal/core/model"

// Placeholder returns the all-zero sentinel for kind: selected but not yet
// configured. For KindNone it returns None.
//
// A genuine zero-sized shape at (0,0) is indistinguishable from the sentinel
// and is treated as unconfigured.
func Placeholder(kind model.ShapeKind) model.ShapeFilter {
	switch kind {
	case model.KindCircle:
		return model.CircleShape(model.Circle{})
	case model.KindRectangle:
		return model.RectangleShape(model.Rectangle{})
	default:
		return model.NoShape()
	}
}

// IsPlaceholder reports whether f equals its kind's sentinel. None is never a placeholder.
func IsPlaceholder(f model.ShapeFilter) bool {
	if f.IsNone() {
		return false
	}
	return f.Equal(Placeholder(f.Kind()))
}

// IsConfigured is true for a Circle or Rectangle that is not a placeholder.
func IsConfigured(f model.ShapeFilter) bool {
	return !f.IsNone() && !IsPlaceholder(f)
}
