package editor

import "github.com/mohammed-shakir/geofilter-editor/internal/core/model"

// ChangeFunc observes a committed slot change.
type ChangeFunc func(slot model.Slot, prev, next model.ShapeFilter)

// ShapeStore is the canonical value of each slot. Every write goes through
// Set, and observers run synchronously, in registration order, after the
// value is visible.
type ShapeStore struct {
	shapes    [len(model.Slots)]model.ShapeFilter
	calls     [len(model.Slots)]int
	observers []ChangeFunc
}

func (s *ShapeStore) OnChange(fn ChangeFunc) { s.observers = append(s.observers, fn) }

func (s *ShapeStore) Get(slot model.Slot) model.ShapeFilter { return s.shapes[slot] }

// Set writes f and reports whether the value changed. Writing an equal value
// is a no-op and notifies nobody.
func (s *ShapeStore) Set(slot model.Slot, f model.ShapeFilter) bool {
	s.calls[slot]++
	prev := s.shapes[slot]
	if prev.Equal(f) {
		return false
	}
	s.shapes[slot] = f
	for _, fn := range s.observers {
		fn(slot, prev, f)
	}
	return true
}

// Calls counts Set invocations for slot, including no-ops.
func (s *ShapeStore) Calls(slot model.Slot) int { return s.calls[slot] }

// ShapeDefaults parameterize the shape synthesized for a pristine session.
type ShapeDefaults struct {
	RadiusM       float64
	HalfExtentDeg float64
	Fallback      model.GeoPoint
}

// typeChoice is the outcome of resolving a shape-type selection.
type typeChoice struct {
	shape  model.ShapeFilter
	seeded bool
}

// resolveShapeType evaluates the shape-type decision table in order: None,
// remembered shape, pristine default, placeholder.
func resolveShapeType(slot model.Slot, target model.ShapeKind, mem *MemoryCache, pristine bool, origin *model.GeoPoint, d ShapeDefaults) typeChoice {
	if target == model.KindNone {
		return typeChoice{shape: model.NoShape()}
	}
	if f, ok := mem.Recall(slot, target); ok {
		return typeChoice{shape: f, seeded: mem.Seeded(slot, target)}
	}
	if pristine {
		center := d.Fallback
		if origin != nil {
			center = *origin
		}
		return typeChoice{shape: defaultShape(target, center, d), seeded: true}
	}
	return typeChoice{shape: Placeholder(target)}
}

func defaultShape(kind model.ShapeKind, center model.GeoPoint, d ShapeDefaults) model.ShapeFilter {
	if kind == model.KindCircle {
		return model.CircleShape(model.Circle{Center: center, Radius: d.RadiusM})
	}
	h := d.HalfExtentDeg
	return model.RectangleShape(model.Rectangle{
		Low:  model.GeoPoint{Latitude: center.Latitude - h, Longitude: center.Longitude - h},
		High: model.GeoPoint{Latitude: center.Latitude + h, Longitude: center.Longitude + h},
	})
}
