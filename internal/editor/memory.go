package editor

import "github.com/mohammed-shakir/geofilter-editor/internal/core/model"

type remembered struct {
	circle    *model.Circle
	rectangle *model.Rectangle

	// set when the entry is, or was edited from, a synthesized default
	circleSeeded bool
	rectSeeded   bool
}

// MemoryCache keeps the last configured circle and rectangle of each slot so
// switching shape type back and forth is lossless.
type MemoryCache struct {
	slots [len(model.Slots)]remembered
}

// Observe records f when it is a configured shape. None and placeholders are ignored.
func (m *MemoryCache) Observe(slot model.Slot, f model.ShapeFilter) {
	if !IsConfigured(f) {
		return
	}
	r := &m.slots[slot]
	if c, ok := f.Circle(); ok {
		r.circle = &c
		r.circleSeeded = false
	}
	if rect, ok := f.Rectangle(); ok {
		r.rectangle = &rect
		r.rectSeeded = false
	}
}

// MarkSeeded flags the remembered shape of kind as coming from the default path.
func (m *MemoryCache) MarkSeeded(slot model.Slot, kind model.ShapeKind) {
	r := &m.slots[slot]
	switch kind {
	case model.KindCircle:
		r.circleSeeded = r.circle != nil
	case model.KindRectangle:
		r.rectSeeded = r.rectangle != nil
	}
}

// Seeded reports whether the remembered shape of kind came from the default path.
func (m *MemoryCache) Seeded(slot model.Slot, kind model.ShapeKind) bool {
	r := m.slots[slot]
	switch kind {
	case model.KindCircle:
		return r.circle != nil && r.circleSeeded
	case model.KindRectangle:
		return r.rectangle != nil && r.rectSeeded
	}
	return false
}

// InvalidateSeeded forgets every remembered default of slot and reports
// whether anything was dropped.
func (m *MemoryCache) InvalidateSeeded(slot model.Slot) bool {
	var kinds []model.ShapeKind
	for _, k := range []model.ShapeKind{model.KindCircle, model.KindRectangle} {
		if m.Seeded(slot, k) {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return false
	}
	m.Invalidate(slot, kinds...)
	return true
}

// Recall returns the remembered shape of kind for slot.
func (m *MemoryCache) Recall(slot model.Slot, kind model.ShapeKind) (model.ShapeFilter, bool) {
	r := m.slots[slot]
	switch kind {
	case model.KindCircle:
		if r.circle != nil {
			return model.CircleShape(*r.circle), true
		}
	case model.KindRectangle:
		if r.rectangle != nil {
			return model.RectangleShape(*r.rectangle), true
		}
	}
	return model.NoShape(), false
}

// Invalidate forgets the given kinds for slot; with no kinds it forgets both.
func (m *MemoryCache) Invalidate(slot model.Slot, kinds ...model.ShapeKind) {
	if len(kinds) == 0 {
		kinds = []model.ShapeKind{model.KindCircle, model.KindRectangle}
	}
	r := &m.slots[slot]
	for _, k := range kinds {
		switch k {
		case model.KindCircle:
			r.circle, r.circleSeeded = nil, false
		case model.KindRectangle:
			r.rectangle, r.rectSeeded = nil, false
		}
	}
}

func (m *MemoryCache) InvalidateAll() {
	for _, s := range model.Slots {
		m.Invalidate(s)
	}
}

// InvalidateAfterResponse applies the response policy: a slot that was sent
// with kind K forgets the other kind, a slot sent empty forgets both.
func (m *MemoryCache) InvalidateAfterResponse(sent model.RequestSnapshot) {
	for _, s := range model.Slots {
		switch sent.Shape(s).Kind() {
		case model.KindCircle:
			m.Invalidate(s, model.KindRectangle)
		case model.KindRectangle:
			m.Invalidate(s, model.KindCircle)
		default:
			m.Invalidate(s)
		}
	}
}

// Empty reports whether slot remembers nothing.
func (m *MemoryCache) Empty(slot model.Slot) bool {
	r := m.slots[slot]
	return r.circle == nil && r.rectangle == nil
}
