package editor

import "github.com/mohammed-shakir/geofilter-editor/internal/core/model"

// DrawModeController is a single-owner lock over pointer drawing:
// Idle or Drawing(slot). It never preempts.
type DrawModeController struct {
	slot   model.Slot
	active bool
}

// Start claims drawing for slot. It is refused while any slot is drawing,
// including slot itself, and when slot has no shape type.
func (d *DrawModeController) Start(slot model.Slot, current model.ShapeFilter) error {
	if d.active {
		return ErrDrawBusy
	}
	if current.IsNone() {
		return ErrNoShapeType
	}
	d.slot, d.active = slot, true
	return nil
}

// Stop returns to Idle and reports the slot that was drawing, if any.
func (d *DrawModeController) Stop() (model.Slot, bool) {
	was, ok := d.slot, d.active
	d.active = false
	return was, ok
}

// Release stops drawing only if slot owns the lock.
func (d *DrawModeController) Release(slot model.Slot) bool {
	if d.active && d.slot == slot {
		d.active = false
		return true
	}
	return false
}

func (d *DrawModeController) Active() (model.Slot, bool) { return d.slot, d.active }

func (d *DrawModeController) IsDrawing(slot model.Slot) bool { return d.active && d.slot == slot }
