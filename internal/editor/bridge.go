package editor

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
	"github.com/mohammed-shakir/geofilter-editor/internal/mapsurface"
)

// SyncBridge projects canonical slot values onto at most one live overlay
// per slot. It is the only creator of persistent overlays, and it reads
// overlay geometry back only when the map reports a finished gesture.
type SyncBridge struct {
	provider  mapsurface.Provider
	overlays  [len(model.Slots)]mapsurface.Overlay
	tolerance float64
	log       *slog.Logger
}

func NewSyncBridge(p mapsurface.Provider, tolerance float64, log *slog.Logger) *SyncBridge {
	if log == nil {
		log = slog.Default()
	}
	if tolerance < 0 {
		tolerance = 0
	}
	return &SyncBridge{provider: p, tolerance: tolerance, log: log}
}

// Project makes slot's overlay reflect f: hidden for None or a placeholder,
// untouched when already equal, updated in place when the kind matches,
// rebuilt otherwise.
func (b *SyncBridge) Project(slot model.Slot, f model.ShapeFilter) error {
	cur := b.overlays[slot]
	if !IsConfigured(f) {
		if cur != nil {
			cur.Remove()
			b.overlays[slot] = nil
		}
		return nil
	}
	if cur != nil && cur.Kind() == f.Kind() {
		if approxEqual(cur.Geometry(), f, b.tolerance) {
			return nil
		}
		if err := cur.Update(f); err != nil {
			return fmt.Errorf("update %s overlay: %w", slot, err)
		}
		return nil
	}
	if cur != nil {
		cur.Remove()
		b.overlays[slot] = nil
	}
	o, err := b.provider.CreateOverlay(slot, f)
	if err != nil {
		return fmt.Errorf("create %s overlay: %w", slot, err)
	}
	b.overlays[slot] = o
	return nil
}

// GestureGeometry reads the live geometry of slot's overlay after a gesture.
func (b *SyncBridge) GestureGeometry(slot model.Slot) (model.ShapeFilter, bool) {
	o := b.overlays[slot]
	if o == nil {
		return model.NoShape(), false
	}
	return o.Geometry(), true
}

// TakeDrawn converts a freshly drawn transient overlay into a shape and
// destroys it. The persistent overlay appears only once the store is written.
func (b *SyncBridge) TakeDrawn(transient mapsurface.Overlay) model.ShapeFilter {
	f := transient.Geometry()
	transient.Remove()
	return f
}

// Reset drops every overlay.
func (b *SyncBridge) Reset() {
	for i, o := range b.overlays {
		if o != nil {
			o.Remove()
			b.overlays[i] = nil
		}
	}
}

func approxEqual(a, b model.ShapeFilter, tol float64) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case model.KindCircle:
		x, _ := a.Circle()
		y, _ := b.Circle()
		return pointNear(x.Center, y.Center, tol) && near(x.Radius, y.Radius, tol)
	case model.KindRectangle:
		x, _ := a.Rectangle()
		y, _ := b.Rectangle()
		return pointNear(x.Low, y.Low, tol) && pointNear(x.High, y.High, tol)
	default:
		return true
	}
}

func pointNear(a, b model.GeoPoint, tol float64) bool {
	return near(a.Latitude, b.Latitude, tol) && near(a.Longitude, b.Longitude, tol)
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }
