// Package mapsurface defines the capability the editor needs from a map: live
// overlay objects it can create and mutate, a drawing surface, a marker, and a
// small set of events flowing back. Nothing here is process-global; each
// editing session owns one Provider and drives its lifecycle explicitly.
package mapsurface

import (
	"context"
	"errors"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
)

var (
	ErrNotInitialized = errors.New("map surface not initialized")
	ErrAlreadyInit    = errors.New("map surface already initialized")
	ErrOverlayRemoved = errors.New("overlay removed")
	ErrRejected       = errors.New("map event rejected")
)

// Handlers are invoked by the provider for user-originated map events. A
// provider must never call a handler as a side effect of a CreateOverlay,
// Update, Remove, SetDrawingMode or SetMarker call.
type Handlers struct {
	// GestureEnded fires after a drag, resize or vertex edit of the slot's
	// persistent overlay has finished. The overlay already carries the new geometry.
	GestureEnded func(slot model.Slot)
	// DrawCompleted hands over the transient overlay produced by the drawing tool.
	DrawCompleted func(transient Overlay)
	Clicked       func(p model.GeoPoint)
	MarkerMoved   func(p model.GeoPoint)
}

type Overlay interface {
	Kind() model.ShapeKind
	Geometry() model.ShapeFilter
	// Update mutates the overlay in place. The kind must not change.
	Update(shape model.ShapeFilter) error
	Remove()
}

type Provider interface {
	Init(ctx context.Context, h Handlers) error
	Teardown(ctx context.Context) error
	CreateOverlay(slot model.Slot, shape model.ShapeFilter) (Overlay, error)
	// SetDrawingMode arms the drawing tool for kind; KindNone disarms it.
	SetDrawingMode(slot model.Slot, kind model.ShapeKind)
	// SetMarker shows a draggable origin marker at p, or hides it when p is nil.
	SetMarker(p *model.GeoPoint)
}

type Op string

const (
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpRemove  Op = "remove"
	OpDrawing Op = "drawing"
	OpMarker  Op = "marker"
)

// Command is one render instruction emitted towards a map client.
type Command struct {
	Seq     uint64            `json:"seq"`
	Session string            `json:"session,omitempty"`
	Op      Op                `json:"op"`
	Slot    string            `json:"slot,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Shape   model.ShapeFilter `json:"shape"`
	Marker  *model.GeoPoint   `json:"marker,omitempty"`
}

// Sink receives render commands, e.g. to fan them out to browsers.
type Sink interface {
	Publish(ctx context.Context, cmd Command) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, cmd Command) error

func (f SinkFunc) Publish(ctx context.Context, cmd Command) error { return f(ctx, cmd) }
