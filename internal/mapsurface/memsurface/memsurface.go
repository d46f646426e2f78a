// Package memsurface is a headless mapsurface.Provider. It keeps live overlay
// objects in memory, counts every mutation, mirrors them as render commands
// to an optional Sink, and lets callers inject user gestures.
//
// Commands reach the Sink from a per-surface pump goroutine, in sequence
// order, so overlay mutations never wait on the Sink.
package memsurface

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
	"github.com/mohammed-shakir/geofilter-editor/internal/core/observability"
	"github.com/mohammed-shakir/geofilter-editor/internal/mapsurface"
)

const (
	publishTimeout   = 2 * time.Second
	defaultQueueSize = 256
)

// Stats counts overlay operations performed on persistent overlays.
type Stats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// OverlayState is a read-only view of one live overlay.
type OverlayState struct {
	Slot  string            `json:"slot"`
	Kind  string            `json:"kind"`
	Shape model.ShapeFilter `json:"shape"`
}

type Option func(*Surface)

func WithSink(s mapsurface.Sink) Option { return func(m *Surface) { m.sink = s } }

// WithQueueSize bounds the commands buffered for the Sink. Commands beyond it
// are dropped and counted.
func WithQueueSize(n int) Option {
	return func(m *Surface) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

func WithSession(id string) Option { return func(m *Surface) { m.session = id } }

func WithLogger(l *slog.Logger) Option {
	return func(m *Surface) {
		if l != nil {
			m.log = l
		}
	}
}

type Surface struct {
	mu       sync.Mutex
	ready    bool
	handlers mapsurface.Handlers
	live     map[model.Slot]*overlay
	stats    map[model.Slot]*Stats

	drawSlot model.Slot
	drawKind model.ShapeKind
	marker   *model.GeoPoint

	seq       uint64
	sink      mapsurface.Sink
	queueSize int
	queue     chan queued
	pumpDone  chan struct{}
	session   string
	log       *slog.Logger
}

// queued is a command for the pump, or a flush barrier when ack is set.
type queued struct {
	cmd mapsurface.Command
	ack chan struct{}
}

var _ mapsurface.Provider = (*Surface)(nil)

func New(opts ...Option) *Surface {
	s := &Surface{
		live:      make(map[model.Slot]*overlay, len(model.Slots)),
		stats:     make(map[model.Slot]*Stats, len(model.Slots)),
		queueSize: defaultQueueSize,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	for _, sl := range model.Slots {
		s.stats[sl] = &Stats{}
	}
	return s
}

func (s *Surface) Init(_ context.Context, h mapsurface.Handlers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return mapsurface.ErrAlreadyInit
	}
	s.handlers = h
	s.ready = true
	if s.sink != nil {
		s.queue = make(chan queued, s.queueSize)
		s.pumpDone = make(chan struct{})
		go s.pump(s.queue, s.pumpDone)
	}
	return nil
}

// Teardown removes every overlay and detaches handlers, then waits for the
// Sink to drain until ctx expires. It is safe to call twice.
func (s *Surface) Teardown(ctx context.Context) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return nil
	}
	for _, slot := range model.Slots {
		if o, ok := s.live[slot]; ok {
			o.removed = true
			delete(s.live, slot)
			s.enqueueLocked(s.cmdLocked(mapsurface.OpRemove, slot, model.NoShape()))
		}
	}
	s.handlers = mapsurface.Handlers{}
	s.marker = nil
	s.drawKind = model.KindNone
	s.ready = false
	done := s.pumpDone
	if s.queue != nil {
		close(s.queue)
		s.queue, s.pumpDone = nil, nil
	}
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain overlay commands: %w", ctx.Err())
	}
}

func (s *Surface) CreateOverlay(slot model.Slot, shape model.ShapeFilter) (mapsurface.Overlay, error) {
	if shape.IsNone() {
		return nil, fmt.Errorf("create overlay for %s: empty shape", slot)
	}
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return nil, mapsurface.ErrNotInitialized
	}
	if prev, ok := s.live[slot]; ok {
		prev.removed = true
	}
	o := &overlay{s: s, slot: slot, kind: shape.Kind(), shape: shape, persistent: true}
	s.live[slot] = o
	s.stats[slot].Created++
	s.enqueueLocked(s.cmdLocked(mapsurface.OpCreate, slot, shape))
	s.mu.Unlock()

	observability.ObserveOverlayOp(string(mapsurface.OpCreate))
	return o, nil
}

func (s *Surface) SetDrawingMode(slot model.Slot, kind model.ShapeKind) {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return
	}
	s.drawSlot, s.drawKind = slot, kind
	cmd := s.cmdLocked(mapsurface.OpDrawing, slot, model.NoShape())
	cmd.Kind = kind.String()
	s.enqueueLocked(cmd)
	s.mu.Unlock()
}

func (s *Surface) SetMarker(p *model.GeoPoint) {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return
	}
	if p != nil {
		cp := *p
		p = &cp
	}
	s.marker = p
	cmd := s.cmdLocked(mapsurface.OpMarker, model.SlotBias, model.NoShape())
	cmd.Slot = ""
	cmd.Marker = p
	s.enqueueLocked(cmd)
	s.mu.Unlock()
}

// EndGesture simulates the user dragging or resizing slot's overlay to shape
// and releasing the pointer. It fails when no overlay of that kind is live.
func (s *Surface) EndGesture(slot model.Slot, shape model.ShapeFilter) error {
	s.mu.Lock()
	o, ok := s.live[slot]
	if !ok || !s.ready {
		s.mu.Unlock()
		return fmt.Errorf("gesture on %s: no live overlay: %w", slot, mapsurface.ErrRejected)
	}
	if o.kind != shape.Kind() {
		s.mu.Unlock()
		return fmt.Errorf("gesture on %s: overlay is %s, got %s: %w", slot, o.kind, shape.Kind(), mapsurface.ErrRejected)
	}
	o.shape = shape
	h := s.handlers.GestureEnded
	s.mu.Unlock()

	if h != nil {
		h(slot)
	}
	return nil
}

// CompleteDrawing simulates finishing a shape with the drawing tool. The
// transient overlay it produces is handed to the DrawCompleted handler.
func (s *Surface) CompleteDrawing(shape model.ShapeFilter) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return mapsurface.ErrNotInitialized
	}
	if s.drawKind == model.KindNone {
		s.mu.Unlock()
		return fmt.Errorf("draw completed: drawing tool not armed: %w", mapsurface.ErrRejected)
	}
	if shape.Kind() != s.drawKind {
		s.mu.Unlock()
		return fmt.Errorf("draw completed: tool armed for %s, got %s: %w", s.drawKind, shape.Kind(), mapsurface.ErrRejected)
	}
	t := &overlay{s: s, slot: s.drawSlot, kind: shape.Kind(), shape: shape}
	h := s.handlers.DrawCompleted
	s.mu.Unlock()

	if h != nil {
		h(t)
	}
	return nil
}

func (s *Surface) Click(p model.GeoPoint) {
	s.mu.Lock()
	h := s.handlers.Clicked
	s.mu.Unlock()
	if h != nil {
		h(p)
	}
}

// DragMarker moves the origin marker. It is a no-op while no marker is shown.
func (s *Surface) DragMarker(p model.GeoPoint) bool {
	s.mu.Lock()
	if s.marker == nil {
		s.mu.Unlock()
		return false
	}
	cp := p
	s.marker = &cp
	h := s.handlers.MarkerMoved
	s.mu.Unlock()
	if h != nil {
		h(p)
	}
	return true
}

func (s *Surface) Stats(slot model.Slot) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.stats[slot]
}

func (s *Surface) Overlays() []OverlayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OverlayState, 0, len(s.live))
	for _, sl := range model.Slots {
		if o, ok := s.live[sl]; ok {
			out = append(out, OverlayState{Slot: sl.String(), Kind: o.kind.String(), Shape: o.shape})
		}
	}
	return out
}

func (s *Surface) Marker() *model.GeoPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marker == nil {
		return nil
	}
	cp := *s.marker
	return &cp
}

// DrawingMode reports the armed drawing tool, KindNone when disarmed.
func (s *Surface) DrawingMode() (model.Slot, model.ShapeKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawSlot, s.drawKind
}

func (s *Surface) cmdLocked(op mapsurface.Op, slot model.Slot, shape model.ShapeFilter) mapsurface.Command {
	s.seq++
	return mapsurface.Command{
		Seq:     s.seq,
		Session: s.session,
		Op:      op,
		Slot:    slot.String(),
		Kind:    shape.Kind().String(),
		Shape:   shape,
	}
}

// enqueueLocked hands cmd to the pump without blocking. Caller holds s.mu.
func (s *Surface) enqueueLocked(cmd mapsurface.Command) {
	if s.queue == nil {
		return
	}
	select {
	case s.queue <- queued{cmd: cmd}:
	default:
		observability.IncRedisPublish("dropped")
		s.log.Warn("overlay command queue full, dropping", "op", cmd.Op, "slot", cmd.Slot, "seq", cmd.Seq)
	}
}

func (s *Surface) pump(q <-chan queued, done chan<- struct{}) {
	defer close(done)
	for item := range q {
		if item.ack != nil {
			close(item.ack)
			continue
		}
		s.publish(item.cmd)
	}
}

func (s *Surface) publish(cmd mapsurface.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.sink.Publish(ctx, cmd); err != nil {
		s.log.Warn("overlay command publish failed", "op", cmd.Op, "slot", cmd.Slot, "seq", cmd.Seq, "err", err)
	}
}

// Flush waits until every command enqueued so far has reached the Sink.
// The pump never takes s.mu.
func (s *Surface) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return nil
	}
	select {
	case s.queue <- queued{ack: ack}:
	case <-ctx.Done():
		s.mu.Unlock()
		return fmt.Errorf("flush overlay commands: %w", ctx.Err())
	}
	s.mu.Unlock()

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush overlay commands: %w", ctx.Err())
	}
}

type overlay struct {
	s          *Surface
	slot       model.Slot
	kind       model.ShapeKind
	shape      model.ShapeFilter
	persistent bool
	removed    bool
}

func (o *overlay) Kind() model.ShapeKind { return o.kind }

func (o *overlay) Geometry() model.ShapeFilter {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return o.shape
}

func (o *overlay) Update(shape model.ShapeFilter) error {
	if shape.Kind() != o.kind {
		return fmt.Errorf("update %s overlay with %s", o.kind, shape.Kind())
	}
	o.s.mu.Lock()
	if o.removed {
		o.s.mu.Unlock()
		return mapsurface.ErrOverlayRemoved
	}
	o.shape = shape
	if !o.persistent {
		o.s.mu.Unlock()
		return nil
	}
	o.s.stats[o.slot].Updated++
	o.s.enqueueLocked(o.s.cmdLocked(mapsurface.OpUpdate, o.slot, shape))
	o.s.mu.Unlock()

	observability.ObserveOverlayOp(string(mapsurface.OpUpdate))
	return nil
}

func (o *overlay) Remove() {
	o.s.mu.Lock()
	if o.removed {
		o.s.mu.Unlock()
		return
	}
	o.removed = true
	if !o.persistent {
		o.s.mu.Unlock()
		return
	}
	if cur, ok := o.s.live[o.slot]; ok && cur == o {
		delete(o.s.live, o.slot)
	}
	o.s.stats[o.slot].Removed++
	o.s.enqueueLocked(o.s.cmdLocked(mapsurface.OpRemove, o.slot, model.NoShape()))
	o.s.mu.Unlock()

	observability.ObserveOverlayOp(string(mapsurface.OpRemove))
}
