// Package editor is the geo-filter editing engine: a canonical store of the
// bias and restriction slots, a memory of previously configured shapes, a
// draw-mode lock, a projector onto live map overlays, and the derivation of
// the outgoing request.
//
// A Session serializes every event (API calls and map callbacks alike)
// behind one mutex, so each store write and its projection complete before
// the next event is looked at.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
	obs "github.com/mohammed-shakir/geofilter-editor/internal/core/observability"
	"github.com/mohammed-shakir/geofilter-editor/internal/mapsurface"
)

type Config struct {
	SeedInput string
	Shapes    ShapeDefaults
	Tolerance float64
}

func DefaultConfig() Config {
	return Config{
		SeedInput: "San Francisco",
		Shapes: ShapeDefaults{
			RadiusM:       5000,
			HalfExtentDeg: 0.1,
			Fallback:      model.GeoPoint{Latitude: 37.77, Longitude: -122.41},
		},
		Tolerance: 1e-9,
	}
}

type Option func(*Session)

func WithConfig(c Config) Option { return func(s *Session) { s.cfg = c } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Submission is an accepted, effective request.
type Submission struct {
	SessionID   string                `json:"session_id"`
	Token       uint64                `json:"token"`
	Snapshot    model.RequestSnapshot `json:"request"`
	Fingerprint string                `json:"fingerprint"`
	Advisories  []Advisory            `json:"advisories,omitempty"`
	SubmittedAt time.Time             `json:"submitted_at"`
}

type Session struct {
	mu  sync.Mutex
	id  string
	cfg Config
	log *slog.Logger
	now func() time.Time

	provider mapsurface.Provider
	store    ShapeStore
	memory   MemoryCache
	draw     DrawModeController
	bridge   *SyncBridge
	origin   OriginController

	input     string
	responded bool
	cleared   bool
	seeded    [len(model.Slots)]bool

	token    uint64
	inflight *Submission
	lastSent *model.RequestSnapshot
	closed   bool
}

// New builds a session and initializes its map provider. The provider is
// owned by the session from here on and torn down by Close.
func New(ctx context.Context, id string, p mapsurface.Provider, opts ...Option) (*Session, error) {
	s := &Session{
		id:       id,
		cfg:      DefaultConfig(),
		log:      slog.Default(),
		now:      time.Now,
		provider: p,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("session_id", id)
	s.input = s.cfg.SeedInput
	s.bridge = NewSyncBridge(p, s.cfg.Tolerance, s.log)
	s.store.OnChange(s.onStoreChange)

	err := p.Init(ctx, mapsurface.Handlers{
		GestureEnded:  s.handleGesture,
		DrawCompleted: s.handleDrawCompleted,
		Clicked:       s.handleClick,
		MarkerMoved:   s.handleMarkerMoved,
	})
	if err != nil {
		return nil, fmt.Errorf("init map surface: %w", err)
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Close tears the map provider down. Later calls fail with ErrClosed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.provider.Teardown(ctx); err != nil {
		return fmt.Errorf("teardown map surface: %w", err)
	}
	return nil
}

func (s *Session) onStoreChange(slot model.Slot, prev, next model.ShapeFilter) {
	s.memory.Observe(slot, next)
	if s.seeded[slot] {
		s.memory.MarkSeeded(slot, next.Kind())
	}

	if next.IsNone() {
		s.seeded[slot] = false
		if s.draw.Release(slot) {
			s.provider.SetDrawingMode(slot, model.KindNone)
		}
	} else if s.draw.IsDrawing(slot) && prev.Kind() != next.Kind() {
		s.provider.SetDrawingMode(slot, next.Kind())
	}

	if err := s.bridge.Project(slot, next); err != nil {
		s.log.Warn("overlay projection failed", "slot", slot.String(), "err", err)
	}
	s.log.Debug("slot changed", "slot", slot.String(), "from", prev.String(), "to", next.String())
}

func (s *Session) setShape(slot model.Slot, f model.ShapeFilter) bool {
	return s.store.Set(slot, f)
}

func (s *Session) pristine() bool {
	return s.input == s.cfg.SeedInput && !s.responded && !s.cleared && s.inflight == nil
}

func (s *Session) guard(op string) error {
	if s.closed {
		obs.ObserveEditorEvent(op, ErrClosed)
		return ErrClosed
	}
	return nil
}

func (s *Session) done(op string, err error) error {
	obs.ObserveEditorEvent(op, err)
	if err != nil {
		s.log.Warn("action refused", "op", op, "code", Code(err), "err", err)
		obs.IncAdvisory(Code(err))
	}
	return err
}

// Shape returns the canonical value of slot.
func (s *Session) Shape(slot model.Slot) model.ShapeFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(slot)
}

// SetShape writes a complete shape from the text form. It is refused while
// slot is being drawn.
func (s *Session) SetShape(slot model.Slot, f model.ShapeFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("set_shape"); err != nil {
		return err
	}
	if s.draw.IsDrawing(slot) {
		return s.done("set_shape", ErrFieldReadOnly)
	}
	s.setShape(slot, f)
	return s.done("set_shape", nil)
}

// SetShapeType switches slot to kind and returns the resulting value.
func (s *Session) SetShapeType(slot model.Slot, kind model.ShapeKind) (model.ShapeFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("set_shape_type"); err != nil {
		return model.NoShape(), err
	}
	choice := resolveShapeType(slot, kind, &s.memory, s.pristine(), s.origin.Point(), s.cfg.Shapes)
	if kind != model.KindNone {
		s.seeded[slot] = choice.seeded
	}
	s.setShape(slot, choice.shape)
	return s.store.Get(slot), s.done("set_shape_type", nil)
}

// ClearShape resets slot to None. Memory is kept.
func (s *Session) ClearShape(slot model.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("clear_shape"); err != nil {
		return err
	}
	s.setShape(slot, model.NoShape())
	return s.done("clear_shape", nil)
}

// SetField applies one text edit. Edits to a None slot or to a field of the
// other kind are ignored.
func (s *Session) SetField(slot model.Slot, path, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("set_field"); err != nil {
		return err
	}
	kind, err := fieldKind(path)
	if err != nil {
		return s.done("set_field", err)
	}
	if s.draw.IsDrawing(slot) {
		return s.done("set_field", ErrFieldReadOnly)
	}
	cur := s.store.Get(slot)
	if cur.Kind() != kind {
		return s.done("set_field", nil)
	}
	s.setShape(slot, withField(cur, path, ParseFieldNumber(text)))
	return s.done("set_field", nil)
}

// FieldValue renders a field for display.
func (s *Session) FieldValue(slot model.Slot, path string) (string, error) {
	if _, err := fieldKind(path); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fieldText(s.store.Get(slot), path), nil
}

func (s *Session) StartDrawing(slot model.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("draw_start"); err != nil {
		return err
	}
	return s.done("draw_start", s.startDrawing(slot))
}

func (s *Session) startDrawing(slot model.Slot) error {
	cur := s.store.Get(slot)
	if err := s.draw.Start(slot, cur); err != nil {
		return err
	}
	s.provider.SetDrawingMode(slot, cur.Kind())
	if s.origin.Placing() {
		s.log.Warn("drawing started while origin placement is pending", "slot", slot.String())
	}
	return nil
}

func (s *Session) StopDrawing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if slot, ok := s.draw.Stop(); ok {
		s.provider.SetDrawingMode(slot, model.KindNone)
	}
	obs.ObserveEditorEvent("draw_stop", nil)
}

// ToggleDrawing stops when slot is already drawing and starts otherwise. It
// reports whether slot is drawing afterwards.
func (s *Session) ToggleDrawing(slot model.Slot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("draw_toggle"); err != nil {
		return false, err
	}
	if s.draw.IsDrawing(slot) {
		s.draw.Stop()
		s.provider.SetDrawingMode(slot, model.KindNone)
		return false, s.done("draw_toggle", nil)
	}
	if err := s.startDrawing(slot); err != nil {
		return false, s.done("draw_toggle", err)
	}
	return true, s.done("draw_toggle", nil)
}

func (s *Session) Drawing() (model.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draw.Active()
}

// SetInput updates the primary query text. Leaving the seed value resets
// every slot still holding a seeded default and forgets its memory.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	prev := s.input
	s.input = text
	if prev == s.cfg.SeedInput && text != s.cfg.SeedInput {
		for _, slot := range model.Slots {
			if !s.seeded[slot] {
				if s.memory.InvalidateSeeded(slot) {
					s.log.Debug("remembered default dropped", "slot", slot.String())
				}
				continue
			}
			s.setShape(slot, model.NoShape())
			s.memory.Invalidate(slot)
			s.seeded[slot] = false
			s.log.Debug("seeded default dropped", "slot", slot.String())
		}
	}
	obs.ObserveEditorEvent("set_input", nil)
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) Origin() (*model.GeoPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin.Point(), s.origin.Placing()
}

// SetOrigin sets or removes the origin point directly.
func (s *Session) SetOrigin(p *model.GeoPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setOrigin(p)
	obs.ObserveEditorEvent("set_origin", nil)
}

// SetOriginText parses a "lat,lng" edit. Unparsable text removes the origin.
func (s *Session) SetOriginText(text string) *model.GeoPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.setOrigin(ParseOriginText(text))
	obs.ObserveEditorEvent("set_origin_text", nil)
	return s.origin.Point()
}

func (s *Session) setOrigin(p *model.GeoPoint) {
	prev := s.origin.Point()
	s.origin.Set(p)
	if !samePoint(prev, p) {
		s.provider.SetMarker(s.origin.Point())
	}
}

func (s *Session) StartPlacingOrigin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.origin.StartPlacing()
	if slot, drawing := s.draw.Active(); drawing {
		s.log.Warn("origin placement armed while drawing", "slot", slot.String())
	}
}

func (s *Session) CancelPlacingOrigin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.origin.CancelPlacing()
	obs.ObserveEditorEvent("cancel_placing", nil)
}

// ToggleOrigin follows the origin button: remove when set, else flip placing.
func (s *Session) ToggleOrigin() (*model.GeoPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	hadPoint := s.origin.Point() != nil
	s.origin.Toggle()
	if hadPoint {
		s.provider.SetMarker(nil)
	}
	return s.origin.Point(), s.origin.Placing()
}

// Clear resets the whole editor: both slots, all memory, origin, drawing and
// response state. The primary input is kept.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if slot, ok := s.draw.Stop(); ok {
		s.provider.SetDrawingMode(slot, model.KindNone)
	}
	for _, slot := range model.Slots {
		s.setShape(slot, model.NoShape())
	}
	s.memory.InvalidateAll()
	s.seeded = [len(model.Slots)]bool{}
	if s.origin.Point() != nil {
		s.provider.SetMarker(nil)
	}
	s.origin.Reset()
	s.responded = false
	s.cleared = true
	s.inflight = nil
	s.lastSent = nil
	obs.ObserveEditorEvent("clear", nil)
	s.log.Debug("editor cleared")
}

// Submit validates the editor and derives the effective request. Stored
// slots are never modified; origin placement is cancelled.
func (s *Session) Submit() (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("submit"); err != nil {
		return Submission{}, err
	}
	if strings.TrimSpace(s.input) == "" {
		obs.ObserveSubmission("rejected")
		return Submission{}, s.done("submit", ErrInputRequired)
	}
	for _, slot := range model.Slots {
		if IsPlaceholder(s.store.Get(slot)) {
			obs.ObserveSubmission("rejected")
			return Submission{}, s.done("submit", fmt.Errorf("%s: %w", slot, ErrNotConfigured))
		}
	}

	bias, restr, adv := ComputeEffectiveRequest(s.store.Get(model.SlotBias), s.store.Get(model.SlotRestriction))
	snap := model.RequestSnapshot{
		Input:       s.input,
		Origin:      s.origin.Point(),
		Bias:        bias,
		Restriction: restr,
	}
	for _, slot := range model.Slots {
		if r, ok := snap.Shape(slot).Rectangle(); ok && r.Inverted() {
			adv = append(adv, Advisory{
				Code:    CodeRectangleInverted,
				Message: "rectangle low corner is not south-west of high corner; sent as entered",
				Slot:    slot.String(),
			})
		}
	}
	for _, a := range adv {
		obs.IncAdvisory(a.Code)
		s.log.Warn("submission advisory", "code", a.Code, "slot", a.Slot)
	}

	s.origin.CancelPlacing()
	s.token++
	sub := Submission{
		SessionID:   s.id,
		Token:       s.token,
		Snapshot:    snap,
		Fingerprint: snap.FingerprintHex(),
		Advisories:  adv,
		SubmittedAt: s.now().UTC(),
	}
	s.inflight = &sub
	sent := snap
	s.lastSent = &sent

	obs.ObserveSubmission("accepted")
	s.log.Info("submission accepted", "token", sub.Token, "fingerprint", sub.Fingerprint)
	return sub, s.done("submit", nil)
}

// ResponseReceived applies the response for token. Only the latest
// submission is honoured; older tokens are stale.
func (s *Session) ResponseReceived(token uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard("response"); err != nil {
		return err
	}
	if s.inflight == nil || s.inflight.Token != token {
		s.log.Debug("stale response discarded", "token", token, "latest", s.token)
		obs.ObserveEditorEvent("response", ErrStaleResponse)
		return ErrStaleResponse
	}
	s.memory.InvalidateAfterResponse(s.inflight.Snapshot)
	s.responded = true
	s.inflight = nil
	obs.ObserveEditorEvent("response", nil)
	return nil
}

// Classify labels points against the last submitted request.
func (s *Session) Classify(points []model.GeoPoint) []Placement {
	s.mu.Lock()
	var snap model.RequestSnapshot
	if s.lastSent != nil {
		snap = *s.lastSent
	}
	s.mu.Unlock()

	out := make([]Placement, len(points))
	for i, p := range points {
		out[i] = Classify(snap, p)
	}
	return out
}

// Effective previews the request Submit would send, without validation.
func (s *Session) Effective() (model.RequestSnapshot, []Advisory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bias, restr, adv := ComputeEffectiveRequest(s.store.Get(model.SlotBias), s.store.Get(model.SlotRestriction))
	return model.RequestSnapshot{Input: s.input, Origin: s.origin.Point(), Bias: bias, Restriction: restr}, adv
}

// Remembered exposes the memory of slot for kind.
func (s *Session) Remembered(slot model.Slot, kind model.ShapeKind) (model.ShapeFilter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory.Recall(slot, kind)
}

// StoreCalls counts canonical writes attempted on slot.
func (s *Session) StoreCalls(slot model.Slot) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Calls(slot)
}

func (s *Session) handleGesture(slot model.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	g, ok := s.bridge.GestureGeometry(slot)
	if !ok {
		return
	}
	s.setShape(slot, g)
	obs.ObserveEditorEvent("gesture", nil)
}

func (s *Session) handleDrawCompleted(transient mapsurface.Overlay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.bridge.TakeDrawn(transient)
	if s.closed {
		return
	}
	slot, ok := s.draw.Stop()
	if !ok {
		s.log.Debug("draw completion without active drawing ignored")
		return
	}
	s.provider.SetDrawingMode(slot, model.KindNone)
	s.setShape(slot, f)
	obs.ObserveEditorEvent("draw_complete", nil)
}

func (s *Session) handleClick(p model.GeoPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if slot, drawing := s.draw.Active(); drawing && s.origin.Placing() {
		s.log.Warn("map click consumed by origin placement while drawing", "slot", slot.String())
	}
	if s.origin.Click(p) {
		s.provider.SetMarker(s.origin.Point())
		obs.ObserveEditorEvent("origin_click", nil)
	}
}

func (s *Session) handleMarkerMoved(p model.GeoPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.origin.Set(&p)
	obs.ObserveEditorEvent("origin_drag", nil)
}

func samePoint(a, b *model.GeoPoint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
