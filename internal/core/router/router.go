// Package router translates HTTP requests into editor session events.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
	h3coverage "github.com/mohammed-shakir/geofilter-editor/internal/coverage/h3"
	"github.com/mohammed-shakir/geofilter-editor/internal/editor"
	mylog "github.com/mohammed-shakir/geofilter-editor/internal/logger"
	"github.com/mohammed-shakir/geofilter-editor/internal/sessions"
	"github.com/mohammed-shakir/geofilter-editor/internal/submission"
)

type Registry interface {
	Create(ctx context.Context) (*sessions.Entry, error)
	Get(id string) (*sessions.Entry, error)
	Delete(id string) error
}

// Publisher hands accepted submissions to the downstream collaborator.
type Publisher interface {
	Publish(ctx context.Context, ev submission.SubmissionEvent) error
}

type Coverer interface {
	Cover(snap model.RequestSnapshot, res, minRes int) ([]h3coverage.Coverage, error)
}

type CoverageRes struct {
	Default, Min, Max int
}

type Option func(*Handlers)

func WithPublisher(p Publisher) Option { return func(h *Handlers) { h.pub = p } }

func WithCoverage(c Coverer, res CoverageRes) Option {
	return func(h *Handlers) {
		h.cov = c
		h.res = res
	}
}

type Handlers struct {
	log *slog.Logger
	reg Registry
	pub Publisher
	cov Coverer
	res CoverageRes
}

func New(log *slog.Logger, reg Registry, opts ...Option) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	h := &Handlers{log: log, reg: reg, res: CoverageRes{Default: 8, Min: 0, Max: 12}}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Routes is mounted at /sessions.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.createSession)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.withEntry(h.getSession))
		r.Delete("/", h.deleteSession)
		r.Put("/input", h.withEntry(h.setInput))

		r.Put("/slots/{slot}/type", h.withEntry(h.setShapeType))
		r.Put("/slots/{slot}/shape", h.withEntry(h.setShape))
		r.Put("/slots/{slot}/fields/{field}", h.withEntry(h.setField))
		r.Delete("/slots/{slot}", h.withEntry(h.clearShape))

		r.Post("/draw/{slot}", h.withEntry(h.startDrawing))
		r.Delete("/draw", h.withEntry(h.stopDrawing))

		r.Post("/map/gesture", h.withEntry(h.mapGesture))
		r.Post("/map/draw-complete", h.withEntry(h.mapDrawComplete))
		r.Post("/map/click", h.withEntry(h.mapClick))
		r.Post("/map/marker", h.withEntry(h.mapMarker))

		r.Put("/origin", h.withEntry(h.setOrigin))
		r.Delete("/origin", h.withEntry(h.removeOrigin))
		r.Post("/origin/toggle", h.withEntry(h.toggleOrigin))
		r.Post("/origin/placing", h.withEntry(h.startPlacing))
		r.Delete("/origin/placing", h.withEntry(h.cancelPlacing))

		r.Post("/clear", h.withEntry(h.clear))
		r.Post("/submit", h.withEntry(h.submit))
		r.Post("/responses", h.withEntry(h.response))
		r.Get("/coverage", h.withEntry(h.coverage))
		r.Post("/classify", h.withEntry(h.classify))
		r.Get("/overlays", h.withEntry(h.overlays))
	})
	return r
}

type entryHandler func(w http.ResponseWriter, r *http.Request, e *sessions.Entry)

func (h *Handlers) withEntry(next entryHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		e, err := h.reg.Get(id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		ctx := mylog.WithSession(r.Context(), id)
		next(w, r.WithContext(ctx), e)
	}
}

func slotParam(r *http.Request) (model.Slot, error) {
	s, err := model.ParseSlot(chi.URLParam(r, "slot"))
	if err != nil {
		return s, badRequestf("%v", err)
	}
	return s, nil
}

func view(e *sessions.Entry) sessionView {
	s := e.Session
	v := sessionView{
		ID:    s.ID(),
		Input: s.Input(),
		Slots: make(map[string]slotView, len(model.Slots)),
	}
	v.Origin, v.PlacingOrigin = s.Origin()
	if slot, ok := s.Drawing(); ok {
		name := slot.String()
		v.Drawing = &name
	}
	for _, slot := range model.Slots {
		f := s.Shape(slot)
		sv := slotView{Kind: f.Kind().String(), Shape: f}
		for _, path := range fieldsFor(f.Kind()) {
			txt, _ := s.FieldValue(slot, path)
			if sv.Fields == nil {
				sv.Fields = make(map[string]string)
			}
			sv.Fields[path] = txt
		}
		v.Slots[slot.String()] = sv
	}
	v.Effective, v.Advisories = s.Effective()
	return v
}

func fieldsFor(k model.ShapeKind) []string {
	switch k {
	case model.KindCircle:
		return []string{editor.FieldCenterLatitude, editor.FieldCenterLongitude, editor.FieldRadius}
	case model.KindRectangle:
		return []string{editor.FieldLowLatitude, editor.FieldLowLongitude, editor.FieldHighLatitude, editor.FieldHighLongitude}
	default:
		return nil
	}
}

func (h *Handlers) createSession(w http.ResponseWriter, r *http.Request) {
	e, err := h.reg.Create(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+e.Session.ID())
	writeJSON(w, http.StatusCreated, view(e))
}

func (h *Handlers) getSession(w http.ResponseWriter, _ *http.Request, e *sessions.Entry) {
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.Delete(chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) setInput(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	var body struct {
		Input string `json:"input"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	e.Session.SetInput(body.Input)
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) setShapeType(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	slot, err := slotParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body struct {
		Type string `json:"type"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	kind, err := model.ParseShapeKind(body.Type)
	if err != nil {
		h.fail(w, r, badRequestf("%v", err))
		return
	}
	if _, err := e.Session.SetShapeType(slot, kind); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) setShape(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	slot, err := slotParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var ws *model.WireShape
	if err := decodeJSON(w, r, &ws); err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := model.FromWire(ws)
	if err != nil {
		h.fail(w, r, badRequestf("%v", err))
		return
	}
	if err := e.Session.SetShape(slot, f); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) setField(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	slot, err := slotParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := e.Session.SetField(slot, chi.URLParam(r, "field"), body.Value); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) clearShape(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	slot, err := slotParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := e.Session.ClearShape(slot); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

// startDrawing arms the drawing tool; ?toggle=true stops it instead when the
// slot is already drawing.
func (h *Handlers) startDrawing(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	slot, err := slotParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	toggle, _ := strconv.ParseBool(r.URL.Query().Get("toggle"))
	if toggle {
		_, err = e.Session.ToggleDrawing(slot)
	} else {
		err = e.Session.StartDrawing(slot)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) stopDrawing(w http.ResponseWriter, _ *http.Request, e *sessions.Entry) {
	e.Session.StopDrawing()
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) mapGesture(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	var body struct {
		Slot     string      `json:"slot"`
		Geometry mapGeometry `json:"geometry"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	slot, err := model.ParseSlot(body.Slot)
	if err != nil {
		h.fail(w, r, badRequestf("%v", err))
		return
	}
	f, err := body.Geometry.shape()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := e.Surface.EndGesture(slot, f); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) mapDrawComplete(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	var body struct {
		Geometry mapGeometry `json:"geometry"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := body.Geometry.shape()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := e.Surface.CompleteDrawing(f); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

type pointBody struct {
	Point mapPoint `json:"point"`
}

func (h *Handlers) mapClick(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	var body pointBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	e.Surface.Click(body.Point.geo())
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) mapMarker(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	var body pointBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if !e.Surface.DragMarker(body.Point.geo()) {
		h.fail(w, r, errNoMarker)
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

// setOrigin accepts either free text ("lat,lng") or an explicit point.
func (h *Handlers) setOrigin(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	var body struct {
		Text  *string         `json:"text,omitempty"`
		Point *model.GeoPoint `json:"point,omitempty"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	switch {
	case body.Text != nil && body.Point != nil:
		h.fail(w, r, badRequestf("set either text or point, not both"))
		return
	case body.Text != nil:
		e.Session.SetOriginText(*body.Text)
	case body.Point != nil:
		e.Session.SetOrigin(body.Point)
	default:
		h.fail(w, r, badRequestf("text or point is required"))
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) removeOrigin(w http.ResponseWriter, _ *http.Request, e *sessions.Entry) {
	e.Session.SetOrigin(nil)
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) toggleOrigin(w http.ResponseWriter, _ *http.Request, e *sessions.Entry) {
	e.Session.ToggleOrigin()
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) startPlacing(w http.ResponseWriter, _ *http.Request, e *sessions.Entry) {
	e.Session.StartPlacingOrigin()
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) cancelPlacing(w http.ResponseWriter, _ *http.Request, e *sessions.Entry) {
	e.Session.CancelPlacingOrigin()
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) clear(w http.ResponseWriter, _ *http.Request, e *sessions.Entry) {
	e.Session.Clear()
	writeJSON(w, http.StatusOK, view(e))
}

type submissionView struct {
	Token       uint64                `json:"token"`
	Fingerprint string                `json:"fingerprint"`
	Request     model.RequestSnapshot `json:"request"`
	Advisories  []editor.Advisory     `json:"advisories,omitempty"`
	Published   bool                  `json:"published"`
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	sub, err := e.Session.Submit()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := submissionView{
		Token:       sub.Token,
		Fingerprint: sub.Fingerprint,
		Request:     sub.Snapshot,
		Advisories:  sub.Advisories,
	}
	if h.pub != nil {
		if err := h.pub.Publish(r.Context(), submission.FromSubmission(sub)); err != nil {
			h.log.WarnContext(r.Context(), "submission publish failed", "token", sub.Token, "err", err)
			h.fail(w, r, fmt.Errorf("%w: %w", errUnavailable, err))
			return
		}
		out.Published = true
	}
	writeJSON(w, http.StatusAccepted, out)
}

func (h *Handlers) response(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	var body struct {
		Token uint64 `json:"token"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := e.Session.ResponseReceived(body.Token); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

func (h *Handlers) coverage(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	if h.cov == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Code: "coverage_disabled", Message: "coverage is not configured"})
		return
	}
	res := h.res.Default
	if raw := r.URL.Query().Get("res"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < h.res.Min || n > h.res.Max {
			h.fail(w, r, badRequestf("res must be an integer in [%d,%d]", h.res.Min, h.res.Max))
			return
		}
		res = n
	}
	snap, _ := e.Session.Effective()
	cov, err := h.cov.Cover(snap, res, h.res.Min)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fingerprint": snap.FingerprintHex(),
		"coverage":    cov,
	})
}

func (h *Handlers) classify(w http.ResponseWriter, r *http.Request, e *sessions.Entry) {
	var body struct {
		Points []mapPoint `json:"points"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	pts := make([]model.GeoPoint, len(body.Points))
	for i, p := range body.Points {
		pts[i] = p.geo()
	}
	writeJSON(w, http.StatusOK, map[string]any{"placements": e.Session.Classify(pts)})
}

func (h *Handlers) overlays(w http.ResponseWriter, _ *http.Request, e *sessions.Entry) {
	stats := make(map[string]any, len(model.Slots))
	for _, slot := range model.Slots {
		stats[slot.String()] = e.Surface.Stats(slot)
	}
	drawSlot, drawKind := e.Surface.DrawingMode()
	drawing := map[string]string{"kind": drawKind.String()}
	if drawKind != model.KindNone {
		drawing["slot"] = drawSlot.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"overlays": e.Surface.Overlays(),
		"stats":    stats,
		"marker":   e.Surface.Marker(),
		"drawing":  drawing,
	})
}
