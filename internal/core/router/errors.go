package router

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mohammed-shakir/geofilter-editor/internal/editor"
	"github.com/mohammed-shakir/geofilter-editor/internal/mapsurface"
	"github.com/mohammed-shakir/geofilter-editor/internal/sessions"
)

var (
	errNoMarker    = errors.New("no origin marker to drag")
	errUnavailable = errors.New("submission could not be queued")
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) (int, string) {
	var br badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, sessions.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, editor.ErrUnknownField):
		return http.StatusBadRequest, editor.Code(err)
	case errors.Is(err, editor.ErrNotConfigured), errors.Is(err, editor.ErrInputRequired):
		return http.StatusUnprocessableEntity, editor.Code(err)
	case errors.Is(err, editor.ErrNoShapeType), errors.Is(err, editor.ErrDrawBusy),
		errors.Is(err, editor.ErrFieldReadOnly), errors.Is(err, editor.ErrStaleResponse):
		return http.StatusConflict, editor.Code(err)
	case errors.Is(err, editor.ErrClosed):
		return http.StatusGone, editor.Code(err)
	case errors.Is(err, errNoMarker):
		return http.StatusConflict, "no_marker"
	case errors.Is(err, mapsurface.ErrRejected):
		return http.StatusConflict, "map_event_rejected"
	case errors.Is(err, mapsurface.ErrNotInitialized), errors.Is(err, mapsurface.ErrOverlayRemoved):
		return http.StatusConflict, "surface_unavailable"
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, name := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", "err", err, "path", r.URL.Path)
		msg = "internal server error"
	} else {
		h.log.LogAttrs(r.Context(), slog.LevelDebug, "request refused",
			slog.String("code", name), slog.String("err", msg))
	}
	writeJSON(w, code, errorBody{Code: name, Message: msg})
}
