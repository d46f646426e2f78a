package editor

import "errors"

// Blocking advisories. Each refuses the action without touching state.
var (
	ErrNoShapeType   = errors.New("cannot start drawing: choose a shape type first")
	ErrDrawBusy      = errors.New("another shape is currently being drawn")
	ErrNotConfigured = errors.New("shape selected but not configured")
	ErrInputRequired = errors.New("input is required")
	ErrFieldReadOnly = errors.New("field is read-only while its shape is being drawn")
	ErrUnknownField  = errors.New("unknown field")
	ErrStaleResponse = errors.New("response does not match the latest submission")
	ErrClosed        = errors.New("session closed")
)

const (
	CodeBiasDropped       = "bias_dropped"
	CodeRectangleInverted = "rectangle_inverted"
)

// Advisory is a non-blocking notice attached to a successful action.
type Advisory struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Slot    string `json:"slot,omitempty"`
}

// Code maps a blocking advisory to a stable machine-readable code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNoShapeType):
		return "no_shape_type"
	case errors.Is(err, ErrDrawBusy):
		return "draw_busy"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrInputRequired):
		return "input_required"
	case errors.Is(err, ErrFieldReadOnly):
		return "field_read_only"
	case errors.Is(err, ErrUnknownField):
		return "unknown_field"
	case errors.Is(err, ErrStaleResponse):
		return "stale_response"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "internal"
	}
}
