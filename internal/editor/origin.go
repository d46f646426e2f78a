package editor

import (
	"strconv"
	"strings"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
)

// OriginController holds the optional reference point and the transient
// "awaiting map click" flag.
type OriginController struct {
	point   *model.GeoPoint
	placing bool
}

func (o *OriginController) Point() *model.GeoPoint {
	if o.point == nil {
		return nil
	}
	p := *o.point
	return &p
}

func (o *OriginController) Placing() bool { return o.placing }

func (o *OriginController) StartPlacing()  { o.placing = true }
func (o *OriginController) CancelPlacing() { o.placing = false }

// Set replaces the point; nil removes it.
func (o *OriginController) Set(p *model.GeoPoint) {
	if p == nil {
		o.point = nil
		return
	}
	cp := *p
	o.point = &cp
}

// Click consumes a map click when placing and reports whether it did.
func (o *OriginController) Click(p model.GeoPoint) bool {
	if !o.placing {
		return false
	}
	o.Set(&p)
	o.placing = false
	return true
}

// Toggle mirrors the origin button: a set origin is removed (and placing
// cancelled), otherwise placing flips.
func (o *OriginController) Toggle() {
	if o.point != nil {
		o.point = nil
		o.placing = false
		return
	}
	o.placing = !o.placing
}

func (o *OriginController) Reset() {
	o.point = nil
	o.placing = false
}

// SanitizeOriginText keeps only the characters a "lat,lng" pair can contain.
func SanitizeOriginText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseOriginText parses "lat,lng" after sanitizing. Anything other than
// exactly two numeric parts yields nil.
func ParseOriginText(s string) *model.GeoPoint {
	parts := strings.Split(SanitizeOriginText(s), ",")
	if len(parts) != 2 {
		return nil
	}
	lat, ok := leadingFloat(parts[0])
	if !ok {
		return nil
	}
	lng, ok := leadingFloat(parts[1])
	if !ok {
		return nil
	}
	return &model.GeoPoint{Latitude: lat, Longitude: lng}
}

// leadingFloat parses the longest numeric prefix of s, so "12.5-" reads as 12.5.
func leadingFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot := false, false
scan:
	for i, r := range s {
		switch {
		case (r == '-' || r == '+') && i == 0:
		case r >= '0' && r <= '9':
			seenDigit = true
		case r == '.' && !seenDot:
			seenDot = true
		default:
			break scan
		}
		end = i + 1
	}
	if !seenDigit {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
