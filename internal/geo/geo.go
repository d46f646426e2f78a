// Package geo holds the small amount of spherical math the editor needs:
// point-in-shape tests for marker classification and ring approximation of
// circles for cell coverage.
package geo

import (
	"math"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/model"
)

// EarthRadiusM is the mean earth radius used by Haversine.
const EarthRadiusM = 6371000.0

func toRad(d float64) float64 { return d * math.Pi / 180 }

func toDeg(r float64) float64 { return r * 180 / math.Pi }

// Haversine returns the great-circle distance in meters.
func Haversine(a, b model.GeoPoint) float64 {
	dLat := toRad(b.Latitude - a.Latitude)
	dLng := toRad(b.Longitude - a.Longitude)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

func PointInCircle(p model.GeoPoint, c model.Circle) bool {
	return Haversine(p, c.Center) <= c.Radius
}

// PointInRect is an axis-aligned test. An inverted rectangle contains nothing.
func PointInRect(p model.GeoPoint, r model.Rectangle) bool {
	return p.Latitude >= r.Low.Latitude && p.Latitude <= r.High.Latitude &&
		p.Longitude >= r.Low.Longitude && p.Longitude <= r.High.Longitude
}

// Contains dispatches on the filter kind. None contains nothing.
func Contains(f model.ShapeFilter, p model.GeoPoint) bool {
	if c, ok := f.Circle(); ok {
		return PointInCircle(p, c)
	}
	if r, ok := f.Rectangle(); ok {
		return PointInRect(p, r)
	}
	return false
}

// Destination walks distM meters from p along bearingDeg.
func Destination(p model.GeoPoint, bearingDeg, distM float64) model.GeoPoint {
	lat1 := toRad(p.Latitude)
	lng1 := toRad(p.Longitude)
	brg := toRad(bearingDeg)
	ang := distM / EarthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(math.Sin(brg)*math.Sin(ang)*math.Cos(lat1), math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))
	return model.GeoPoint{Latitude: toDeg(lat2), Longitude: normLng(toDeg(lng2))}
}

// CircleRing approximates c with n vertices, clockwise from north.
func CircleRing(c model.Circle, n int) []model.GeoPoint {
	if n < 3 {
		n = 3
	}
	out := make([]model.GeoPoint, 0, n)
	step := 360.0 / float64(n)
	for i := 0; i < n; i++ {
		out = append(out, Destination(c.Center, float64(i)*step, c.Radius))
	}
	return out
}

// RectRing returns the four corners counter-clockwise from Low.
func RectRing(r model.Rectangle) []model.GeoPoint {
	return []model.GeoPoint{
		{Latitude: r.Low.Latitude, Longitude: r.Low.Longitude},
		{Latitude: r.Low.Latitude, Longitude: r.High.Longitude},
		{Latitude: r.High.Latitude, Longitude: r.High.Longitude},
		{Latitude: r.High.Latitude, Longitude: r.Low.Longitude},
	}
}

func normLng(v float64) float64 {
	for v > 180 {
		v -= 360
	}
	for v < -180 {
		v += 360
	}
	return v
}
