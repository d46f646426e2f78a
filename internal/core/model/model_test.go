package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestShapeFilter_ZeroValueIsNone(t *testing.T) {
	var f ShapeFilter
	if !f.IsNone() || f.Kind() != KindNone {
		t.Fatalf("zero value kind=%v want none", f.Kind())
	}
	if _, ok := f.Circle(); ok {
		t.Fatalf("None must not expose a circle")
	}
}

func TestShapeFilter_EqualIgnoresInactivePayload(t *testing.T) {
	a := CircleShape(Circle{Center: GeoPoint{1, 2}, Radius: 3})
	b := CircleShape(Circle{Center: GeoPoint{1, 2}, Radius: 3})
	if !a.Equal(b) {
		t.Fatalf("identical circles must be equal")
	}
	if a.Equal(RectangleShape(Rectangle{})) {
		t.Fatalf("circle must not equal rectangle")
	}
	if !NoShape().Equal(ShapeFilter{}) {
		t.Fatalf("None must equal None")
	}
}

func TestSnapshot_JSONUsesOptionalKeys(t *testing.T) {
	s := RequestSnapshot{
		Input:       "cafe",
		Restriction: RectangleShape(Rectangle{Low: GeoPoint{10, 10}, High: GeoPoint{20, 20}}),
	}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(b)
	if strings.Contains(body, "locationBias") {
		t.Fatalf("None bias must be omitted; got %s", body)
	}
	if !strings.Contains(body, `"locationRestriction":{"rectangle":{"low":{"latitude":10,"longitude":10}`) {
		t.Fatalf("unexpected restriction encoding: %s", body)
	}

	var back RequestSnapshot
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Restriction.Equal(s.Restriction) || !back.Bias.IsNone() {
		t.Fatalf("decoded snapshot differs: %+v", back)
	}
}

func TestFromWire_RejectsBothKinds(t *testing.T) {
	_, err := FromWire(&WireShape{Circle: &Circle{}, Rectangle: &Rectangle{}})
	if err == nil {
		t.Fatalf("expected error for shape carrying both kinds")
	}
}

func TestMapOrderConversions(t *testing.T) {
	c, _ := MapCircle([2]float64{-122.4, 37.7}, 250).Circle()
	if c.Center.Latitude != 37.7 || c.Center.Longitude != -122.4 || c.Radius != 250 {
		t.Fatalf("circle conversion swapped axes: %+v", c)
	}
	r, _ := MapBounds([2]float64{5, 6}, [2]float64{15, 16}).Rectangle()
	want := Rectangle{Low: GeoPoint{Latitude: 6, Longitude: 5}, High: GeoPoint{Latitude: 16, Longitude: 15}}
	if r != want {
		t.Fatalf("bounds conversion got %+v want %+v", r, want)
	}
}

func TestFingerprint_StableAndSensitive(t *testing.T) {
	a := RequestSnapshot{Input: "x", Bias: CircleShape(Circle{Center: GeoPoint{1, 1}, Radius: 500})}
	b := a
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("identical snapshots must share a fingerprint")
	}
	b.Input = "y"
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("different snapshots should not collide here")
	}
	if len(a.FingerprintHex()) != 16 {
		t.Fatalf("hex fingerprint must be 16 chars, got %q", a.FingerprintHex())
	}
}

func TestParseSlotAndKind(t *testing.T) {
	if s, err := ParseSlot("Restriction"); err != nil || s != SlotRestriction {
		t.Fatalf("ParseSlot restriction: %v %v", s, err)
	}
	if _, err := ParseSlot("origin"); err == nil {
		t.Fatalf("expected error for unknown slot")
	}
	if k, err := ParseShapeKind("RECTANGLE"); err != nil || k != KindRectangle {
		t.Fatalf("ParseShapeKind rectangle: %v %v", k, err)
	}
	if _, err := ParseShapeKind("polygon"); err == nil {
		t.Fatalf("expected error for polygon")
	}
}

func TestRectangle_Inverted(t *testing.T) {
	ok := Rectangle{Low: GeoPoint{1, 1}, High: GeoPoint{2, 2}}
	if ok.Inverted() {
		t.Fatalf("ordered rectangle reported inverted")
	}
	bad := Rectangle{Low: GeoPoint{3, 1}, High: GeoPoint{2, 2}}
	if !bad.Inverted() {
		t.Fatalf("expected inverted")
	}
}
