package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	h3coverage "github.com/mohammed-shakir/geofilter-editor/internal/coverage/h3"
	"github.com/mohammed-shakir/geofilter-editor/internal/sessions"
	"github.com/mohammed-shakir/geofilter-editor/internal/submission"
)

type fakePublisher struct {
	mu   sync.Mutex
	evs  []submission.SubmissionEvent
	fail error
}

func (f *fakePublisher) Publish(_ context.Context, ev submission.SubmissionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.evs = append(f.evs, ev)
	return nil
}

type harness struct {
	t   *testing.T
	srv *httptest.Server
	pub *fakePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := sessions.New(16, sessions.WithLogger(log))
	if err != nil {
		t.Fatalf("sessions.New: %v", err)
	}
	pub := &fakePublisher{}
	h := New(log, reg,
		WithPublisher(pub),
		WithCoverage(h3coverage.New(4096), CoverageRes{Default: 6, Min: 0, Max: 10}),
	)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(func() {
		srv.Close()
		reg.Close()
	})
	return &harness{t: t, srv: srv, pub: pub}
}

func (h *harness) do(method, path, body string) (int, map[string]any) {
	h.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	resp, err := h.srv.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			h.t.Fatalf("%s %s: bad json %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, out
}

func (h *harness) create() string {
	h.t.Helper()
	code, body := h.do(http.MethodPost, "/", "")
	if code != http.StatusCreated {
		h.t.Fatalf("create status=%d body=%v", code, body)
	}
	return body["id"].(string)
}

func slotOf(t *testing.T, view map[string]any, slot string) map[string]any {
	t.Helper()
	slots, ok := view["slots"].(map[string]any)
	if !ok {
		t.Fatalf("view has no slots: %v", view)
	}
	return slots[slot].(map[string]any)
}

func TestCreateAndPristineDefault(t *testing.T) {
	h := newHarness(t)
	id := h.create()

	code, v := h.do(http.MethodPut, "/"+id+"/slots/bias/type", `{"type":"circle"}`)
	if code != http.StatusOK {
		t.Fatalf("status=%d body=%v", code, v)
	}
	bias := slotOf(t, v, "bias")
	if bias["kind"] != "circle" {
		t.Fatalf("kind=%v", bias["kind"])
	}
	fields := bias["fields"].(map[string]any)
	if fields["radius"] != "5000" || fields["center.latitude"] != "37.77" {
		t.Fatalf("pristine default not synthesized: %v", fields)
	}
	if v["input"] != "San Francisco" {
		t.Fatalf("seed input=%v", v["input"])
	}
}

func TestErrorsMapToStatusAndCode(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(http.MethodGet, "/nope", "")
	if code != http.StatusNotFound || body["code"] != "not_found" {
		t.Fatalf("unknown session: %d %v", code, body)
	}

	id := h.create()
	cases := []struct {
		method, path, body string
		wantCode           int
		wantName           string
	}{
		{http.MethodPost, "/" + id + "/draw/bias", "", http.StatusConflict, "no_shape_type"},
		{http.MethodPut, "/" + id + "/slots/origin/type", `{"type":"circle"}`, http.StatusBadRequest, "bad_request"},
		{http.MethodPut, "/" + id + "/slots/bias/type", `{"type":"polygon"}`, http.StatusBadRequest, "bad_request"},
		{http.MethodPut, "/" + id + "/slots/bias/type", `{not json`, http.StatusBadRequest, "bad_request"},
		{http.MethodPut, "/" + id + "/slots/bias/fields/diameter", `{"value":"3"}`, http.StatusBadRequest, "unknown_field"},
		{http.MethodPost, "/" + id + "/map/marker", `{"point":[1,2]}`, http.StatusConflict, "no_marker"},
		{http.MethodPost, "/" + id + "/map/gesture", `{"slot":"bias","geometry":{"type":"circle","center":[1,2],"radius":3}}`, http.StatusConflict, "map_event_rejected"},
		{http.MethodGet, "/" + id + "/coverage?res=42", "", http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		code, body := h.do(tc.method, tc.path, tc.body)
		if code != tc.wantCode || body["code"] != tc.wantName {
			t.Fatalf("%s %s: got %d %v want %d %s", tc.method, tc.path, code, body, tc.wantCode, tc.wantName)
		}
	}
}

func TestSubmitRejectsPlaceholder(t *testing.T) {
	h := newHarness(t)
	id := h.create()

	h.do(http.MethodPut, "/"+id+"/input", `{"input":"coffee"}`)
	_, v := h.do(http.MethodPut, "/"+id+"/slots/restriction/type", `{"type":"rectangle"}`)
	if f := slotOf(t, v, "restriction")["fields"].(map[string]any); f["low.latitude"] != "" {
		t.Fatalf("placeholder fields must render empty: %v", f)
	}

	code, body := h.do(http.MethodPost, "/"+id+"/submit", "")
	if code != http.StatusUnprocessableEntity || body["code"] != "not_configured" {
		t.Fatalf("submit: %d %v", code, body)
	}
	if !strings.Contains(body["message"].(string), "restriction") {
		t.Fatalf("message must name the slot: %v", body["message"])
	}
	if len(h.pub.evs) != 0 {
		t.Fatalf("nothing may be published")
	}
}

func TestGestureUsesMapOrderAndDoesNotEcho(t *testing.T) {
	h := newHarness(t)
	id := h.create()
	h.do(http.MethodPut, "/"+id+"/slots/bias/type", `{"type":"circle"}`)

	code, v := h.do(http.MethodPost, "/"+id+"/map/gesture",
		`{"slot":"bias","geometry":{"type":"circle","center":[-122.0,37.0],"radius":800}}`)
	if code != http.StatusOK {
		t.Fatalf("gesture: %d %v", code, v)
	}
	f := slotOf(t, v, "bias")["fields"].(map[string]any)
	if f["center.latitude"] != "37" || f["center.longitude"] != "-122" || f["radius"] != "800" {
		t.Fatalf("gesture geometry not applied in map order: %v", f)
	}

	_, ov := h.do(http.MethodGet, "/"+id+"/overlays", "")
	stats := ov["stats"].(map[string]any)["bias"].(map[string]any)
	if stats["created"] != float64(1) || stats["updated"] != float64(0) {
		t.Fatalf("gesture must not be echoed back to the overlay: %v", stats)
	}
}

func TestDrawFlow(t *testing.T) {
	h := newHarness(t)
	id := h.create()
	h.do(http.MethodPut, "/"+id+"/slots/restriction/type", `{"type":"rectangle"}`)

	code, v := h.do(http.MethodPost, "/"+id+"/draw/restriction", "")
	if code != http.StatusOK || v["drawing"] != "restriction" {
		t.Fatalf("start drawing: %d %v", code, v)
	}
	code, body := h.do(http.MethodPost, "/"+id+"/draw/bias", "")
	if code != http.StatusConflict || body["code"] != "draw_busy" {
		t.Fatalf("second slot while drawing: %d %v", code, body)
	}
	code, body = h.do(http.MethodPut, "/"+id+"/slots/restriction/fields/low.latitude", `{"value":"1"}`)
	if code != http.StatusConflict || body["code"] != "field_read_only" {
		t.Fatalf("field edit while drawing: %d %v", code, body)
	}

	code, v = h.do(http.MethodPost, "/"+id+"/map/draw-complete",
		`{"geometry":{"type":"rectangle","bounds":[[10,50],[11,51]]}}`)
	if code != http.StatusOK {
		t.Fatalf("draw complete: %d %v", code, v)
	}
	if v["drawing"] != nil {
		t.Fatalf("drawing must stop after completion: %v", v["drawing"])
	}
	f := slotOf(t, v, "restriction")["fields"].(map[string]any)
	if f["low.latitude"] != "50" || f["low.longitude"] != "10" || f["high.latitude"] != "51" {
		t.Fatalf("drawn bounds not applied: %v", f)
	}

	code, v = h.do(http.MethodPost, "/"+id+"/draw/restriction?toggle=true", "")
	if code != http.StatusOK || v["drawing"] != "restriction" {
		t.Fatalf("toggle on: %d %v", code, v)
	}
	_, v = h.do(http.MethodPost, "/"+id+"/draw/restriction?toggle=true", "")
	if v["drawing"] != nil {
		t.Fatalf("toggle off: %v", v["drawing"])
	}
}

func TestSubmitPublishesAndResponses(t *testing.T) {
	h := newHarness(t)
	id := h.create()
	h.do(http.MethodPut, "/"+id+"/slots/bias/type", `{"type":"circle"}`)
	h.do(http.MethodPut, "/"+id+"/slots/restriction/type", `{"type":"rectangle"}`)

	code, sub := h.do(http.MethodPost, "/"+id+"/submit", "")
	if code != http.StatusAccepted || sub["published"] != true {
		t.Fatalf("submit: %d %v", code, sub)
	}
	req := sub["request"].(map[string]any)
	if _, ok := req["locationBias"]; ok {
		t.Fatalf("bias must be dropped when a restriction is set: %v", req)
	}
	adv := sub["advisories"].([]any)
	if len(adv) != 1 || adv[0].(map[string]any)["code"] != "bias_dropped" {
		t.Fatalf("advisories=%v", adv)
	}
	if len(h.pub.evs) != 1 || h.pub.evs[0].SessionID != id || h.pub.evs[0].Token != 1 {
		t.Fatalf("published=%+v", h.pub.evs)
	}

	_, v := h.do(http.MethodGet, "/"+id, "")
	if slotOf(t, v, "bias")["kind"] != "circle" {
		t.Fatalf("submit must not modify the stored bias")
	}

	code, body := h.do(http.MethodPost, "/"+id+"/responses", `{"token":9}`)
	if code != http.StatusConflict || body["code"] != "stale_response" {
		t.Fatalf("stale: %d %v", code, body)
	}
	if code, _ := h.do(http.MethodPost, "/"+id+"/responses", `{"token":1}`); code != http.StatusOK {
		t.Fatalf("response status=%d", code)
	}

	h.pub.fail = errors.New("queue full")
	code, body = h.do(http.MethodPost, "/"+id+"/submit", "")
	if code != http.StatusServiceUnavailable || body["code"] != "unavailable" {
		t.Fatalf("publish failure: %d %v", code, body)
	}
}

func TestOriginAndClassify(t *testing.T) {
	h := newHarness(t)
	id := h.create()

	code, v := h.do(http.MethodPut, "/"+id+"/origin", `{"text":"40.5, -73.9abc"}`)
	if code != http.StatusOK {
		t.Fatalf("origin: %d %v", code, v)
	}
	o := v["origin"].(map[string]any)
	if o["latitude"] != 40.5 || o["longitude"] != -73.9 {
		t.Fatalf("origin=%v", o)
	}

	_, v = h.do(http.MethodPost, "/"+id+"/map/marker", `{"point":[-74.0,40.7]}`)
	if o := v["origin"].(map[string]any); o["latitude"] != 40.7 {
		t.Fatalf("marker drag not applied: %v", o)
	}

	_, v = h.do(http.MethodPost, "/"+id+"/origin/toggle", "")
	if v["origin"] != nil || v["placingOrigin"] != false {
		t.Fatalf("toggle must remove the origin: %v", v)
	}
	_, v = h.do(http.MethodPost, "/"+id+"/origin/placing", "")
	if v["placingOrigin"] != true {
		t.Fatalf("placing not armed")
	}
	_, v = h.do(http.MethodPost, "/"+id+"/map/click", `{"point":[2.35,48.85]}`)
	if o := v["origin"].(map[string]any); o["latitude"] != 48.85 || v["placingOrigin"] != false {
		t.Fatalf("click placement: %v", v)
	}

	h.do(http.MethodPut, "/"+id+"/slots/restriction/shape",
		`{"rectangle":{"low":{"latitude":48,"longitude":2},"high":{"latitude":49,"longitude":3}}}`)
	if code, _ := h.do(http.MethodPost, "/"+id+"/submit", ""); code != http.StatusAccepted {
		t.Fatalf("submit status=%d", code)
	}
	_, res := h.do(http.MethodPost, "/"+id+"/classify", `{"points":[[2.5,48.5],[10,10]]}`)
	pl := res["placements"].([]any)
	if pl[0] != "inside_restriction" || pl[1] != "outside" {
		t.Fatalf("placements=%v", pl)
	}

	_, cov := h.do(http.MethodGet, "/"+id+"/coverage?res=5", "")
	entries := cov["coverage"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["slot"] != "restriction" {
		t.Fatalf("coverage=%v", cov)
	}
}

func TestClearAndDelete(t *testing.T) {
	h := newHarness(t)
	id := h.create()
	h.do(http.MethodPut, "/"+id+"/slots/bias/type", `{"type":"circle"}`)

	_, v := h.do(http.MethodPost, "/"+id+"/clear", "")
	if slotOf(t, v, "bias")["kind"] != "none" || v["input"] != "San Francisco" {
		t.Fatalf("clear: %v", v)
	}

	if code, _ := h.do(http.MethodDelete, "/"+id, ""); code != http.StatusNoContent {
		t.Fatalf("delete status=%d", code)
	}
	if code, _ := h.do(http.MethodGet, "/"+id, ""); code != http.StatusNotFound {
		t.Fatalf("deleted session still served: %d", code)
	}
}
