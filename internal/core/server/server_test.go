package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/geofilter-editor/internal/core/config"
	"github.com/mohammed-shakir/geofilter-editor/internal/core/observability"
	"github.com/mohammed-shakir/geofilter-editor/internal/core/router"
	"github.com/mohammed-shakir/geofilter-editor/internal/metrics"
	"github.com/mohammed-shakir/geofilter-editor/internal/sessions"
)

type notReady struct{}

func (notReady) Readiness() (bool, []int32) { return false, nil }

func TestHandler_Routes(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := sessions.New(4, sessions.WithLogger(log))
	if err != nil {
		t.Fatalf("sessions.New: %v", err)
	}
	t.Cleanup(reg.Close)

	cfg := config.FromEnv()
	p := metrics.Init(metrics.Config{}, observability.Registry)
	h := Handler(cfg, log, Deps{
		Sessions:  router.New(log, reg),
		Readiness: notReady{},
		Metrics:   p.Handler(),
	})

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	if rr := get("/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthz=%d", rr.Code)
	}
	if rr := get("/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz=%d want 503", rr.Code)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	if rr.Code != http.StatusCreated || rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("create=%d headers=%v", rr.Code, rr.Header())
	}

	body := get("/metrics").Body.String()
	for _, want := range []string{"go_goroutines", `method="POST",route="/sessions`, "sessions_active 1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
