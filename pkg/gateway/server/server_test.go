package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/livenotes/pkg/config"
	"github.com/vango-go/livenotes/pkg/core/live"
	"github.com/vango-go/livenotes/pkg/history"
	"github.com/vango-go/livenotes/pkg/metrics"
)

type stubOrchestrator struct{}

func (stubOrchestrator) Start(context.Context) error         { return nil }
func (stubOrchestrator) Stop(context.Context) error          { return nil }
func (stubOrchestrator) ArchiveActive(context.Context) error { return nil }
func (stubOrchestrator) Snapshot(context.Context) (live.Snapshot, error) {
	return live.Snapshot{State: live.StateIdle}, nil
}
func (stubOrchestrator) Subscribe() (<-chan live.Event, func()) {
	return make(chan live.Event), func() {}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	return New(cfg, Deps{
		Orchestrator: stubOrchestrator{},
		History:      history.New(history.NewMemoryKV(), logger, nil),
		Settings:     config.OpenSettings("", logger),
		Metrics:      metrics.New("livenotes_test"),
	}, logger)
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}
}

func TestServer_RoutesReachable(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/v1/session", "/v1/history", "/v1/settings"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s status=%d body=%q", path, rr.Code, rr.Body.String())
		}
	}
}

func TestServer_HistoryItemRoute(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "session not found") {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	s := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if !s.lifecycle.IsDraining() {
		t.Fatalf("expected draining after shutdown")
	}
}
