package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/livenotes/pkg/core/live"
	"github.com/vango-go/livenotes/pkg/gateway/lifecycle"
)

func TestHealthHandler_OK(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyHandler_DrainingNotReady(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)

	rr := httptest.NewRecorder()
	ReadyHandler{Lifecycle: lc}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["ok"] != false {
		t.Fatalf("ok=%v", resp["ok"])
	}
}

func TestReadyHandler_OrchestratorStopped(t *testing.T) {
	done := make(chan struct{})
	h := ReadyHandler{Lifecycle: &lifecycle.Lifecycle{}, OrchestratorDone: done}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	close(done)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestSessionHandler_ReturnsSnapshot(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.snap = live.Snapshot{State: live.StateFinalizing, Finalizing: true}

	rr := httptest.NewRecorder()
	SessionHandler{Orchestrator: orch}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/session", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["state"] != "finalizing" || resp["finalizing"] != true {
		t.Fatalf("resp=%v", resp)
	}
}
