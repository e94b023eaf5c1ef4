package handlers

import (
	"net/http"

	"github.com/vango-go/livenotes/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the bridge accepts live connections. It turns
// unready while draining or once the orchestrator has stopped.
type ReadyHandler struct {
	Lifecycle *lifecycle.Lifecycle
	// OrchestratorDone is closed when the orchestrator run loop exits.
	OrchestratorDone <-chan struct{}
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK        bool     `json:"ok"`
		LiveConns int      `json:"live_connections"`
		Issues    []string `json:"issues,omitempty"`
	}

	var issues []string
	if h.Lifecycle.IsDraining() {
		issues = append(issues, "draining")
	}
	if h.OrchestratorDone != nil {
		select {
		case <-h.OrchestratorDone:
			issues = append(issues, "orchestrator stopped")
		default:
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{OK: ok, LiveConns: h.Lifecycle.OpenConns(), Issues: issues})
}
