package handlers

import (
	"net/http"
)

// SessionHandler serves GET /v1/session with the orchestrator snapshot.
type SessionHandler struct {
	Orchestrator Orchestrator
}

func (h SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	snap, err := h.Orchestrator.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
