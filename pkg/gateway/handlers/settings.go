package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/vango-go/livenotes/pkg/config"
	"github.com/vango-go/livenotes/pkg/core"
)

const maxSettingsBody = 16 << 10

// SettingsStore is the settings panel backend.
type SettingsStore interface {
	Current() config.Settings
	Update(next config.Settings) error
}

// SettingsHandler serves GET and PUT /v1/settings. PUT bodies are merged over
// the current settings, so omitted fields keep their value. Changes apply to
// the next session.
type SettingsHandler struct {
	Store SettingsStore
}

func (h SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.Store.Current())
	case http.MethodPut:
		next := h.Store.Current()
		dec := json.NewDecoder(io.LimitReader(r.Body, maxSettingsBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&next); err != nil {
			writeError(w, r, core.NewInvalidRequestError("invalid settings body: "+err.Error()))
			return
		}
		if err := h.Store.Update(next); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.Store.Current())
	default:
		writeMethodNotAllowed(w, r, "GET, PUT")
	}
}
