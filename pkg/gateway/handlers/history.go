package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/livenotes/pkg/core"
	"github.com/vango-go/livenotes/pkg/core/types"
)

// HistoryStore is the read and remove side of the session history.
type HistoryStore interface {
	List() []types.SessionRecord
	Get(id string) (types.SessionRecord, bool)
	Remove(ctx context.Context, id string) (bool, error)
}

type historyListResp struct {
	Sessions []historySummary `json:"sessions"`
}

// historySummary omits the transcript and report, which can be long.
type historySummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	NoteCount int       `json:"note_count"`
}

// HistoryListHandler serves GET /v1/history, newest first.
type HistoryListHandler struct {
	Store HistoryStore
}

func (h HistoryListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	records := h.Store.List()
	resp := historyListResp{Sessions: make([]historySummary, 0, len(records))}
	for _, rec := range records {
		resp.Sessions = append(resp.Sessions, historySummary{
			ID:        rec.ID,
			Title:     rec.Title,
			Date:      rec.CreatedAt,
			NoteCount: len(rec.Notes),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HistoryItemHandler serves GET and DELETE /v1/history/{id}.
type HistoryItemHandler struct {
	Store HistoryStore
}

func (h HistoryItemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("id is required", "id"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, ok := h.Store.Get(id)
		if !ok {
			writeError(w, r, core.NewNotFoundError("session not found"))
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		removed, err := h.Store.Remove(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !removed {
			writeError(w, r, core.NewNotFoundError("session not found"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w, r, "GET, DELETE")
	}
}
