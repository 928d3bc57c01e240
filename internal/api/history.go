package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/report"
	"github.com/contagem-app/contagem/internal/store"
)

// HistoryHandler handles the archive of saved counts. Saving never changes
// the open counting session.
type HistoryHandler struct {
	DB *sqlx.DB
}

type createHistoryRequest struct {
	FileName   string `json:"fileName"`
	CSVContent string `json:"csvContent"`
}

// List handles GET /api/history.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := store.ListHistory(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		writeError(w, r, "listing history", err)
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Create handles POST /api/history with a CSV produced by the client.
func (h *HistoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHistoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	entry, err := store.CreateHistoryEntry(r.Context(), h.DB, claims.UserID, req.FileName, req.CSVContent)
	if err != nil {
		writeError(w, r, "saving history", err)
		return
	}

	slog.Info("count saved to history", "user", claims.Name, "history_id", entry.ID, "file", entry.FileName)
	entry.CSVContent = ""
	jsonResponse(w, http.StatusCreated, entry)
}

// Snapshot handles POST /api/history/snapshot: the open session is exported
// on the server and archived.
func (h *HistoryHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	items, err := store.ListActive(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, r, "saving history", err)
		return
	}
	if len(items) == 0 {
		jsonError(w, http.StatusBadRequest, "no counted items to save")
		return
	}

	content, err := report.CSV(report.Project(items))
	if err != nil {
		writeError(w, r, "saving history", err)
		return
	}

	entry, err := store.CreateHistoryEntry(r.Context(), h.DB, claims.UserID, report.FileName(time.Now().UTC(), "csv"), content)
	if err != nil {
		writeError(w, r, "saving history", err)
		return
	}

	slog.Info("count snapshot saved", "user", claims.Name, "history_id", entry.ID, "items", len(items))
	entry.CSVContent = ""
	jsonResponse(w, http.StatusCreated, entry)
}

// Get handles GET /api/history/{id}, returning the archived CSV as a download.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid history id")
		return
	}

	entry, err := store.GetHistoryEntry(r.Context(), h.DB, GetClaims(r.Context()).UserID, id)
	if err != nil {
		writeError(w, r, "getting history entry", err)
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", entry.FileName, []byte(entry.CSVContent))
}

// Delete handles DELETE /api/history/{id}.
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid history id")
		return
	}

	claims := GetClaims(r.Context())
	if err := store.DeleteHistoryEntry(r.Context(), h.DB, claims.UserID, id); err != nil {
		writeError(w, r, "deleting history entry", err)
		return
	}

	slog.Info("history entry deleted", "user", claims.Name, "history_id", id)
	w.WriteHeader(http.StatusNoContent)
}
