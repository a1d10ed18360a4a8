package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vitalone/vitalsync/internal/source"
	"github.com/vitalone/vitalsync/internal/sync"
)

// handleSyncSource triggers an immediate sync of one source and returns
// its finalized audit row. A name never synced before is registered by
// the service, so a typo surfaces as a failed attempt, not a 404.
//
// POST /api/v1/sources/{name}/sync
func (s *Server) handleSyncSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	log, err := s.sync.SyncSource(r.Context(), name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, log)
	case errors.Is(err, sync.ErrSyncInProgress):
		writeConflict(w, "sync already in progress for "+name)
	case errors.Is(err, sync.ErrSourceInactive):
		// The refusal is already audited; surface the row with the error.
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "source is inactive",
			"log":   log,
		})
	default:
		s.logger.Error("sync failed", "source", name, "error", err)
		if log != nil {
			// The attempt ran and failed; the audit row tells the story.
			writeJSON(w, http.StatusBadGateway, log)
			return
		}
		writeInternalError(w, "sync failed")
	}
}

// handleSyncAll triggers a sync of every active source and returns the
// per-source outcomes.
//
// POST /api/v1/sync
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.sync.SyncAll(r.Context())
	if err != nil {
		s.logger.Error("fleet sync failed", "error", err)
		writeInternalError(w, "fleet sync failed")
		return
	}

	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		entry := map[string]any{
			"source": res.SourceName,
			"log":    res.Log,
		}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": out,
		"count":   len(out),
	})
}

// handleSyncStatus returns the most recent audit row for a source.
//
// GET /api/v1/sources/{name}/sync/status
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	log, err := s.sync.Status(r.Context(), name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, log)
	case errors.Is(err, source.ErrSourceNotFound):
		writeNotFound(w, "source not found: "+name)
	case errors.Is(err, source.ErrLogNotFound):
		writeNotFound(w, "source has never been synced: "+name)
	default:
		s.logger.Error("failed to read sync status", "source", name, "error", err)
		writeInternalError(w, "failed to read sync status")
	}
}

// defaultHistoryLimit caps history responses when no limit is given.
const defaultHistoryLimit = 20

// handleSyncHistory returns recent audit rows for a source, newest first.
//
// GET /api/v1/sources/{name}/sync/history?limit=N
func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	logs, err := s.sync.History(r.Context(), name, limit)
	switch {
	case err == nil:
		if logs == nil {
			logs = []source.SyncLog{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"source":  name,
			"history": logs,
			"count":   len(logs),
		})
	case errors.Is(err, source.ErrSourceNotFound):
		writeNotFound(w, "source not found: "+name)
	default:
		s.logger.Error("failed to read sync history", "source", name, "error", err)
		writeInternalError(w, "failed to read sync history")
	}
}
