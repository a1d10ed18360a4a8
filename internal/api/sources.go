package api

import (
	"net/http"

	"github.com/vitalone/vitalsync/internal/routing"
	"github.com/vitalone/vitalsync/internal/source"
)

// handleListSources returns every registered source with its derived
// store id and whether that store is attached to this instance.
//
// GET /api/v1/sources
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list sources", "error", err)
		writeInternalError(w, "failed to list sources")
		return
	}
	if sources == nil {
		sources = []source.Source{}
	}

	out := make([]map[string]any, 0, len(sources))
	for i := range sources {
		storeID := routing.StoreIDForSource(sources[i].Name)
		attached := false
		if s.stores != nil {
			if _, err := s.stores.Store(storeID); err == nil {
				attached = true
			}
		}
		out = append(out, map[string]any{
			"source":   sources[i],
			"store_id": string(storeID),
			"attached": attached,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sources": out,
		"count":   len(out),
	})
}
