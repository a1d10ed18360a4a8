package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vitalone/vitalsync/internal/analyzer"
)

// handleListDevices returns every analyzer in the canonical store.
//
// GET /api/v1/devices
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.analyzers.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []analyzer.Analyzer{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one analyzer by device id.
//
// GET /api/v1/devices/{deviceID}
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	device, err := s.analyzers.GetByID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, analyzer.ErrAnalyzerNotFound) {
			writeNotFound(w, "device not found: "+deviceID)
			return
		}
		s.logger.Error("failed to get device", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, device)
}

// handleListDeviceRuns returns a device's runs with their metrics,
// newest first.
//
// GET /api/v1/devices/{deviceID}/runs
func (s *Server) handleListDeviceRuns(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	ctx := r.Context()

	if _, err := s.analyzers.GetByID(ctx, deviceID); err != nil {
		if errors.Is(err, analyzer.ErrAnalyzerNotFound) {
			writeNotFound(w, "device not found: "+deviceID)
			return
		}
		s.logger.Error("failed to get device", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	runs, err := s.runs.ListRunsByDevice(ctx, deviceID)
	if err != nil {
		s.logger.Error("failed to list runs", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to list runs")
		return
	}

	out := make([]map[string]any, 0, len(runs))
	for i := range runs {
		metrics, err := s.runs.ListMetrics(ctx, runs[i].RunID)
		if err != nil {
			s.logger.Error("failed to list metrics", "run_id", runs[i].RunID, "error", err)
			writeInternalError(w, "failed to list metrics")
			return
		}
		out = append(out, map[string]any{
			"run":     runs[i],
			"metrics": metrics,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"runs":      out,
		"count":     len(out),
	})
}
