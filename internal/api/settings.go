package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-iot/internal/automation"
)

// scheduleRequest is the body of POST /settings/{deviceId}/schedules.
type scheduleRequest struct {
	Day     string `json:"day"`
	OnTime  string `json:"onTime"`
	OffTime string `json:"offTime"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	setting, err := s.settings.GetSettings(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		s.writeDomainError(w, r, err, "getting settings")
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

// handleUpdateSettings applies a partial flag update. Omitted flags are
// left unchanged; an empty body is rejected.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch automation.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}

	setting, err := s.settings.UpdateSettings(r.Context(), chi.URLParam(r, "deviceId"), patch)
	if err != nil {
		s.writeDomainError(w, r, err, "updating settings")
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

// handleUpsertSchedule creates or replaces one day's schedule.
func (s *Server) handleUpsertSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	schedule, err := s.settings.UpsertSchedule(r.Context(), chi.URLParam(r, "deviceId"), req.Day, req.OnTime, req.OffTime)
	if err != nil {
		s.writeDomainError(w, r, err, "saving schedule")
		return
	}
	writeJSON(w, http.StatusCreated, schedule)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	err := s.settings.DeleteSchedule(r.Context(), chi.URLParam(r, "deviceId"), chi.URLParam(r, "day"))
	if err != nil {
		s.writeDomainError(w, r, err, "deleting schedule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
