package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-iot/internal/action"
	"github.com/nerrad567/gray-logic-iot/internal/history"
)

// onboardRequest is the body of POST /devices/onboarding.
type onboardRequest struct {
	UniqueID string `json:"uniqueId"`
}

// actionRequest is the body of POST /devices/{id}/action.
type actionRequest struct {
	Action string `json:"action"`
}

// handleOnboard creates the lamp and fan pair for a location key. A repeat
// onboarding of the same key returns the existing pair with 200.
func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	devices, isNew, err := s.devices.Onboard(r.Context(), req.UniqueID)
	if err != nil {
		s.writeDomainError(w, r, err, "onboarding")
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"devices": devices,
		"isNew":   isNew,
	})
}

// handleListDevices returns all devices with their settings.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.ListDevices(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err, "listing devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err, "getting device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleDeviceAction turns a device on or off by hand. Manual control
// disarms the device's automation.
func (s *Server) handleDeviceAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := action.ParseAction(req.Action)
	if err != nil {
		s.writeDomainError(w, r, err, "device action")
		return
	}

	dev, err := s.actions.Execute(r.Context(), chi.URLParam(r, "id"), a, history.TriggerManual)
	if err != nil {
		s.writeDomainError(w, r, err, "device action")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}
