package mqtt

import (
	"encoding/json"
	"fmt"
)

// ActionCommand is published to iot/{key}/action for each capability of a
// device after a state transition commits.
type ActionCommand struct {
	Device string `json:"device"` // "lamp" or "fan"
	Action string `json:"action"` // "turn_on" or "turn_off"
}

// ModeUpdate is published to iot/{key}/settings/update when a device's
// automation mode changes.
type ModeUpdate struct {
	Device string `json:"device"`
	Mode   string `json:"mode"` // "auto", "scheduled" or "manual"
}

// StatusReport is received on iot/{key}/status.
type StatusReport struct {
	Status string `json:"status"`
}

// SensorReport is received on iot/{key}/sensor. Either flag may be absent.
type SensorReport struct {
	MotionDetected *bool `json:"motion_detected,omitempty"`
	MotionCleared  *bool `json:"motion_cleared,omitempty"`
}

// Detected reports whether the payload carries motion_detected=true.
func (r SensorReport) Detected() bool {
	return r.MotionDetected != nil && *r.MotionDetected
}

// Cleared reports whether the payload carries motion_cleared=true.
func (r SensorReport) Cleared() bool {
	return r.MotionCleared != nil && *r.MotionCleared
}

// DecodeStatusReport parses a status payload.
func DecodeStatusReport(payload []byte) (StatusReport, error) {
	var r StatusReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return StatusReport{}, fmt.Errorf("%w: status payload: %w", ErrInvalidPayload, err)
	}
	return r, nil
}

// DecodeSensorReport parses a sensor payload.
func DecodeSensorReport(payload []byte) (SensorReport, error) {
	var r SensorReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return SensorReport{}, fmt.Errorf("%w: sensor payload: %w", ErrInvalidPayload, err)
	}
	return r, nil
}
