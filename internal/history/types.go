package history

import "time"

// Trigger is what caused an action.
type Trigger string

const (
	TriggerManual         Trigger = "manual"
	TriggerScheduled      Trigger = "scheduled"
	TriggerMotionDetected Trigger = "motion_detected"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerScheduled, TriggerMotionDetected:
		return true
	}
	return false
}

// Status is a per-capability on/off value.
type Status string

const (
	StatusOn  Status = "on"
	StatusOff Status = "off"
)

// Action is the past-tense label recorded alongside a Status.
type Action string

const (
	ActionTurnedOn  Action = "turned_on"
	ActionTurnedOff Action = "turned_off"
)

// Record is one immutable history row. DetectedAt is when the decision was
// made; CreatedAt is when the row was written. DeviceName is filled by
// queries that join the device.
type Record struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"deviceId"`
	DeviceName  string    `json:"deviceName,omitempty"`
	TriggerType Trigger   `json:"triggerType"`
	LightStatus Status    `json:"lightStatus"`
	LightAction Action    `json:"lightAction"`
	FanStatus   Status    `json:"fanStatus"`
	FanAction   Action    `json:"fanAction"`
	DetectedAt  time.Time `json:"detectedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SortOrder orders results by DetectedAt.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Paging defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Filter selects history rows. Zero values mean "no constraint", except
// Page and Limit which take defaults.
type Filter struct {
	Page        int
	Limit       int
	DeviceID    string
	TriggerType Trigger
	LightStatus Status
	LightAction Action
	FanStatus   Status
	FanAction   Action
	DateFrom    *time.Time
	DateTo      *time.Time
	Search      string
	SortOrder   SortOrder
}

// Page is one page of results.
type Page struct {
	Records    []Record `json:"records"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalPages int      `json:"totalPages"`
}
