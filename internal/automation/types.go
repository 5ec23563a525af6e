package automation

import (
	"context"
	"time"
)

// Weekday is a three-letter day name as stored in schedules.
type Weekday string

// Days of the week.
const (
	Mon Weekday = "Mon"
	Tue Weekday = "Tue"
	Wed Weekday = "Wed"
	Thu Weekday = "Thu"
	Fri Weekday = "Fri"
	Sat Weekday = "Sat"
	Sun Weekday = "Sun"
)

// Weekdays lists the days in display order, Monday first.
var Weekdays = []Weekday{Mon, Tue, Wed, Thu, Fri, Sat, Sun}

// WeekdayOf returns the Weekday of t in t's location.
func WeekdayOf(t time.Time) Weekday {
	// time.Weekday is Sunday=0.
	return Weekdays[(int(t.Weekday())+6)%7]
}

// Mode is the automation mode announced to devices.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeScheduled Mode = "scheduled"
	ModeManual    Mode = "manual"
)

// Setting is a device's automation configuration. Each device has exactly one.
type Setting struct {
	ID              string     `json:"id"`
	DeviceID        string     `json:"deviceId"`
	AutoModeEnabled bool       `json:"autoModeEnabled"`
	ScheduleEnabled bool       `json:"scheduleEnabled"`
	Schedules       []Schedule `json:"schedules"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Mode derives the device-facing mode: auto wins over scheduled, and
// neither means manual.
func (s *Setting) Mode() Mode {
	switch {
	case s.AutoModeEnabled:
		return ModeAuto
	case s.ScheduleEnabled:
		return ModeScheduled
	default:
		return ModeManual
	}
}

// Schedule is one day's on/off times for a setting. OnTime and OffTime are
// "HH:mm" wall-clock times in the site time zone.
type Schedule struct {
	ID        string    `json:"id"`
	SettingID string    `json:"settingId"`
	Day       Weekday   `json:"day"`
	OnTime    string    `json:"onTime"`
	OffTime   string    `json:"offTime"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Patch is a partial settings update; nil fields are left unchanged.
type Patch struct {
	AutoModeEnabled *bool `json:"autoModeEnabled,omitempty"`
	ScheduleEnabled *bool `json:"scheduleEnabled,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.AutoModeEnabled == nil && p.ScheduleEnabled == nil
}

// DueSchedule is a schedule row matching the current minute, joined with
// the owning device.
type DueSchedule struct {
	DeviceID string
	Day      Weekday
	OnTime   string
	OffTime  string
}

// DeviceInfo is what the service needs to address a device on the broker.
type DeviceInfo struct {
	ID           string
	LocationKey  string
	Capabilities []string
}

// DeviceRegistry resolves device addressing. It is implemented by the
// device package so automation does not import it.
type DeviceRegistry interface {
	GetDeviceInfo(ctx context.Context, id string) (DeviceInfo, error)
}

// Publisher sends a JSON payload to a broker topic.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Broadcaster pushes an event to real-time clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
