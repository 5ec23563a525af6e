package action

import (
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
	"github.com/nerrad567/gray-logic-iot/internal/notification"
)

// deriveRecord builds the history row for applying a to d. A capability the
// device lacks is always recorded as off.
func deriveRecord(d *device.Device, a Action, trigger history.Trigger, decidedAt time.Time) history.Record {
	status, label := history.StatusOff, history.ActionTurnedOff
	if a.On() {
		status, label = history.StatusOn, history.ActionTurnedOn
	}

	rec := history.Record{
		DeviceID:    d.ID,
		TriggerType: trigger,
		LightStatus: history.StatusOff,
		LightAction: history.ActionTurnedOff,
		FanStatus:   history.StatusOff,
		FanAction:   history.ActionTurnedOff,
		DetectedAt:  decidedAt,
	}
	if d.Has(device.CapLamp) {
		rec.LightStatus, rec.LightAction = status, label
	}
	if d.Has(device.CapFan) {
		rec.FanStatus, rec.FanAction = status, label
	}
	return rec
}

// notificationFor maps a committed action to the notification users see.
func notificationFor(name string, a Action, trigger history.Trigger) (kind, title, message string) {
	onOff := "off"
	if a.On() {
		onOff = "on"
	}

	switch trigger {
	case history.TriggerMotionDetected:
		return notification.TypeMotionDetected, "Motion Detected", "Motion detected, " + name + " turned " + onOff
	case history.TriggerScheduled:
		return notification.TypeScheduledReminder, "Scheduled Action", name + " turn " + onOff + " by schedule"
	default:
		return notification.TypeManualOverride, "Manual Control", name + " turned " + onOff + " manually, automation disabled"
	}
}
