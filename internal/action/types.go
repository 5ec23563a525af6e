package action

import (
	"context"

	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-iot/internal/notification"
)

// Action is a command sent to a device.
type Action string

const (
	TurnOn  Action = "turn_on"
	TurnOff Action = "turn_off"
)

// On reports whether a switches the device on.
func (a Action) On() bool { return a == TurnOn }

// Real-time event names emitted by the engine.
const (
	EventOperationalStatusUpdated = "device_operational_status_updated"
	EventScheduledAction          = "scheduled_action"
)

// DeviceLoader reads a device with its setting. Satisfied by *device.Registry.
type DeviceLoader interface {
	Load(ctx context.Context, q database.Querier, id string) (*device.Device, error)
}

// Publisher sends a JSON payload to a broker topic.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Broadcaster pushes an event to real-time clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Telemetry records committed transitions. Satisfied by *influxdb.Client,
// including a nil one.
type Telemetry interface {
	WriteDeviceAction(a influxdb.DeviceAction)
}

// Recorder counts executed actions and failed publishes. Satisfied by
// *metrics.Metrics.
type Recorder interface {
	ActionExecuted(trigger, action string)
	PublishFailed(channel string)
}

// Notifier creates a notification for every user. Satisfied by
// *notification.Service.
type Notifier interface {
	Notify(ctx context.Context, deviceID, kind, title, message string) (*notification.Notification, error)
}

// Result is what the transactional core committed.
type Result struct {
	Device         *device.Device
	Record         history.Record
	Action         Action
	SettingChanged bool
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
