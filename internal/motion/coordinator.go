package motion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/action"
	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/mqtt"
)

// handlerTimeout bounds the work done for one broker message.
const handlerTimeout = 30 * time.Second

// Locator finds and updates devices by location. Satisfied by
// *device.Registry.
type Locator interface {
	ListByLocation(ctx context.Context, locationKey string) ([]device.Device, error)
	UpdateConnectivity(ctx context.Context, locationKey string, c device.Connectivity, seenAt time.Time) ([]device.Device, error)
}

// Executor runs a device action. Satisfied by *action.Engine.
type Executor interface {
	Execute(ctx context.Context, deviceID string, a action.Action, trigger history.Trigger) (*device.Device, error)
}

// Broadcaster pushes an event to real-time clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Subscriber is the broker side. Satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// EventRecorder counts sensor events. Satisfied by *metrics.Metrics.
type EventRecorder interface {
	MotionEvent(kind string)
}

// Logger is the logging interface used by the coordinator.
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

// Coordinator turns sensor and status reports into device actions and
// connectivity updates.
type Coordinator struct {
	devices  Locator
	exec     Executor
	hub      Broadcaster
	recorder EventRecorder
	logger   Logger
	now      func() time.Time

	mu     sync.Mutex
	sub    Subscriber
	topics []string

	// gate guards closing; inflight counts handlers admitted while open.
	gate     sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// New creates a motion coordinator. hub may be nil.
func New(devices Locator, exec Executor, hub Broadcaster) *Coordinator {
	return &Coordinator{
		devices: devices,
		exec:    exec,
		hub:     hub,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetRecorder sets the sensor event counter.
func (c *Coordinator) SetRecorder(r EventRecorder) {
	c.recorder = r
}

// OnMotionDetected turns on every device at locationKey that is in auto
// mode and returns how many were switched.
func (c *Coordinator) OnMotionDetected(ctx context.Context, locationKey string) (int, error) {
	c.record("detected")
	return c.runAuto(ctx, locationKey, action.TurnOn)
}

// OnMotionCleared turns off every device at locationKey that is in auto
// mode and returns how many were switched.
func (c *Coordinator) OnMotionCleared(ctx context.Context, locationKey string) (int, error) {
	c.record("cleared")
	return c.runAuto(ctx, locationKey, action.TurnOff)
}

func (c *Coordinator) runAuto(ctx context.Context, locationKey string, a action.Action) (int, error) {
	devices, err := c.devices.ListByLocation(ctx, locationKey)
	if err != nil {
		return 0, fmt.Errorf("listing devices at %s: %w", locationKey, err)
	}

	executed := 0
	for _, d := range devices {
		if d.Setting == nil || !d.Setting.AutoModeEnabled {
			continue
		}
		if _, err := c.exec.Execute(ctx, d.ID, a, history.TriggerMotionDetected); err != nil {
			if errors.Is(err, action.ErrAutomationDisarmed) {
				c.logger.Debug("motion action skipped, auto mode disarmed", "device_id", d.ID, "action", a)
				continue
			}
			c.logger.Warn("motion action failed",
				"device_id", d.ID,
				"location_key", locationKey,
				"action", a,
				"error", err,
			)
			continue
		}
		executed++
	}

	c.logger.Debug("motion handled",
		"location_key", locationKey,
		"action", a,
		"devices", len(devices),
		"executed", executed,
	)
	return executed, nil
}

// OnConnectivityReport records online/offline for every device at
// locationKey, then broadcasts devices_updated with the set and
// device_status_updated for each device. Operational status and history
// are untouched.
func (c *Coordinator) OnConnectivityReport(ctx context.Context, locationKey, status string) error {
	conn, err := device.ParseConnectivity(status)
	if err != nil {
		return err
	}
	c.record(string(conn))

	devices, err := c.devices.UpdateConnectivity(ctx, locationKey, conn, c.now())
	if err != nil {
		return fmt.Errorf("updating connectivity at %s: %w", locationKey, err)
	}
	if len(devices) == 0 {
		c.logger.Debug("status report for unknown location", "location_key", locationKey)
		return nil
	}

	if c.hub != nil {
		c.hub.Broadcast(device.EventDevicesUpdated, devices)
		for _, d := range devices {
			c.hub.Broadcast(device.EventDeviceStatusUpdated, map[string]any{
				"deviceId":     d.ID,
				"locationKey":  d.LocationKey,
				"connectivity": d.Connectivity,
				"lastSeen":     d.LastSeen,
			})
		}
	}
	return nil
}

func (c *Coordinator) record(kind string) {
	if c.recorder != nil {
		c.recorder.MotionEvent(kind)
	}
}
