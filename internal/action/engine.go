package action

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/automation"
	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/mqtt"
)

// notifyTimeout bounds each background notification.
const notifyTimeout = 10 * time.Second

// Engine executes device actions. Every caller (HTTP, scheduler, motion)
// goes through Execute.
type Engine struct {
	db        *sql.DB
	devices   DeviceLoader
	deviceDB  device.Repository
	settings  automation.Repository
	history   history.Repository
	publisher Publisher
	hub       Broadcaster
	telemetry Telemetry
	recorder  Recorder
	notifier  Notifier
	logger    Logger
	now       func() time.Time

	pending sync.WaitGroup
}

// Deps are the Engine's collaborators. Publisher, Hub, Telemetry, Recorder
// and Notifier may be nil.
type Deps struct {
	DB        *sql.DB
	Devices   DeviceLoader
	DeviceDB  device.Repository
	Settings  automation.Repository
	History   history.Repository
	Publisher Publisher
	Hub       Broadcaster
	Telemetry Telemetry
	Recorder  Recorder
	Notifier  Notifier
	Logger    Logger
}

// NewEngine creates an action engine.
func NewEngine(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		db:        d.DB,
		devices:   d.Devices,
		deviceDB:  d.DeviceDB,
		settings:  d.Settings,
		history:   d.History,
		publisher: d.Publisher,
		hub:       d.Hub,
		telemetry: d.Telemetry,
		recorder:  d.Recorder,
		notifier:  d.Notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute applies action to a device and announces the result. The returned
// device carries its setting as committed.
//
// Only the transaction can fail the call. Everything after commit (broker
// publish, broadcasts, telemetry, notification) is logged on failure.
func (e *Engine) Execute(ctx context.Context, deviceID string, a Action, trigger history.Trigger) (*device.Device, error) {
	if _, err := ParseAction(string(a)); err != nil {
		return nil, err
	}
	if !trigger.Valid() {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidTrigger, trigger)
	}

	res, err := e.Apply(ctx, deviceID, a, trigger)
	if err != nil {
		return nil, err
	}

	e.announce(ctx, res)
	return res.Device, nil
}

// Apply is the transactional core of Execute. It writes the history row,
// disarms automation on manual triggers and sets the device status, then
// re-reads the device, all in one transaction.
//
// Scheduled and motion triggers re-check their automation flag inside the
// transaction and fail with ErrAutomationDisarmed when a manual override
// committed first.
func (e *Engine) Apply(ctx context.Context, deviceID string, a Action, trigger history.Trigger) (*Result, error) {
	decidedAt := e.now().UTC().Truncate(time.Second)
	res := &Result{Action: a}

	err := database.RunInTx(ctx, e.db, func(tx *sql.Tx) error {
		d, err := e.devices.Load(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		if !armedFor(d, trigger) {
			return fmt.Errorf("%w: %s (%s)", ErrAutomationDisarmed, deviceID, trigger)
		}

		res.Record = deriveRecord(d, a, trigger, decidedAt)
		if err := e.history.Insert(ctx, tx, &res.Record); err != nil {
			return err
		}

		if trigger == history.TriggerManual {
			d.Setting.AutoModeEnabled = false
			d.Setting.ScheduleEnabled = false
			if err := e.settings.UpdateFlags(ctx, tx, d.Setting); err != nil {
				return err
			}
			res.SettingChanged = true
		}

		if err := e.deviceDB.UpdateStatus(ctx, tx, d.ID, device.StatusFor(a.On())); err != nil {
			return err
		}

		res.Device, err = e.devices.Load(ctx, tx, deviceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	res.Record.DeviceName = res.Device.Name
	return res, nil
}

// armedFor reports whether d's setting still allows trigger to act.
// Manual control is always allowed.
func armedFor(d *device.Device, trigger history.Trigger) bool {
	switch trigger {
	case history.TriggerScheduled:
		return d.Setting != nil && d.Setting.ScheduleEnabled
	case history.TriggerMotionDetected:
		return d.Setting != nil && d.Setting.AutoModeEnabled
	default:
		return true
	}
}

// Wait blocks until background notifications have finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

func (e *Engine) announce(ctx context.Context, res *Result) {
	d := res.Device
	rec := res.Record

	e.logger.Info("device action executed",
		"device_id", d.ID,
		"location_key", d.LocationKey,
		"action", res.Action,
		"trigger", rec.TriggerType,
	)

	if res.SettingChanged {
		automation.BroadcastSettings(e.hub, d.Setting)
	}

	e.publishCommands(d, res.Action)

	if e.hub != nil {
		e.hub.Broadcast(EventOperationalStatusUpdated, map[string]any{
			"deviceId":    d.ID,
			"locationKey": d.LocationKey,
			"status":      d.Status,
			"lightStatus": rec.LightStatus,
			"fanStatus":   rec.FanStatus,
			"triggerType": rec.TriggerType,
		})
		if rec.TriggerType == history.TriggerScheduled {
			e.hub.Broadcast(EventScheduledAction, map[string]any{
				"deviceId":    d.ID,
				"deviceName":  d.Name,
				"action":      res.Action,
				"lightStatus": rec.LightStatus,
				"timestamp":   rec.DetectedAt,
			})
		}
	}

	if e.telemetry != nil {
		e.telemetry.WriteDeviceAction(influxdb.DeviceAction{
			DeviceID:    d.ID,
			LocationKey: d.LocationKey,
			Trigger:     string(rec.TriggerType),
			Action:      string(res.Action),
			LightOn:     rec.LightStatus == history.StatusOn,
			FanOn:       rec.FanStatus == history.StatusOn,
			DecidedAt:   rec.DetectedAt,
		})
	}
	if e.recorder != nil {
		e.recorder.ActionExecuted(string(rec.TriggerType), string(res.Action))
	}

	e.notifyAsync(ctx, d, res.Action, rec.TriggerType)
}

func (e *Engine) publishCommands(d *device.Device, a Action) {
	if e.publisher == nil {
		return
	}
	topic := mqtt.Topics{}.DeviceAction(d.LocationKey)
	for _, c := range d.Capabilities {
		err := e.publisher.PublishJSON(topic, mqtt.ActionCommand{Device: string(c), Action: string(a)})
		if err != nil {
			if e.recorder != nil {
				e.recorder.PublishFailed(mqtt.ChannelAction)
			}
			e.logger.Warn("device command publish failed",
				"device_id", d.ID,
				"topic", topic,
				"device", c,
				"error", err,
			)
		}
	}
}

func (e *Engine) notifyAsync(ctx context.Context, d *device.Device, a Action, trigger history.Trigger) {
	if e.notifier == nil {
		return
	}
	kind, title, message := notificationFor(d.Name, a, trigger)
	deviceID := d.ID

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if _, err := e.notifier.Notify(nctx, deviceID, kind, title, message); err != nil {
			e.logger.Warn("notification failed", "device_id", deviceID, "type", kind, "error", err)
		}
	}()
}
