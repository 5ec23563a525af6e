package automation

import (
	"context"
	"database/sql"

	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/mqtt"
)

// EventSettingsUpdated is broadcast whenever a device's setting changes.
const EventSettingsUpdated = "settings_updated"

// PublishFailureRecorder counts failed mode publishes. Satisfied by
// *metrics.Metrics.
type PublishFailureRecorder interface {
	PublishFailed(channel string)
}

// Service applies settings and schedule changes and announces the result
// to clients and devices.
//
// Every change commits before anything is announced. Broadcast and publish
// failures are logged and never undo the change.
type Service struct {
	db        *sql.DB
	repo      Repository
	devices   DeviceRegistry
	publisher Publisher
	hub       Broadcaster
	logger    Logger
	failures  PublishFailureRecorder
}

// NewService creates a settings service. publisher and hub may be nil.
func NewService(db *sql.DB, repo Repository, devices DeviceRegistry, publisher Publisher, hub Broadcaster, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{
		db:        db,
		repo:      repo,
		devices:   devices,
		publisher: publisher,
		hub:       hub,
		logger:    logger,
	}
}

// SetFailureRecorder sets the counter for failed mode publishes.
func (s *Service) SetFailureRecorder(r PublishFailureRecorder) {
	s.failures = r
}

// GetSettings returns the device's setting with schedules Monday first.
func (s *Service) GetSettings(ctx context.Context, deviceID string) (*Setting, error) {
	return s.repo.GetByDeviceID(ctx, s.db, deviceID)
}

// UpdateSettings applies a partial flag update, then broadcasts the new
// setting and publishes the resulting mode to every capability.
func (s *Service) UpdateSettings(ctx context.Context, deviceID string, patch Patch) (*Setting, error) {
	if patch.Empty() {
		return nil, ErrEmptyPatch
	}

	var setting *Setting
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		setting, err = s.repo.GetByDeviceID(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		if patch.AutoModeEnabled != nil {
			setting.AutoModeEnabled = *patch.AutoModeEnabled
		}
		if patch.ScheduleEnabled != nil {
			setting.ScheduleEnabled = *patch.ScheduleEnabled
		}
		return s.repo.UpdateFlags(ctx, tx, setting)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("automation settings updated",
		"device_id", deviceID,
		"auto_mode", setting.AutoModeEnabled,
		"schedule", setting.ScheduleEnabled,
	)
	s.announce(ctx, setting, true)
	return setting, nil
}

// UpsertSchedule sets the on/off times for one day. Saving a schedule
// switches the device to scheduled mode: scheduleEnabled becomes true and
// autoModeEnabled false, in the same transaction as the row.
func (s *Service) UpsertSchedule(ctx context.Context, deviceID, day, onTime, offTime string) (*Schedule, error) {
	weekday, err := validateSchedule(day, onTime, offTime)
	if err != nil {
		return nil, err
	}

	var (
		setting  *Setting
		schedule *Schedule
	)
	err = database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		setting, err = s.repo.GetByDeviceID(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		schedule, err = s.repo.UpsertSchedule(ctx, tx, setting.ID, weekday, onTime, offTime)
		if err != nil {
			return err
		}
		setting.ScheduleEnabled = true
		setting.AutoModeEnabled = false
		if err := s.repo.UpdateFlags(ctx, tx, setting); err != nil {
			return err
		}
		setting, err = s.repo.GetByDeviceID(ctx, tx, deviceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("schedule saved",
		"device_id", deviceID,
		"day", weekday,
		"on", onTime,
		"off", offTime,
	)
	s.announce(ctx, setting, true)
	return schedule, nil
}

// DeleteSchedule removes the schedule for one day. Flags are unchanged, so
// no mode is published; clients still receive the updated setting.
func (s *Service) DeleteSchedule(ctx context.Context, deviceID, day string) error {
	weekday, err := ParseWeekday(day)
	if err != nil {
		return err
	}

	var setting *Setting
	err = database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		setting, err = s.repo.GetByDeviceID(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteSchedule(ctx, tx, setting.ID, weekday); err != nil {
			return err
		}
		setting, err = s.repo.GetByDeviceID(ctx, tx, deviceID)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("schedule deleted", "device_id", deviceID, "day", weekday)
	s.announce(ctx, setting, false)
	return nil
}

// announce broadcasts the setting and, when publishMode is set, sends the
// derived mode to each of the device's capabilities.
func (s *Service) announce(ctx context.Context, setting *Setting, publishMode bool) {
	BroadcastSettings(s.hub, setting)

	if !publishMode || s.publisher == nil {
		return
	}

	info, err := s.devices.GetDeviceInfo(ctx, setting.DeviceID)
	if err != nil {
		s.logger.Warn("mode not published: device lookup failed",
			"device_id", setting.DeviceID,
			"error", err,
		)
		return
	}

	topic := mqtt.Topics{}.DeviceSettingsUpdate(info.LocationKey)
	mode := setting.Mode()
	for _, capability := range info.Capabilities {
		err := s.publisher.PublishJSON(topic, mqtt.ModeUpdate{Device: capability, Mode: string(mode)})
		if err != nil {
			if s.failures != nil {
				s.failures.PublishFailed("settings")
			}
			s.logger.Warn("mode publish failed",
				"device_id", setting.DeviceID,
				"topic", topic,
				"device", capability,
				"error", err,
			)
		}
	}
}

// BroadcastSettings sends settings_updated for setting. A nil hub is a no-op.
func BroadcastSettings(hub Broadcaster, setting *Setting) {
	if hub == nil || setting == nil {
		return
	}
	hub.Broadcast(EventSettingsUpdated, map[string]any{
		"deviceId": setting.DeviceID,
		"setting":  setting,
		"mode":     setting.Mode(),
	})
}
