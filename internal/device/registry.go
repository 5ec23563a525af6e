package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/automation"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
)

// Real-time event names owned by the registry.
const (
	EventDeviceAdded         = "device_added"
	EventDevicesUpdated      = "devices_updated"
	EventDeviceStatusUpdated = "device_status_updated"
)

// Logger defines the logging interface used by the Registry.
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

// Broadcaster pushes an event to real-time clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Registry onboards devices and serves them with their automation settings
// attached. The database is the only copy of device state; nothing is cached.
type Registry struct {
	db       *sql.DB
	repo     Repository
	settings automation.Repository
	hub      Broadcaster
	logger   Logger
}

// NewRegistry creates a device registry. hub may be nil.
func NewRegistry(db *sql.DB, repo Repository, settings automation.Repository, hub Broadcaster) *Registry {
	return &Registry{
		db:       db,
		repo:     repo,
		settings: settings,
		hub:      hub,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Onboard registers the lamp and fan for uniqueID, which becomes their
// location key. Existing devices for the key are returned unchanged with
// isNew false.
func (r *Registry) Onboard(ctx context.Context, uniqueID string) (devices []Device, isNew bool, err error) {
	key, err := ValidateUniqueID(uniqueID)
	if err != nil {
		return nil, false, err
	}

	err = database.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		existing, err := r.repo.ListByLocation(ctx, tx, key)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			devices = existing
			return r.attachSettings(ctx, tx, devices)
		}

		isNew = true
		devices = []Device{
			{Name: "IoT Lamp " + key, LocationKey: key, Capabilities: []Capability{CapLamp}},
			{Name: "IoT Fan " + key, LocationKey: key, Capabilities: []Capability{CapFan}},
		}
		for i := range devices {
			d := &devices[i]
			if err := r.repo.Create(ctx, tx, d); err != nil {
				return err
			}
			s := &automation.Setting{DeviceID: d.ID, AutoModeEnabled: true}
			if err := r.settings.Create(ctx, tx, s); err != nil {
				return err
			}
			d.Setting = s
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("onboarding %s: %w", key, err)
	}

	if isNew {
		r.logger.Info("devices onboarded", "location_key", key, "count", len(devices))
		if r.hub != nil {
			r.hub.Broadcast(EventDeviceAdded, map[string]any{"devices": devices})
		}
	}
	return devices, isNew, nil
}

// GetDevice retrieves a device by ID with its setting.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	return r.Load(ctx, r.db, id)
}

// Load reads a device and its setting through q, which may be a
// transaction.
func (r *Registry) Load(ctx context.Context, q database.Querier, id string) (*Device, error) {
	d, err := r.repo.GetByID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	s, err := r.settings.GetByDeviceID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	d.Setting = s
	return d, nil
}

// ListDevices retrieves all devices with their settings.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	devices, err := r.repo.List(ctx, r.db)
	if err != nil {
		return nil, err
	}
	if err := r.attachSettings(ctx, r.db, devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// ListByLocation retrieves the devices paired under locationKey with their
// settings.
func (r *Registry) ListByLocation(ctx context.Context, locationKey string) ([]Device, error) {
	devices, err := r.repo.ListByLocation(ctx, r.db, locationKey)
	if err != nil {
		return nil, err
	}
	if err := r.attachSettings(ctx, r.db, devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// UpdateConnectivity records a reachability report for every device at
// locationKey and returns the updated set. Operational status is untouched.
func (r *Registry) UpdateConnectivity(ctx context.Context, locationKey string, c Connectivity, seenAt time.Time) ([]Device, error) {
	var devices []Device
	err := database.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := r.repo.UpdateConnectivity(ctx, tx, locationKey, c, seenAt); err != nil {
			return err
		}
		var err error
		devices, err = r.repo.ListByLocation(ctx, tx, locationKey)
		if err != nil {
			return err
		}
		return r.attachSettings(ctx, tx, devices)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("connectivity updated",
		"location_key", locationKey,
		"connectivity", c,
		"count", len(devices),
	)
	return devices, nil
}

// GetDeviceInfo returns the broker addressing for a device.
func (r *Registry) GetDeviceInfo(ctx context.Context, id string) (automation.DeviceInfo, error) {
	d, err := r.repo.GetByID(ctx, r.db, id)
	if err != nil {
		return automation.DeviceInfo{}, err
	}
	return d.Info(), nil
}

func (r *Registry) attachSettings(ctx context.Context, q database.Querier, devices []Device) error {
	if len(devices) == 0 {
		return nil
	}
	ids := make([]string, len(devices))
	for i := range devices {
		ids[i] = devices[i].ID
	}
	byDevice, err := r.settings.GetByDeviceIDs(ctx, q, ids)
	if err != nil {
		return err
	}
	for i := range devices {
		devices[i].Setting = byDevice[devices[i].ID]
	}
	return nil
}
