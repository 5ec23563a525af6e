package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
// Every method takes a Querier so the action engine and the registry can
// run several of them inside one transaction.
type Repository interface {
	// Create inserts a new device, generating its ID when empty.
	Create(ctx context.Context, q database.Querier, d *Device) error

	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, q database.Querier, id string) (*Device, error)

	// List retrieves all devices in creation order.
	List(ctx context.Context, q database.Querier) ([]Device, error)

	// ListByLocation retrieves the devices paired under one location key.
	ListByLocation(ctx context.Context, q database.Querier, locationKey string) ([]Device, error)

	// UpdateStatus sets the operational status of one device.
	UpdateStatus(ctx context.Context, q database.Querier, id string, status Status) error

	// UpdateConnectivity sets connectivity and last-seen for every device at
	// a location and returns how many rows changed.
	UpdateConnectivity(ctx context.Context, q database.Querier, locationKey string, c Connectivity, seenAt time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct{}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository() *SQLiteRepository {
	return &SQLiteRepository{}
}

const deviceColumns = `id, name, location_key, capabilities, connectivity, status, last_seen, created_at, updated_at`

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, q database.Querier, d *Device) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Connectivity == "" {
		d.Connectivity = Offline
	}
	if d.Status == "" {
		d.Status = StatusOff
	}
	if d.Capabilities == nil {
		d.Capabilities = []Capability{}
	}
	now := time.Now().UTC().Truncate(time.Second)
	d.CreatedAt, d.UpdatedAt = now, now

	capsJSON, err := json.Marshal(d.Capabilities)
	if err != nil {
		return fmt.Errorf("marshalling capabilities: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO devices (`+deviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.LocationKey, string(capsJSON), string(d.Connectivity), string(d.Status),
		nullableTime(d.LastSeen), database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		return apperr.Storage("inserting device", err)
	}
	return nil
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, q database.Querier, id string) (*Device, error) {
	row := q.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, apperr.Storage("querying device by id", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context, q database.Querier) ([]Device, error) {
	return r.queryDevices(ctx, q,
		`SELECT `+deviceColumns+` FROM devices ORDER BY created_at, rowid`)
}

// ListByLocation retrieves the devices sharing locationKey.
func (r *SQLiteRepository) ListByLocation(ctx context.Context, q database.Querier, locationKey string) ([]Device, error) {
	return r.queryDevices(ctx, q,
		`SELECT `+deviceColumns+` FROM devices WHERE location_key = ? ORDER BY created_at, rowid`,
		locationKey)
}

// UpdateStatus sets the operational status of one device.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, q database.Querier, id string, status Status) error {
	result, err := q.ExecContext(ctx,
		`UPDATE devices SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), database.FormatTime(time.Now()), id)
	if err != nil {
		return apperr.Storage("updating device status", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // Always succeeds on SQLite
		return ErrDeviceNotFound
	}
	return nil
}

// UpdateConnectivity sets connectivity and last-seen for a location.
func (r *SQLiteRepository) UpdateConnectivity(ctx context.Context, q database.Querier, locationKey string, c Connectivity, seenAt time.Time) (int64, error) {
	seen := database.FormatTime(seenAt)
	result, err := q.ExecContext(ctx,
		`UPDATE devices SET connectivity = ?, last_seen = ?, updated_at = ? WHERE location_key = ?`,
		string(c), seen, seen, locationKey)
	if err != nil {
		return 0, apperr.Storage("updating device connectivity", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // Always succeeds on SQLite
	return n, nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, q database.Querier, query string, args ...any) ([]Device, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage("querying devices", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, apperr.Storage("scanning device", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterating devices", err)
	}
	return devices, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(s rowScanner) (*Device, error) {
	var d Device
	var capsJSON, connectivity, status, createdAt, updatedAt string
	var lastSeen sql.NullString

	if err := s.Scan(&d.ID, &d.Name, &d.LocationKey, &capsJSON, &connectivity, &status,
		&lastSeen, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	d.Connectivity = Connectivity(connectivity)
	d.Status = Status(status)

	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}
	if d.Capabilities == nil {
		d.Capabilities = []Capability{}
	}

	var err error
	if d.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t, err := database.ParseTime(lastSeen.String)
		if err != nil {
			return nil, err
		}
		d.LastSeen = &t
	}
	return &d, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return database.FormatTime(*t)
}
