package automation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
)

// Repository persists settings and schedules. Every method takes a Querier
// so callers can compose them inside one transaction.
type Repository interface {
	Create(ctx context.Context, q database.Querier, s *Setting) error
	GetByDeviceID(ctx context.Context, q database.Querier, deviceID string) (*Setting, error)
	GetByDeviceIDs(ctx context.Context, q database.Querier, deviceIDs []string) (map[string]*Setting, error)
	UpdateFlags(ctx context.Context, q database.Querier, s *Setting) error
	UpsertSchedule(ctx context.Context, q database.Querier, settingID string, day Weekday, onTime, offTime string) (*Schedule, error)
	DeleteSchedule(ctx context.Context, q database.Querier, settingID string, day Weekday) error
	ListDue(ctx context.Context, q database.Querier, day Weekday, clock string) ([]DueSchedule, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct{}

// NewSQLiteRepository creates a SQLite-backed repository.
func NewSQLiteRepository() *SQLiteRepository {
	return &SQLiteRepository{}
}

const settingColumns = `id, device_id, auto_mode_enabled, schedule_enabled, created_at, updated_at`

const scheduleColumns = `id, setting_id, day, on_time, off_time, created_at, updated_at`

// dayOrder sorts schedules Monday first regardless of text collation.
const dayOrder = `CASE day WHEN 'Mon' THEN 1 WHEN 'Tue' THEN 2 WHEN 'Wed' THEN 3
	WHEN 'Thu' THEN 4 WHEN 'Fri' THEN 5 WHEN 'Sat' THEN 6 ELSE 7 END`

// Create inserts s, generating its ID when empty.
func (r *SQLiteRepository) Create(ctx context.Context, q database.Querier, s *Setting) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	s.CreatedAt, s.UpdatedAt = now, now
	if s.Schedules == nil {
		s.Schedules = []Schedule{}
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO automation_settings (`+settingColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.DeviceID, boolToInt(s.AutoModeEnabled), boolToInt(s.ScheduleEnabled),
		database.FormatTime(now), database.FormatTime(now),
	)
	if err != nil {
		return apperr.Storage("inserting automation setting", err)
	}
	return nil
}

// GetByDeviceID loads the setting and its schedules, Monday first.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, q database.Querier, deviceID string) (*Setting, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+settingColumns+` FROM automation_settings WHERE device_id = ?`, deviceID)
	s, err := scanSetting(row)
	if err != nil {
		return nil, err
	}

	byID, err := r.loadSchedules(ctx, q, []string{s.ID})
	if err != nil {
		return nil, err
	}
	s.Schedules = orEmpty(byID[s.ID])
	return s, nil
}

// GetByDeviceIDs loads settings for many devices in two queries. Devices
// without a setting are absent from the map.
func (r *SQLiteRepository) GetByDeviceIDs(ctx context.Context, q database.Querier, deviceIDs []string) (map[string]*Setting, error) {
	result := make(map[string]*Setting, len(deviceIDs))
	if len(deviceIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+settingColumns+` FROM automation_settings WHERE device_id IN (`+placeholders(len(deviceIDs))+`)`,
		toArgs(deviceIDs)...)
	if err != nil {
		return nil, apperr.Storage("querying automation settings", err)
	}
	defer rows.Close()

	settingIDs := make([]string, 0, len(deviceIDs))
	bySettingID := make(map[string]*Setting, len(deviceIDs))
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		result[s.DeviceID] = s
		bySettingID[s.ID] = s
		settingIDs = append(settingIDs, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterating automation settings", err)
	}

	schedules, err := r.loadSchedules(ctx, q, settingIDs)
	if err != nil {
		return nil, err
	}
	for id, s := range bySettingID {
		s.Schedules = orEmpty(schedules[id])
	}
	return result, nil
}

// UpdateFlags writes both flags of s and refreshes UpdatedAt.
func (r *SQLiteRepository) UpdateFlags(ctx context.Context, q database.Querier, s *Setting) error {
	now := time.Now().UTC().Truncate(time.Second)
	result, err := q.ExecContext(ctx,
		`UPDATE automation_settings SET auto_mode_enabled = ?, schedule_enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(s.AutoModeEnabled), boolToInt(s.ScheduleEnabled), database.FormatTime(now), s.ID,
	)
	if err != nil {
		return apperr.Storage("updating automation setting", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // Always succeeds on SQLite
		return ErrSettingNotFound
	}
	s.UpdatedAt = now
	return nil
}

// UpsertSchedule creates or replaces the (setting, day) row.
func (r *SQLiteRepository) UpsertSchedule(ctx context.Context, q database.Querier, settingID string, day Weekday, onTime, offTime string) (*Schedule, error) {
	now := database.FormatTime(time.Now())
	_, err := q.ExecContext(ctx,
		`INSERT INTO schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (setting_id, day) DO UPDATE SET
			on_time = excluded.on_time,
			off_time = excluded.off_time,
			updated_at = excluded.updated_at`,
		uuid.NewString(), settingID, string(day), onTime, offTime, now, now,
	)
	if err != nil {
		return nil, apperr.Storage("upserting schedule", err)
	}

	row := q.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE setting_id = ? AND day = ?`, settingID, string(day))
	return scanSchedule(row)
}

// DeleteSchedule removes exactly the (setting, day) row.
func (r *SQLiteRepository) DeleteSchedule(ctx context.Context, q database.Querier, settingID string, day Weekday) error {
	result, err := q.ExecContext(ctx,
		`DELETE FROM schedules WHERE setting_id = ? AND day = ?`, settingID, string(day))
	if err != nil {
		return apperr.Storage("deleting schedule", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // Always succeeds on SQLite
		return fmt.Errorf("%w: no schedule on %s", ErrScheduleNotFound, day)
	}
	return nil
}

// ListDue returns schedules for day whose on or off time equals clock, for
// settings with scheduling enabled.
func (r *SQLiteRepository) ListDue(ctx context.Context, q database.Querier, day Weekday, clock string) ([]DueSchedule, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT st.device_id, sc.day, sc.on_time, sc.off_time
		 FROM schedules sc
		 JOIN automation_settings st ON st.id = sc.setting_id
		 WHERE st.schedule_enabled = 1
		   AND sc.day = ?
		   AND (sc.on_time = ? OR sc.off_time = ?)
		 ORDER BY st.device_id`,
		string(day), clock, clock)
	if err != nil {
		return nil, apperr.Storage("querying due schedules", err)
	}
	defer rows.Close()

	var due []DueSchedule
	for rows.Next() {
		var d DueSchedule
		var dayStr string
		if err := rows.Scan(&d.DeviceID, &dayStr, &d.OnTime, &d.OffTime); err != nil {
			return nil, apperr.Storage("scanning due schedule", err)
		}
		d.Day = Weekday(dayStr)
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterating due schedules", err)
	}
	return due, nil
}

func (r *SQLiteRepository) loadSchedules(ctx context.Context, q database.Querier, settingIDs []string) (map[string][]Schedule, error) {
	result := make(map[string][]Schedule, len(settingIDs))
	if len(settingIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE setting_id IN (`+placeholders(len(settingIDs))+`)
		 ORDER BY setting_id, `+dayOrder,
		toArgs(settingIDs)...)
	if err != nil {
		return nil, apperr.Storage("querying schedules", err)
	}
	defer rows.Close()

	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result[sc.SettingID] = append(result[sc.SettingID], *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterating schedules", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSetting(s scanner) (*Setting, error) {
	var st Setting
	var auto, sched int
	var createdAt, updatedAt string

	if err := s.Scan(&st.ID, &st.DeviceID, &auto, &sched, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, apperr.Storage("scanning automation setting", err)
	}
	st.AutoModeEnabled = auto != 0
	st.ScheduleEnabled = sched != 0
	st.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // Format is controlled
	st.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // Format is controlled
	st.Schedules = []Schedule{}
	return &st, nil
}

func scanSchedule(s scanner) (*Schedule, error) {
	var sc Schedule
	var day, createdAt, updatedAt string

	if err := s.Scan(&sc.ID, &sc.SettingID, &day, &sc.OnTime, &sc.OffTime, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, apperr.Storage("scanning schedule", err)
	}
	sc.Day = Weekday(day)
	sc.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // Format is controlled
	sc.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // Format is controlled
	return &sc, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func orEmpty(s []Schedule) []Schedule {
	if s == nil {
		return []Schedule{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
