package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/action"
	"github.com/nerrad567/gray-logic-iot/internal/automation"
	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-iot/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "scheduler.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

type call struct {
	DeviceID string
	Action   action.Action
	Trigger  history.Trigger
}

type mockExecutor struct {
	mu    sync.Mutex
	calls []call
	fail     map[string]bool
	disarmed map[string]bool
	ran      chan struct{}
}

func (m *mockExecutor) Execute(_ context.Context, deviceID string, a action.Action, trigger history.Trigger) (*device.Device, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call{deviceID, a, trigger})
	failing := m.fail[deviceID]
	disarmed := m.disarmed[deviceID]
	m.mu.Unlock()
	if m.ran != nil {
		m.ran <- struct{}{}
	}
	if failing {
		return nil, errors.New("device unreachable")
	}
	if disarmed {
		return nil, fmt.Errorf("%w: %s", action.ErrAutomationDisarmed, deviceID)
	}
	return &device.Device{ID: deviceID}, nil
}

func (m *mockExecutor) snapshot() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.calls...)
}

// onboardWithSchedule creates a lamp/fan pair and gives the lamp a schedule.
func onboardWithSchedule(t *testing.T, db *sql.DB, key, day, on, off string) device.Device {
	t.Helper()
	ctx := context.Background()
	settings := automation.NewSQLiteRepository()
	registry := device.NewRegistry(db, device.NewSQLiteRepository(), settings, nil)
	devices, _, err := registry.Onboard(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	svc := automation.NewService(db, settings, registry, nil, nil, nil)
	if _, err := svc.UpsertSchedule(ctx, devices[0].ID, day, on, off); err != nil {
		t.Fatal(err)
	}
	return devices[0]
}

// 2026-03-02 is a Monday.
func monday(hour, minute int, loc *time.Location) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, loc)
}

func TestTick_MondayEvening(t *testing.T) {
	db := testDB(t)
	lamp := onboardWithSchedule(t, db, "living", "Mon", "18:00", "23:00")
	exec := &mockExecutor{}
	s := New(db, automation.NewSQLiteRepository(), exec, time.UTC)
	ctx := context.Background()

	tests := []struct {
		at   time.Time
		want []call
	}{
		{monday(17, 59, time.UTC), nil},
		{monday(18, 0, time.UTC), []call{{lamp.ID, action.TurnOn, history.TriggerScheduled}}},
		{monday(18, 1, time.UTC), nil},
		{monday(23, 0, time.UTC), []call{{lamp.ID, action.TurnOff, history.TriggerScheduled}}},
		{monday(18, 0, time.UTC).AddDate(0, 0, 1), nil},
	}
	for _, tt := range tests {
		exec.calls = nil
		s.Tick(ctx, tt.at)
		got := exec.snapshot()
		if len(got) != len(tt.want) {
			t.Fatalf("Tick(%s) calls = %+v, want %+v", tt.at, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Tick(%s)[%d] = %+v, want %+v", tt.at, i, got[i], tt.want[i])
			}
		}
	}
}

func TestTick_UsesSiteTimeZone(t *testing.T) {
	db := testDB(t)
	lamp := onboardWithSchedule(t, db, "living", "Mon", "18:00", "23:00")
	exec := &mockExecutor{}
	site := time.FixedZone("UTC+2", 2*60*60)
	s := New(db, automation.NewSQLiteRepository(), exec, site)

	// 16:00 UTC is 18:00 at the site.
	s.Tick(context.Background(), monday(16, 0, time.UTC))

	got := exec.snapshot()
	if len(got) != 1 || got[0].DeviceID != lamp.ID || got[0].Action != action.TurnOn {
		t.Errorf("calls = %+v", got)
	}
}

func TestTick_SameOnAndOffTimeTurnsOn(t *testing.T) {
	db := testDB(t)
	onboardWithSchedule(t, db, "hall", "Mon", "07:30", "07:30")
	exec := &mockExecutor{}
	s := New(db, automation.NewSQLiteRepository(), exec, time.UTC)

	s.Tick(context.Background(), monday(7, 30, time.UTC))

	got := exec.snapshot()
	if len(got) != 1 || got[0].Action != action.TurnOn {
		t.Errorf("calls = %+v, want one turn_on", got)
	}
}

func TestTick_DisabledScheduleSkipped(t *testing.T) {
	db := testDB(t)
	lamp := onboardWithSchedule(t, db, "hall", "Mon", "18:00", "23:00")
	if _, err := db.Exec(`UPDATE automation_settings SET schedule_enabled = 0 WHERE device_id = ?`, lamp.ID); err != nil {
		t.Fatal(err)
	}
	exec := &mockExecutor{}
	s := New(db, automation.NewSQLiteRepository(), exec, time.UTC)

	if n := s.Tick(context.Background(), monday(18, 0, time.UTC)); n != 0 {
		t.Errorf("Tick() = %d, want 0", n)
	}
}

func TestTick_FailingDeviceSkipped(t *testing.T) {
	db := testDB(t)
	a := onboardWithSchedule(t, db, "a-room", "Mon", "18:00", "23:00")
	onboardWithSchedule(t, db, "b-room", "Mon", "18:00", "23:00")
	exec := &mockExecutor{fail: map[string]bool{a.ID: true}}
	s := New(db, automation.NewSQLiteRepository(), exec, time.UTC)

	n := s.Tick(context.Background(), monday(18, 0, time.UTC))
	if n != 1 {
		t.Errorf("Tick() executed = %d, want 1", n)
	}
	if len(exec.snapshot()) != 2 {
		t.Errorf("both devices should be attempted")
	}
}

type warnLogger struct {
	noopLogger
	mu    sync.Mutex
	warns []string
}

func (l *warnLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestTick_DisarmedBetweenListAndExecuteIsSkipped(t *testing.T) {
	db := testDB(t)
	a := onboardWithSchedule(t, db, "a-room", "Mon", "18:00", "23:00")
	onboardWithSchedule(t, db, "b-room", "Mon", "18:00", "23:00")
	exec := &mockExecutor{disarmed: map[string]bool{a.ID: true}}
	logger := &warnLogger{}
	s := New(db, automation.NewSQLiteRepository(), exec, time.UTC)
	s.SetLogger(logger)

	if n := s.Tick(context.Background(), monday(18, 0, time.UTC)); n != 1 {
		t.Errorf("Tick() executed = %d, want 1", n)
	}
	if len(logger.warns) != 0 {
		t.Errorf("disarmed device logged as failure: %v", logger.warns)
	}
}

func TestTick_MinuteProcessedOnce(t *testing.T) {
	db := testDB(t)
	onboardWithSchedule(t, db, "hall", "Mon", "18:00", "23:00")
	exec := &mockExecutor{}
	s := New(db, automation.NewSQLiteRepository(), exec, time.UTC)
	ctx := context.Background()

	s.Tick(ctx, monday(18, 0, time.UTC))
	s.Tick(ctx, monday(18, 0, time.UTC).Add(59*time.Second))

	if got := len(exec.snapshot()); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestTick_WithEngine(t *testing.T) {
	db := testDB(t)
	lamp := onboardWithSchedule(t, db, "living", "Mon", "18:00", "23:00")
	settings := automation.NewSQLiteRepository()
	registry := device.NewRegistry(db, device.NewSQLiteRepository(), settings, nil)
	engine := action.NewEngine(action.Deps{
		DB:       db,
		Devices:  registry,
		DeviceDB: device.NewSQLiteRepository(),
		Settings: settings,
		History:  history.NewSQLiteRepository(),
	})
	s := New(db, settings, engine, time.UTC)

	if n := s.Tick(context.Background(), monday(18, 0, time.UTC)); n != 1 {
		t.Fatalf("Tick() = %d, want 1", n)
	}
	engine.Wait()

	d, err := registry.GetDevice(context.Background(), lamp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != device.StatusOn {
		t.Errorf("status = %s, want on", d.Status)
	}
	if !d.Setting.ScheduleEnabled {
		t.Error("scheduled actions must keep the schedule armed")
	}
}

func TestDelayToNextMinute(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Duration
	}{
		{time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC), time.Minute},
		{time.Date(2026, 3, 2, 18, 0, 45, 0, time.UTC), 15 * time.Second},
		{time.Date(2026, 3, 2, 18, 0, 59, 500_000_000, time.UTC), 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := delayToNextMinute(tt.now); got != tt.want {
			t.Errorf("delayToNextMinute(%s) = %v, want %v", tt.now, got, tt.want)
		}
	}
}
