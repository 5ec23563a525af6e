package action

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/automation"
	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-iot/internal/notification"
	_ "github.com/nerrad567/gray-logic-iot/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "action.db"),
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

type publishedMessage struct {
	Topic   string
	Payload map[string]any
}

type mockPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (m *mockPublisher) PublishJSON(topic string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	raw, _ := json.Marshal(v)
	var parsed map[string]any
	_ = json.Unmarshal(raw, &parsed)
	m.messages = append(m.messages, publishedMessage{Topic: topic, Payload: parsed})
	return nil
}

type mockHub struct {
	mu       sync.Mutex
	channels []string
	payloads []any
}

func (m *mockHub) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channel)
	m.payloads = append(m.payloads, payload)
}

func (m *mockHub) count(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.channels {
		if c == channel {
			n++
		}
	}
	return n
}

type mockTelemetry struct {
	mu     sync.Mutex
	points []influxdb.DeviceAction
}

func (m *mockTelemetry) WriteDeviceAction(a influxdb.DeviceAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, a)
}

type mockRecorder struct {
	mu       sync.Mutex
	actions  []string
	failures []string
}

func (m *mockRecorder) ActionExecuted(trigger, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, trigger+"/"+action)
}

func (m *mockRecorder) PublishFailed(channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, channel)
}

type notifyCall struct {
	DeviceID, Kind, Title, Message string
}

type mockNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

func (m *mockNotifier) Notify(_ context.Context, deviceID, kind, title, message string) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, notifyCall{deviceID, kind, title, message})
	if m.err != nil {
		return nil, m.err
	}
	return &notification.Notification{Type: kind, Title: title, Message: message}, nil
}

type fixture struct {
	db        *sql.DB
	engine    *Engine
	registry  *device.Registry
	publisher *mockPublisher
	hub       *mockHub
	telemetry *mockTelemetry
	recorder  *mockRecorder
	notifier  *mockNotifier
	lamp, fan device.Device
}

// newFixture onboards one lamp/fan pair at location "porch".
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)
	settings := automation.NewSQLiteRepository()
	registry := device.NewRegistry(db, device.NewSQLiteRepository(), settings, nil)

	devices, _, err := registry.Onboard(context.Background(), "porch")
	if err != nil {
		t.Fatalf("onboarding: %v", err)
	}

	f := &fixture{
		db:        db,
		registry:  registry,
		publisher: &mockPublisher{},
		hub:       &mockHub{},
		telemetry: &mockTelemetry{},
		recorder:  &mockRecorder{},
		notifier:  &mockNotifier{},
		lamp:      devices[0],
		fan:       devices[1],
	}
	f.engine = NewEngine(Deps{
		DB:        db,
		Devices:   registry,
		DeviceDB:  device.NewSQLiteRepository(),
		Settings:  settings,
		History:   history.NewSQLiteRepository(),
		Publisher: f.publisher,
		Hub:       f.hub,
		Telemetry: f.telemetry,
		Recorder:  f.recorder,
		Notifier:  f.notifier,
	})
	f.engine.now = func() time.Time { return time.Date(2026, 3, 2, 18, 0, 30, 0, time.UTC) }
	f.setFlags(t, f.lamp.ID, true, true)
	f.setFlags(t, f.fan.ID, true, true)
	return f
}

// setFlags writes both automation flags for deviceID directly.
func (f *fixture) setFlags(t *testing.T, deviceID string, auto, schedule bool) {
	t.Helper()
	ctx := context.Background()
	d, err := f.registry.GetDevice(ctx, deviceID)
	if err != nil {
		t.Fatal(err)
	}
	d.Setting.AutoModeEnabled = auto
	d.Setting.ScheduleEnabled = schedule
	if err := automation.NewSQLiteRepository().UpdateFlags(ctx, f.db, d.Setting); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) historyCount(t *testing.T) int {
	t.Helper()
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM sensor_history`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

var errBroker = errors.New("broker unreachable")
