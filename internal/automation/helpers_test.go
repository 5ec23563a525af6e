package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-iot/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "automation.db"),
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

// insertDevice adds a bare device row so settings satisfy their foreign key.
func insertDevice(t *testing.T, db *sql.DB, id, locationKey string) {
	t.Helper()
	now := database.FormatTime(time.Now())
	_, err := db.Exec(`INSERT INTO devices (id, name, location_key, capabilities, created_at, updated_at)
		VALUES (?, ?, ?, '["lamp"]', ?, ?)`, id, "Device "+id, locationKey, now, now)
	if err != nil {
		t.Fatalf("inserting device: %v", err)
	}
}

// insertSetting creates a device and its setting.
func insertSetting(t *testing.T, db *sql.DB, deviceID string, auto, schedule bool) *Setting {
	t.Helper()
	insertDevice(t, db, deviceID, "loc-"+deviceID)
	s := &Setting{DeviceID: deviceID, AutoModeEnabled: auto, ScheduleEnabled: schedule}
	if err := NewSQLiteRepository().Create(context.Background(), db, s); err != nil {
		t.Fatalf("creating setting: %v", err)
	}
	return s
}

type mockRegistry struct {
	devices map[string]DeviceInfo
}

func (m *mockRegistry) GetDeviceInfo(_ context.Context, id string) (DeviceInfo, error) {
	info, ok := m.devices[id]
	if !ok {
		return DeviceInfo{}, errors.New("device: not found")
	}
	return info, nil
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

type broadcastEvent struct {
	Channel string
	Payload any
}

type mockHub struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (m *mockHub) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, broadcastEvent{channel, payload})
}

type countingFailures struct{ n int }

func (c *countingFailures) PublishFailed(string) { c.n++ }
