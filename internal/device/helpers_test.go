package device

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-iot/internal/automation"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-iot/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "device.db"),
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

func newTestRegistry(t *testing.T) (*Registry, *sql.DB, *mockHub) {
	t.Helper()
	db := testDB(t)
	hub := &mockHub{}
	return NewRegistry(db, NewSQLiteRepository(), automation.NewSQLiteRepository(), hub), db, hub
}
