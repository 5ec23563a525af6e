package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/action"
	"github.com/nerrad567/gray-logic-iot/internal/auth"
	"github.com/nerrad567/gray-logic-iot/internal/automation"
	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-iot/internal/notification"
	_ "github.com/nerrad567/gray-logic-iot/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// testEnv is a server wired to real services over a temp SQLite database.
type testEnv struct {
	srv        *Server
	handler    http.Handler
	db         *sql.DB
	hub        *Hub
	engine     *action.Engine
	registry   *device.Registry
	prom       *metrics.Metrics
	admin      *auth.User
	user       *auth.User
	adminToken string
	userToken  string
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
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

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testDB(t)
	log := logging.Discard()
	wsCfg := config.WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	hub := NewHub(wsCfg, log)

	deviceRepo := device.NewSQLiteRepository()
	settingsRepo := automation.NewSQLiteRepository()
	historyRepo := history.NewSQLiteRepository()
	users := auth.NewUserRepository(db)

	registry := device.NewRegistry(db, deviceRepo, settingsRepo, hub)
	settings := automation.NewService(db, settingsRepo, registry, nil, hub, log)
	notifications := notification.NewService(db, notification.NewSQLiteRepository(), users, hub)
	engine := action.NewEngine(action.Deps{
		DB:       db,
		Devices:  registry,
		DeviceDB: deviceRepo,
		Settings: settingsRepo,
		History:  historyRepo,
		Hub:      hub,
		Notifier: notifications,
		Logger:   log,
	})
	t.Cleanup(engine.Wait)

	prom := metrics.New()
	srv, err := New(Deps{
		Config:        config.APIConfig{Host: "127.0.0.1", Port: 8080},
		WS:            wsCfg,
		Security:      config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
		Metrics:       config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Logger:        log,
		DB:            db,
		Hub:           hub,
		Devices:       registry,
		Actions:       engine,
		Settings:      settings,
		History:       historyRepo,
		Notifications: notifications,
		Prometheus:    prom,
		Version:       "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	env := &testEnv{
		srv:      srv,
		handler:  srv.buildRouter(),
		db:       db,
		hub:      hub,
		engine:   engine,
		registry: registry,
		prom:     prom,
	}
	env.admin, env.adminToken = createUser(t, users, "admin", auth.RoleAdmin)
	env.user, env.userToken = createUser(t, users, "resident", auth.RoleUser)
	return env
}

func createUser(t *testing.T, users *auth.SQLiteUserRepository, name string, role auth.Role) (*auth.User, string) {
	t.Helper()
	u := &auth.User{Username: name, Email: name + "@example.com", Role: role}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", name, err)
	}
	token, err := auth.GenerateAccessToken(u, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return u, token
}

// do sends a request through the router. body may be nil, a string, or a
// value to encode as JSON.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// onboard creates the lamp and fan pair for key and returns them lamp first.
func (e *testEnv) onboard(t *testing.T, key string) []device.Device {
	t.Helper()
	devices, _, err := e.registry.Onboard(context.Background(), key)
	if err != nil {
		t.Fatalf("Onboard(%q) error = %v", key, err)
	}
	return devices
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// signWithSecret issues a valid-looking token under a different secret.
func signWithSecret(t *testing.T, secret string) string {
	t.Helper()
	token, err := auth.GenerateAccessToken(&auth.User{ID: "someone", Role: auth.RoleUser}, secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}
