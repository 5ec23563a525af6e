package motion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/action"
	"github.com/nerrad567/gray-logic-iot/internal/apperr"
	"github.com/nerrad567/gray-logic-iot/internal/automation"
	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/mqtt"
	_ "github.com/nerrad567/gray-logic-iot/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "motion.db"),
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
}

type mockExecutor struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (m *mockExecutor) Execute(_ context.Context, deviceID string, a action.Action, trigger history.Trigger) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if trigger != history.TriggerMotionDetected {
		return nil, errors.New("unexpected trigger " + string(trigger))
	}
	m.calls = append(m.calls, call{deviceID, a})
	return &device.Device{ID: deviceID}, m.err
}

type mockHub struct {
	mu       sync.Mutex
	channels []string
}

func (m *mockHub) Broadcast(channel string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channel)
}

type fixture struct {
	db       *sql.DB
	registry *device.Registry
	exec     *mockExecutor
	hub      *mockHub
	coord    *Coordinator
	lamp     device.Device
	fan      device.Device
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)
	registry := device.NewRegistry(db, device.NewSQLiteRepository(), automation.NewSQLiteRepository(), nil)
	devices, _, err := registry.Onboard(context.Background(), "hallway")
	if err != nil {
		t.Fatal(err)
	}
	exec := &mockExecutor{}
	hub := &mockHub{}
	return &fixture{
		db:       db,
		registry: registry,
		exec:     exec,
		hub:      hub,
		coord:    New(registry, exec, hub),
		lamp:     devices[0],
		fan:      devices[1],
	}
}

func TestOnMotionDetected_TurnsOnAutoDevices(t *testing.T) {
	f := newFixture(t)

	n, err := f.coord.OnMotionDetected(context.Background(), "hallway")
	if err != nil {
		t.Fatalf("OnMotionDetected() error = %v", err)
	}
	if n != 2 {
		t.Errorf("executed = %d, want 2", n)
	}
	for _, c := range f.exec.calls {
		if c.Action != action.TurnOn {
			t.Errorf("call = %+v, want turn_on", c)
		}
	}
}

func TestOnMotion_GatedOnAutoMode(t *testing.T) {
	f := newFixture(t)
	svc := automation.NewService(f.db, automation.NewSQLiteRepository(), f.registry, nil, nil, nil)
	off := false
	if _, err := svc.UpdateSettings(context.Background(), f.fan.ID, automation.Patch{AutoModeEnabled: &off}); err != nil {
		t.Fatal(err)
	}

	n, err := f.coord.OnMotionCleared(context.Background(), "hallway")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(f.exec.calls) != 1 || f.exec.calls[0].DeviceID != f.lamp.ID {
		t.Errorf("calls = %+v, want only the lamp", f.exec.calls)
	}
	if f.exec.calls[0].Action != action.TurnOff {
		t.Errorf("action = %s, want turn_off", f.exec.calls[0].Action)
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

func TestOnMotion_DisarmedInsideActionIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.exec.err = fmt.Errorf("%w: %s", action.ErrAutomationDisarmed, f.lamp.ID)
	logger := &warnLogger{}
	f.coord.SetLogger(logger)

	n, err := f.coord.OnMotionDetected(context.Background(), "hallway")
	if err != nil {
		t.Fatalf("OnMotionDetected() error = %v", err)
	}
	if n != 0 {
		t.Errorf("executed = %d, want 0", n)
	}
	if len(logger.warns) != 0 {
		t.Errorf("disarmed devices logged as failures: %v", logger.warns)
	}
}

func TestOnMotion_UnknownLocation(t *testing.T) {
	f := newFixture(t)
	n, err := f.coord.OnMotionDetected(context.Background(), "attic")
	if err != nil || n != 0 {
		t.Errorf("OnMotionDetected(attic) = %d, %v", n, err)
	}
}

func TestOnMotion_FailingDeviceSkipped(t *testing.T) {
	f := newFixture(t)
	f.exec.err = apperr.Storage("update", errors.New("disk full"))

	n, err := f.coord.OnMotionDetected(context.Background(), "hallway")
	if err != nil {
		t.Fatalf("OnMotionDetected() error = %v", err)
	}
	if n != 0 || len(f.exec.calls) != 2 {
		t.Errorf("executed %d of %d attempts, want 0 of 2", n, len(f.exec.calls))
	}
}

func TestOnConnectivityReport(t *testing.T) {
	f := newFixture(t)
	seen := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	f.coord.now = func() time.Time { return seen }

	if err := f.coord.OnConnectivityReport(context.Background(), "hallway", "online"); err != nil {
		t.Fatalf("OnConnectivityReport() error = %v", err)
	}

	want := []string{device.EventDevicesUpdated, device.EventDeviceStatusUpdated, device.EventDeviceStatusUpdated}
	if len(f.hub.channels) != len(want) {
		t.Fatalf("broadcasts = %v, want %v", f.hub.channels, want)
	}
	for i := range want {
		if f.hub.channels[i] != want[i] {
			t.Errorf("broadcast[%d] = %s, want %s", i, f.hub.channels[i], want[i])
		}
	}

	devices, _ := f.registry.ListByLocation(context.Background(), "hallway")
	for _, d := range devices {
		if d.Connectivity != device.Online || d.LastSeen == nil || !d.LastSeen.Equal(seen) {
			t.Errorf("device = %+v", d)
		}
		if d.Status != device.StatusOff {
			t.Error("connectivity must not change operational status")
		}
	}

	var rows int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM sensor_history`).Scan(&rows); err != nil || rows != 0 {
		t.Errorf("history rows = %d, want 0", rows)
	}
	if len(f.exec.calls) != 0 {
		t.Error("connectivity must not execute actions")
	}
}

func TestOnConnectivityReport_RejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	err := f.coord.OnConnectivityReport(context.Background(), "hallway", "sleeping")
	if !errors.Is(err, device.ErrInvalidConnectivity) {
		t.Errorf("error = %v, want ErrInvalidConnectivity", err)
	}
	if len(f.hub.channels) != 0 {
		t.Error("rejected status must not broadcast")
	}
}

type mockSubscriber struct {
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	failOn       string
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if topic == m.failOn {
		return mqtt.ErrNotConnected
	}
	if m.handlers == nil {
		m.handlers = map[string]mqtt.MessageHandler{}
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockSubscriber) Unsubscribe(topic string) error {
	m.unsubscribed = append(m.unsubscribed, topic)
	delete(m.handlers, topic)
	return nil
}

func TestStart_RoutesMessages(t *testing.T) {
	f := newFixture(t)
	sub := &mockSubscriber{}
	if err := f.coord.Start(sub, 1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sensor := sub.handlers["iot/+/sensor"]
	status := sub.handlers["iot/+/status"]
	if sensor == nil || status == nil {
		t.Fatalf("handlers = %v", sub.handlers)
	}

	if err := sensor("iot/hallway/sensor", []byte(`{"motion_detected":true,"motion_cleared":true}`)); err != nil {
		t.Fatalf("sensor handler error = %v", err)
	}
	if len(f.exec.calls) != 4 {
		t.Fatalf("calls = %+v, want 4", f.exec.calls)
	}
	if f.exec.calls[0].Action != action.TurnOn || f.exec.calls[3].Action != action.TurnOff {
		t.Errorf("detected must run before cleared: %+v", f.exec.calls)
	}

	if err := status("iot/hallway/status", []byte(`{"status":"offline"}`)); err != nil {
		t.Errorf("status handler error = %v", err)
	}

	f.coord.Stop()
	if len(sub.unsubscribed) != 2 {
		t.Errorf("unsubscribed = %v", sub.unsubscribed)
	}
}

func TestHandlers_RejectMalformedInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		handler mqtt.MessageHandler
		topic   string
		payload string
		wantErr error
	}{
		{"sensor bad json", f.coord.handleSensor, "iot/hallway/sensor", `{`, mqtt.ErrInvalidPayload},
		{"sensor wrong channel", f.coord.handleSensor, "iot/hallway/status", `{}`, mqtt.ErrInvalidTopic},
		{"sensor foreign topic", f.coord.handleSensor, "other/hallway/sensor", `{}`, mqtt.ErrInvalidTopic},
		{"status bad json", f.coord.handleStatus, "iot/hallway/status", `nope`, mqtt.ErrInvalidPayload},
		{"status unknown value", f.coord.handleStatus, "iot/hallway/status", `{"status":"idle"}`, device.ErrInvalidConnectivity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.handler(tt.topic, []byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(f.exec.calls) != 0 {
		t.Error("malformed input must not execute actions")
	}
}

func TestStart_SubscribeFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	sub := &mockSubscriber{failOn: "iot/+/sensor"}

	if err := f.coord.Start(sub, 1); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("Start() error = %v", err)
	}
	if len(sub.unsubscribed) != 1 || sub.unsubscribed[0] != "iot/+/status" {
		t.Errorf("unsubscribed = %v, want the status topic", sub.unsubscribed)
	}
}

type blockingExecutor struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingExecutor) Execute(_ context.Context, deviceID string, _ action.Action, _ history.Trigger) (*device.Device, error) {
	b.calls.Add(1)
	b.entered <- struct{}{}
	<-b.release
	return &device.Device{ID: deviceID}, nil
}

func TestStop_WaitsForRunningHandlers(t *testing.T) {
	f := newFixture(t)
	exec := &blockingExecutor{entered: make(chan struct{}, 4), release: make(chan struct{})}
	coord := New(f.registry, exec, nil)
	sub := &mockSubscriber{}
	if err := coord.Start(sub, 1); err != nil {
		t.Fatal(err)
	}
	sensor := sub.handlers["iot/+/sensor"]
	detected := []byte(`{"motion_detected":true}`)

	go sensor("iot/hallway/sensor", detected) //nolint:errcheck
	<-exec.entered

	stopped := make(chan struct{})
	go func() {
		coord.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop() returned while a handler was still executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(exec.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after the handler finished")
	}

	if err := sensor("iot/hallway/sensor", detected); err != nil {
		t.Errorf("late delivery error = %v", err)
	}
	if got := exec.calls.Load(); got != 2 {
		t.Errorf("executions = %d, want 2 (late delivery must be dropped)", got)
	}
}
