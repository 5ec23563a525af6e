package automation

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

func boolPtr(b bool) *bool { return &b }

func newTestService(t *testing.T) (*Service, *sql.DB, *mockPublisher, *mockHub) {
	t.Helper()
	db := testDB(t)
	pub := &mockPublisher{}
	hub := &mockHub{}
	registry := &mockRegistry{devices: map[string]DeviceInfo{
		"lamp-fan": {ID: "lamp-fan", LocationKey: "loc-lamp-fan", Capabilities: []string{"lamp", "fan"}},
		"lamp":     {ID: "lamp", LocationKey: "loc-lamp", Capabilities: []string{"lamp"}},
	}}
	svc := NewService(db, NewSQLiteRepository(), registry, pub, hub, nil)
	return svc, db, pub, hub
}

func TestService_UpdateSettings_PublishesModePerCapability(t *testing.T) {
	svc, db, pub, hub := newTestService(t)
	insertSetting(t, db, "lamp-fan", true, false)

	got, err := svc.UpdateSettings(context.Background(), "lamp-fan", Patch{AutoModeEnabled: boolPtr(false)})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if got.AutoModeEnabled || got.ScheduleEnabled {
		t.Errorf("setting = %+v, want both flags off", got)
	}

	if len(pub.messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.messages))
	}
	for i, device := range []string{"lamp", "fan"} {
		msg := pub.messages[i]
		if msg.Topic != "iot/loc-lamp-fan/settings/update" {
			t.Errorf("topic = %q", msg.Topic)
		}
		if msg.Payload["device"] != device || msg.Payload["mode"] != "manual" {
			t.Errorf("payload = %v, want device=%s mode=manual", msg.Payload, device)
		}
	}

	if len(hub.events) != 1 || hub.events[0].Channel != EventSettingsUpdated {
		t.Errorf("broadcasts = %+v, want one settings_updated", hub.events)
	}
}

func TestService_UpdateSettings_PartialPatch(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	insertSetting(t, db, "lamp", true, false)

	got, err := svc.UpdateSettings(context.Background(), "lamp", Patch{ScheduleEnabled: boolPtr(true)})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if !got.AutoModeEnabled || !got.ScheduleEnabled {
		t.Errorf("setting = %+v, want auto kept and schedule enabled", got)
	}
	if got.Mode() != ModeAuto {
		t.Errorf("Mode() = %s, want auto", got.Mode())
	}
}

func TestService_UpdateSettings_Errors(t *testing.T) {
	svc, db, pub, _ := newTestService(t)
	insertSetting(t, db, "lamp", true, false)

	tests := []struct {
		name     string
		deviceID string
		patch    Patch
		wantErr  error
	}{
		{"empty patch", "lamp", Patch{}, ErrEmptyPatch},
		{"unknown device", "ghost", Patch{AutoModeEnabled: boolPtr(true)}, ErrSettingNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateSettings(context.Background(), tt.deviceID, tt.patch)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(pub.messages) != 0 {
		t.Errorf("failed updates published %d messages", len(pub.messages))
	}
}

func TestService_UpsertSchedule_ForcesScheduledMode(t *testing.T) {
	svc, db, pub, hub := newTestService(t)
	insertSetting(t, db, "lamp", true, false)

	sch, err := svc.UpsertSchedule(context.Background(), "lamp", "Mon", "18:00", "23:00")
	if err != nil {
		t.Fatalf("UpsertSchedule() error = %v", err)
	}
	if sch.Day != Mon || sch.OnTime != "18:00" || sch.OffTime != "23:00" {
		t.Errorf("schedule = %+v", sch)
	}

	setting, err := svc.GetSettings(context.Background(), "lamp")
	if err != nil {
		t.Fatal(err)
	}
	if setting.AutoModeEnabled || !setting.ScheduleEnabled {
		t.Errorf("flags = auto %v schedule %v, want false/true", setting.AutoModeEnabled, setting.ScheduleEnabled)
	}
	if len(setting.Schedules) != 1 {
		t.Errorf("schedules = %d, want 1", len(setting.Schedules))
	}

	if len(pub.messages) != 1 || pub.messages[0].Payload["mode"] != "scheduled" {
		t.Errorf("published = %+v, want one scheduled mode", pub.messages)
	}
	if len(hub.events) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(hub.events))
	}
}

func TestService_UpsertSchedule_Validation(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	insertSetting(t, db, "lamp", true, false)

	tests := []struct {
		name             string
		day, onTime, off string
	}{
		{"lowercase day", "mon", "18:00", "23:00"},
		{"full day name", "Monday", "18:00", "23:00"},
		{"hour out of range", "Mon", "24:00", "23:00"},
		{"missing leading zero", "Mon", "8:00", "23:00"},
		{"bad off time", "Mon", "18:00", "23:60"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpsertSchedule(context.Background(), "lamp", tt.day, tt.onTime, tt.off)
			if !errors.Is(err, apperr.ValidationError) {
				t.Errorf("error = %v, want validation error", err)
			}
		})
	}

	setting, _ := svc.GetSettings(context.Background(), "lamp")
	if !setting.AutoModeEnabled || setting.ScheduleEnabled {
		t.Error("rejected upserts must not change flags")
	}
}

func TestService_DeleteSchedule(t *testing.T) {
	svc, db, pub, hub := newTestService(t)
	insertSetting(t, db, "lamp", true, false)
	ctx := context.Background()

	if _, err := svc.UpsertSchedule(ctx, "lamp", "Tue", "06:00", "07:00"); err != nil {
		t.Fatal(err)
	}
	pub.messages = nil
	hub.events = nil

	if err := svc.DeleteSchedule(ctx, "lamp", "Tue"); err != nil {
		t.Fatalf("DeleteSchedule() error = %v", err)
	}
	if len(pub.messages) != 0 {
		t.Errorf("delete published %d mode messages, want 0", len(pub.messages))
	}
	if len(hub.events) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(hub.events))
	}

	if err := svc.DeleteSchedule(ctx, "lamp", "Tue"); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("second delete error = %v, want ErrScheduleNotFound", err)
	}
	if err := svc.DeleteSchedule(ctx, "lamp", "Funday"); !errors.Is(err, ErrInvalidDay) {
		t.Errorf("bad day error = %v, want ErrInvalidDay", err)
	}
}

func TestService_PublishFailureDoesNotFailUpdate(t *testing.T) {
	svc, db, pub, _ := newTestService(t)
	insertSetting(t, db, "lamp-fan", true, false)
	pub.err = errors.New("broker down")
	failures := &countingFailures{}
	svc.SetFailureRecorder(failures)

	if _, err := svc.UpdateSettings(context.Background(), "lamp-fan", Patch{AutoModeEnabled: boolPtr(false)}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if failures.n != 2 {
		t.Errorf("recorded failures = %d, want 2", failures.n)
	}
}

func TestService_NilCollaborators(t *testing.T) {
	db := testDB(t)
	insertSetting(t, db, "lamp", true, false)
	svc := NewService(db, NewSQLiteRepository(), &mockRegistry{}, nil, nil, nil)

	if _, err := svc.UpdateSettings(context.Background(), "lamp", Patch{AutoModeEnabled: boolPtr(false)}); err != nil {
		t.Errorf("UpdateSettings() with nil publisher and hub error = %v", err)
	}
}
