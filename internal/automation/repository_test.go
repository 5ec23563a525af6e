package automation

import (
	"context"
	"errors"
	"testing"
)

func TestRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()

	created := insertSetting(t, db, "dev-1", true, false)

	got, err := repo.GetByDeviceID(ctx, db, "dev-1")
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	if got.ID != created.ID || !got.AutoModeEnabled || got.ScheduleEnabled {
		t.Errorf("GetByDeviceID() = %+v", got)
	}
	if got.Schedules == nil || len(got.Schedules) != 0 {
		t.Errorf("Schedules = %v, want empty slice", got.Schedules)
	}

	if _, err := repo.GetByDeviceID(ctx, db, "missing"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("GetByDeviceID(missing) error = %v", err)
	}
}

func TestRepository_OneSettingPerDevice(t *testing.T) {
	db := testDB(t)
	insertSetting(t, db, "dev-1", true, false)

	err := NewSQLiteRepository().Create(context.Background(), db, &Setting{DeviceID: "dev-1"})
	if err == nil {
		t.Error("second Create() for the same device should fail")
	}
}

func TestRepository_SchedulesOrderedMondayFirst(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()
	s := insertSetting(t, db, "dev-1", false, true)

	for _, d := range []Weekday{Sun, Wed, Mon, Sat} {
		if _, err := repo.UpsertSchedule(ctx, db, s.ID, d, "07:00", "08:00"); err != nil {
			t.Fatalf("UpsertSchedule(%s) error = %v", d, err)
		}
	}

	got, err := repo.GetByDeviceID(ctx, db, "dev-1")
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	want := []Weekday{Mon, Wed, Sat, Sun}
	if len(got.Schedules) != len(want) {
		t.Fatalf("schedules = %d, want %d", len(got.Schedules), len(want))
	}
	for i, d := range want {
		if got.Schedules[i].Day != d {
			t.Errorf("Schedules[%d].Day = %s, want %s", i, got.Schedules[i].Day, d)
		}
	}
}

func TestRepository_UpsertReplacesSameDay(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()
	s := insertSetting(t, db, "dev-1", false, true)

	first, err := repo.UpsertSchedule(ctx, db, s.ID, Mon, "18:00", "23:00")
	if err != nil {
		t.Fatalf("UpsertSchedule() error = %v", err)
	}
	second, err := repo.UpsertSchedule(ctx, db, s.ID, Mon, "19:30", "22:15")
	if err != nil {
		t.Fatalf("UpsertSchedule() error = %v", err)
	}

	if second.ID != first.ID {
		t.Error("upsert should keep the row identity for (setting, day)")
	}
	if second.OnTime != "19:30" || second.OffTime != "22:15" {
		t.Errorf("schedule = %+v", second)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM schedules").Scan(&n); err != nil || n != 1 {
		t.Errorf("rows = %d, %v; want 1", n, err)
	}
}

func TestRepository_DeleteScheduleOnlyThatDay(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()
	s := insertSetting(t, db, "dev-1", false, true)
	other := insertSetting(t, db, "dev-2", false, true)

	for _, d := range []Weekday{Mon, Tue} {
		if _, err := repo.UpsertSchedule(ctx, db, s.ID, d, "07:00", "08:00"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.UpsertSchedule(ctx, db, other.ID, Mon, "07:00", "08:00"); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteSchedule(ctx, db, s.ID, Mon); err != nil {
		t.Fatalf("DeleteSchedule() error = %v", err)
	}

	got, _ := repo.GetByDeviceID(ctx, db, "dev-1")
	if len(got.Schedules) != 1 || got.Schedules[0].Day != Tue {
		t.Errorf("dev-1 schedules = %+v, want only Tue", got.Schedules)
	}
	otherGot, _ := repo.GetByDeviceID(ctx, db, "dev-2")
	if len(otherGot.Schedules) != 1 {
		t.Errorf("dev-2 schedules = %+v, want untouched", otherGot.Schedules)
	}

	if err := repo.DeleteSchedule(ctx, db, s.ID, Mon); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("second DeleteSchedule() error = %v, want ErrScheduleNotFound", err)
	}
}

func TestRepository_ListDue(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()

	enabled := insertSetting(t, db, "dev-on", false, true)
	disabled := insertSetting(t, db, "dev-off", true, false)
	for _, s := range []*Setting{enabled, disabled} {
		if _, err := repo.UpsertSchedule(ctx, db, s.ID, Mon, "18:00", "23:00"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.UpsertSchedule(ctx, db, enabled.ID, Tue, "18:00", "23:00"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		day   Weekday
		clock string
		want  int
	}{
		{Mon, "18:00", 1},
		{Mon, "23:00", 1},
		{Mon, "18:01", 0},
		{Tue, "18:00", 1},
		{Wed, "18:00", 0},
	}
	for _, tt := range tests {
		due, err := repo.ListDue(ctx, db, tt.day, tt.clock)
		if err != nil {
			t.Fatalf("ListDue() error = %v", err)
		}
		if len(due) != tt.want {
			t.Errorf("ListDue(%s, %s) = %d rows, want %d", tt.day, tt.clock, len(due), tt.want)
		}
		for _, d := range due {
			if d.DeviceID != "dev-on" {
				t.Errorf("ListDue() returned disabled device %s", d.DeviceID)
			}
		}
	}
}

func TestRepository_GetByDeviceIDs(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()

	a := insertSetting(t, db, "a", true, false)
	insertSetting(t, db, "b", false, false)
	if _, err := repo.UpsertSchedule(ctx, db, a.ID, Fri, "06:00", "07:00"); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetByDeviceIDs(ctx, db, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("GetByDeviceIDs() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if len(got["a"].Schedules) != 1 || len(got["b"].Schedules) != 0 {
		t.Errorf("schedules a=%v b=%v", got["a"].Schedules, got["b"].Schedules)
	}

	empty, err := repo.GetByDeviceIDs(ctx, db, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("GetByDeviceIDs(nil) = %v, %v", empty, err)
	}
}

func TestRepository_UpdateFlags(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()

	s := insertSetting(t, db, "dev-1", true, true)
	s.AutoModeEnabled, s.ScheduleEnabled = false, false
	if err := repo.UpdateFlags(ctx, db, s); err != nil {
		t.Fatalf("UpdateFlags() error = %v", err)
	}

	got, _ := repo.GetByDeviceID(ctx, db, "dev-1")
	if got.AutoModeEnabled || got.ScheduleEnabled {
		t.Errorf("flags = %v/%v, want false/false", got.AutoModeEnabled, got.ScheduleEnabled)
	}

	if err := repo.UpdateFlags(ctx, db, &Setting{ID: "nope"}); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("UpdateFlags(missing) error = %v", err)
	}
}
