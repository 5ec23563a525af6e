package device

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

func TestRegistry_Onboard_CreatesPair(t *testing.T) {
	reg, _, hub := newTestRegistry(t)
	ctx := context.Background()

	devices, isNew, err := reg.Onboard(ctx, "  192.168.1.40 ")
	if err != nil {
		t.Fatalf("Onboard() error = %v", err)
	}
	if !isNew {
		t.Error("isNew = false, want true")
	}
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}

	lamp, fan := devices[0], devices[1]
	if lamp.Name != "IoT Lamp 192.168.1.40" || !lamp.Has(CapLamp) || lamp.Has(CapFan) {
		t.Errorf("lamp = %+v", lamp)
	}
	if fan.Name != "IoT Fan 192.168.1.40" || !fan.Has(CapFan) || fan.Has(CapLamp) {
		t.Errorf("fan = %+v", fan)
	}
	for _, d := range devices {
		if d.LocationKey != "192.168.1.40" {
			t.Errorf("LocationKey = %q", d.LocationKey)
		}
		if d.Setting == nil || !d.Setting.AutoModeEnabled || d.Setting.ScheduleEnabled {
			t.Errorf("setting for %s = %+v, want auto on, schedule off", d.Name, d.Setting)
		}
	}

	if len(hub.events) != 1 || hub.events[0].Channel != EventDeviceAdded {
		t.Errorf("broadcasts = %+v, want one device_added", hub.events)
	}
}

func TestRegistry_Onboard_Idempotent(t *testing.T) {
	reg, _, hub := newTestRegistry(t)
	ctx := context.Background()

	first, _, err := reg.Onboard(ctx, "kitchen-01")
	if err != nil {
		t.Fatal(err)
	}
	second, isNew, err := reg.Onboard(ctx, "kitchen-01")
	if err != nil {
		t.Fatalf("second Onboard() error = %v", err)
	}
	if isNew {
		t.Error("second Onboard() isNew = true")
	}
	if len(second) != 2 || second[0].ID != first[0].ID || second[1].ID != first[1].ID {
		t.Errorf("second Onboard() returned different devices")
	}
	if second[0].Setting == nil {
		t.Error("existing devices should carry their settings")
	}
	if len(hub.events) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(hub.events))
	}

	all, _ := reg.ListDevices(ctx)
	if len(all) != 2 {
		t.Errorf("ListDevices() = %d, want 2", len(all))
	}
}

func TestRegistry_Onboard_Validation(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	for _, id := range []string{"", "ab", "   ab  ", strings.Repeat("x", 51)} {
		_, _, err := reg.Onboard(context.Background(), id)
		if !errors.Is(err, ErrInvalidUniqueID) || !errors.Is(err, apperr.ValidationError) {
			t.Errorf("Onboard(%q) error = %v, want validation error", id, err)
		}
	}

	if _, _, err := reg.Onboard(context.Background(), strings.Repeat("x", 50)); err != nil {
		t.Errorf("Onboard(50 chars) error = %v", err)
	}
}

func TestRegistry_GetDevice(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()
	devices, _, _ := reg.Onboard(ctx, "hall")

	got, err := reg.GetDevice(ctx, devices[0].ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.Setting == nil || got.Setting.DeviceID != got.ID {
		t.Errorf("Setting = %+v", got.Setting)
	}

	if _, err := reg.GetDevice(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice(missing) error = %v", err)
	}
}

func TestRegistry_GetDeviceInfo(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()
	devices, _, _ := reg.Onboard(ctx, "hall")

	info, err := reg.GetDeviceInfo(ctx, devices[1].ID)
	if err != nil {
		t.Fatalf("GetDeviceInfo() error = %v", err)
	}
	if info.LocationKey != "hall" || len(info.Capabilities) != 1 || info.Capabilities[0] != "fan" {
		t.Errorf("GetDeviceInfo() = %+v", info)
	}
}

func TestRegistry_UpdateConnectivity(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()
	if _, _, err := reg.Onboard(ctx, "garage"); err != nil {
		t.Fatal(err)
	}

	seen := time.Now().UTC().Truncate(time.Second)
	devices, err := reg.UpdateConnectivity(ctx, "garage", Online, seen)
	if err != nil {
		t.Fatalf("UpdateConnectivity() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}
	for _, d := range devices {
		if d.Connectivity != Online || d.Setting == nil {
			t.Errorf("device = %+v", d)
		}
	}

	unknown, err := reg.UpdateConnectivity(ctx, "nowhere", Online, seen)
	if err != nil || len(unknown) != 0 {
		t.Errorf("UpdateConnectivity(nowhere) = %v, %v", unknown, err)
	}
}
