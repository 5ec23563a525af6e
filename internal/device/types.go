package device

import (
	"slices"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/automation"
)

// Device is one physical actuator. A lamp and a fan installed together share
// a LocationKey and are addressed on the broker through it.
type Device struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	LocationKey  string       `json:"locationKey"`
	Capabilities []Capability `json:"capabilities"`
	Connectivity Connectivity `json:"connectivity"`
	Status       Status       `json:"status"`
	LastSeen     *time.Time   `json:"lastSeen,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`

	// Setting is attached by the Registry; repositories leave it nil.
	Setting *automation.Setting `json:"setting,omitempty"`
}

// Has reports whether the device has capability c.
func (d *Device) Has(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// Info returns the addressing view of d used by automation.
func (d *Device) Info() automation.DeviceInfo {
	caps := make([]string, len(d.Capabilities))
	for i, c := range d.Capabilities {
		caps[i] = string(c)
	}
	return automation.DeviceInfo{ID: d.ID, LocationKey: d.LocationKey, Capabilities: caps}
}

// Capability is what a device can switch.
type Capability string

const (
	CapLamp Capability = "lamp"
	CapFan  Capability = "fan"
)

// Connectivity is the last reported reachability of a device.
type Connectivity string

const (
	Online  Connectivity = "online"
	Offline Connectivity = "offline"
)

// Status is the operational on/off state set by the action engine.
type Status string

const (
	StatusOn  Status = "on"
	StatusOff Status = "off"
)
