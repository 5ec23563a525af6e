package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementDeviceAction is the measurement every committed transition
// is recorded under.
const measurementDeviceAction = "device_action"

// DeviceAction is one committed device transition.
type DeviceAction struct {
	DeviceID    string
	LocationKey string
	Trigger     string // manual, scheduled, motion_detected
	Action      string // turn_on, turn_off
	LightOn     bool
	FanOn       bool
	DecidedAt   time.Time
}

// WriteDeviceAction queues a device_action point. Tags carry the
// low-cardinality dimensions (device, location, trigger, action); the
// resulting capability states are fields.
//
//	client.WriteDeviceAction(influxdb.DeviceAction{
//	    DeviceID: dev.ID, LocationKey: dev.LocationKey,
//	    Trigger: "motion_detected", Action: "turn_on", LightOn: true,
//	})
func (c *Client) WriteDeviceAction(a DeviceAction) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(deviceActionPoint(a))
}

func deviceActionPoint(a DeviceAction) *write.Point {
	ts := a.DecidedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		measurementDeviceAction,
		map[string]string{
			"device_id":    a.DeviceID,
			"location_key": a.LocationKey,
			"trigger":      a.Trigger,
			"action":       a.Action,
		},
		map[string]interface{}{
			"light_on": boolToInt(a.LightOn),
			"fan_on":   boolToInt(a.FanOn),
		},
		ts,
	)
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
