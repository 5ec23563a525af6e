// Package influxdb records device action telemetry in InfluxDB.
//
// Every committed device transition is written as a device_action point so
// dashboards can chart how often lamps and fans switch and what triggered
// them. The relational store stays the source of truth; losing points
// never affects device state.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteDeviceAction(influxdb.DeviceAction{DeviceID: id, Trigger: "manual", Action: "turn_off"})
//
// Writes are batched (batch_size, flush_interval) and non-blocking.
// A nil *Client is safe to use and drops every write.
package influxdb
