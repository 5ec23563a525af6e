// Package automation owns per-device automation settings: the auto-mode
// and schedule flags and the weekly on/off schedule.
//
// A setting is created with its device at onboarding and is never deleted
// on its own. The derived Mode tells devices who is in charge:
//
//	auto       motion sensors switch the device
//	scheduled  the weekly schedule switches the device
//	manual     only explicit commands do
//
// Saving a schedule switches the device to scheduled mode. A manual
// command (see package action) switches it to manual.
//
// Schedule times are "HH:mm" in the site time zone and are matched
// exactly against the current minute by the scheduler.
//
//	svc := automation.NewService(db, automation.NewSQLiteRepository(), devices, mqttClient, hub, log)
//	sched, err := svc.UpsertSchedule(ctx, deviceID, "Mon", "18:00", "23:00")
package automation
