// Package device provides the Device Registry.
//
// A physical install point is identified by a location key. Onboarding a key
// creates two devices under it, a lamp and a fan, each with an automation
// setting in auto mode. Broker topics address the location, and each
// message names the capability it is meant for.
//
// # Key Types
//
//   - Device: one actuator with its capabilities and current status
//   - Registry: onboarding and lookups that attach automation settings
//   - Repository: SQLite persistence; every method accepts a Querier so
//     callers can compose it inside a transaction
//
// # Usage
//
//	registry := device.NewRegistry(db, device.NewSQLiteRepository(), automation.NewSQLiteRepository(), hub)
//	devices, isNew, err := registry.Onboard(ctx, "192.168.1.40")
//
// Connectivity (online/offline, last seen) comes from broker status reports.
// Operational status (on/off) is written only by the action engine.
package device
