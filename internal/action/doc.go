// Package action is the device action engine.
//
// Execute is the single path by which a device changes operational state.
// It runs in two phases:
//
//  1. Apply: one SQL transaction loads the device and its setting, appends a
//     history row, disarms automation when the trigger is manual, updates
//     the status and re-reads the device.
//  2. After commit: publish a command per capability to
//     iot/{locationKey}/action, broadcast the new state, write telemetry,
//     count the action and create a notification in the background.
//
// Phase 2 never fails the call. A device that cannot be reached still has
// its intended state recorded.
package action
