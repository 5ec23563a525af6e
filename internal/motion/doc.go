// Package motion is the motion coordinator.
//
// It listens on iot/+/sensor and iot/+/status. Motion reports switch the
// devices at that location that are in auto mode; devices in scheduled or
// manual mode ignore motion. Status reports only update connectivity.
package motion
