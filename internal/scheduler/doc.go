// Package scheduler turns devices on and off at their scheduled times.
//
// Times are "HH:mm" in the site time zone and match exactly: a schedule
// fires only during the minute it names. A minute missed while the process
// was down is not replayed.
package scheduler
