package automation

import (
	"fmt"
	"regexp"
	"time"
)

// clockPattern matches 24-hour "HH:mm" with leading zeros.
var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ParseWeekday validates a day name. Matching is exact: "Mon", not "mon".
func ParseWeekday(s string) (Weekday, error) {
	for _, d := range Weekdays {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: got %q", ErrInvalidDay, s)
}

// ValidateClock checks a "HH:mm" time.
func ValidateClock(s string) error {
	if !clockPattern.MatchString(s) {
		return fmt.Errorf("%w: got %q", ErrInvalidTime, s)
	}
	return nil
}

// ClockOf formats t as "HH:mm" in t's location.
func ClockOf(t time.Time) string {
	return t.Format("15:04")
}

// validateSchedule checks every field of an upsert request.
func validateSchedule(day, onTime, offTime string) (Weekday, error) {
	d, err := ParseWeekday(day)
	if err != nil {
		return "", err
	}
	if err := ValidateClock(onTime); err != nil {
		return "", fmt.Errorf("onTime: %w", err)
	}
	if err := ValidateClock(offTime); err != nil {
		return "", fmt.Errorf("offTime: %w", err)
	}
	return d, nil
}
