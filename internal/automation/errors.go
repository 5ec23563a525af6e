package automation

import (
	"fmt"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

// Domain errors for the automation package. Each wraps an apperr root.
//
//	if errors.Is(err, automation.ErrSettingNotFound) {
//	    // 404
//	}
var (
	// ErrSettingNotFound is returned when a device has no automation setting.
	ErrSettingNotFound = fmt.Errorf("%w: automation setting", apperr.NotFound)

	// ErrScheduleNotFound is returned when deleting a day with no schedule.
	ErrScheduleNotFound = fmt.Errorf("%w: schedule", apperr.NotFound)

	// ErrInvalidDay is returned for a day outside Mon..Sun.
	ErrInvalidDay = fmt.Errorf("%w: day must be one of Mon Tue Wed Thu Fri Sat Sun", apperr.ValidationError)

	// ErrInvalidTime is returned for a time not in HH:mm form.
	ErrInvalidTime = fmt.Errorf("%w: time must be HH:mm", apperr.ValidationError)

	// ErrEmptyPatch is returned when a settings update changes nothing.
	ErrEmptyPatch = fmt.Errorf("%w: no settings fields provided", apperr.ValidationError)
)
