package action

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

var (
	// ErrInvalidAction is returned for an action other than turn_on/turn_off.
	ErrInvalidAction = fmt.Errorf("%w: action must be turn_on or turn_off", apperr.ValidationError)

	// ErrInvalidTrigger is returned for an unknown trigger.
	ErrInvalidTrigger = fmt.Errorf("%w: trigger must be manual, scheduled or motion_detected", apperr.ValidationError)

	// ErrAutomationDisarmed means an automatic trigger found its automation
	// flag off inside the transaction. Nothing was written.
	ErrAutomationDisarmed = errors.New("action: automation disarmed for device")
)

// ParseAction validates an action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case TurnOn, TurnOff:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: got %q", ErrInvalidAction, s)
}
