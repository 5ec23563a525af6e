package device

import (
	"fmt"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = fmt.Errorf("%w: device", apperr.NotFound)

	// ErrInvalidUniqueID is returned when an onboarding id is out of range
	// or contains a topic separator or wildcard.
	ErrInvalidUniqueID = fmt.Errorf("%w: uniqueId must be between %d and %d characters",
		apperr.ValidationError, minUniqueIDLength, maxUniqueIDLength)

	// ErrInvalidConnectivity is returned for a status other than online/offline.
	ErrInvalidConnectivity = fmt.Errorf("%w: connectivity must be online or offline", apperr.ValidationError)
)
