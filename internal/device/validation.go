package device

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	minUniqueIDLength = 3
	maxUniqueIDLength = 50
)

// ValidateUniqueID checks an onboarding identifier after trimming spaces.
func ValidateUniqueID(id string) (string, error) {
	id = strings.TrimSpace(id)
	n := utf8.RuneCountInString(id)
	if n < minUniqueIDLength || n > maxUniqueIDLength {
		return "", fmt.Errorf("%w: got %d", ErrInvalidUniqueID, n)
	}
	// The id is a broker topic level.
	if strings.ContainsAny(id, "/+#") {
		return "", fmt.Errorf("%w: must not contain / + or #", ErrInvalidUniqueID)
	}
	return id, nil
}

// ParseConnectivity maps a broker status string to Connectivity.
func ParseConnectivity(s string) (Connectivity, error) {
	switch Connectivity(strings.ToLower(strings.TrimSpace(s))) {
	case Online:
		return Online, nil
	case Offline:
		return Offline, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidConnectivity, s)
	}
}

// StatusFor maps an on/off flag to Status.
func StatusFor(on bool) Status {
	if on {
		return StatusOn
	}
	return StatusOff
}
