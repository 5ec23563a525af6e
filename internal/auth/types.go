package auth

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

// usernamePattern: alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks a username against usernamePattern.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is a user's authorisation tier.
type Role string

const (
	// RoleUser receives notifications and can operate devices.
	RoleUser Role = "user"

	// RoleAdmin can additionally onboard devices.
	RoleAdmin Role = "admin"
)

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a notification fan-out target. Credentials are managed outside
// this service.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sentinel errors for auth operations.
var (
	ErrUserNotFound   = fmt.Errorf("%w: user not found", apperr.NotFound)
	ErrUsernameExists = fmt.Errorf("%w: username or email already exists", apperr.ValidationError)
	ErrInvalidUser    = fmt.Errorf("%w: invalid user", apperr.ValidationError)
	ErrTokenInvalid   = errors.New("invalid token")
)
