package notification

import (
	"fmt"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
)

var (
	// ErrNotificationNotFound is returned when a read row does not exist
	// or belongs to another user.
	ErrNotificationNotFound = fmt.Errorf("%w: notification", apperr.NotFound)

	// ErrInvalidNotification is returned when type, title or message is empty.
	ErrInvalidNotification = fmt.Errorf("%w: notification type, title and message are required", apperr.ValidationError)
)
