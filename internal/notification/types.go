package notification

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
)

// Notification types.
const (
	TypeMotionDetected    = "motion_detected"
	TypeScheduledReminder = "scheduled_reminder"
	TypeManualOverride    = "manual_override"
)

// EventNewNotification is broadcast once per committed notification.
const EventNewNotification = "new_notification"

// Notification is an immutable message about a device. DeviceID is nil
// when the device has since been deleted.
type Notification struct {
	ID       string    `json:"id"`
	DeviceID *string   `json:"deviceId"`
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	SentAt   time.Time `json:"sentAt"`
}

// InboxItem is a notification as one user sees it. ID identifies the
// per-user read row; it is the id used by mark-read and delete.
type InboxItem struct {
	ID             string     `json:"id"`
	NotificationID string     `json:"notificationId"`
	DeviceID       *string    `json:"deviceId"`
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	SentAt         time.Time  `json:"sentAt"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// Inbox is one page of a user's notifications.
type Inbox struct {
	Items []InboxItem `json:"items"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Paging defaults for inbox listing.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// UserLister snapshots the fan-out recipients. Satisfied by
// *auth.SQLiteUserRepository.
type UserLister interface {
	ListIDs(ctx context.Context, q database.Querier) ([]string, error)
}

// Broadcaster pushes an event to real-time clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Recorder counts created notifications. Satisfied by *metrics.Metrics.
type Recorder interface {
	NotificationCreated(kind string)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
