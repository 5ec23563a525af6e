package notification

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
)

// Service creates notifications for every user and serves each user's inbox.
type Service struct {
	db       *sql.DB
	repo     Repository
	users    UserLister
	hub      Broadcaster
	recorder Recorder
	logger   Logger
}

// NewService creates a notification service. hub may be nil.
func NewService(db *sql.DB, repo Repository, users UserLister, hub Broadcaster) *Service {
	return &Service{
		db:     db,
		repo:   repo,
		users:  users,
		hub:    hub,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRecorder sets the counter for created notifications.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Notify creates a notification with one unread row for every user that
// exists right now, in one transaction. With no users nothing is written
// and (nil, nil) is returned. new_notification is broadcast after commit.
func (s *Service) Notify(ctx context.Context, deviceID, kind, title, message string) (*Notification, error) {
	if strings.TrimSpace(kind) == "" || strings.TrimSpace(title) == "" || strings.TrimSpace(message) == "" {
		return nil, ErrInvalidNotification
	}

	var n *Notification
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		userIDs, err := s.users.ListIDs(ctx, tx)
		if err != nil {
			return err
		}
		if len(userIDs) == 0 {
			return nil
		}

		n = &Notification{Type: kind, Title: title, Message: message}
		if deviceID != "" {
			n.DeviceID = &deviceID
		}
		if err := s.repo.Insert(ctx, tx, n); err != nil {
			return err
		}
		return s.repo.InsertReads(ctx, tx, n.ID, userIDs)
	})
	if err != nil {
		return nil, err
	}
	if n == nil {
		s.logger.Debug("notification skipped: no users", "type", kind, "device_id", deviceID)
		return nil, nil
	}

	if s.recorder != nil {
		s.recorder.NotificationCreated(kind)
	}
	if s.hub != nil {
		s.hub.Broadcast(EventNewNotification, n)
	}
	return n, nil
}

// ListForUser returns one page of a user's inbox, newest first, with the
// total item count.
func (s *Service) ListForUser(ctx context.Context, userID string, page, limit int) (*Inbox, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	items, err := s.repo.ListForUser(ctx, s.db, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountForUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return &Inbox{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// UnreadCount returns how many unread items a user has.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, s.db, userID)
}

// MarkAllRead marks every unread item of a user and returns the count.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, s.db, userID, time.Now())
}

// MarkRead marks one of a user's items read.
func (s *Service) MarkRead(ctx context.Context, readID, userID string) error {
	return s.repo.MarkRead(ctx, s.db, readID, userID, time.Now())
}

// DeleteForUser removes one item from a user's inbox.
func (s *Service) DeleteForUser(ctx context.Context, readID, userID string) error {
	return s.repo.DeleteRead(ctx, s.db, readID, userID)
}
