package notification

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
)

// Repository persists notifications and their per-user read rows.
type Repository interface {
	Insert(ctx context.Context, q database.Querier, n *Notification) error
	InsertReads(ctx context.Context, q database.Querier, notificationID string, userIDs []string) error
	ListForUser(ctx context.Context, q database.Querier, userID string, limit, offset int) ([]InboxItem, error)
	CountForUser(ctx context.Context, q database.Querier, userID string) (int, error)
	UnreadCount(ctx context.Context, q database.Querier, userID string) (int, error)
	MarkAllRead(ctx context.Context, q database.Querier, userID string, at time.Time) (int64, error)
	MarkRead(ctx context.Context, q database.Querier, readID, userID string, at time.Time) error
	DeleteRead(ctx context.Context, q database.Querier, readID, userID string) error
	Prune(ctx context.Context, q database.Querier, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct{}

// NewSQLiteRepository creates a SQLite-backed notification repository.
func NewSQLiteRepository() *SQLiteRepository {
	return &SQLiteRepository{}
}

// Insert writes n, assigning ID and SentAt when unset.
func (r *SQLiteRepository) Insert(ctx context.Context, q database.Querier, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO notifications (id, device_id, type, title, message, sent_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.DeviceID, n.Type, n.Title, n.Message, database.FormatTime(n.SentAt))
	if err != nil {
		return apperr.Storage("inserting notification", err)
	}
	return nil
}

// InsertReads creates one unread row per user.
func (r *SQLiteRepository) InsertReads(ctx context.Context, q database.Querier, notificationID string, userIDs []string) error {
	now := database.FormatTime(time.Now())
	for _, userID := range userIDs {
		_, err := q.ExecContext(ctx,
			`INSERT INTO notification_reads (id, notification_id, user_id, is_read, created_at) VALUES (?, ?, ?, 0, ?)`,
			uuid.NewString(), notificationID, userID, now)
		if err != nil {
			return apperr.Storage("inserting notification read", err)
		}
	}
	return nil
}

// ListForUser returns a user's items newest first.
func (r *SQLiteRepository) ListForUser(ctx context.Context, q database.Querier, userID string, limit, offset int) ([]InboxItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT nr.id, n.id, n.device_id, n.type, n.title, n.message, n.sent_at, nr.is_read, nr.read_at
		 FROM notification_reads nr
		 JOIN notifications n ON n.id = nr.notification_id
		 WHERE nr.user_id = ?
		 ORDER BY n.sent_at DESC, n.rowid DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, apperr.Storage("querying inbox", err)
	}
	defer rows.Close()

	items := []InboxItem{}
	for rows.Next() {
		item, err := scanInboxItem(rows)
		if err != nil {
			return nil, apperr.Storage("scanning inbox item", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterating inbox", err)
	}
	return items, nil
}

// CountForUser returns how many items a user has.
func (r *SQLiteRepository) CountForUser(ctx context.Context, q database.Querier, userID string) (int, error) {
	return r.count(ctx, q, `SELECT COUNT(*) FROM notification_reads WHERE user_id = ?`, userID)
}

// UnreadCount returns how many of a user's items are unread.
func (r *SQLiteRepository) UnreadCount(ctx context.Context, q database.Querier, userID string) (int, error) {
	return r.count(ctx, q, `SELECT COUNT(*) FROM notification_reads WHERE user_id = ? AND is_read = 0`, userID)
}

// MarkAllRead marks every unread item of a user and returns how many changed.
func (r *SQLiteRepository) MarkAllRead(ctx context.Context, q database.Querier, userID string, at time.Time) (int64, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE notification_reads SET is_read = 1, read_at = ? WHERE user_id = ? AND is_read = 0`,
		database.FormatTime(at), userID)
	if err != nil {
		return 0, apperr.Storage("marking notifications read", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // Always succeeds on SQLite
	return n, nil
}

// MarkRead marks one item. Marking an already-read item keeps its readAt.
func (r *SQLiteRepository) MarkRead(ctx context.Context, q database.Querier, readID, userID string, at time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE notification_reads SET is_read = 1, read_at = COALESCE(read_at, ?) WHERE id = ? AND user_id = ?`,
		database.FormatTime(at), readID, userID)
	if err != nil {
		return apperr.Storage("marking notification read", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // Always succeeds on SQLite
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteRead removes one item from a user's inbox. Other users keep theirs.
func (r *SQLiteRepository) DeleteRead(ctx context.Context, q database.Querier, readID, userID string) error {
	result, err := q.ExecContext(ctx,
		`DELETE FROM notification_reads WHERE id = ? AND user_id = ?`, readID, userID)
	if err != nil {
		return apperr.Storage("deleting notification read", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // Always succeeds on SQLite
		return ErrNotificationNotFound
	}
	return nil
}

// Prune deletes notifications sent before cutoff. Read rows go by cascade.
func (r *SQLiteRepository) Prune(ctx context.Context, q database.Querier, cutoff time.Time) (int64, error) {
	result, err := q.ExecContext(ctx,
		`DELETE FROM notifications WHERE sent_at < ?`, database.FormatTime(cutoff))
	if err != nil {
		return 0, apperr.Storage("pruning notifications", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // Always succeeds on SQLite
	return n, nil
}

func (r *SQLiteRepository) count(ctx context.Context, q database.Querier, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperr.Storage("counting notifications", err)
	}
	return n, nil
}

func scanInboxItem(rows *sql.Rows) (*InboxItem, error) {
	var item InboxItem
	var deviceID, readAt sql.NullString
	var sentAt string
	var isRead int
	if err := rows.Scan(&item.ID, &item.NotificationID, &deviceID, &item.Type, &item.Title,
		&item.Message, &sentAt, &isRead, &readAt); err != nil {
		return nil, err
	}
	item.IsRead = isRead != 0
	if deviceID.Valid {
		item.DeviceID = &deviceID.String
	}

	var err error
	if item.SentAt, err = database.ParseTime(sentAt); err != nil {
		return nil, err
	}
	if readAt.Valid {
		t, err := database.ParseTime(readAt.String)
		if err != nil {
			return nil, err
		}
		item.ReadAt = &t
	}
	return &item, nil
}
