package history

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-iot/internal/apperr"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
)

// Repository persists the append-only sensor history.
type Repository interface {
	// Insert appends r, assigning ID and CreatedAt.
	Insert(ctx context.Context, q database.Querier, r *Record) error

	// List returns one filtered page, newest first unless the filter says
	// otherwise.
	List(ctx context.Context, q database.Querier, f Filter) (*Page, error)

	// Recent returns the n newest rows by DetectedAt.
	Recent(ctx context.Context, q database.Querier, n int) ([]Record, error)

	// Prune deletes rows created before cutoff.
	Prune(ctx context.Context, q database.Querier, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct{}

// NewSQLiteRepository creates a SQLite-backed history repository.
func NewSQLiteRepository() *SQLiteRepository {
	return &SQLiteRepository{}
}

const recordColumns = `h.id, h.device_id, COALESCE(d.name, ''), h.trigger_type,
	h.light_status, h.light_action, h.fan_status, h.fan_action, h.detected_at, h.created_at`

const recordFrom = ` FROM sensor_history h LEFT JOIN devices d ON d.id = h.device_id`

// Insert appends a history row.
func (r *SQLiteRepository) Insert(ctx context.Context, q database.Querier, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = rec.CreatedAt
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO sensor_history (id, device_id, trigger_type, light_status, light_action,
			fan_status, fan_action, detected_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DeviceID, string(rec.TriggerType),
		string(rec.LightStatus), string(rec.LightAction),
		string(rec.FanStatus), string(rec.FanAction),
		database.FormatTime(rec.DetectedAt), database.FormatTime(rec.CreatedAt),
	)
	if err != nil {
		return apperr.Storage("inserting sensor history", err)
	}
	return nil
}

// List returns a filtered page of history.
func (r *SQLiteRepository) List(ctx context.Context, q database.Querier, f Filter) (*Page, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}

	where, args := whereClause(f)

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*)`+recordFrom+where, args...).Scan(&total); err != nil {
		return nil, apperr.Storage("counting sensor history", err)
	}

	order := " ORDER BY h.detected_at DESC, h.rowid DESC"
	if f.SortOrder == SortAsc {
		order = " ORDER BY h.detected_at ASC, h.rowid ASC"
	}

	records, err := r.query(ctx, q,
		`SELECT `+recordColumns+recordFrom+where+order+` LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.offset())...)
	if err != nil {
		return nil, err
	}

	return &Page{
		Records:    records,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: totalPages(total, f.Limit),
	}, nil
}

// Recent returns the n newest rows.
func (r *SQLiteRepository) Recent(ctx context.Context, q database.Querier, n int) ([]Record, error) {
	return r.query(ctx, q,
		`SELECT `+recordColumns+recordFrom+` ORDER BY h.detected_at DESC, h.rowid DESC LIMIT ?`, n)
}

// Prune deletes rows whose CreatedAt is strictly before cutoff.
func (r *SQLiteRepository) Prune(ctx context.Context, q database.Querier, cutoff time.Time) (int64, error) {
	result, err := q.ExecContext(ctx,
		`DELETE FROM sensor_history WHERE created_at < ?`, database.FormatTime(cutoff))
	if err != nil {
		return 0, apperr.Storage("pruning sensor history", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // Always succeeds on SQLite
	return n, nil
}

func whereClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.DeviceID != "" {
		add("h.device_id = ?", f.DeviceID)
	}
	if f.TriggerType != "" {
		add("h.trigger_type = ?", string(f.TriggerType))
	}
	if f.LightStatus != "" {
		add("h.light_status = ?", string(f.LightStatus))
	}
	if f.LightAction != "" {
		add("h.light_action = ?", string(f.LightAction))
	}
	if f.FanStatus != "" {
		add("h.fan_status = ?", string(f.FanStatus))
	}
	if f.FanAction != "" {
		add("h.fan_action = ?", string(f.FanAction))
	}
	if f.DateFrom != nil {
		add("h.detected_at >= ?", database.FormatTime(*f.DateFrom))
	}
	if f.DateTo != nil {
		add("h.detected_at <= ?", database.FormatTime(*f.DateTo))
	}
	if f.Search != "" {
		add(`LOWER(d.name) LIKE ? ESCAPE '\'`, likePattern(f.Search))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *SQLiteRepository) query(ctx context.Context, q database.Querier, query string, args ...any) ([]Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage("querying sensor history", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperr.Storage("scanning sensor history", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterating sensor history", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var rec Record
	var trigger, lightStatus, lightAction, fanStatus, fanAction, detectedAt, createdAt string
	if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.DeviceName, &trigger,
		&lightStatus, &lightAction, &fanStatus, &fanAction, &detectedAt, &createdAt); err != nil {
		return nil, err
	}
	rec.TriggerType = Trigger(trigger)
	rec.LightStatus = Status(lightStatus)
	rec.LightAction = Action(lightAction)
	rec.FanStatus = Status(fanStatus)
	rec.FanAction = Action(fanAction)

	var err error
	if rec.DetectedAt, err = database.ParseTime(detectedAt); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
