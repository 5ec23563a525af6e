package retention

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
)

const day = 24 * time.Hour

// Pruner deletes rows older than a cutoff. Satisfied by the history and
// notification repositories.
type Pruner interface {
	Prune(ctx context.Context, q database.Querier, cutoff time.Time) (int64, error)
}

// Recorder counts deleted rows. Satisfied by *metrics.Metrics.
type Recorder interface {
	RetentionDeleted(table string, n int64)
}

// PointWriter records a sweep summary. Satisfied by *influxdb.Client.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

// Logger is the logging interface used by the sweeper.
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

// Result is what one sweep removed.
type Result struct {
	Cutoff        time.Time
	History       int64
	Notifications int64
}

// Sweeper deletes sensor history and notifications older than the
// configured number of days.
type Sweeper struct {
	db            *sql.DB
	history       Pruner
	notifications Pruner
	days          int
	spec          string
	recorder      Recorder
	points        PointWriter
	logger        Logger
	now           func() time.Time

	sweepMu sync.Mutex
	cron    *cron.Cron
}

// New creates a sweeper. days <= 0 disables it; spec is a robfig/cron
// schedule such as "@every 24h".
func New(db *sql.DB, history, notifications Pruner, days int, spec string) *Sweeper {
	return &Sweeper{
		db:            db,
		history:       history,
		notifications: notifications,
		days:          days,
		spec:          spec,
		logger:        noopLogger{},
		now:           time.Now,
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRecorder sets the deleted-rows counter.
func (s *Sweeper) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetPointWriter sets where sweep summaries are written.
func (s *Sweeper) SetPointWriter(w PointWriter) {
	s.points = w
}

// Enabled reports whether sweeping is configured.
func (s *Sweeper) Enabled() bool {
	return s.days > 0
}

// Start sweeps once and then on the configured schedule.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.Enabled() {
		s.logger.Info("retention disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("parsing retention schedule %q: %w", s.spec, err)
	}

	s.run(ctx)

	s.cron = c
	c.Start()
	s.logger.Info("retention sweeper started", "days", s.days, "schedule", s.spec)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("retention sweep failed", "error", err)
	}
}

// Sweep deletes history created and notifications sent strictly before
// now minus the retention period, in one transaction.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	if !s.Enabled() {
		return Result{}, nil
	}

	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	res := Result{Cutoff: s.now().UTC().Add(-time.Duration(s.days) * day)}
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if res.History, err = s.history.Prune(ctx, tx, res.Cutoff); err != nil {
			return err
		}
		res.Notifications, err = s.notifications.Prune(ctx, tx, res.Cutoff)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if s.recorder != nil {
		s.recorder.RetentionDeleted("sensor_history", res.History)
		s.recorder.RetentionDeleted("notifications", res.Notifications)
	}
	if s.points != nil {
		s.points.WritePoint("retention_sweep",
			map[string]string{"days": fmt.Sprint(s.days)},
			map[string]interface{}{
				"history_deleted":      res.History,
				"notification_deleted": res.Notifications,
			})
	}

	s.logger.Info("retention sweep complete",
		"cutoff", res.Cutoff,
		"history_deleted", res.History,
		"notifications_deleted", res.Notifications,
	)
	return res, nil
}
