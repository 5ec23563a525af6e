package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/action"
	"github.com/nerrad567/gray-logic-iot/internal/automation"
	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
)

// tickInterval is the period after the first aligned tick.
const tickInterval = time.Minute

// ErrAlreadyRunning is returned by Start when the scheduler is not stopped.
var ErrAlreadyRunning = errors.New("scheduler: already running")

// State is the scheduler lifecycle state.
type State int

const (
	StateStopped State = iota
	StateWaitingForAlignment
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateWaitingForAlignment:
		return "waiting_for_alignment"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Executor runs a device action. Satisfied by *action.Engine.
type Executor interface {
	Execute(ctx context.Context, deviceID string, a action.Action, trigger history.Trigger) (*device.Device, error)
}

// TickRecorder counts ticks. Satisfied by *metrics.Metrics.
type TickRecorder interface {
	SchedulerTick()
}

// Logger is the logging interface used by the scheduler.
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

// Scheduler fires schedule on/off times once per wall-clock minute.
//
// Start arms a timer for the next minute boundary (WaitingForAlignment).
// When it fires the scheduler ticks and switches to a one-minute ticker
// (Running). Stop returns it to Stopped once the loop has exited.
type Scheduler struct {
	db        *sql.DB
	schedules automation.Repository
	exec      Executor
	loc       *time.Location
	clock     Clock
	recorder  TickRecorder
	logger    Logger

	mu         sync.Mutex
	state      State
	done       chan struct{}
	wg         sync.WaitGroup
	lastMinute string
}

// New creates a scheduler evaluating schedules in loc.
func New(db *sql.DB, schedules automation.Repository, exec Executor, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		db:        db,
		schedules: schedules,
		exec:      exec,
		loc:       loc,
		clock:     realClock{},
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRecorder sets the tick counter.
func (s *Scheduler) SetRecorder(r TickRecorder) {
	s.recorder = r
}

// SetClock replaces the wall clock. It must be called before Start.
func (s *Scheduler) SetClock(c Clock) {
	s.clock = c
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start begins waiting for the next minute boundary.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return ErrAlreadyRunning
	}

	s.state = StateWaitingForAlignment
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.loop(ctx, s.done)

	s.logger.Info("scheduler started", "location", s.loc.String())
	return nil
}

// Stop cancels pending timers and waits for the loop to exit. Safe to call
// when already stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	close(done)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done <-chan struct{}) {
	defer s.wg.Done()
	defer s.setState(StateStopped)

	timer := s.clock.NewTimer(delayToNextMinute(s.clock.Now()))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-done:
		return
	case at := <-timer.C():
		s.setState(StateRunning)
		s.safeTick(ctx, at)
	}

	ticker := s.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case at := <-ticker.C():
			s.safeTick(ctx, at)
		}
	}
}

// safeTick runs Tick and keeps the loop alive if it panics.
func (s *Scheduler) safeTick(ctx context.Context, at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panicked", "panic", r)
		}
	}()
	s.Tick(ctx, at)
}

// Tick executes every schedule due at the minute containing at and returns
// how many actions succeeded. A minute is processed at most once.
//
// When a schedule's onTime and offTime are equal, turn_on wins.
func (s *Scheduler) Tick(ctx context.Context, at time.Time) int {
	local := at.In(s.loc)
	day := automation.WeekdayOf(local)
	clock := automation.ClockOf(local)

	minuteKey := local.Format("2006-01-02 15:04")
	s.mu.Lock()
	if minuteKey == s.lastMinute {
		s.mu.Unlock()
		return 0
	}
	s.lastMinute = minuteKey
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.SchedulerTick()
	}

	due, err := s.schedules.ListDue(ctx, s.db, day, clock)
	if err != nil {
		s.logger.Error("loading due schedules failed", "day", day, "time", clock, "error", err)
		return 0
	}

	executed := 0
	for _, d := range due {
		a := action.TurnOff
		if d.OnTime == clock {
			a = action.TurnOn
		}

		if _, err := s.exec.Execute(ctx, d.DeviceID, a, history.TriggerScheduled); err != nil {
			if errors.Is(err, action.ErrAutomationDisarmed) {
				s.logger.Debug("scheduled action skipped, schedule disarmed", "device_id", d.DeviceID, "action", a)
				continue
			}
			s.logger.Warn("scheduled action failed",
				"device_id", d.DeviceID,
				"action", a,
				"day", day,
				"time", clock,
				"error", err,
			)
			continue
		}
		executed++
	}

	if len(due) > 0 {
		s.logger.Info("scheduler tick", "day", day, "time", clock, "due", len(due), "executed", executed)
	}
	return executed
}
