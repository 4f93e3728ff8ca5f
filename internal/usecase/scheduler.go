package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinRange/internal/domain/models"
	drepo "FinRange/internal/domain/repository"
	"FinRange/internal/services/analytics"
	"FinRange/internal/services/calendar"
	pkgcache "FinRange/pkg/cache"
	applogger "FinRange/pkg/logger"
	"FinRange/pkg/metrics"
	"FinRange/pkg/util"
)

const (
	JobDaily  = "daily"
	JobWeekly = "weekly"
)

// ErrJobInProgress is returned when another run holds the job lock.
var ErrJobInProgress = errors.New("job already running")

// SchedulerConfig holds the trigger window and job tuning.
type SchedulerConfig struct {
	Interval     time.Duration
	QuoteTimeout time.Duration
	LockTTL      time.Duration
	Model        string
	// SessionOpen and SessionClose are minutes after local midnight.
	SessionOpen  int
	SessionClose int
	DailyRunHour int
	RunOnStartup bool
}

// Deps are the collaborators of the nightly jobs.
type Deps struct {
	Contracts drepo.ContractStore
	Storage   drepo.Storage
	Quotes    drepo.QuoteProvider
	Publisher drepo.Publisher
	State     drepo.StateStore
	Locker    drepo.Locker
	Calendar  *calendar.Calendar
	Models    *analytics.Registry
	Settler   *Settler
	Metrics   drepo.Metrics
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock replaces time.Now; used by tests to drive the trigger window.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler checks the daily and weekly gates on a fixed interval. Run state
// lives in a StateStore, so restarts and other instances see the same
// last-run markers.
type Scheduler struct {
	cfg  SchedulerConfig
	deps Deps
	log  *applogger.Logger
	now  func() time.Time

	tickMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(cfg SchedulerConfig, deps Deps, log *applogger.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if deps.Contracts == nil || deps.Storage == nil || deps.Quotes == nil || deps.Calendar == nil ||
		deps.Models == nil || deps.State == nil || deps.Locker == nil {
		return nil, fmt.Errorf("scheduler: missing dependency")
	}
	if _, err := deps.Models.Get(cfg.Model); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Settler == nil {
		deps.Settler = NewSettler(deps.Storage, deps.Storage, deps.Metrics, log)
	}
	if log == nil {
		log = applogger.Nop()
	}
	s := &Scheduler{cfg: cfg, deps: deps, log: log.Component("scheduler"), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs the check loop in the background until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.Run(ctx)
	}()
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks, ticking every Interval. With RunOnStartup a check fires
// immediately, which catches up a window that passed while the process was down.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started",
		applogger.Duration("interval_ms", s.cfg.Interval),
		applogger.String("model", s.cfg.Model),
	)
	if s.cfg.RunOnStartup {
		s.Tick(ctx)
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates both gates once. Ticks never overlap.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.now()
	st, err := s.deps.State.Load(ctx)
	if err != nil {
		s.deps.Metrics.RecordError("state_load")
		s.log.Error("scheduler state load failed", applogger.Error(err))
		return
	}

	if ok, why := s.dailyDue(now, st); ok {
		if _, err := s.runDaily(ctx, now); err != nil && !errors.Is(err, ErrJobInProgress) {
			s.log.Error("daily job failed", applogger.Error(err))
		}
	} else {
		s.log.Debug("daily job not due", applogger.String("reason", why))
	}

	if ok, why := s.weeklyDue(now, st); ok {
		if _, err := s.runWeekly(ctx, now); err != nil && !errors.Is(err, ErrJobInProgress) {
			s.log.Error("weekly job failed", applogger.Error(err))
		}
	} else {
		s.log.Debug("weekly job not due", applogger.String("reason", why))
	}
}

// dailyDue: trading day, market closed, past the run hour, not yet run today.
func (s *Scheduler) dailyDue(now time.Time, st models.SchedulerState) (bool, string) {
	cal := s.deps.Calendar
	today := cal.Today(now)
	if util.SameDate(st.LastDailyRun, today) {
		return false, "already ran today"
	}
	trading, err := cal.IsTradingDay(today)
	if err != nil {
		s.log.Error("calendar lookup failed", applogger.Date("date", today), applogger.Error(err))
		return false, "calendar gap"
	}
	if !trading {
		return false, "not a trading day"
	}
	local := now.In(cal.Location())
	if s.marketOpen(local) {
		return false, "market open"
	}
	if local.Hour() < s.cfg.DailyRunHour {
		return false, "before run hour"
	}
	return true, ""
}

func (s *Scheduler) weeklyDue(now time.Time, st models.SchedulerState) (bool, string) {
	local := now.In(s.deps.Calendar.Location())
	if local.Weekday() != time.Saturday {
		return false, "not saturday"
	}
	if util.SameDate(st.LastWeeklyRun, s.deps.Calendar.Today(now)) {
		return false, "already ran today"
	}
	return true, ""
}

func (s *Scheduler) marketOpen(local time.Time) bool {
	m := local.Hour()*60 + local.Minute()
	return m >= s.cfg.SessionOpen && m < s.cfg.SessionClose
}

// withJobLock runs fn under the per-(job, date) lock.
func (s *Scheduler) withJobLock(ctx context.Context, job string, date time.Time, fn func() error) error {
	key := pkgcache.GenerateKeyWithParams("scheduler", job, util.FormatDate(date))
	ok, err := s.deps.Locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		s.log.Info("job lock held elsewhere", applogger.String("job", job), applogger.String("key", key))
		s.deps.Metrics.RecordJobRun(job, "locked")
		return ErrJobInProgress
	}
	defer func() {
		if err := s.deps.Locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			s.log.Warn("job unlock failed", applogger.String("key", key), applogger.Error(err))
		}
	}()
	return fn()
}

// markRun persists the last-run marker for job.
func (s *Scheduler) markRun(ctx context.Context, job string, date time.Time) error {
	st, err := s.deps.State.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	switch job {
	case JobDaily:
		st.LastDailyRun = date
	case JobWeekly:
		st.LastWeeklyRun = date
	}
	if err := s.deps.State.Save(ctx, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// protect converts a panic in fn into an error so one contract cannot abort a batch.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

type nopPublisher struct{}

func (nopPublisher) PublishRecord(context.Context, models.ExpectedMoveRecord) error  { return nil }
func (nopPublisher) PublishWeekly(context.Context, models.WeeklyExpectedMoves) error { return nil }
func (nopPublisher) Close() error                                                    { return nil }
