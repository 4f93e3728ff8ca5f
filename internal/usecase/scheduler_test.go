package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	"FinRange/internal/repository"
	"FinRange/internal/services/analytics"
	"FinRange/internal/services/calendar"
	"FinRange/internal/usecase"
	pkgcache "FinRange/pkg/cache"
	"FinRange/pkg/util"
)

type fakeQuotes struct {
	mu     sync.Mutex
	calls  int
	quotes map[string]models.Quote
	err    error
	hang   bool
}

func (f *fakeQuotes) FetchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Quote, 0, len(symbols))
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out = append(out, q)
		}
	}
	// a stray ticker nobody asked for
	if q, ok := f.quotes["ZZ"]; ok {
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeQuotes) set(sym string, price, changePct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[sym] = models.Quote{Symbol: sym, LastPrice: price, PreviousClose: price, ChangePercent: changePct}
}

type panicContracts struct {
	*repository.MemoryContracts
	symbol string
}

func (p panicContracts) Save(ctx context.Context, c models.Contract) error {
	if c.Symbol == p.symbol {
		panic("boom")
	}
	return p.MemoryContracts.Save(ctx, c)
}

type fixture struct {
	t         *testing.T
	ny        *time.Location
	now       time.Time
	quotes    *fakeQuotes
	storage   *repository.MemoryStorage
	contracts *repository.MemoryContracts
	state     *repository.MemoryState
	locks     *pkgcache.MemoryCache
	sched     *usecase.Scheduler
}

func newFixture(t *testing.T, model string) *fixture {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	cal, err := calendar.New(calendar.WithLocation(ny), calendar.WithClose(17, 0))
	require.NoError(t, err)
	require.NoError(t, cal.Register("ES", models.ClassIndex, models.RuleWeeklyFriday))
	require.NoError(t, cal.Register("GC", models.ClassCommodity, models.RuleThirdLastBusinessDay))

	f := &fixture{
		t:  t,
		ny: ny,
		quotes: &fakeQuotes{quotes: map[string]models.Quote{
			"ES": {Symbol: "ES", LastPrice: 6595.25, PreviousClose: 6580, ChangePercent: 0.23},
			"GC": {Symbol: "GC", LastPrice: 2400.1, PreviousClose: 2390, ChangePercent: 0.42},
		}},
		storage: repository.NewMemoryStorage(),
		contracts: repository.NewMemoryContracts([]models.Contract{
			{Symbol: "ES", TickSize: 0.25, Class: models.ClassIndex, Rule: models.RuleWeeklyFriday, WeeklyIV: 0.16, DailyIV: 0.0245},
			{Symbol: "GC", TickSize: 0.1, Class: models.ClassCommodity, Rule: models.RuleThirdLastBusinessDay, WeeklyIV: 0.18},
		}),
		state: repository.NewMemoryState(),
		locks: pkgcache.NewMemoryCache(),
	}
	t.Cleanup(func() { _ = f.locks.Close() })
	f.sched = f.build(cal, f.contracts, model)
	return f
}

func (f *fixture) build(cal *calendar.Calendar, contracts interface {
	List(context.Context) ([]models.Contract, error)
	Get(context.Context, string) (models.Contract, error)
	Save(context.Context, models.Contract) error
}, model string) *usecase.Scheduler {
	s, err := usecase.NewScheduler(usecase.SchedulerConfig{
		Interval:     time.Hour,
		QuoteTimeout: time.Second,
		LockTTL:      time.Minute,
		Model:        model,
		SessionOpen:  9*60 + 30,
		SessionClose: 16 * 60,
		DailyRunHour: 17,
	}, usecase.Deps{
		Contracts: contracts,
		Storage:   f.storage,
		Quotes:    f.quotes,
		State:     f.state,
		Locker:    f.locks,
		Calendar:  cal,
		Models:    analytics.NewRegistry(),
	}, nil, usecase.WithClock(func() time.Time { return f.now }))
	require.NoError(f.t, err)
	return s
}

func (f *fixture) at(y int, m time.Month, d, hh, mm int) {
	f.now = time.Date(y, m, d, hh, mm, 0, 0, f.ny)
}

func (f *fixture) records(sym string) []models.ExpectedMoveRecord {
	list, err := f.storage.List(context.Background(), sym, util.Date(2025, 1, 1), util.Date(2026, 1, 1))
	require.NoError(f.t, err)
	return list
}

func TestDailyJobIsIdempotent(t *testing.T) {
	f := newFixture(t, analytics.ModelStandard)
	ctx := context.Background()
	f.at(2025, 10, 17, 17, 30)

	f.sched.Tick(ctx)
	report, err := f.sched.RunDailyJob(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ES", "GC"}, report.Duplicates)
	require.Empty(t, report.Created)

	es := f.records("ES")
	require.Len(t, es, 1)
	require.Len(t, f.records("GC"), 1)

	rec := es[0]
	require.Equal(t, util.Date(2025, 10, 17), rec.TradeDate)
	require.InDelta(t, 10.1789, rec.ExpectedMove, 1e-3)
	require.Equal(t, 6585.0, rec.ExpectedLow)
	require.Equal(t, 6605.5, rec.ExpectedHigh)
	// Friday after the close rolls to next Friday: 5 sessions
	require.Equal(t, 5, rec.DaysRemaining)
	require.InDelta(t, rec.ExpectedMove*2.2360679, rec.ExpirationMove, 1e-6)

	st, err := f.state.Load(ctx)
	require.NoError(t, err)
	require.True(t, util.SameDate(st.LastDailyRun, util.Date(2025, 10, 17)))

	c, err := f.contracts.Get(ctx, "ES")
	require.NoError(t, err)
	require.Equal(t, 6595.25, c.Price)
	require.InDelta(t, 0.0245, c.LastForecastIV, 1e-12)
	require.Equal(t, 5, c.DaysRemaining)
}

func TestDailyJobGates(t *testing.T) {
	f := newFixture(t, analytics.ModelStandard)
	ctx := context.Background()

	f.at(2025, 10, 17, 15, 0) // market open
	f.sched.Tick(ctx)
	f.at(2025, 10, 17, 16, 30) // closed, before run hour
	f.sched.Tick(ctx)
	f.at(2025, 11, 27, 18, 0) // Thanksgiving
	f.sched.Tick(ctx)
	require.Equal(t, 0, f.quotes.calls)

	f.at(2025, 10, 17, 17, 0)
	f.sched.Tick(ctx)
	f.at(2025, 10, 17, 22, 0)
	f.sched.Tick(ctx)
	require.Equal(t, 1, f.quotes.calls, "second tick on the same day is a no-op")
}

func TestQuoteFailureAbortsAndRetries(t *testing.T) {
	f := newFixture(t, analytics.ModelGARCH)
	ctx := context.Background()
	f.at(2025, 10, 17, 17, 5)

	f.quotes.err = errors.New("connection refused")
	_, err := f.sched.RunDailyJob(ctx)
	require.ErrorIs(t, err, errs.ErrUpstreamQuoteFailure)
	require.Empty(t, f.records("ES"))
	st, err := f.state.Load(ctx)
	require.NoError(t, err)
	require.True(t, st.LastDailyRun.IsZero())

	f.quotes.err = nil
	f.at(2025, 10, 17, 18, 5)
	f.sched.Tick(ctx)
	require.Len(t, f.records("ES"), 1)
	require.Equal(t, analytics.ModelGARCH, f.records("ES")[0].Model)
}

func TestHungQuoteFetchTimesOut(t *testing.T) {
	f := newFixture(t, analytics.ModelStandard)
	ctx := context.Background()
	f.at(2025, 10, 17, 17, 30)
	f.quotes.hang = true

	start := time.Now()
	_, err := f.sched.RunDailyJob(ctx)
	require.ErrorIs(t, err, errs.ErrUpstreamQuoteFailure)
	require.Less(t, time.Since(start), 3*time.Second)
	require.Empty(t, f.records("ES"))

	st, err := f.state.Load(ctx)
	require.NoError(t, err)
	require.True(t, st.LastDailyRun.IsZero())
}

func TestMissingQuotesAndContractsAreSkipped(t *testing.T) {
	f := newFixture(t, analytics.ModelStandard)
	ctx := context.Background()
	f.at(2025, 10, 17, 17, 30)

	delete(f.quotes.quotes, "GC")
	f.quotes.set("ZZ", 10, 0)
	report, err := f.sched.RunDailyJob(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ES"}, report.Created)
	require.Equal(t, []string{"GC"}, report.Skipped)
	require.Empty(t, f.records("GC"))
}

func TestPanickingContractDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, analytics.ModelEWMA)
	ctx := context.Background()
	cal, err := calendar.New(calendar.WithLocation(f.ny))
	require.NoError(t, err)
	require.NoError(t, cal.Register("ES", models.ClassIndex, models.RuleWeeklyFriday))
	require.NoError(t, cal.Register("GC", models.ClassCommodity, models.RuleThirdLastBusinessDay))
	s := f.build(cal, panicContracts{MemoryContracts: f.contracts, symbol: "GC"}, analytics.ModelEWMA)

	f.at(2025, 10, 17, 17, 30)
	report, err := s.RunDailyJob(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"GC"}, report.Failed)
	require.Contains(t, report.Created, "ES")
}

func TestJobLockHeldElsewhere(t *testing.T) {
	f := newFixture(t, analytics.ModelStandard)
	ctx := context.Background()
	f.at(2025, 10, 17, 17, 30)

	ok, err := f.locks.TryLock(ctx, "scheduler:daily:2025-10-17", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.sched.RunDailyJob(ctx)
	require.ErrorIs(t, err, usecase.ErrJobInProgress)
	require.Equal(t, 0, f.quotes.calls)
}

func TestNextSessionSettlesPreviousRecordOnce(t *testing.T) {
	f := newFixture(t, analytics.ModelStandard)
	ctx := context.Background()

	f.at(2025, 10, 17, 17, 30)
	_, err := f.sched.RunDailyJob(ctx)
	require.NoError(t, err)

	f.quotes.set("ES", 6600, 0.07)
	f.at(2025, 10, 20, 17, 30)
	report, err := f.sched.RunDailyJob(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Settled)

	rec, err := f.storage.Get(ctx, "ES", util.Date(2025, 10, 17))
	require.NoError(t, err)
	require.Equal(t, 6600.0, *rec.ActualClose)
	require.True(t, *rec.WithinRange)

	report, err = f.sched.RunDailyJob(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Settled)
	rec, err = f.storage.Get(ctx, "ES", util.Date(2025, 10, 17))
	require.NoError(t, err)
	require.Equal(t, 6600.0, *rec.ActualClose)
}

func TestWeeklyJobReplacesThenReuses(t *testing.T) {
	f := newFixture(t, analytics.ModelStandard)
	ctx := context.Background()

	require.NoError(t, f.storage.ReplaceWeekly(ctx, models.WeeklyExpectedMoves{Symbol: "GC", WeekStart: util.Date(2025, 10, 13)}))
	f.at(2025, 10, 17, 17, 30)
	_, err := f.sched.RunDailyJob(ctx)
	require.NoError(t, err)

	f.at(2025, 10, 18, 9, 0)
	f.sched.Tick(ctx)
	w, err := f.storage.GetWeekly(ctx, "ES")
	require.NoError(t, err)
	require.Equal(t, util.Date(2025, 10, 20), w.WeekStart)
	require.Equal(t, 6595.25, w.WeekOpen)
	require.Len(t, w.Days, 5)

	gc, err := f.storage.GetWeekly(ctx, "GC")
	require.NoError(t, err)
	require.Equal(t, util.Date(2025, 10, 20), gc.WeekStart, "stale week replaced")

	report, err := f.sched.RunWeeklyJob(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ES", "GC"}, report.Reused)
	require.Empty(t, report.Replaced)

	f.quotes.set("ES", 6610, 0.2)
	f.at(2025, 10, 20, 17, 30)
	_, err = f.sched.RunDailyJob(ctx)
	require.NoError(t, err)
	w, err = f.storage.GetWeekly(ctx, "ES")
	require.NoError(t, err)
	require.Equal(t, 6610.0, *w.Days[0].ActualClose)
	require.Nil(t, w.Days[1].ActualClose)
}

func TestWeeklyJobSkipsUnpricedContracts(t *testing.T) {
	f := newFixture(t, analytics.ModelStandard)
	ctx := context.Background()
	f.at(2025, 10, 18, 9, 0)
	report, err := f.sched.RunWeeklyJob(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ES", "GC"}, report.Skipped)

	st, err := f.state.Load(ctx)
	require.NoError(t, err)
	require.True(t, st.LastWeeklyRun.IsZero(), "an all-skipped run stays due")

	// prices arrive; the next Saturday tick builds the rows
	f.at(2025, 10, 17, 17, 30)
	_, err = f.sched.RunDailyJob(ctx)
	require.NoError(t, err)
	f.at(2025, 10, 18, 10, 0)
	f.sched.Tick(ctx)
	w, err := f.storage.GetWeekly(ctx, "ES")
	require.NoError(t, err)
	require.Equal(t, util.Date(2025, 10, 20), w.WeekStart)

	st, err = f.state.Load(ctx)
	require.NoError(t, err)
	require.True(t, util.SameDate(st.LastWeeklyRun, util.Date(2025, 10, 18)))
}

func TestWeeklyJobAfterRestartUsesStoredPrice(t *testing.T) {
	f := newFixture(t, analytics.ModelStandard)
	ctx := context.Background()
	f.at(2025, 10, 17, 17, 30)
	_, err := f.sched.RunDailyJob(ctx)
	require.NoError(t, err)

	// a fresh process: contracts seeded from config, storage and state shared
	cal, err := calendar.New(calendar.WithLocation(f.ny), calendar.WithClose(17, 0))
	require.NoError(t, err)
	require.NoError(t, cal.Register("ES", models.ClassIndex, models.RuleWeeklyFriday))
	require.NoError(t, cal.Register("GC", models.ClassCommodity, models.RuleThirdLastBusinessDay))
	seeded := repository.NewMemoryContracts([]models.Contract{
		{Symbol: "ES", TickSize: 0.25, Class: models.ClassIndex, Rule: models.RuleWeeklyFriday, WeeklyIV: 0.16},
		{Symbol: "GC", TickSize: 0.1, Class: models.ClassCommodity, Rule: models.RuleThirdLastBusinessDay, WeeklyIV: 0.18},
	})
	restarted := f.build(cal, seeded, analytics.ModelStandard)

	f.at(2025, 10, 18, 9, 0)
	restarted.Tick(ctx)

	w, err := f.storage.GetWeekly(ctx, "ES")
	require.NoError(t, err)
	require.Equal(t, util.Date(2025, 10, 20), w.WeekStart)
	require.Equal(t, 6595.25, w.WeekOpen)
	require.Len(t, w.Days, 5)
	gc, err := f.storage.GetWeekly(ctx, "GC")
	require.NoError(t, err)
	require.Equal(t, 2400.1, gc.WeekOpen)
}
