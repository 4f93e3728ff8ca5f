package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	"FinRange/internal/services/analytics"
	"FinRange/internal/services/moves"
	applogger "FinRange/pkg/logger"
)

// DailyReport summarizes one daily run.
type DailyReport struct {
	Date       time.Time `json:"date"`
	Model      string    `json:"model"`
	Created    []string  `json:"created"`
	Duplicates []string  `json:"duplicates"`
	Skipped    []string  `json:"skipped"`
	Failed     []string  `json:"failed"`
	Settled    int       `json:"settled"`
}

// RunDailyJob runs the daily computation for the current exchange date
// without checking the trigger window. Records are created at most once per
// (symbol, date), so repeated calls are safe.
func (s *Scheduler) RunDailyJob(ctx context.Context) (DailyReport, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.runDaily(ctx, s.now())
}

func (s *Scheduler) runDaily(ctx context.Context, now time.Time) (DailyReport, error) {
	today := s.deps.Calendar.Today(now)
	report := DailyReport{Date: today, Model: s.cfg.Model}
	start := time.Now()

	err := s.withJobLock(ctx, JobDaily, today, func() error {
		if err := s.daily(ctx, now, &report); err != nil {
			return err
		}
		return s.markRun(ctx, JobDaily, today)
	})
	s.deps.Metrics.RecordJobDuration(JobDaily, time.Since(start).Seconds())
	if errors.Is(err, ErrJobInProgress) {
		return report, err
	}
	if err != nil {
		s.deps.Metrics.RecordJobRun(JobDaily, "failed")
		return report, err
	}
	s.deps.Metrics.RecordJobRun(JobDaily, "success")
	s.log.Info("daily job completed",
		applogger.Date("date", today),
		applogger.Int("created", len(report.Created)),
		applogger.Int("duplicates", len(report.Duplicates)),
		applogger.Int("skipped", len(report.Skipped)),
		applogger.Int("failed", len(report.Failed)),
		applogger.Int("settled", report.Settled),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return report, nil
}

func (s *Scheduler) daily(ctx context.Context, now time.Time, report *DailyReport) error {
	contracts, err := s.deps.Contracts.List(ctx)
	if err != nil {
		return fmt.Errorf("list contracts: %w", err)
	}

	byTicker := make(map[string][]models.Contract, len(contracts))
	tickers := make([]string, 0, len(contracts))
	for _, c := range contracts {
		t := c.Ticker()
		if _, ok := byTicker[t]; !ok {
			tickers = append(tickers, t)
		}
		byTicker[t] = append(byTicker[t], c)
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout)
	quotes, err := s.deps.Quotes.FetchQuotes(qctx, tickers)
	cancel()
	if err != nil {
		s.deps.Metrics.RecordError("quote_fetch")
		if !errors.Is(err, errs.ErrUpstreamQuoteFailure) {
			err = fmt.Errorf("%w: %v", errs.ErrUpstreamQuoteFailure, err)
		}
		return err
	}

	quoted := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		cs, ok := byTicker[q.Symbol]
		if !ok {
			s.log.Warn("quote for unknown contract skipped", applogger.String("ticker", q.Symbol))
			continue
		}
		quoted[q.Symbol] = true
		for _, c := range cs {
			err := protect(func() error { return s.processContract(ctx, c, q, now, report) })
			if err != nil {
				report.Failed = append(report.Failed, c.Symbol)
				s.deps.Metrics.RecordError("daily_contract")
				s.log.Error("daily contract failed", applogger.String("symbol", c.Symbol), applogger.Error(err))
			}
		}
	}
	for _, t := range tickers {
		if quoted[t] {
			continue
		}
		for _, c := range byTicker[t] {
			report.Skipped = append(report.Skipped, c.Symbol)
			s.log.Warn("no quote for contract", applogger.String("symbol", c.Symbol), applogger.String("ticker", t))
		}
	}
	return nil
}

func (s *Scheduler) processContract(ctx context.Context, c models.Contract, q models.Quote, now time.Time, report *DailyReport) error {
	today := report.Date
	if q.LastPrice <= 0 {
		return fmt.Errorf("non-positive price %v: %w", q.LastPrice, errs.ErrInvalidArgument)
	}
	c.Price = q.LastPrice
	c.PreviousClose = q.PreviousClose
	s.deps.Metrics.RecordLastPrice(c.Symbol, c.Price)

	info, err := s.deps.Calendar.ExpirationInfo(c.Symbol, now)
	if err != nil {
		return fmt.Errorf("expiration: %w", err)
	}
	c.Expiration = info.Expiration
	c.DaysRemaining = info.DaysRemaining
	c.IsExpirationWeek = info.IsExpirationWeek
	s.deps.Metrics.RecordDaysRemaining(c.Symbol, info.DaysRemaining)

	f, err := s.deps.Models.Forecast(s.cfg.Model, models.ForecastInput{
		Price:         c.Price,
		AnnualizedIV:  c.SessionIV(),
		HorizonDays:   1,
		RecentReturn:  q.Return(),
		PriorForecast: c.LastForecastIV,
	})
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	rng, err := moves.ExpectedRange(c.Price, f, c.TickSize)
	if err != nil {
		return fmt.Errorf("range: %w", err)
	}
	horizon := analytics.ClampHorizon(info.DaysRemaining)
	s.deps.Metrics.RecordExpectedMove(c.Symbol, f.ExpectedMove)

	rec := models.ExpectedMoveRecord{
		Symbol:         c.Symbol,
		TradeDate:      today,
		LastPrice:      c.Price,
		PreviousClose:  c.PreviousClose,
		AnnualizedIV:   f.AnnualizedIV,
		ForecastIV:     f.ForecastIV,
		Model:          f.Model,
		HorizonDays:    f.HorizonDays,
		DaysRemaining:  info.DaysRemaining,
		ExpectedMove:   f.ExpectedMove,
		ExpirationMove: analytics.ExpectedMove(c.Price, f.ForecastIV, horizon),
		ExpectedHigh:   rng.High,
		ExpectedLow:    rng.Low,
		CreatedAt:      now.UTC(),
	}
	created, err := s.deps.Storage.CreateIfAbsent(ctx, &rec)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	if created {
		report.Created = append(report.Created, c.Symbol)
		s.deps.Metrics.RecordCreated(c.Symbol)
		if err := s.deps.Publisher.PublishRecord(ctx, rec); err != nil {
			s.deps.Metrics.RecordError("publish")
			s.log.Warn("record publish failed", applogger.String("symbol", c.Symbol), applogger.Error(err))
		}
	} else {
		report.Duplicates = append(report.Duplicates, c.Symbol)
		s.deps.Metrics.RecordDuplicate(c.Symbol)
		s.log.Debug("record exists, skipped", applogger.String("symbol", c.Symbol), applogger.Date("date", today))
	}

	if s.settlePrevious(ctx, c.Symbol, today, c.Price) {
		report.Settled++
	}
	if _, err := s.deps.Settler.SetWeeklyClose(ctx, c.Symbol, today, c.Price); err != nil && !errors.Is(err, errs.ErrNotFound) {
		s.log.Warn("weekly close not recorded", applogger.String("symbol", c.Symbol), applogger.Error(err))
	}

	c.LastForecastIV = f.ForecastIV
	c.UpdatedAt = now.UTC()
	if err := s.deps.Contracts.Save(ctx, c); err != nil {
		return fmt.Errorf("save contract: %w", err)
	}
	return nil
}

// settlePrevious closes out the record made on the previous session with
// today's price. Missing or already settled records are expected.
func (s *Scheduler) settlePrevious(ctx context.Context, symbol string, today time.Time, close float64) bool {
	prev, err := s.deps.Calendar.PreviousTradingDay(today)
	if err != nil {
		s.log.Warn("previous trading day unknown", applogger.String("symbol", symbol), applogger.Error(err))
		return false
	}
	_, err = s.deps.Settler.SettleRecord(ctx, symbol, prev, close)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrAlreadySettled):
		return false
	default:
		s.deps.Metrics.RecordError("settle")
		s.log.Warn("settlement failed", applogger.String("symbol", symbol), applogger.Date("date", prev), applogger.Error(err))
		return false
	}
}
