package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	"FinRange/internal/services/moves"
	applogger "FinRange/pkg/logger"
)

// WeeklyReport summarizes one weekly run.
type WeeklyReport struct {
	Date      time.Time `json:"date"`
	WeekStart time.Time `json:"week_start"`
	Replaced  []string  `json:"replaced"`
	Reused    []string  `json:"reused"`
	Skipped   []string  `json:"skipped"`
	Failed    []string  `json:"failed"`
}

// RunWeeklyJob rebuilds the weekly bands for the week starting next Monday,
// leaving rows already anchored on that Monday untouched.
func (s *Scheduler) RunWeeklyJob(ctx context.Context) (WeeklyReport, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.runWeekly(ctx, s.now())
}

func (s *Scheduler) runWeekly(ctx context.Context, now time.Time) (WeeklyReport, error) {
	today := s.deps.Calendar.Today(now)
	report := WeeklyReport{Date: today, WeekStart: moves.NextMonday(today)}
	start := time.Now()

	err := s.withJobLock(ctx, JobWeekly, today, func() error {
		if err := s.weekly(ctx, now, &report); err != nil {
			return err
		}
		if len(report.Skipped) > 0 && len(report.Replaced)+len(report.Reused) == 0 {
			// nothing priced yet; leave the run unmarked so the next tick retries
			s.log.Warn("weekly job built no rows", applogger.Int("skipped", len(report.Skipped)))
			return nil
		}
		return s.markRun(ctx, JobWeekly, today)
	})
	s.deps.Metrics.RecordJobDuration(JobWeekly, time.Since(start).Seconds())
	if errors.Is(err, ErrJobInProgress) {
		return report, err
	}
	if err != nil {
		s.deps.Metrics.RecordJobRun(JobWeekly, "failed")
		return report, err
	}
	s.deps.Metrics.RecordJobRun(JobWeekly, "success")
	s.log.Info("weekly job completed",
		applogger.Date("week_start", report.WeekStart),
		applogger.Int("replaced", len(report.Replaced)),
		applogger.Int("reused", len(report.Reused)),
		applogger.Int("skipped", len(report.Skipped)),
		applogger.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (s *Scheduler) weekly(ctx context.Context, now time.Time, report *WeeklyReport) error {
	contracts, err := s.deps.Contracts.List(ctx)
	if err != nil {
		return fmt.Errorf("list contracts: %w", err)
	}
	for _, c := range contracts {
		var outcome string
		err := protect(func() error {
			var err error
			outcome, err = s.weeklyContract(ctx, c, report.WeekStart, now)
			return err
		})
		if err != nil {
			report.Failed = append(report.Failed, c.Symbol)
			s.deps.Metrics.RecordError("weekly_contract")
			s.log.Error("weekly contract failed", applogger.String("symbol", c.Symbol), applogger.Error(err))
			continue
		}
		switch outcome {
		case "replaced":
			report.Replaced = append(report.Replaced, c.Symbol)
		case "reused":
			report.Reused = append(report.Reused, c.Symbol)
		default:
			report.Skipped = append(report.Skipped, c.Symbol)
		}
	}
	return nil
}

func (s *Scheduler) weeklyContract(ctx context.Context, c models.Contract, monday, now time.Time) (string, error) {
	existing, err := s.deps.Storage.GetWeekly(ctx, c.Symbol)
	switch {
	case err == nil && existing.WeekStart.Equal(monday):
		return "reused", nil
	case err != nil && !errors.Is(err, errs.ErrNotFound):
		return "", fmt.Errorf("get weekly: %w", err)
	}

	open := c.Price
	if open <= 0 {
		if open, err = s.lastRecordedPrice(ctx, c.Symbol, now); err != nil {
			return "", err
		}
	}
	if open <= 0 {
		s.log.Warn("no price yet, weekly bands skipped", applogger.String("symbol", c.Symbol))
		return "skipped", nil
	}
	bands, err := moves.WeeklyBands(monday, open, c.WeeklyIV, c.TickSize)
	if err != nil {
		return "", fmt.Errorf("weekly bands: %w", err)
	}
	w := models.WeeklyExpectedMoves{
		Symbol:       c.Symbol,
		WeekStart:    monday,
		WeekOpen:     open,
		AnnualizedIV: c.WeeklyIV,
		Days:         bands,
		UpdatedAt:    now.UTC(),
	}
	if err := s.deps.Storage.ReplaceWeekly(ctx, w); err != nil {
		return "", fmt.Errorf("replace weekly: %w", err)
	}
	if err := s.deps.Publisher.PublishWeekly(ctx, w); err != nil {
		s.deps.Metrics.RecordError("publish")
		s.log.Warn("weekly publish failed", applogger.String("symbol", c.Symbol), applogger.Error(err))
	}
	return "replaced", nil
}

// lastRecordedPrice returns the last price of the most recent stored record
// within two weeks of now, or 0 when there is none. Contract prices live in
// memory and are lost on restart; records are not.
func (s *Scheduler) lastRecordedPrice(ctx context.Context, symbol string, now time.Time) (float64, error) {
	today := s.deps.Calendar.Today(now)
	list, err := s.deps.Storage.List(ctx, symbol, today.AddDate(0, 0, -14), today)
	if err != nil {
		return 0, fmt.Errorf("list recent records: %w", err)
	}
	var latest models.ExpectedMoveRecord
	for _, r := range list {
		if r.LastPrice > 0 && r.TradeDate.After(latest.TradeDate) {
			latest = r
		}
	}
	return latest.LastPrice, nil
}
