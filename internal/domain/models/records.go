package models

import (
	"fmt"
	"time"

	"FinRange/internal/domain/errs"
)

// ExpectedMoveRecord is the append-only daily fact written by the scheduler.
// TradeDate is the exchange-local calendar date at 00:00 UTC.
type ExpectedMoveRecord struct {
	Symbol         string    `json:"symbol"`
	TradeDate      time.Time `json:"trade_date"`
	LastPrice      float64   `json:"last_price"`
	PreviousClose  float64   `json:"previous_close"`
	AnnualizedIV   float64   `json:"annualized_iv"`
	ForecastIV     float64   `json:"forecast_iv"`
	Model          string    `json:"model"`
	HorizonDays    int       `json:"horizon_days"`
	DaysRemaining  int       `json:"days_remaining"`
	ExpectedMove   float64   `json:"expected_move"`
	ExpirationMove float64   `json:"expiration_move"`
	ExpectedHigh   float64   `json:"expected_high"`
	ExpectedLow    float64   `json:"expected_low"`
	ActualClose    *float64  `json:"actual_close"`
	WithinRange    *bool     `json:"within_range"`
	CreatedAt      time.Time `json:"created_at"`
}

// Settle attaches the realized close. It succeeds only once.
func (r *ExpectedMoveRecord) Settle(close float64) error {
	if r.ActualClose != nil {
		return fmt.Errorf("%s %s: %w", r.Symbol, r.TradeDate.Format(time.DateOnly), errs.ErrAlreadySettled)
	}
	within := close >= r.ExpectedLow && close <= r.ExpectedHigh
	r.ActualClose = &close
	r.WithinRange = &within
	return nil
}

// WeeklyExpectedMoves is the forward-looking Monday..Friday band table.
// It is replaced when WeekStart changes.
type WeeklyExpectedMoves struct {
	Symbol       string    `json:"symbol"`
	WeekStart    time.Time `json:"week_start"`
	WeekOpen     float64   `json:"week_open"`
	AnnualizedIV float64   `json:"annualized_iv"`
	Days         []DayBand `json:"days"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SetClose fills the actual close of the band dated day.
func (w *WeeklyExpectedMoves) SetClose(day time.Time, close float64) error {
	for i := range w.Days {
		if w.Days[i].Date.Equal(day) {
			w.Days[i].ActualClose = &close
			return nil
		}
	}
	return fmt.Errorf("%s week %s has no band for %s: %w",
		w.Symbol, w.WeekStart.Format(time.DateOnly), day.Format(time.DateOnly), errs.ErrNotFound)
}

// SchedulerState is the persisted last-run marker of the nightly scheduler.
type SchedulerState struct {
	LastDailyRun  time.Time `json:"last_daily_run"`
	LastWeeklyRun time.Time `json:"last_weekly_run"`
}

// Settlement is a realized close for one contract and date.
type Settlement struct {
	Symbol string    `json:"symbol" validate:"required"`
	Date   time.Time `json:"date"`
	Close  float64   `json:"close" validate:"gt=0"`
}
