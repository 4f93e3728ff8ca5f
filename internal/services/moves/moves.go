// Package moves turns volatility forecasts into tick-rounded price bands.
package moves

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	"FinRange/internal/services/analytics"
)

// WeekDays is the number of sessions in a weekly band table (Monday..Friday).
const WeekDays = 5

// RoundToTick rounds x to the nearest multiple of tick, half away from zero,
// quantized to the decimal places of tick.
func RoundToTick(x, tick float64) (float64, error) {
	if !(tick > 0) || math.IsInf(tick, 0) {
		return 0, fmt.Errorf("tick size %v: %w", tick, errs.ErrInvalidArgument)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("price %v: %w", x, errs.ErrInvalidArgument)
	}
	t := decimal.NewFromFloat(tick)
	places := -t.Exponent()
	if places < 0 {
		places = 0
	}
	q := decimal.NewFromFloat(x).Div(t).Round(0).Mul(t).Round(places)
	f, _ := q.Float64()
	return f, nil
}

// RangeAround returns [price-move, price+move] rounded to tick.
func RangeAround(price, move, tick float64) (models.PriceRange, error) {
	low, err := RoundToTick(price-move, tick)
	if err != nil {
		return models.PriceRange{}, err
	}
	high, err := RoundToTick(price+move, tick)
	if err != nil {
		return models.PriceRange{}, err
	}
	return models.PriceRange{Low: low, High: high}, nil
}

// ExpectedRange is the tick-rounded one-sigma band implied by a forecast.
func ExpectedRange(price float64, f models.VolatilityForecast, tick float64) (models.PriceRange, error) {
	return RangeAround(price, f.ExpectedMove, tick)
}

// WeeklyBands builds Monday..Friday bands anchored at weekOpen. Day n spans
// ±dailyVol×sqrt(n) with dailyVol = weekOpen × iv × sqrt(1/252), so Friday
// carries the full-week move.
func WeeklyBands(weekStart time.Time, weekOpen, annualizedIV, tick float64) ([]models.DayBand, error) {
	if !(annualizedIV >= 0) || math.IsInf(annualizedIV, 0) {
		return nil, fmt.Errorf("annualized iv %v: %w", annualizedIV, errs.ErrInvalidArgument)
	}
	if weekStart.Weekday() != time.Monday {
		return nil, fmt.Errorf("week start %s is a %s: %w", weekStart.Format("2006-01-02"), weekStart.Weekday(), errs.ErrInvalidArgument)
	}
	dailyVol := analytics.ExpectedMove(weekOpen, annualizedIV, 1)
	bands := make([]models.DayBand, 0, WeekDays)
	for n := 1; n <= WeekDays; n++ {
		r, err := RangeAround(weekOpen, dailyVol*math.Sqrt(float64(n)), tick)
		if err != nil {
			return nil, err
		}
		day := weekStart.AddDate(0, 0, n-1)
		bands = append(bands, models.DayBand{
			Date:         day,
			Weekday:      day.Weekday(),
			ExpectedHigh: r.High,
			ExpectedLow:  r.Low,
		})
	}
	return bands, nil
}

// NextMonday returns the first Monday strictly after d.
func NextMonday(d time.Time) time.Time {
	ahead := (int(time.Monday) - int(d.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return d.AddDate(0, 0, ahead)
}
