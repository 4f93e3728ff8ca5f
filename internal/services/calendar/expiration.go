package calendar

import (
	"fmt"
	"time"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	"FinRange/pkg/util"
)

// expirationWeekDays is the window in which a contract is in its expiration week.
const expirationWeekDays = 5

// ExpirationInfo derives the front contract's expiration for symbol as of asOf.
// Weekday and hour are evaluated in the exchange timezone.
func (c *Calendar) ExpirationInfo(symbol string, asOf time.Time) (models.ExpirationInfo, error) {
	cr, ok := c.contracts[symbol]
	if !ok {
		return models.ExpirationInfo{}, fmt.Errorf("no expiration rule for symbol %q: %w", symbol, errs.ErrCalendarDataGap)
	}

	var (
		exp time.Time
		err error
	)
	if cr.rule == models.RuleWeeklyFriday {
		exp, err = c.weeklyExpiration(asOf)
	} else {
		exp, err = c.monthlyExpiration(cr.rule, asOf)
	}
	if err != nil {
		return models.ExpirationInfo{}, fmt.Errorf("%s: %w", symbol, err)
	}

	// today's session counts only until its close
	start := util.DateIn(asOf, c.loc)
	if !c.CloseOf(start).After(asOf) {
		start = start.AddDate(0, 0, 1)
	}
	days, err := c.TradingDaysBetween(start, exp)
	if err != nil {
		return models.ExpirationInfo{}, fmt.Errorf("%s: %w", symbol, err)
	}
	return models.ExpirationInfo{
		Symbol:           symbol,
		Class:            cr.class,
		Rule:             cr.rule,
		Expiration:       exp,
		DaysRemaining:    days,
		IsExpirationWeek: days > 0 && days <= expirationWeekDays,
	}, nil
}

// weeklyExpiration returns the next Friday close, rolling a week once Friday's
// close has passed. A Friday holiday moves expiry to the preceding trading day.
func (c *Calendar) weeklyExpiration(asOf time.Time) (time.Time, error) {
	lt := asOf.In(c.loc)
	ahead := (int(time.Friday) - int(lt.Weekday()) + 7) % 7
	friday := util.Date(lt.Year(), lt.Month(), lt.Day()).AddDate(0, 0, ahead)
	if !c.CloseOf(friday).After(asOf) {
		friday = friday.AddDate(0, 0, 7)
	}
	day, err := c.onOrBefore(friday)
	if err != nil {
		return time.Time{}, err
	}
	// holiday roll-back can land before asOf on a short week
	if !c.CloseOf(day).After(asOf) {
		if day, err = c.onOrBefore(friday.AddDate(0, 0, 7)); err != nil {
			return time.Time{}, err
		}
	}
	return c.CloseOf(day), nil
}

// monthlyExpiration scans contract months forward from asOf's month and returns the
// first expiration whose close is after asOf.
func (c *Calendar) monthlyExpiration(rule models.ExpirationRule, asOf time.Time) (time.Time, error) {
	lt := asOf.In(c.loc)
	first := util.Date(lt.Year(), lt.Month(), 1)
	k := 0
	if rule == models.RuleBeforeTwentyFifth {
		// the current delivery month expired last month
		k = 1
	}
	for ; k <= 13; k++ {
		month := first.AddDate(0, k, 0)
		day, err := c.ExpirationDate(rule, month.Year(), month.Month())
		if err != nil {
			return time.Time{}, err
		}
		if ts := c.CloseOf(day); ts.After(asOf) {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("no %s expiration after %s: %w", rule, asOf.Format(time.RFC3339), errs.ErrCalendarDataGap)
}

// ExpirationDate returns the last trading date of the contract month (year, month)
// under rule. For RuleBeforeTwentyFifth, month is the delivery month.
func (c *Calendar) ExpirationDate(rule models.ExpirationRule, year int, month time.Month) (time.Time, error) {
	switch rule {
	case models.RuleThirdLastBusinessDay:
		last := util.Date(year, month, 1).AddDate(0, 1, -1)
		return c.nthTradingDayBackward(last, 3)
	case models.RuleBeforeTwentyFifth:
		prior := util.Date(year, month, 1).AddDate(0, -1, 0)
		return c.nthTradingDayBackward(util.Date(prior.Year(), prior.Month(), 24), 3)
	case models.RuleThirdFriday:
		d := util.Date(year, month, 1)
		for d.Weekday() != time.Friday {
			d = d.AddDate(0, 0, 1)
		}
		return c.onOrBefore(d.AddDate(0, 0, 14))
	case models.RuleWeeklyFriday:
		return time.Time{}, fmt.Errorf("weekly rule has no monthly expiration: %w", errs.ErrInvalidArgument)
	default:
		return time.Time{}, fmt.Errorf("unknown expiration rule %q: %w", rule, errs.ErrInvalidArgument)
	}
}

// nthTradingDayBackward walks back from d (inclusive) and returns the n-th trading day met.
func (c *Calendar) nthTradingDayBackward(d time.Time, n int) (time.Time, error) {
	seen := 0
	for i := 0; i < 31; i++ {
		ok, err := c.IsTradingDay(d)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			seen++
			if seen == n {
				return d, nil
			}
		}
		d = d.AddDate(0, 0, -1)
	}
	return time.Time{}, fmt.Errorf("fewer than %d trading days before %s: %w", n, util.FormatDate(d), errs.ErrCalendarDataGap)
}

// onOrBefore returns d if it trades, else the preceding trading day.
func (c *Calendar) onOrBefore(d time.Time) (time.Time, error) {
	ok, err := c.IsTradingDay(d)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return d, nil
	}
	return c.PreviousTradingDay(d)
}
