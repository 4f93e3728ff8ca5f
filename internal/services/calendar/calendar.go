// Package calendar counts exchange trading days and derives contract expirations.
// All methods are pure given the holiday table and safe for concurrent use once built.
package calendar

import (
	"fmt"
	"sort"
	"time"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	"FinRange/pkg/util"
)

// DefaultTimezone is the exchange timezone used when none is configured.
const DefaultTimezone = "America/New_York"

// Option configures a Calendar.
type Option func(*Calendar)

// WithLocation sets the exchange timezone.
func WithLocation(loc *time.Location) Option {
	return func(c *Calendar) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithClose sets the exchange close time used for expiration timestamps.
func WithClose(hour, minute int) Option {
	return func(c *Calendar) {
		c.closeHour = hour
		c.closeMinute = minute
	}
}

// WithHolidays adds or replaces the observed holidays of one year.
func WithHolidays(year int, days []time.Time) Option {
	return func(c *Calendar) {
		c.holidays.set(year, days)
	}
}

type contractRule struct {
	class models.ContractClass
	rule  models.ExpirationRule
}

// Calendar is a holiday-aware business-day calendar with contract expiration rules.
type Calendar struct {
	loc         *time.Location
	closeHour   int
	closeMinute int
	holidays    holidayTable
	contracts   map[string]contractRule
}

// New builds a calendar on the built-in holiday table.
func New(opts ...Option) (*Calendar, error) {
	c := &Calendar{
		closeHour: 17,
		holidays:  defaultHolidayTable(),
		contracts: make(map[string]contractRule),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.loc == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %s: %w", DefaultTimezone, err)
		}
		c.loc = loc
	}
	if c.closeHour < 0 || c.closeHour > 23 || c.closeMinute < 0 || c.closeMinute > 59 {
		return nil, fmt.Errorf("close %02d:%02d: %w", c.closeHour, c.closeMinute, errs.ErrInvalidArgument)
	}
	return c, nil
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Years returns the covered holiday years in ascending order.
func (c *Calendar) Years() []int {
	years := make([]int, 0, len(c.holidays))
	for y := range c.holidays {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Register binds a symbol to its expiration rule. An empty rule picks the class default.
func (c *Calendar) Register(symbol string, class models.ContractClass, rule models.ExpirationRule) error {
	if symbol == "" {
		return fmt.Errorf("empty symbol: %w", errs.ErrInvalidArgument)
	}
	if rule == "" {
		switch class {
		case models.ClassIndex:
			rule = models.RuleWeeklyFriday
		case models.ClassCommodity:
			rule = models.RuleThirdFriday
		default:
			return fmt.Errorf("symbol %s: unknown contract class %q: %w", symbol, class, errs.ErrInvalidArgument)
		}
	}
	switch rule {
	case models.RuleWeeklyFriday, models.RuleThirdLastBusinessDay, models.RuleBeforeTwentyFifth, models.RuleThirdFriday:
	default:
		return fmt.Errorf("symbol %s: unknown expiration rule %q: %w", symbol, rule, errs.ErrInvalidArgument)
	}
	c.contracts[symbol] = contractRule{class: class, rule: rule}
	return nil
}

// IsHoliday reports whether the y-m-d of d is an observed holiday.
func (c *Calendar) IsHoliday(d time.Time) (bool, error) {
	days, ok := c.holidays[d.Year()]
	if !ok {
		return false, fmt.Errorf("no holiday table for %d (have %v): %w", d.Year(), c.Years(), errs.ErrCalendarDataGap)
	}
	_, hit := days[util.Date(d.Year(), d.Month(), d.Day())]
	return hit, nil
}

// IsTradingDay reports whether the y-m-d of d is neither a weekend nor a holiday.
func (c *Calendar) IsTradingDay(d time.Time) (bool, error) {
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, nil
	}
	hol, err := c.IsHoliday(d)
	if err != nil {
		return false, err
	}
	return !hol, nil
}

// TradingDaysBetween counts trading days in [start, end] by calendar date.
// It returns 0 when start is after end.
func (c *Calendar) TradingDaysBetween(start, end time.Time) (int, error) {
	from := util.Date(start.Year(), start.Month(), start.Day())
	to := util.Date(end.Year(), end.Month(), end.Day())
	n := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		ok, err := c.IsTradingDay(d)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// NextTradingDay returns the first trading day strictly after d.
func (c *Calendar) NextTradingDay(d time.Time) (time.Time, error) {
	return c.step(d, 1)
}

// PreviousTradingDay returns the last trading day strictly before d.
func (c *Calendar) PreviousTradingDay(d time.Time) (time.Time, error) {
	return c.step(d, -1)
}

func (c *Calendar) step(d time.Time, dir int) (time.Time, error) {
	cur := util.Date(d.Year(), d.Month(), d.Day())
	// a week of holidays in a row does not exist; bound the scan anyway
	for i := 0; i < 14; i++ {
		cur = cur.AddDate(0, 0, dir)
		ok, err := c.IsTradingDay(cur)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return cur, nil
		}
	}
	return time.Time{}, fmt.Errorf("no trading day within 14 days of %s: %w", util.FormatDate(d), errs.ErrCalendarDataGap)
}

// Today returns the exchange-local trading date of now.
func (c *Calendar) Today(now time.Time) time.Time {
	return util.DateIn(now, c.loc)
}

// CloseOf returns the exchange close instant on the given date.
func (c *Calendar) CloseOf(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.closeHour, c.closeMinute, 0, 0, c.loc)
}
