package calendar

import (
	"time"

	"FinRange/pkg/util"
)

// HolidayTableVersion identifies the built-in observed exchange holiday table.
// Years outside the table must be supplied with WithHolidays.
const HolidayTableVersion = "us-futures-2024-2027"

var observedHolidays = map[int][]string{
	2024: {
		"2024-01-01", "2024-01-15", "2024-02-19", "2024-03-29", "2024-05-27",
		"2024-06-19", "2024-07-04", "2024-09-02", "2024-11-28", "2024-12-25",
	},
	2025: {
		"2025-01-01", "2025-01-20", "2025-02-17", "2025-04-18", "2025-05-26",
		"2025-06-19", "2025-07-04", "2025-09-01", "2025-11-27", "2025-12-25",
	},
	2026: {
		"2026-01-01", "2026-01-19", "2026-02-16", "2026-04-03", "2026-05-25",
		"2026-06-19", "2026-07-03", "2026-09-07", "2026-11-26", "2026-12-25",
	},
	2027: {
		"2027-01-01", "2027-01-18", "2027-02-15", "2027-03-26", "2027-05-31",
		"2027-06-18", "2027-07-05", "2027-09-06", "2027-11-25", "2027-12-24",
	},
}

// holidayTable maps covered years to their observed holiday dates.
type holidayTable map[int]map[time.Time]struct{}

func defaultHolidayTable() holidayTable {
	t := make(holidayTable, len(observedHolidays))
	for year, days := range observedHolidays {
		set := make(map[time.Time]struct{}, len(days))
		for _, s := range days {
			d, ok := util.ParseDate(s)
			if !ok {
				panic("calendar: bad built-in holiday " + s)
			}
			set[d] = struct{}{}
		}
		t[year] = set
	}
	return t
}

func (t holidayTable) set(year int, days []time.Time) {
	set := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		set[util.Date(d.Year(), d.Month(), d.Day())] = struct{}{}
	}
	t[year] = set
}
