package calendar

import "time"

// easter returns the Gregorian-calendar date of Easter Sunday for year,
// via the standard computus algorithm.
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func goodFriday(year int) time.Time {
	return easter(year).AddDate(0, 0, -2)
}

func nthWeekday(year, month int, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	offset := int(weekday - d.Weekday())
	if offset < 0 {
		offset += 7
	}
	return d.AddDate(0, 0, offset+(n-1)*7)
}

func lastWeekday(year, month int, weekday time.Weekday) time.Time {
	d := time.Date(year, time.Month(month+1), 0, 0, 0, 0, 0, time.UTC)
	offset := int(d.Weekday() - weekday)
	if offset < 0 {
		offset += 7
	}
	return d.AddDate(0, 0, -offset)
}

// observed moves a fixed-date holiday off the weekend: Saturday to the
// preceding Friday, Sunday to the following Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// nyseHolidays returns the full-closure NYSE holidays for year, at
// midnight UTC (date-only; comparisons truncate the trading-day argument
// the same way).
func nyseHolidays(year int) []time.Time {
	return []time.Time{
		observed(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, 1, time.Monday, 3),  // MLK Day
		nthWeekday(year, 2, time.Monday, 3),  // Presidents Day
		goodFriday(year),
		lastWeekday(year, 5, time.Monday), // Memorial Day
		observed(time.Date(year, 6, 19, 0, 0, 0, 0, time.UTC)), // Juneteenth
		observed(time.Date(year, 7, 4, 0, 0, 0, 0, time.UTC)),  // Independence Day
		nthWeekday(year, 9, time.Monday, 1),    // Labor Day
		nthWeekday(year, 11, time.Thursday, 4), // Thanksgiving
		observed(time.Date(year, 12, 25, 0, 0, 0, 0, time.UTC)), // Christmas
	}
}

// nyseEarlyCloses returns the 1 p.m. ET early-close dates for year: the day
// after Thanksgiving and Christmas Eve, each observed off the weekend.
func nyseEarlyCloses(year int) []time.Time {
	thanksgiving := nthWeekday(year, 11, time.Thursday, 4)
	return []time.Time{
		thanksgiving.AddDate(0, 0, 1),
		observed(time.Date(year, 12, 24, 0, 0, 0, 0, time.UTC)),
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
