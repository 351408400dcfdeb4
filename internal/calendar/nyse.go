package calendar

import (
	"fmt"
	"time"
)

// NYSEService is the default Service implementation: a single NYSE-style
// equity calendar (regular hours 9:30-16:00 ET, weekday trading days minus
// the fixed/floating holiday set, 13:00 ET early closes around
// Thanksgiving and Christmas). Other exchange arguments are accepted and
// resolved against the same NYSE schedule.
type NYSEService struct {
	loc *time.Location
}

// NewNYSEService constructs an NYSEService, loading the America/New_York
// zone once at startup.
func NewNYSEService() (*NYSEService, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("calendar: load America/New_York: %w", err)
	}
	return &NYSEService{loc: loc}, nil
}

func (s *NYSEService) isHoliday(date time.Time) bool {
	for _, h := range nyseHolidays(date.Year()) {
		if sameDate(date, h) {
			return true
		}
	}
	return false
}

func (s *NYSEService) isEarlyClose(date time.Time) bool {
	for _, d := range nyseEarlyCloses(date.Year()) {
		if sameDate(date, d) {
			return true
		}
	}
	return false
}

// GetTradingSession implements Service.
func (s *NYSEService) GetTradingSession(date time.Time, exchange string) (TradingSession, error) {
	local := date.In(s.loc)
	year, month, day := local.Date()
	weekend := local.Weekday() == time.Saturday || local.Weekday() == time.Sunday
	holiday := s.isHoliday(local)

	if weekend || holiday {
		return TradingSession{
			IsTradingDay: false,
			IsHoliday:    holiday,
			Timezone:     s.loc,
		}, nil
	}

	open := time.Date(year, month, day, 9, 30, 0, 0, s.loc)
	closeHour, closeMin := 16, 0
	early := s.isEarlyClose(local)
	if early {
		closeHour, closeMin = 13, 0
	}
	closeT := time.Date(year, month, day, closeHour, closeMin, 0, 0, s.loc)

	return TradingSession{
		IsTradingDay: true,
		IsHoliday:    false,
		Open:         open,
		Close:        closeT,
		Timezone:     s.loc,
		EarlyClose:   early,
	}, nil
}

// IsMarketOpen implements Service. When includeExtended is true, the
// window widens to 4:00-20:00 ET (pre-market through post-market).
func (s *NYSEService) IsMarketOpen(ts time.Time, exchange string, includeExtended bool) (bool, error) {
	sess, err := s.GetTradingSession(ts, exchange)
	if err != nil {
		return false, err
	}
	if !sess.IsTradingDay {
		return false, nil
	}
	local := ts.In(s.loc)
	if !includeExtended {
		return !local.Before(sess.Open) && local.Before(sess.Close), nil
	}
	year, month, day := local.Date()
	preOpen := time.Date(year, month, day, 4, 0, 0, 0, s.loc)
	postClose := time.Date(year, month, day, 20, 0, 0, 0, s.loc)
	return !local.Before(preOpen) && local.Before(postClose), nil
}

// CountTradingTime implements Service.
func (s *NYSEService) CountTradingTime(start, end time.Time, unit TimeUnit, exchange string) (int64, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("calendar: end %v precedes start %v", end, start)
	}
	switch unit {
	case UnitSeconds:
		var total int64
		cursor := start
		for cursor.Before(end) {
			sess, err := s.GetTradingSession(cursor, exchange)
			if err != nil {
				return 0, err
			}
			dayEnd := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 23, 59, 59, 0, s.loc)
			segEnd := end
			if dayEnd.Before(segEnd) {
				segEnd = dayEnd
			}
			if sess.IsTradingDay {
				lo, hi := sess.Open, sess.Close
				if lo.Before(cursor) {
					lo = cursor
				}
				if hi.After(segEnd) {
					hi = segEnd
				}
				if hi.After(lo) {
					total += int64(hi.Sub(lo).Seconds())
				}
			}
			cursor = time.Date(cursor.Year(), cursor.Month(), cursor.Day()+1, 0, 0, 0, 0, s.loc)
		}
		return total, nil
	case UnitDays:
		var days int64
		cursor := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.loc)
		for !cursor.After(end) {
			sess, err := s.GetTradingSession(cursor, exchange)
			if err != nil {
				return 0, err
			}
			if sess.IsTradingDay {
				days++
			}
			cursor = cursor.AddDate(0, 0, 1)
		}
		return days, nil
	case UnitWeeks:
		days, err := s.CountTradingTime(start, end, UnitDays, exchange)
		if err != nil {
			return 0, err
		}
		return days / 5, nil
	default:
		return 0, fmt.Errorf("calendar: unknown unit %q", unit)
	}
}

// NextTradingDate implements Service.
func (s *NYSEService) NextTradingDate(date time.Time, n int, exchange string) (time.Time, error) {
	cursor := date
	for n > 0 {
		cursor = cursor.AddDate(0, 0, 1)
		sess, err := s.GetTradingSession(cursor, exchange)
		if err != nil {
			return time.Time{}, err
		}
		if sess.IsTradingDay {
			n--
		}
	}
	return cursor, nil
}

// PreviousTradingDate implements Service.
func (s *NYSEService) PreviousTradingDate(date time.Time, n int, exchange string) (time.Time, error) {
	cursor := date
	for n > 0 {
		cursor = cursor.AddDate(0, 0, -1)
		sess, err := s.GetTradingSession(cursor, exchange)
		if err != nil {
			return time.Time{}, err
		}
		if sess.IsTradingDay {
			n--
		}
	}
	return cursor, nil
}

// Timezone implements Service. exchangeGroup/assetClass are accepted for
// interface symmetry; the NYSE calendar always resolves to America/New_York.
func (s *NYSEService) Timezone(exchangeGroup, assetClass string) (*time.Location, error) {
	return s.loc, nil
}
