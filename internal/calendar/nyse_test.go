package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNYSE(t *testing.T) *NYSEService {
	t.Helper()
	svc, err := NewNYSEService()
	require.NoError(t, err)
	return svc
}

func TestGetTradingSessionWeekend(t *testing.T) {
	svc := mustNYSE(t)
	saturday := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) // a Saturday
	sess, err := svc.GetTradingSession(saturday, "NYSE")
	require.NoError(t, err)
	assert.False(t, sess.IsTradingDay, "expected weekend to not be a trading day")
}

func TestGetTradingSessionHoliday(t *testing.T) {
	svc := mustNYSE(t)
	christmas := time.Date(2026, 12, 25, 12, 0, 0, 0, time.UTC)
	sess, err := svc.GetTradingSession(christmas, "NYSE")
	require.NoError(t, err)
	assert.False(t, sess.IsTradingDay, "expected Christmas to be a holiday, got %+v", sess)
	assert.True(t, sess.IsHoliday, "expected Christmas to be a holiday, got %+v", sess)
}

func TestGetTradingSessionRegularDay(t *testing.T) {
	svc := mustNYSE(t)
	// 2026-07-29 is a Wednesday, not a holiday.
	day := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	sess, err := svc.GetTradingSession(day, "NYSE")
	require.NoError(t, err)
	require.True(t, sess.IsTradingDay, "expected a regular Wednesday to be a trading day")
	assert.Equal(t, 9, sess.Open.Hour())
	assert.Equal(t, 30, sess.Open.Minute())
	assert.Equal(t, 16, sess.Close.Hour())
}

func TestIsMarketOpen(t *testing.T) {
	svc := mustNYSE(t)
	loc, _ := time.LoadLocation("America/New_York")
	open := time.Date(2026, 7, 29, 10, 0, 0, 0, loc)
	closed := time.Date(2026, 7, 29, 20, 0, 0, 0, loc)
	postMarket := time.Date(2026, 7, 29, 19, 0, 0, 0, loc)

	isOpen, err := svc.IsMarketOpen(open, "NYSE", false)
	require.NoError(t, err)
	assert.True(t, isOpen, "expected market open at 10:00 ET")

	isOpen, err = svc.IsMarketOpen(closed, "NYSE", false)
	require.NoError(t, err)
	assert.False(t, isOpen, "expected market closed at 20:00 ET without extended hours")

	isOpen, err = svc.IsMarketOpen(postMarket, "NYSE", true)
	require.NoError(t, err)
	assert.True(t, isOpen, "expected extended-hours market open at 19:00 ET")
}

func TestNextAndPreviousTradingDate(t *testing.T) {
	svc := mustNYSE(t)
	friday := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	next, err := svc.NextTradingDate(friday, 1, "NYSE")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, next.Weekday(), "expected next trading date after a Friday to be Monday")

	prev, err := svc.PreviousTradingDate(next, 1, "NYSE")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, prev.Weekday(), "expected previous trading date to be Friday")
}
