package settings

import (
	"errors"
	"testing"
	"time"

	"clientwatch/internal/model"
	pkglogger "clientwatch/pkg/logger"
	"clientwatch/pkg/logger/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) interfaces.Logger {
	t.Helper()
	lg, err := pkglogger.New(pkglogger.Config{})
	require.NoError(t, err)
	return lg
}

type fakeSource struct {
	rows  []model.SystemSetting
	err   error
	calls int
}

func (f *fakeSource) AllSettings() ([]model.SystemSetting, error) {
	f.calls++
	return f.rows, f.err
}

func moscowTime(t *testing.T, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	return time.Date(2026, 3, 10, hour, min, 0, 0, loc)
}

func TestGetDelaysInsideWorkHours(t *testing.T) {
	src := &fakeSource{rows: []model.SystemSetting{
		{Key: KeyDelay1, Value: "10"},
		{Key: KeyDelay2, Value: "20"},
		{Key: KeyDelay3, Value: "40"},
	}}
	m := New(src, testLogger(t))
	m.now = func() time.Time { return moscowTime(t, 12, 0) }

	workHours, d1, d2, d3 := m.GetDelays()

	assert.True(t, workHours)
	assert.Equal(t, 600, d1)
	assert.Equal(t, 1200, d2)
	assert.Equal(t, 2400, d3)
}

func TestGetDelaysOutsideWorkHoursShiftsToWindowStart(t *testing.T) {
	src := &fakeSource{rows: []model.SystemSetting{
		{Key: KeyDelay1, Value: "15"},
		{Key: KeyDelay2, Value: "30"},
		{Key: KeyDelay3, Value: "60"},
	}}
	m := New(src, testLogger(t))
	// 23:00 по Москве, до 9:00 следующего дня ровно 10 часов
	m.now = func() time.Time { return moscowTime(t, 23, 0) }

	workHours, d1, d2, d3 := m.GetDelays()

	shift := 10 * 60 * 60
	assert.False(t, workHours)
	assert.Equal(t, shift+15*60, d1)
	assert.Equal(t, shift+30*60, d2)
	assert.Equal(t, shift+60*60, d3)
}

func TestGetDelaysWorkHoursToggleDisabled(t *testing.T) {
	src := &fakeSource{rows: []model.SystemSetting{
		{Key: KeyWorkHoursOnly, Value: "false"},
	}}
	m := New(src, testLogger(t))
	m.now = func() time.Time { return moscowTime(t, 23, 0) }

	workHours, d1, _, _ := m.GetDelays()

	assert.False(t, workHours)
	assert.Equal(t, 15*60, d1)
}

func TestDefaultsOnStoreFailure(t *testing.T) {
	m := New(&fakeSource{err: errors.New("connection refused")}, testLogger(t))
	m.now = func() time.Time { return moscowTime(t, 12, 0) }

	_, d1, d2, d3 := m.GetDelays()

	assert.Equal(t, 15*60, d1)
	assert.Equal(t, 30*60, d2)
	assert.Equal(t, 60*60, d3)
	assert.True(t, m.NotificationsEnabled())
	assert.True(t, m.DailyReportsEnabled())
	assert.Equal(t, "18:00", m.DailyReportTime())
}

func TestCacheAndInvalidate(t *testing.T) {
	src := &fakeSource{rows: []model.SystemSetting{
		{Key: KeyNotificationsOn, Value: "false"},
	}}
	m := New(src, testLogger(t))
	m.now = func() time.Time { return moscowTime(t, 12, 0) }

	assert.False(t, m.NotificationsEnabled())
	assert.False(t, m.NotificationsEnabled())
	assert.Equal(t, 1, src.calls, "повторное чтение должно идти из кэша")

	src.rows = []model.SystemSetting{{Key: KeyNotificationsOn, Value: "true"}}
	m.Invalidate()

	assert.True(t, m.NotificationsEnabled())
	assert.Equal(t, 2, src.calls)
}

func TestBrokenValueFallsBackToDefault(t *testing.T) {
	src := &fakeSource{rows: []model.SystemSetting{
		{Key: KeyDelay1, Value: "не число"},
	}}
	m := New(src, testLogger(t))
	m.now = func() time.Time { return moscowTime(t, 12, 0) }

	d1, _, _ := m.DelayMinutes()
	assert.Equal(t, 15, d1)
}
