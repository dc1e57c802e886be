package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRunAfterSameDay(t *testing.T) {
	now := time.Date(2026, 6, 17, 10, 0, 0, 0, time.UTC)

	at, err := nextRunAfter(now, "18:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 17, 18, 0, 0, 0, time.UTC), at)
}

func TestNextRunAfterRollsToTomorrow(t *testing.T) {
	now := time.Date(2026, 6, 17, 18, 0, 0, 0, time.UTC)

	// Ровно в момент отправки следующий запуск уже завтра
	at, err := nextRunAfter(now, "18:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 18, 18, 0, 0, 0, time.UTC), at)
}

func TestNextRunAfterRejectsGarbage(t *testing.T) {
	now := time.Now()

	_, err := nextRunAfter(now, "вечером")
	assert.Error(t, err)

	_, err = nextRunAfter(now, "25:70")
	assert.Error(t, err)
}
