package notifier

import (
	"testing"

	"clientwatch/internal/model"
	"clientwatch/internal/stats"

	"github.com/stretchr/testify/assert"
)

type fixedThresholds struct{}

func (fixedThresholds) DelayMinutes() (int, int, int) { return 15, 30, 60 }

func TestReminderTextPerTier(t *testing.T) {
	n := &TelegramNotifier{policy: fixedThresholds{}}
	msg := &model.Message{
		ID:               1,
		ChatID:           -100,
		ClientTelegramID: 9000,
		ClientUserName:   "client",
		MessageText:      "Добрый день",
	}

	text := n.reminderText(msg, model.NotificationWarning1)
	assert.Contains(t, text, "Вы не ответили на сообщение клиента")
	assert.Contains(t, text, "@client")
	assert.Contains(t, text, "15 мин")

	text = n.reminderText(msg, model.NotificationWarning3)
	assert.Contains(t, text, "60 мин")
}

func TestReminderTextWithoutUsername(t *testing.T) {
	n := &TelegramNotifier{policy: fixedThresholds{}}
	msg := &model.Message{ClientTelegramID: 9000, MessageText: "Вопрос"}

	text := n.reminderText(msg, model.NotificationWarning2)
	assert.Contains(t, text, "ID клиента: <code>9000</code>")
	assert.Contains(t, text, "30 мин")
}

func TestReminderTextTruncatesLongMessage(t *testing.T) {
	n := &TelegramNotifier{policy: fixedThresholds{}}
	long := make([]rune, 0, 120)
	for i := 0; i < 120; i++ {
		long = append(long, 'ж')
	}
	msg := &model.Message{ClientTelegramID: 1, MessageText: string(long)}

	text := n.reminderText(msg, model.NotificationWarning1)
	assert.Contains(t, text, "...")
	assert.NotContains(t, text, string(long))
}

func TestDailyReportTextCleanDay(t *testing.T) {
	n := &TelegramNotifier{policy: fixedThresholds{}}
	text := n.dailyReportText(stats.EmployeeStats{
		Total:                  8,
		RespondedByMe:          8,
		AvgResponseTimeMinutes: 4.2,
		UniqueClients:          5,
		EfficiencyPercent:      100,
	})

	assert.Contains(t, text, "Всего сообщений: 8")
	assert.Contains(t, text, "Среднее время ответа: 4.2 мин")
	assert.Contains(t, text, "Отличная работа")
	assert.NotContains(t, text, "Превышений")
}

func TestDailyReportTextWithMisses(t *testing.T) {
	n := &TelegramNotifier{policy: fixedThresholds{}}
	text := n.dailyReportText(stats.EmployeeStats{
		Total:         10,
		RespondedByMe: 6,
		Missed:        4,
		Exceeded1:     2,
	})

	assert.Contains(t, text, "Пропущено: 4")
	assert.Contains(t, text, "Более 15 мин: 2")
	assert.Contains(t, text, "Обратите внимание на пропущенные")
}

type customThresholds struct{}

func (customThresholds) DelayMinutes() (int, int, int) { return 5, 10, 20 }

func TestDailyReportTextUsesConfiguredThresholds(t *testing.T) {
	n := &TelegramNotifier{policy: customThresholds{}}
	text := n.dailyReportText(stats.EmployeeStats{
		Total:                  6,
		RespondedByMe:          6,
		AvgResponseTimeMinutes: 7.5,
		Exceeded1:              2,
		Exceeded2:              1,
		Exceeded3:              1,
	})

	assert.Contains(t, text, "Более 5 мин: 2")
	assert.Contains(t, text, "Более 10 мин: 1")
	assert.Contains(t, text, "Более 20 мин: 1")
	assert.NotContains(t, text, "Более 15 мин")
	assert.NotContains(t, text, "1 часа")
}
