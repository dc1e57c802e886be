package notifier

import (
	"context"
	"fmt"
	"strings"

	"clientwatch/internal/model"
	"clientwatch/internal/stats"
	"clientwatch/pkg/logger/interfaces"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Notifier исходящие уведомления сотрудникам и админам
type Notifier interface {
	SendReminder(employee *model.Employee, msg *model.Message, notificationType string) error
	SendDailyReport(employee *model.Employee, st stats.EmployeeStats) error
	SendAdminReport(adminTelegramID int64, overview stats.Overview, perEmployee []stats.EmployeeStats) error
}

// Thresholds пороговые минуты для подписи напоминаний
type Thresholds interface {
	DelayMinutes() (int, int, int)
}

// TelegramNotifier отправляет уведомления в личку через бота.
// Исходящий поток ограничен rate.Limiter, телеграм режет ботов примерно
// на тридцати сообщениях в секунду.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	policy  Thresholds
	log     interfaces.SimpleLogger
}

// New создает уведомлятор поверх бота
func New(bot *tgbotapi.BotAPI, ratePerSecond float64, burst int, policy Thresholds, log interfaces.SimpleLogger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		policy:  policy,
		log:     log,
	}
}

// send отправляет HTML сообщение с учетом лимита исходящих
func (n *TelegramNotifier) send(chatID int64, text string) error {
	if err := n.limiter.Wait(context.Background()); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	_, err := n.bot.Send(msg)
	return err
}

// SendReminder отправляет напоминание о неотвеченном сообщении клиента
func (n *TelegramNotifier) SendReminder(employee *model.Employee, msg *model.Message, notificationType string) error {
	text := n.reminderText(msg, notificationType)
	if err := n.send(employee.TelegramID, text); err != nil {
		return fmt.Errorf("напоминание сотруднику %d: %w", employee.ID, err)
	}
	n.log.Infof("Напоминание %s отправлено сотруднику %d по копии %d", notificationType, employee.ID, msg.ID)
	return nil
}

// reminderText собирает HTML текст напоминания
func (n *TelegramNotifier) reminderText(msg *model.Message, notificationType string) string {
	d1, d2, d3 := n.policy.DelayMinutes()
	waiting := d1
	switch notificationType {
	case model.NotificationWarning2:
		waiting = d2
	case model.NotificationWarning3:
		waiting = d3
	}

	var client string
	if msg.ClientUserName != "" {
		client = fmt.Sprintf("<a href='https://t.me/%s'>@%s</a> (ID: %d)", msg.ClientUserName, msg.ClientUserName, msg.ClientTelegramID)
	} else {
		client = fmt.Sprintf("ID клиента: <code>%d</code>", msg.ClientTelegramID)
	}

	preview := msg.MessageText
	if len([]rune(preview)) > 50 {
		preview = string([]rune(preview)[:50]) + "..."
	}

	var b strings.Builder
	b.WriteString("⚠️ <b>Вы не ответили на сообщение клиента!</b>\n\n")
	b.WriteString(fmt.Sprintf("Чат: <code>%d</code>\n", msg.ChatID))
	b.WriteString(client + "\n")
	b.WriteString(fmt.Sprintf("Текст: %s\n\n", preview))
	b.WriteString(fmt.Sprintf("⏱ <b>Время ожидания:</b> %d мин.", waiting))
	return b.String()
}

// SendDailyReport отправляет сотруднику ежедневный отчет по его показателям
func (n *TelegramNotifier) SendDailyReport(employee *model.Employee, st stats.EmployeeStats) error {
	if err := n.send(employee.TelegramID, n.dailyReportText(st)); err != nil {
		return fmt.Errorf("отчет сотруднику %d: %w", employee.ID, err)
	}
	return nil
}

// dailyReportText собирает HTML текст ежедневного отчета.
// Подписи превышений берутся из настроенных порогов, как и сами счетчики.
func (n *TelegramNotifier) dailyReportText(st stats.EmployeeStats) string {
	d1, d2, d3 := n.policy.DelayMinutes()

	var b strings.Builder
	b.WriteString("📊 <b>Ваша статистика за сегодня:</b>\n\n")
	b.WriteString(fmt.Sprintf("📨 Всего сообщений: %d\n", st.Total))
	b.WriteString(fmt.Sprintf("✅ Отвечено: %d\n", st.RespondedByMe))
	b.WriteString(fmt.Sprintf("❌ Пропущено: %d\n", st.Missed))
	if st.Deleted > 0 {
		b.WriteString(fmt.Sprintf("🗑 Удалено клиентами: %d\n", st.Deleted))
	}

	if st.RespondedByMe > 0 {
		b.WriteString(fmt.Sprintf("\n⏱ Среднее время ответа: %.1f мин\n", st.AvgResponseTimeMinutes))
		if st.Exceeded1+st.Exceeded2+st.Exceeded3 > 0 {
			b.WriteString("\n⚠️ Превышений времени ответа:\n")
			if st.Exceeded1 > 0 {
				b.WriteString(fmt.Sprintf("  • Более %d мин: %d\n", d1, st.Exceeded1))
			}
			if st.Exceeded2 > 0 {
				b.WriteString(fmt.Sprintf("  • Более %d мин: %d\n", d2, st.Exceeded2))
			}
			if st.Exceeded3 > 0 {
				b.WriteString(fmt.Sprintf("  • Более %d мин: %d\n", d3, st.Exceeded3))
			}
		}
	} else {
		b.WriteString("\n⏱ Среднее время ответа: - (нет ответов)\n")
	}

	b.WriteString(fmt.Sprintf("📈 Эффективность: %.1f%%\n", st.EfficiencyPercent))
	if st.UniqueClients > 0 {
		b.WriteString(fmt.Sprintf("👥 Уникальных клиентов: %d\n", st.UniqueClients))
	}

	if st.Missed == 0 && st.Total > 0 {
		b.WriteString("\n🌟 Отличная работа! Продолжайте в том же духе!")
	} else if st.Missed > 0 {
		b.WriteString("\n⚠️ Обратите внимание на пропущенные сообщения!")
	}

	return b.String()
}

// SendAdminReport отправляет админу сводку по всем сотрудникам
func (n *TelegramNotifier) SendAdminReport(adminTelegramID int64, overview stats.Overview, perEmployee []stats.EmployeeStats) error {
	var b strings.Builder
	b.WriteString("📊 <b>Общая статистика по всем сотрудникам:</b>\n\n")
	b.WriteString(fmt.Sprintf("📨 Всего сообщений: %d\n", overview.Total))
	b.WriteString(fmt.Sprintf("✅ Отвечено: %d\n", overview.Responded))
	b.WriteString(fmt.Sprintf("❌ Пропущено: %d\n", overview.Missed))
	b.WriteString(fmt.Sprintf("👥 Уникальных клиентов: %d\n", overview.UniqueClients))
	if overview.AvgResponseTimeMinutes > 0 {
		b.WriteString(fmt.Sprintf("⏱ Средний ответ: %.1f мин\n", overview.AvgResponseTimeMinutes))
	}

	if len(perEmployee) > 0 {
		b.WriteString("\n<b>По сотрудникам:</b>\n")
		for _, st := range perEmployee {
			b.WriteString(fmt.Sprintf("\n%s: %d сообщений, %d отвечено, %d пропущено, эффективность %.1f%%\n",
				st.FullName, st.Total, st.RespondedByMe, st.Missed, st.EfficiencyPercent))
		}
	}

	if err := n.send(adminTelegramID, b.String()); err != nil {
		return fmt.Errorf("сводный отчет админу %d: %w", adminTelegramID, err)
	}
	return nil
}
