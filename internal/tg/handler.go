package tg

import (
	"fmt"
	"strconv"
	"strings"

	"clientwatch/internal/infrastructure/logger"
	"clientwatch/internal/model"
	"clientwatch/internal/stats"
	"clientwatch/internal/tracker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleGroupMessage разбирает сообщение в рабочем чате: ответ сотрудника
// закрывает сессию клиента, сообщение клиента раздается копиями сотрудникам
func (app *Bot) handleGroupMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.ID == app.botAPI.Self.ID {
		return
	}

	employee, err := app.store.EmployeeByTelegramID(msg.From.ID)
	if err == nil && employee.IsActive {
		app.handleEmployeeGroupMessage(msg, employee)
		return
	}

	app.handleClientMessage(msg)
}

// handleEmployeeGroupMessage обрабатывает сообщение сотрудника в рабочем чате
func (app *Bot) handleEmployeeGroupMessage(msg *tgbotapi.Message, employee *model.Employee) {
	if msg.IsCommand() && msg.Command() == "mark_deleted" {
		app.handleMarkDeleted(msg, employee)
		return
	}

	if msg.ReplyToMessage == nil {
		// Сообщение сотрудника без reply сессий не закрывает
		return
	}

	err := app.tracker.MarkAsResponded(tracker.EmployeeReplyEvent{
		ChatID:           msg.Chat.ID,
		MessageID:        int64(msg.MessageID),
		ReplyToMessageID: int64(msg.ReplyToMessage.MessageID),
	}, employee)
	if err != nil && err != tracker.ErrUnknownMessage {
		logger.Errorf("Ошибка закрытия сессии по ответу сотрудника %d: %v", employee.ID, err)
	}
}

// handleMarkDeleted помечает сообщение клиента удаленным по реплаю админа
func (app *Bot) handleMarkDeleted(msg *tgbotapi.Message, employee *model.Employee) {
	if !employee.IsAdmin {
		app.reply(msg.Chat.ID, "Команда доступна только администраторам")
		return
	}
	if msg.ReplyToMessage == nil {
		app.reply(msg.Chat.ID, "Ответьте командой /mark_deleted на сообщение клиента")
		return
	}

	count, err := app.tracker.MarkAsDeleted(tracker.DeleteCommand{
		ChatID:    msg.Chat.ID,
		MessageID: int64(msg.ReplyToMessage.MessageID),
	})
	if err == tracker.ErrUnknownMessage {
		app.reply(msg.Chat.ID, "Это сообщение не отслеживается")
		return
	}
	if err != nil {
		logger.Errorf("Ошибка пометки сообщения удаленным: %v", err)
		return
	}

	app.reply(msg.Chat.ID, fmt.Sprintf("🗑 Сообщение помечено удаленным (%d копий)", count))
}

// handleClientMessage раздает сообщение клиента копиями всем сотрудникам,
// которые состоят в этом чате
func (app *Bot) handleClientMessage(msg *tgbotapi.Message) {
	if msg.Text == "" && msg.Caption == "" {
		return
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	employees, err := app.store.ListEmployees(true)
	if err != nil {
		logger.Errorf("Не удалось получить список сотрудников: %v", err)
		return
	}

	event := tracker.ClientMessageEvent{
		ChatID:           msg.Chat.ID,
		MessageID:        int64(msg.MessageID),
		ClientTelegramID: msg.From.ID,
		ClientUserName:   msg.From.UserName,
		ClientName:       strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName),
		Text:             text,
	}
	if msg.ReplyToMessage != nil {
		event.IsReply = true
		event.ReplyToMessageID = int64(msg.ReplyToMessage.MessageID)
	}

	tracked := 0
	for _, employee := range employees {
		if !app.isChatMember(msg.Chat.ID, employee.TelegramID) {
			continue
		}
		if _, err := app.tracker.TrackMessage(event, employee.ID); err != nil {
			logger.Errorf("Не удалось сохранить копию для сотрудника %d: %v", employee.ID, err)
			continue
		}
		tracked++
	}

	logger.Infof("Сообщение %d клиента %d в чате %d разошлось %d сотрудникам",
		msg.MessageID, msg.From.ID, msg.Chat.ID, tracked)
}

// isChatMember состоит ли пользователь в чате
func (app *Bot) isChatMember(chatID, userID int64) bool {
	member, err := app.botAPI.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		logger.Debugf("Проверка членства %d в чате %d не удалась: %v", userID, chatID, err)
		return false
	}

	return tracker.EligibleChatStatus(member.Status)
}

// handlePrivateMessage личка: команды и откладывание через пересылку
func (app *Bot) handlePrivateMessage(msg *tgbotapi.Message) {
	employee, err := app.store.EmployeeByTelegramID(msg.From.ID)
	if err != nil {
		app.reply(msg.Chat.ID, "Вы не зарегистрированы как сотрудник. Обратитесь к администратору.")
		return
	}

	if msg.IsCommand() {
		app.handleCommand(msg, employee)
		return
	}

	if msg.ForwardDate != 0 {
		app.handleForward(msg, employee)
		return
	}
}

// handleCommand обрабатывает команды в личке
func (app *Bot) handleCommand(msg *tgbotapi.Message, employee *model.Employee) {
	switch msg.Command() {
	case "start":
		app.reply(msg.Chat.ID, fmt.Sprintf(
			"Здравствуйте, %s!\n\nЯ слежу за сообщениями клиентов в рабочих чатах и напоминаю о неотвеченных.\n\nКоманды: /help", employee.FullName))
	case "help":
		app.reply(msg.Chat.ID, helpText(employee.IsAdmin))
	case "stats":
		app.handleStatsCommand(msg, employee)
	case "admin_stats":
		app.handleAdminStatsCommand(msg, employee)
	case "deferred":
		app.handleDeferredList(msg, employee)
	default:
		app.reply(msg.Chat.ID, "Неизвестная команда, /help покажет доступные")
	}
}

func helpText(isAdmin bool) string {
	var b strings.Builder
	b.WriteString("<b>Команды:</b>\n")
	b.WriteString("/stats [today|week|month] — ваша статистика\n")
	b.WriteString("/deferred — отложенные сообщения\n")
	b.WriteString("\nПерешлите себе сообщение клиента из рабочего чата, чтобы отложить его.\n")
	if isAdmin {
		b.WriteString("\n<b>Админские:</b>\n")
		b.WriteString("/admin_stats [today|week|month] — сводка по всем\n")
		b.WriteString("/mark_deleted — реплаем в чате, пометить сообщение удаленным\n")
	}
	return b.String()
}

// parsePeriodArg возвращает период из аргумента команды, по умолчанию сегодня
func parsePeriodArg(args string) (string, error) {
	period := strings.TrimSpace(strings.ToLower(args))
	switch period {
	case "":
		return stats.PeriodToday, nil
	case stats.PeriodToday, stats.PeriodWeek, stats.PeriodMonth:
		return period, nil
	}
	return "", fmt.Errorf("неизвестный период %q", period)
}

func periodLabel(period string) string {
	switch period {
	case stats.PeriodWeek:
		return "за неделю"
	case stats.PeriodMonth:
		return "за месяц"
	default:
		return "за сегодня"
	}
}

// handleStatsCommand отправляет сотруднику его статистику
func (app *Bot) handleStatsCommand(msg *tgbotapi.Message, employee *model.Employee) {
	period, err := parsePeriodArg(msg.CommandArguments())
	if err != nil {
		app.reply(msg.Chat.ID, "Период: /stats today, /stats week или /stats month")
		return
	}

	st, err := app.stats.EmployeeStatsForPeriod(*employee, period)
	if err != nil {
		logger.Errorf("Статистика сотрудника %d не посчитана: %v", employee.ID, err)
		app.reply(msg.Chat.ID, "Не удалось посчитать статистику, попробуйте позже")
		return
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Ваша статистика %s:</b>\n\n", periodLabel(period)))
	b.WriteString(fmt.Sprintf("📨 Всего сообщений: %d\n", st.Total))
	b.WriteString(fmt.Sprintf("✅ Отвечено: %d\n", st.RespondedByMe))
	b.WriteString(fmt.Sprintf("❌ Пропущено: %d\n", st.Missed))
	if st.Deferred > 0 {
		b.WriteString(fmt.Sprintf("⏸ Отложено: %d\n", st.Deferred))
	}
	if st.RespondedByMe > 0 {
		b.WriteString(fmt.Sprintf("⏱ Среднее время ответа: %.1f мин\n", st.AvgResponseTimeMinutes))
	}
	b.WriteString(fmt.Sprintf("👥 Уникальных клиентов: %d\n", st.UniqueClients))
	b.WriteString(fmt.Sprintf("📈 Эффективность: %.1f%%", st.EfficiencyPercent))
	app.reply(msg.Chat.ID, b.String())
}

// handleAdminStatsCommand отправляет админу сводку по всем сотрудникам
func (app *Bot) handleAdminStatsCommand(msg *tgbotapi.Message, employee *model.Employee) {
	if !employee.IsAdmin {
		app.reply(msg.Chat.ID, "Команда доступна только администраторам")
		return
	}

	period, err := parsePeriodArg(msg.CommandArguments())
	if err != nil {
		app.reply(msg.Chat.ID, "Период: /admin_stats today, week или month")
		return
	}

	overview, err := app.stats.DashboardOverview(period)
	if err != nil {
		logger.Errorf("Сводная статистика не посчитана: %v", err)
		return
	}
	perEmployee, err := app.stats.AllEmployeeStats(period, true)
	if err != nil {
		logger.Errorf("Статистика по сотрудникам не посчитана: %v", err)
		return
	}

	if err := app.notifier.SendAdminReport(employee.TelegramID, overview, perEmployee); err != nil {
		logger.Errorf("Сводка админу %d не отправлена: %v", employee.ID, err)
	}
}

// handleForward пересылка сообщения клиента себе откладывает клиента
func (app *Bot) handleForward(msg *tgbotapi.Message, employee *model.Employee) {
	event := tracker.ForwardToSelfEvent{
		EmployeeID: employee.ID,
		Text:       msg.Text,
	}
	if msg.ForwardFrom != nil {
		event.ClientTelegramID = msg.ForwardFrom.ID
		event.ClientName = strings.TrimSpace(msg.ForwardFrom.FirstName + " " + msg.ForwardFrom.LastName)
	} else if msg.ForwardSenderName != "" {
		// Клиент скрыл аккаунт в пересылках
		event.ClientName = msg.ForwardSenderName
	}

	deferredID, err := app.tracker.Defer(event)
	if err == tracker.ErrNothingToDefer {
		app.reply(msg.Chat.ID, "По этому клиенту нет активных сообщений, откладывать нечего")
		return
	}
	if err != nil {
		logger.Errorf("Ошибка откладывания у сотрудника %d: %v", employee.ID, err)
		app.reply(msg.Chat.ID, "Не удалось отложить сообщение, попробуйте позже")
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, "⏸ Сообщение отложено. Напоминания остановлены.")
	reply.ReplyMarkup = deferredKeyboard(deferredID)
	app.SendMessage(reply)
}

// handleDeferredList показывает активные отложенные сообщения сотрудника
func (app *Bot) handleDeferredList(msg *tgbotapi.Message, employee *model.Employee) {
	items, err := app.store.ActiveDeferredForEmployee(employee.ID)
	if err != nil {
		logger.Errorf("Список отложенных сотрудника %d не получен: %v", employee.ID, err)
		return
	}
	if len(items) == 0 {
		app.reply(msg.Chat.ID, "Отложенных сообщений нет")
		return
	}

	for _, item := range items {
		preview := item.Text
		if len([]rune(preview)) > 100 {
			preview = string([]rune(preview)[:100]) + "..."
		}
		text := fmt.Sprintf("⏸ <b>%s</b> (%s)\n%s",
			item.ClientName, item.CreatedAt.Format("02.01 15:04"), preview)

		out := tgbotapi.NewMessage(msg.Chat.ID, text)
		out.ParseMode = tgbotapi.ModeHTML
		out.ReplyMarkup = deferredKeyboard(item.ID)
		app.SendMessage(out)
	}
}

// deferredKeyboard кнопки управления отложенной записью
func deferredKeyboard(deferredID uint) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Вернуть в работу", fmt.Sprintf("undefer:%d", deferredID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", fmt.Sprintf("deldef:%d", deferredID)),
		),
	)
}

// parseCallbackData разбирает данные callback кнопки вида "действие:id"
func parseCallbackData(data string) (string, uint, error) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("некорректные данные callback: %q", data)
	}
	id, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("некорректный ID в callback %q: %w", data, err)
	}
	return parts[0], uint(id), nil
}

// handleCallback обрабатывает нажатия inline кнопок
func (app *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	action, id, err := parseCallbackData(cb.Data)
	if err != nil {
		logger.Error(err)
		app.answerCallback(cb.ID, "Неизвестная команда")
		return
	}

	switch action {
	case "undefer":
		_, err := app.tracker.Undefer(id)
		switch err {
		case nil:
			app.answerCallback(cb.ID, "Возвращено в работу")
			app.editCallbackMessage(cb, "🔄 Сообщение возвращено в работу")
		case tracker.ErrDeferredInactive:
			app.answerCallback(cb.ID, "Уже обработано")
		default:
			logger.Errorf("Ошибка возврата отложенной записи %d: %v", id, err)
			app.answerCallback(cb.ID, "Ошибка, попробуйте позже")
		}
	case "deldef":
		if err := app.tracker.DeleteDeferred(id); err != nil {
			logger.Errorf("Ошибка удаления отложенной записи %d: %v", id, err)
			app.answerCallback(cb.ID, "Ошибка, попробуйте позже")
			return
		}
		app.answerCallback(cb.ID, "Удалено")
		app.editCallbackMessage(cb, "🗑 Отложенное сообщение удалено")
	default:
		app.answerCallback(cb.ID, "Неизвестная команда")
	}
}

func (app *Bot) answerCallback(callbackID, text string) {
	if _, err := app.botAPI.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		logger.Errorf("Не удалось ответить на callback: %v", err)
	}
}

// editCallbackMessage заменяет сообщение с кнопками итоговым текстом
func (app *Bot) editCallbackMessage(cb *tgbotapi.CallbackQuery, text string) {
	if cb.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, text)
	if _, err := app.botAPI.Send(edit); err != nil {
		logger.Errorf("Не удалось обновить сообщение после callback: %v", err)
	}
}
