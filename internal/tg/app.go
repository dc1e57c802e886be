package tg

import (
	"fmt"

	"clientwatch/internal/config"
	"clientwatch/internal/infrastructure/logger"
	"clientwatch/internal/notifier"
	"clientwatch/internal/settings"
	"clientwatch/internal/stats"
	"clientwatch/internal/store"
	"clientwatch/internal/tracker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var TelegramBot *Bot

// Bot телеграм слой: принимает обновления, нормализует их в события трекера
// и отвечает на команды сотрудников
type Bot struct {
	botAPI *tgbotapi.BotAPI

	store    *store.Store
	tracker  *tracker.Tracker
	stats    *stats.Service
	settings *settings.Manager
	notifier notifier.Notifier
}

// NewBotAPI авторизует низкоуровневый клиент телеграма.
// Клиент создается до бота: он же нужен уведомлятору.
func NewBotAPI() (*tgbotapi.BotAPI, error) {
	botAPI, err := tgbotapi.NewBotAPI(config.File.TelegramConfig.Token)
	if err != nil {
		return nil, fmt.Errorf("не удается инициализировать бота telegram: %v", err)
	}
	logger.Infof("Бот авторизован как @%s", botAPI.Self.UserName)
	return botAPI, nil
}

// InitTelegramBot создает глобальный экземпляр бота
func InitTelegramBot(botAPI *tgbotapi.BotAPI, st *store.Store, tr *tracker.Tracker, statsService *stats.Service, settingsManager *settings.Manager, ntf notifier.Notifier) error {
	var err error
	TelegramBot, err = NewBot(botAPI, st, tr, statsService, settingsManager, ntf)
	return err
}

// NewBot конструктор нового бота
func NewBot(botAPI *tgbotapi.BotAPI, st *store.Store, tr *tracker.Tracker, statsService *stats.Service, settingsManager *settings.Manager, ntf notifier.Notifier) (*Bot, error) {
	app := Bot{
		botAPI:   botAPI,
		store:    st,
		tracker:  tr,
		stats:    statsService,
		settings: settingsManager,
		notifier: ntf,
	}

	go app.HandleUpdates()
	return &app, nil
}

// HandleUpdates запускает обработку всех обновлений поступающих боту из телеграмма
func (app *Bot) HandleUpdates() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = config.File.TelegramConfig.UpdateTimeout
	updates := app.botAPI.GetUpdatesChan(u)

	for update := range updates {
		go func(update tgbotapi.Update) {
			switch {
			case update.CallbackQuery != nil:
				app.handleCallback(update.CallbackQuery)
			case update.Message != nil && (update.Message.Chat.IsGroup() || update.Message.Chat.IsSuperGroup()):
				app.handleGroupMessage(update.Message)
			case update.Message != nil && update.Message.Chat.IsPrivate():
				app.handlePrivateMessage(update.Message)
			}
		}(update)
	}
}

// SendMessage отправляет сообщение с логированием ошибки
func (app *Bot) SendMessage(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	sent, err := app.botAPI.Send(msg)
	if err != nil {
		logger.Errorf("Не удалось отправить сообщение: %v", err)
	}
	return sent, err
}

// reply шлет текстовый ответ в чат, HTML разметка включена
func (app *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	app.SendMessage(msg)
}
