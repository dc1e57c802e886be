package web

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"clientwatch/internal/config"
	"clientwatch/internal/infrastructure/logger"
	"clientwatch/internal/settings"
	"clientwatch/internal/stats"
	"clientwatch/internal/store"
	"clientwatch/pkg/googlesheet"

	"github.com/gorilla/mux"
	initdata "github.com/telegram-mini-apps/init-data-golang"
)

var App *WebApp

func InitWebApp(st *store.Store, statsService *stats.Service, settingsManager *settings.Manager, sheets *googlesheet.GoogleSheets) error {
	var err error
	App, err = NewWebApp(st, statsService, settingsManager, sheets)
	return err
}

// WebApp JSON API админки: дашборд, статистика, настройки, экспорт
type WebApp struct {
	Router *mux.Router

	store    *store.Store
	stats    *stats.Service
	settings *settings.Manager
	sheets   *googlesheet.GoogleSheets // nil, если экспорт в таблицы выключен
}

// NewWebApp создает и возвращает веб приложение
func NewWebApp(st *store.Store, statsService *stats.Service, settingsManager *settings.Manager, sheets *googlesheet.GoogleSheets) (*WebApp, error) {
	app := WebApp{
		store:    st,
		stats:    statsService,
		settings: settingsManager,
		sheets:   sheets,
	}
	app.Router = app.SetRoutes()
	return &app, nil
}

// HandleUpdates запускает HTTP сервер
func (app *WebApp) HandleUpdates() error {
	conf := config.File.WebConfig
	logger.Infof("Веб-панель запущена на %s:%s", conf.APPIP, conf.APPPORT)

	err := http.ListenAndServe(conf.APPIP+":"+conf.APPPORT, app.Router)
	if err != nil {
		return fmt.Errorf("ошибка при запуске сервера: %v", err)
	}
	return nil
}

// getValidatedData извлекает данные для валидации пользователя, проверяет их и возвращает в случае успеха
func getValidatedData(initData string, token string) (*initdata.InitData, error) {
	if initData == "" {
		return nil, errors.New("missing parameter: initData")
	}
	return validateInitData(initData, token)
}

func validateInitData(initDataStr, token string) (*initdata.InitData, error) {
	expIn := time.Duration(config.File.TelegramConfig.InitDataExpireHour) * time.Hour
	if err := initdata.Validate(initDataStr, token, expIn); err != nil {
		return nil, err
	}
	parsed, err := initdata.Parse(initDataStr)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
