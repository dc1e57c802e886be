package main

import (
	"os"

	"clientwatch/internal/config"
	"clientwatch/internal/infrastructure/db"
	"clientwatch/internal/infrastructure/logger"
	"clientwatch/internal/notifier"
	"clientwatch/internal/report"
	"clientwatch/internal/scheduler"
	"clientwatch/internal/settings"
	"clientwatch/internal/stats"
	"clientwatch/internal/store"
	"clientwatch/internal/tg"
	"clientwatch/internal/tracker"
	u "clientwatch/internal/utils"
	"clientwatch/internal/web"
	"clientwatch/pkg/googlesheet"
)

func main() {
	HandleFatalError(u.InitGlobalLocationTime())

	st := store.New(db.DB)
	settingsManager := settings.New(st, logger.Log)
	statsService := stats.New(st, settingsManager, logger.Log)

	botAPI, err := tg.NewBotAPI()
	HandleFatalError(err)

	tgConf := config.File.TelegramConfig
	ntf := notifier.New(botAPI, tgConf.SendRatePerSecond, tgConf.SendBurst, settingsManager, logger.Log)

	reminders := scheduler.New(settingsManager, st, ntf, logger.Log)
	tr := tracker.New(st, reminders, logger.Log)

	HandleFatalError(tg.InitTelegramBot(botAPI, st, tr, statsService, settingsManager, ntf))

	reports := report.New(settingsManager, statsService, st, ntf, logger.Log)
	go reports.StartDailyReports()

	var sheetsApp *googlesheet.GoogleSheets
	sheetConf := config.File.GoogleSheetConfig
	if sheetConf.Enabled {
		sheetsApp, err = googlesheet.NewGoogleSheets(googlesheet.Config{
			BufferSize:         sheetConf.BufferSize,
			RequestUpdatePause: sheetConf.RequestUpdatePause,
			Logger:             logger.Log,
			CredentialsFile:    sheetConf.CredentialsFile,
		})
		HandleFatalError(err)
	}

	HandleFatalError(web.InitWebApp(st, statsService, settingsManager, sheetsApp))

	HandleFatalError(web.App.HandleUpdates())
}

// HandleFatalError если err ошибка, то логгирует ее и завершает процесс
func HandleFatalError(err error) error {
	if err != nil {
		logger.Error("Критическая ошибка: ", err)
		os.Exit(1)
	}
	return nil
}
