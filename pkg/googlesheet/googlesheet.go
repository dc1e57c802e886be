package googlesheet

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"clientwatch/pkg/logger/interfaces"
	"clientwatch/pkg/request"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type Config struct {
	BufferSize         int
	RequestUpdatePause int // Пауза между запросами к API в секундах
	// Logger определяет способ логирования:
	// - nil: будет использован стандартный log.Logger
	// - false: логирование будет отключено
	// - interfaces.BasicLogger / interfaces.SimpleLogger
	Logger          interface{}
	CredentialsFile string
}

// GoogleSheets структура для работы с Google таблицами через очередь запросов
type GoogleSheets struct {
	*sheets.Service
	Request *request.RequestHandler

	logger         interface{}
	loggingEnabled bool
}

func (app *GoogleSheets) logf(format string, args ...interface{}) {
	if app == nil || !app.loggingEnabled {
		return
	}

	switch l := app.logger.(type) {
	case interfaces.SimpleLogger:
		l.Infof(format, args...)
	case interfaces.BasicLogger:
		l.Printf(format, args...)
	}
}

// NewGoogleSheets создает новый экземпляр GoogleSheets и запускает обработку очереди
func NewGoogleSheets(config Config) (*GoogleSheets, error) {
	handler, err := request.NewRequestHandler(request.Config{
		BufferSize: config.BufferSize,
		Logger:     config.Logger,
	})
	if err != nil {
		log.Printf("Ошибка инициализации RequestHandler: %v", err)
		return nil, err
	}

	ctx := context.Background()
	service, err := sheets.NewService(ctx, option.WithCredentialsFile(config.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("не удается инициализировать сервис Google Sheets: %v", err)
	}

	app := &GoogleSheets{
		Request:        handler,
		Service:        service,
		logger:         config.Logger,
		loggingEnabled: true,
	}

	if v, ok := config.Logger.(bool); ok && !v {
		app.loggingEnabled = false
	} else if config.Logger == nil {
		app.logger = log.New(os.Stdout, "googlesheet: ", log.LstdFlags)
	}

	pause := time.Duration(config.RequestUpdatePause) * time.Second
	go app.Request.ProcessRequests(pause)

	return app, nil
}

// AppendRows синхронно дописывает строки в конец листа
func (app *GoogleSheets) AppendRows(sheetID, listName string, rows [][]interface{}) error {
	valueRange := &sheets.ValueRange{
		Values: rows,
	}

	app.logf("Запись %d строк в таблицу %s, лист %s", len(rows), sheetID, listName)

	return app.Request.HandleSyncRequest(func() error {
		_, err := app.Spreadsheets.Values.
			Append(sheetID, listName+"!A1", valueRange).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Do()
		if err != nil {
			return fmt.Errorf("не удалось дописать строки в таблицу: %v", err)
		}
		return nil
	})
}

// ClearRange синхронно очищает диапазон листа
// rangeA1 - в формате "A2:Z"
func (app *GoogleSheets) ClearRange(sheetID, listName, rangeA1 string) error {
	fullRange := fmt.Sprintf("%s!%s", listName, rangeA1)

	return app.Request.HandleSyncRequest(func() error {
		_, err := app.Spreadsheets.Values.Clear(sheetID, fullRange, &sheets.ClearValuesRequest{}).Do()
		if err != nil {
			return fmt.Errorf("не удалось очистить диапазон %s: %v", fullRange, err)
		}
		return nil
	})
}
