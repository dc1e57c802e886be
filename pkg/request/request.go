package request

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"clientwatch/pkg/logger/interfaces"
)

// Config определяет параметры конфигурации для RequestHandler.
type Config struct {
	// BufferSize определяет размер канала запросов.
	BufferSize int

	// Logger определяет способ логирования:
	// - nil: будет использован стандартный log.Logger
	// - false: логирование будет отключено
	// - interfaces.BasicLogger: будет использован базовый логгер
	// - interfaces.SimpleLogger: будет использован расширенный логгер
	Logger interface{}
}

// Request отложенная операция, выполняемая очередью
type Request func() error

// RequestHandler очередь отложенных запросов с фиксированной паузой между
// выполнениями. Используется для внешних API с ограничением частоты запросов.
type RequestHandler struct {
	requests       chan Request
	ctx            context.Context
	cancel         context.CancelFunc
	mu             sync.Mutex
	isProcessing   bool
	logger         interface{}
	loggingEnabled bool
}

// NewRequestHandler создает новый экземпляр RequestHandler с заданной конфигурацией.
func NewRequestHandler(config Config) (*RequestHandler, error) {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &RequestHandler{
		requests:       make(chan Request, config.BufferSize),
		ctx:            ctx,
		cancel:         cancel,
		loggingEnabled: true,
	}

	// Настройка логгера
	if v, ok := config.Logger.(bool); ok && !v {
		handler.loggingEnabled = false
	} else if config.Logger == nil {
		handler.logger = log.New(os.Stdout, "request: ", log.LstdFlags)
	} else if l, ok := config.Logger.(interfaces.BasicLogger); ok {
		handler.logger = l
	} else if l, ok := config.Logger.(interfaces.SimpleLogger); ok {
		handler.logger = l
	} else {
		return nil, errors.New("неподдерживаемый тип логгера")
	}

	return handler, nil
}

func (app *RequestHandler) logf(format string, args ...interface{}) {
	if !app.loggingEnabled {
		return
	}

	switch l := app.logger.(type) {
	case interfaces.SimpleLogger:
		l.Infof(format, args...)
	case interfaces.BasicLogger:
		l.Printf(format, args...)
	}
}

func (app *RequestHandler) logError(format string, args ...interface{}) {
	if !app.loggingEnabled {
		return
	}

	switch l := app.logger.(type) {
	case interfaces.SimpleLogger:
		l.Errorf(format, args...)
	case interfaces.BasicLogger:
		l.Printf("ERROR: "+format, args...)
	}
}

// HandleRequest добавляет запрос в очередь.
// Возвращает ошибку, если обработка не запущена.
func (app *RequestHandler) HandleRequest(req Request) error {
	app.mu.Lock()
	if !app.isProcessing {
		app.mu.Unlock()
		return errors.New("невозможно добавить запрос: обработка не запущена")
	}
	app.mu.Unlock()

	app.requests <- req
	return nil
}

// HandleSyncRequest отправляет запрос в очередь и ждет его выполнения.
func (app *RequestHandler) HandleSyncRequest(fn func() error) error {
	var wg sync.WaitGroup
	var resultErr error

	wg.Add(1)
	err := app.HandleRequest(func() error {
		defer wg.Done()
		resultErr = fn()
		return resultErr
	})
	if err != nil {
		return err
	}

	wg.Wait()
	return resultErr
}

// ProcessRequests запускает обработку очереди с фиксированной паузой между запросами.
// Обработка продолжается до вызова StopProcessing.
func (app *RequestHandler) ProcessRequests(pause time.Duration) {
	app.mu.Lock()
	if app.isProcessing {
		app.logf("Невозможно запустить обработку запросов: уже запущена")
		app.mu.Unlock()
		return
	}
	app.isProcessing = true
	app.mu.Unlock()

	for {
		select {
		case <-app.ctx.Done():
			app.mu.Lock()
			app.isProcessing = false
			app.mu.Unlock()
			return
		case req := <-app.requests:
			if err := req(); err != nil {
				app.logError("Ошибка выполнения запроса: %v", err)
			}
		}
		time.Sleep(pause)
	}
}

// StopProcessing останавливает обработку запросов.
func (app *RequestHandler) StopProcessing() {
	app.cancel()
	app.mu.Lock()
	app.isProcessing = false
	app.mu.Unlock()
}
