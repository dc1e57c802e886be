package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"clientwatch/pkg/logger/interfaces"

	"github.com/rs/zerolog"
)

// Config параметры логгера.
// LogDir - директория для файлов логов, пустая строка отключает запись в файл.
// LogMaxFileSize - максимальный размер файла лога в байтах, после превышения открывается новый файл.
// LogTimeFormat и LogFilePattern задают имя файла.
type Config struct {
	LogDir         string
	LogMaxFileSize int64
	LogTimeFormat  string
	LogFilePattern string
}

// ZerologLogger реализация логгера на основе zerolog
type ZerologLogger struct {
	log zerolog.Logger
}

// openLogFile открывает текущий файл лога, при превышении размера начинает новый
func openLogFile(cfg Config) (io.Writer, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для логов: %w", err)
	}

	name := fmt.Sprintf(cfg.LogFilePattern, time.Now().Format(cfg.LogTimeFormat))
	path := filepath.Join(cfg.LogDir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть файл логов: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("не удалось получить информацию о файле логов: %w", err)
	}

	if info.Size() >= cfg.LogMaxFileSize {
		file.Close()
		path = filepath.Join(cfg.LogDir, fmt.Sprintf(cfg.LogFilePattern, time.Now().Format(cfg.LogTimeFormat)))
		file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("не удалось создать новый файл логов: %w", err)
		}
	}

	return file, nil
}

// New создает логгер, пишущий одновременно в файл и в консоль
func New(cfg Config) (interfaces.Logger, error) {
	var fileWriter io.Writer
	var err error

	if cfg.LogDir != "" {
		fileWriter, err = openLogFile(cfg)
		if err != nil {
			return nil, err
		}
	} else {
		fileWriter = os.Stdout
	}

	writer := io.MultiWriter(fileWriter, os.Stdout)

	l := &ZerologLogger{
		log: zerolog.New(writer).With().Timestamp().Logger(),
	}

	return l, nil
}

// Print реализация интерфейса BasicLogger
func (l *ZerologLogger) Print(v ...interface{}) {
	l.Info(v...)
}

func (l *ZerologLogger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

func (l *ZerologLogger) Println(v ...interface{}) {
	l.Info(v...)
}

// Info реализация интерфейса LevelLogger
func (l *ZerologLogger) Info(args ...interface{}) {
	l.log.Info().Msg(fmt.Sprint(args...))
}

func (l *ZerologLogger) Error(args ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(args...))
}

func (l *ZerologLogger) Debug(args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(args...))
}

func (l *ZerologLogger) Warn(args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprint(args...))
}

func (l *ZerologLogger) Fatal(args ...interface{}) {
	l.log.Fatal().Msg(fmt.Sprint(args...))
}

// Infof реализация интерфейса FormattedLevelLogger
func (l *ZerologLogger) Infof(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *ZerologLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Fatalf(format string, args ...interface{}) {
	l.log.Fatal().Msgf(format, args...)
}

// ErrorWithStack реализация интерфейса StackTraceLogger
func (l *ZerologLogger) ErrorWithStack(err error, msg string) {
	l.log.Error().Stack().Err(err).Msg(msg)
}

func (l *ZerologLogger) ErrorWithStackf(err error, format string, args ...interface{}) {
	l.log.Error().Stack().Err(err).Msgf(format, args...)
}

// WithFields реализация интерфейса ContextLogger
func (l *ZerologLogger) WithFields(fields map[string]interface{}) interfaces.Logger {
	ctx := l.log.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &ZerologLogger{log: ctx.Logger()}
}
