package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	WebConfig
	TelegramConfig
	DataBaseConfig
	GoogleSheetConfig
	LoggerConfig
}

type WebConfig struct {
	APPIP   string `envconfig:"APP_IP" default:"localhost"` // IP адрес приложения
	APPPORT string `envconfig:"APP_PORT" default:"8080"`    // Порт приложения
}

type TelegramConfig struct {
	Token              string  `envconfig:"TELEGRAM_TOKEN" required:"true"`             // Токен бота
	UpdateTimeout      int     `envconfig:"TELEGRAM_UPDATE_TIMEOUT" default:"30"`       // Таймаут long poll запросов в секундах
	SendRatePerSecond  float64 `envconfig:"TELEGRAM_SEND_RATE_PER_SECOND" default:"25"` // Ограничение исходящих сообщений в секунду
	SendBurst          int     `envconfig:"TELEGRAM_SEND_BURST" default:"5"`            // Разрешенный всплеск исходящих сообщений
	InitDataExpireHour int     `envconfig:"TELEGRAM_INIT_DATA_EXPIRE_HOUR" default:"1"` // Время жизни initData для входа в веб-панель
}

type DataBaseConfig struct {
	Host     string `envconfig:"DBHOST" required:"true"` // IP адресс для подключение к БД
	Port     string `envconfig:"DBPORT" default:""`      // Port для подключение к БД
	DBName   string `envconfig:"DBNAME" required:"true"` // Имя базы данных
	UserName string `envconfig:"DBUSER" required:"true"` // Имя пользователя
	Password string `envconfig:"DBPASS" required:"true"` // Пароль пользователя
	SSLMode  string `envconfig:"DBSSLMODE" default:"disable"`
}

type GoogleSheetConfig struct {
	Enabled            bool   `envconfig:"SHEET_ENABLED" default:"false"`           // Включен ли экспорт статистики в Google Sheets
	CredentialsFile    string `envconfig:"SHEET_CREDENTIALS_FILE" default:""`       // Файл сервисного аккаунта
	StatTableID        string `envconfig:"SHEET_STAT_TABLE_ID" default:""`          // ID таблицы для выгрузки статистики
	StatListName       string `envconfig:"SHEET_STAT_LIST_NAME" default:"Лист1"`    // Название листа для выгрузки статистики
	BufferSize         int    `envconfig:"SHEET_BUFFER_SIZE" default:"100"`         // Размер буфера для отложенных запросов
	RequestUpdatePause int    `envconfig:"SHEET_REQUEST_UPDATE_PAUSE" default:"15"` // Пауза между выполнением запросов
}

type LoggerConfig struct {
	LogDir      string `envconfig:"LOG_DIR" default:"./log/clientwatch"`
	MaxFileSize int64  `envconfig:"LOG_MAX_FILE_SIZE" default:"10485760"` // 10MB в байтах
	TimeFormat  string `envconfig:"LOG_TIME_FORMAT" default:"2006-01-02_15-04-05"`
	FilePattern string `envconfig:"LOG_FILE_PATTERN" default:"clientwatch_%s.log"`
}

var File *Config

func init() {
	// Загрузка файла .env. Файл не обязателен, переменные могут прийти из окружения
	godotenv.Load("../../config/clientwatch/.env")

	File = &Config{}
	err := envconfig.Process("", File)
	if err != nil {
		panic(err)
	}
	fmt.Println("Загруженые параметры: \n", File)
}
