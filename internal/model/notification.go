package model

import (
	"time"
)

// Типы уведомлений по трем ступеням эскалации
const (
	NotificationWarning1 = "warning_15"
	NotificationWarning2 = "warning_30"
	NotificationWarning3 = "warning_60"
)

// Notification журнальная запись об отправленном напоминании
type Notification struct {
	ID               uint      `gorm:"primaryKey"`
	MessageID        uint      `gorm:"index;not null"` // ID копии сообщения (messages.id)
	EmployeeID       uint      `gorm:"index;not null"`
	NotificationType string    `gorm:"type:varchar(32);not null"`
	SentAt           time.Time `gorm:"type:timestamp"`
}

// DeferredMessage запись об отложенном сообщении. Создается, когда сотрудник
// пересылает сообщение клиента себе в личку, чтобы вернуться к нему позже.
type DeferredMessage struct {
	ID                uint      `gorm:"primaryKey"`
	EmployeeID        uint      `gorm:"index;not null"`
	OriginalMessageID *uint     `gorm:"index"` // Ссылка на исходную копию, может отсутствовать
	ClientTelegramID  int64     `gorm:"type:bigint"`
	ClientName        string    `gorm:"type:varchar(255)"`
	ChatID            int64     `gorm:"type:bigint"`
	Text              string    `gorm:"type:text"` // Снимок текста на момент пересылки
	IsActive          bool      `gorm:"type:boolean;not null;default:true"`
	CreatedAt         time.Time `gorm:"type:timestamp"`
}

// SystemSetting настройка системы в виде пары ключ-значение.
// Меняется из админки, читается через кэширующий менеджер настроек.
type SystemSetting struct {
	ID          uint      `gorm:"primaryKey"`
	Key         string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Value       string    `gorm:"type:varchar(255)"`
	Description string    `gorm:"type:varchar(255)"`
	UpdatedAt   time.Time `gorm:"type:timestamp"`
}
