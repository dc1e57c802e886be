package model

import (
	"time"
)

// Employee сотрудник, отвечающий на сообщения клиентов в рабочих чатах
type Employee struct {
	ID               uint      `gorm:"primaryKey"`
	TelegramID       int64     `gorm:"type:bigint;uniqueIndex;not null"` // ID пользователя в телеграме
	TelegramUserName string    `gorm:"type:varchar(255)"`
	FullName         string    `gorm:"type:varchar(255);not null"` // ФИО сотрудника
	IsActive         bool      `gorm:"type:boolean;default:true"`  // Неактивный сотрудник не получает уведомления и не считается пропустившим
	IsAdmin          bool      `gorm:"type:boolean;default:false"`
	CreatedAt        time.Time `gorm:"type:timestamp"`
	UpdatedAt        time.Time `gorm:"type:timestamp"`
}
