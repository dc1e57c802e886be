package model

import (
	"time"
)

// Message копия сообщения клиента, закрепленная за одним сотрудником.
// Одно сообщение клиента создает по одной записи на каждого сотрудника чата,
// поэтому уникальность определяется тройкой (chat_id, message_id, employee_id).
type Message struct {
	ID                   uint       `gorm:"primaryKey"`
	EmployeeID           uint       `gorm:"index;not null"`                              // Сотрудник, за которым закреплена копия
	ChatID               int64      `gorm:"type:bigint;not null;index:idx_chat_message"` // ID тг чата
	MessageID            int64      `gorm:"type:bigint;not null;index:idx_chat_message"` // ID сообщения в телеграме, общий для всех копий
	ClientTelegramID     int64      `gorm:"type:bigint;index"`                           // ID клиента в телеграме
	ClientUserName       string     `gorm:"type:varchar(255)"`
	ClientName           string     `gorm:"type:varchar(255)"`
	MessageText          string     `gorm:"type:text"`
	ReceivedAt           time.Time  `gorm:"type:timestamp;index"`
	RespondedAt          *time.Time `gorm:"type:timestamp"` // null пока копия не закрыта
	ResponseTimeMinutes  *float64   // Вычисляется один раз в момент закрытия
	AnsweredByEmployeeID *uint      `gorm:"index"` // Кто фактически ответил (может отличаться от владельца копии)
	IsMissed             bool       `gorm:"type:boolean;not null;default:false"`
	IsDeleted            bool       `gorm:"type:boolean;not null;default:false"`
	DeletedAt            *time.Time `gorm:"type:timestamp"`
	IsDeferred           bool       `gorm:"type:boolean;not null;default:false"` // Отложено через пересылку себе
}

// IsActiveCopy копия активна: не отвечена и не удалена.
// Активные копии получают уведомления и считаются в пропущенные.
func (m *Message) IsActiveCopy() bool {
	return m.RespondedAt == nil && !m.IsDeleted
}
