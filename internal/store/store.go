package store

import (
	"time"

	"clientwatch/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store репозиторий поверх gorm. Все мутации, затрагивающие несколько копий
// одного логического сообщения, выполняются в одной транзакции: частичное
// закрытие части копий недопустимо.
type Store struct {
	db *gorm.DB
}

// New создает репозиторий поверх подключения к БД
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateMessage сохраняет новую копию сообщения и возвращает ее ID
func (s *Store) CreateMessage(msg *model.Message) (uint, error) {
	if err := s.db.Create(msg).Error; err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// GetMessage возвращает копию сообщения по ID
func (s *Store) GetMessage(id uint) (*model.Message, error) {
	var msg model.Message
	if err := s.db.First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindActiveCopiesForClient возвращает активные копии сообщений клиента в чате.
// employeeID = 0 означает копии всех сотрудников.
func (s *Store) FindActiveCopiesForClient(chatID, clientTelegramID int64, employeeID uint) ([]model.Message, error) {
	var messages []model.Message
	q := s.db.
		Where("chat_id = ? AND client_telegram_id = ?", chatID, clientTelegramID).
		Where("responded_at IS NULL AND is_deleted = false")
	if employeeID != 0 {
		q = q.Where("employee_id = ?", employeeID)
	}
	err := q.Order("received_at asc").Find(&messages).Error
	return messages, err
}

// FindCopiesByChatAndMessageID возвращает все копии логического сообщения
// по паре (чат, ID сообщения в телеграме)
func (s *Store) FindCopiesByChatAndMessageID(chatID, messageID int64) ([]model.Message, error) {
	var messages []model.Message
	err := s.db.
		Where("chat_id = ? AND message_id = ?", chatID, messageID).
		Find(&messages).Error
	return messages, err
}

// MarkResponded закрывает набор копий одним временем ответа, автором ответа
// и общим временем реакции
func (s *Store) MarkResponded(ids []uint, respondedAt time.Time, answeredBy uint, responseTimeMinutes float64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&model.Message{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"responded_at":            respondedAt,
				"answered_by_employee_id": answeredBy,
				"response_time_minutes":   responseTimeMinutes,
			}).Error
	})
}

// MarkDeleted помечает набор копий удаленными
func (s *Store) MarkDeleted(ids []uint, deletedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&model.Message{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"deleted_at": deletedAt,
			}).Error
	})
}

// CloseSessionAndDefer закрывает активные копии клиента как отвеченные
// откладывающим сотрудником, выставляет флаг отложенности на его копии и
// создает отложенную запись. Все три шага в одной транзакции: копии,
// закрытые без отложенной записи, невозможно отложить повторно.
func (s *Store) CloseSessionAndDefer(ids []uint, respondedAt time.Time, answeredBy uint, responseTimeMinutes float64, d *model.DeferredMessage) (uint, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if len(ids) > 0 {
			if err := tx.Model(&model.Message{}).
				Where("id IN ?", ids).
				Updates(map[string]interface{}{
					"responded_at":            respondedAt,
					"answered_by_employee_id": answeredBy,
					"response_time_minutes":   responseTimeMinutes,
				}).Error; err != nil {
				return err
			}
		}
		if d.OriginalMessageID != nil {
			if err := tx.Model(&model.Message{}).
				Where("id = ?", *d.OriginalMessageID).
				Update("is_deferred", true).Error; err != nil {
				return err
			}
		}
		return tx.Create(d).Error
	})
	if err != nil {
		return 0, err
	}
	return d.ID, nil
}

// ReactivateDeferred гасит отложенную запись и возвращает исходную копию
// в состояние свежеполученной одной транзакцией
func (s *Store) ReactivateDeferred(deferredID uint, originalMessageID *uint, receivedAt time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.DeferredMessage{}).
			Where("id = ?", deferredID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		if originalMessageID == nil {
			return nil
		}
		return tx.Model(&model.Message{}).
			Where("id = ?", *originalMessageID).
			Updates(map[string]interface{}{
				"responded_at":            nil,
				"answered_by_employee_id": nil,
				"response_time_minutes":   nil,
				"is_deferred":             false,
				"is_missed":               false,
				"received_at":             receivedAt,
			}).Error
	})
}

// DeleteHard полностью удаляет копии вместе со связанными уведомлениями
// и отложенными записями
func (s *Store) DeleteHard(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id IN ?", ids).Delete(&model.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("original_message_id IN ?", ids).Delete(&model.DeferredMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&model.Message{}).Error
	})
}

// CreateNotification сохраняет журнальную запись об отправленном напоминании
func (s *Store) CreateNotification(n *model.Notification) error {
	return s.db.Create(n).Error
}

// GetDeferred возвращает отложенную запись по ID
func (s *Store) GetDeferred(id uint) (*model.DeferredMessage, error) {
	var d model.DeferredMessage
	if err := s.db.First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ActiveDeferredForEmployee возвращает активные отложенные записи сотрудника
func (s *Store) ActiveDeferredForEmployee(employeeID uint) ([]model.DeferredMessage, error) {
	var items []model.DeferredMessage
	err := s.db.
		Where("employee_id = ? AND is_active = true", employeeID).
		Order("created_at asc").
		Find(&items).Error
	return items, err
}

// DeactivateDeferred снимает активность с одной отложенной записи
func (s *Store) DeactivateDeferred(id uint) error {
	return s.db.Model(&model.DeferredMessage{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

// DeactivateDeferredForClient гасит все активные отложенные записи клиента
// и снимает флаг отложенности с привязанных к ним копий. Вызывается, когда
// клиенту фактически ответили.
func (s *Store) DeactivateDeferredForClient(clientTelegramID int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var items []model.DeferredMessage
		if err := tx.
			Where("client_telegram_id = ? AND is_active = true", clientTelegramID).
			Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(items))
		originalIDs := make([]uint, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
			if item.OriginalMessageID != nil {
				originalIDs = append(originalIDs, *item.OriginalMessageID)
			}
		}

		if err := tx.Model(&model.DeferredMessage{}).
			Where("id IN ?", ids).
			Update("is_active", false).Error; err != nil {
			return err
		}
		if len(originalIDs) > 0 {
			if err := tx.Model(&model.Message{}).
				Where("id IN ?", originalIDs).
				Update("is_deferred", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteDeferred полностью удаляет отложенную запись
func (s *Store) DeleteDeferred(id uint) error {
	return s.db.Delete(&model.DeferredMessage{}, id).Error
}

// ActiveCopiesByClient возвращает активные копии сотрудника по клиенту
// во всех чатах, от старых к новым
func (s *Store) ActiveCopiesByClient(employeeID uint, clientTelegramID int64) ([]model.Message, error) {
	var messages []model.Message
	err := s.db.
		Where("employee_id = ? AND client_telegram_id = ?", employeeID, clientTelegramID).
		Where("responded_at IS NULL AND is_deleted = false").
		Order("received_at asc").
		Find(&messages).Error
	return messages, err
}

// ActiveCopiesByClientName то же, что ActiveCopiesByClient, но по отображаемому
// имени клиента. Запасной путь для пересылок со скрытым отправителем.
func (s *Store) ActiveCopiesByClientName(employeeID uint, clientName string) ([]model.Message, error) {
	var messages []model.Message
	err := s.db.
		Where("employee_id = ? AND client_name = ?", employeeID, clientName).
		Where("responded_at IS NULL AND is_deleted = false").
		Order("received_at asc").
		Find(&messages).Error
	return messages, err
}

// CountActiveDeferred количество активных отложенных записей сотрудника
func (s *Store) CountActiveDeferred(employeeID uint) (int64, error) {
	var count int64
	err := s.db.Model(&model.DeferredMessage{}).
		Where("employee_id = ? AND is_active = true", employeeID).
		Count(&count).Error
	return count, err
}

// EmployeeByID возвращает сотрудника по внутреннему ID
func (s *Store) EmployeeByID(id uint) (*model.Employee, error) {
	var e model.Employee
	if err := s.db.First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// EmployeeByTelegramID возвращает сотрудника по ID в телеграме
func (s *Store) EmployeeByTelegramID(telegramID int64) (*model.Employee, error) {
	var e model.Employee
	if err := s.db.Where("telegram_id = ?", telegramID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEmployees возвращает сотрудников, onlyActive ограничивает выборку активными
func (s *Store) ListEmployees(onlyActive bool) ([]model.Employee, error) {
	var employees []model.Employee
	q := s.db.Order("full_name asc")
	if onlyActive {
		q = q.Where("is_active = true")
	}
	err := q.Find(&employees).Error
	return employees, err
}

// UpdateEmployeeActive включает или выключает сотрудника
func (s *Store) UpdateEmployeeActive(id uint, active bool) error {
	return s.db.Model(&model.Employee{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

// AllSettings возвращает все строки настроек
func (s *Store) AllSettings() ([]model.SystemSetting, error) {
	var rows []model.SystemSetting
	err := s.db.Find(&rows).Error
	return rows, err
}

// SetSetting создает или обновляет настройку по ключу
func (s *Store) SetSetting(key, value string) error {
	row := model.SystemSetting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// MessagesForEmployeeInPeriod возвращает копии сотрудника за период
func (s *Store) MessagesForEmployeeInPeriod(employeeID uint, from, to time.Time) ([]model.Message, error) {
	var messages []model.Message
	err := s.db.
		Where("employee_id = ? AND received_at >= ? AND received_at < ?", employeeID, from, to).
		Find(&messages).Error
	return messages, err
}

// MessagesInPeriod возвращает все копии за период для сводной статистики
func (s *Store) MessagesInPeriod(from, to time.Time) ([]model.Message, error) {
	var messages []model.Message
	err := s.db.
		Where("received_at >= ? AND received_at < ?", from, to).
		Find(&messages).Error
	return messages, err
}
