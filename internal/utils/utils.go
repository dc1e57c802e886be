package utils

import (
	"fmt"
	"time"

	"clientwatch/internal/infrastructure/logger"
)

// HandleError логгирует ошибку в случае ее наличия и возвращает ее
func HandleError(err error) error {
	if err != nil {
		logger.Error(err)
		return err
	}
	return nil
}

// InitGlobalLocationTime устанавливает московский часовой пояс для time.Local.
// Все расчеты рабочего времени и отчетов привязаны к Москве.
func InitGlobalLocationTime() error {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return fmt.Errorf("ошибка при смене локации на %s: %w", "Europe/Moscow", err)
	}
	time.Local = loc
	return nil
}

// FormatDuration возвращает длительность в виде строки "5 мин" либо "1 ч 20 мин"
func FormatDuration(minutes float64) string {
	total := int(minutes)
	if total < 60 {
		return fmt.Sprintf("%d мин", total)
	}
	return fmt.Sprintf("%d ч %d мин", total/60, total%60)
}
