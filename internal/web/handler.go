package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clientwatch/internal/config"
	"clientwatch/internal/infrastructure/logger"
	"clientwatch/internal/model"
	"clientwatch/internal/settings"
	"clientwatch/internal/stats"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"
)

type contextKey string

const employeeContextKey contextKey = "employee"

// writeJSON сериализует ответ, ошибки сериализации только логируются
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorf("Ошибка сериализации ответа: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// authMiddleware проверяет initData мини-приложения и кладет сотрудника в контекст.
// Неактивных пускаем только если они админы.
func (app *WebApp) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "tma ")

		data, err := getValidatedData(raw, config.File.TelegramConfig.Token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "невалидные данные авторизации")
			return
		}

		employee, err := app.store.EmployeeByTelegramID(data.User.ID)
		if err != nil {
			writeError(w, http.StatusForbidden, "пользователь не является сотрудником")
			return
		}
		if !employee.IsActive && !employee.IsAdmin {
			writeError(w, http.StatusForbidden, "сотрудник деактивирован")
			return
		}

		ctx := context.WithValue(r.Context(), employeeContextKey, employee)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware пускает дальше только админов
func (app *WebApp) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		employee, ok := r.Context().Value(employeeContextKey).(*model.Employee)
		if !ok || !employee.IsAdmin {
			writeError(w, http.StatusForbidden, "требуются права администратора")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// periodFromQuery период из query параметра, по умолчанию сегодня
func periodFromQuery(r *http.Request) string {
	period := r.URL.Query().Get("period")
	switch period {
	case stats.PeriodToday, stats.PeriodWeek, stats.PeriodMonth:
		return period
	}
	return stats.PeriodToday
}

// handleDashboard сводные показатели по логическим сообщениям
func (app *WebApp) handleDashboard(w http.ResponseWriter, r *http.Request) {
	overview, err := app.stats.DashboardOverview(periodFromQuery(r))
	if err != nil {
		logger.Errorf("Сводная статистика не посчитана: %v", err)
		writeError(w, http.StatusInternalServerError, "не удалось посчитать статистику")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// handleEmployees список сотрудников
func (app *WebApp) handleEmployees(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("all") == ""
	employees, err := app.store.ListEmployees(onlyActive)
	if err != nil {
		logger.Errorf("Список сотрудников не получен: %v", err)
		writeError(w, http.StatusInternalServerError, "не удалось получить сотрудников")
		return
	}
	writeJSON(w, http.StatusOK, employees)
}

// handleEmployeeStats показатели одного сотрудника
func (app *WebApp) handleEmployeeStats(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)

	employee, err := app.store.EmployeeByID(uint(id))
	if err != nil {
		writeError(w, http.StatusNotFound, "сотрудник не найден")
		return
	}

	st, err := app.stats.EmployeeStatsForPeriod(*employee, periodFromQuery(r))
	if err != nil {
		logger.Errorf("Статистика сотрудника %d не посчитана: %v", id, err)
		writeError(w, http.StatusInternalServerError, "не удалось посчитать статистику")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleEmployeeActive включает или выключает сотрудника
func (app *WebApp) handleEmployeeActive(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "не удалось прочитать тело запроса")
		return
	}

	active := gjson.GetBytes(body, "active")
	if !active.Exists() || !active.IsBool() {
		writeError(w, http.StatusBadRequest, "поле active обязательно")
		return
	}

	if err := app.store.UpdateEmployeeActive(uint(id), active.Bool()); err != nil {
		logger.Errorf("Не удалось обновить сотрудника %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "не удалось обновить сотрудника")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"active": active.Bool()})
}

// handleGetSettings отдает все настройки
func (app *WebApp) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	rows, err := app.store.AllSettings()
	if err != nil {
		logger.Errorf("Настройки не получены: %v", err)
		writeError(w, http.StatusInternalServerError, "не удалось получить настройки")
		return
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	writeJSON(w, http.StatusOK, out)
}

// разрешенные к изменению из админки ключи
var editableKeys = map[string]bool{
	settings.KeyDelay1:           true,
	settings.KeyDelay2:           true,
	settings.KeyDelay3:           true,
	settings.KeyNotificationsOn:  true,
	settings.KeyDailyReportsOn:   true,
	settings.KeyDailyReportsTime: true,
	settings.KeyWorkHoursOnly:    true,
}

// handleUpdateSettings обновляет настройки и сбрасывает кэш,
// чтобы новая политика применилась сразу, не дожидаясь TTL
func (app *WebApp) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "не удалось прочитать тело запроса")
		return
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		writeError(w, http.StatusBadRequest, "ожидается JSON объект ключ-значение")
		return
	}

	updated := 0
	var updateErr error
	parsed.ForEach(func(key, value gjson.Result) bool {
		if !editableKeys[key.String()] {
			logger.Warnf("Попытка изменить неизвестную настройку %q", key.String())
			return true
		}
		if err := app.store.SetSetting(key.String(), value.String()); err != nil {
			updateErr = err
			return false
		}
		updated++
		return true
	})

	if updateErr != nil {
		logger.Errorf("Ошибка сохранения настроек: %v", updateErr)
		writeError(w, http.StatusInternalServerError, "не удалось сохранить настройки")
		return
	}

	app.settings.Invalidate()
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// handleExport выгружает статистику сотрудников за период в Google Sheets
func (app *WebApp) handleExport(w http.ResponseWriter, r *http.Request) {
	if app.sheets == nil {
		writeError(w, http.StatusServiceUnavailable, "экспорт в таблицы выключен")
		return
	}

	period := periodFromQuery(r)
	perEmployee, err := app.stats.AllEmployeeStats(period, false)
	if err != nil {
		logger.Errorf("Статистика для экспорта не посчитана: %v", err)
		writeError(w, http.StatusInternalServerError, "не удалось посчитать статистику")
		return
	}

	rows := make([][]interface{}, 0, len(perEmployee)+1)
	rows = append(rows, []interface{}{
		"Дата выгрузки", "Период", "Сотрудник", "Всего", "Отвечено", "Пропущено",
		"Удалено", "Отвечено другими", "Отложено", "Среднее время (мин)", "Эффективность (%)",
	})
	exportedAt := time.Now().Format("02.01.2006 15:04")
	for _, st := range perEmployee {
		rows = append(rows, []interface{}{
			exportedAt, period, st.FullName, st.Total, st.RespondedByMe, st.Missed,
			st.Deleted, st.AnsweredByOthers, st.Deferred, st.AvgResponseTimeMinutes, st.EfficiencyPercent,
		})
	}

	conf := config.File.GoogleSheetConfig
	if err := app.sheets.AppendRows(conf.StatTableID, conf.StatListName, rows); err != nil {
		logger.Errorf("Выгрузка в таблицу не удалась: %v", err)
		writeError(w, http.StatusBadGateway, "не удалось выгрузить в таблицу")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"exported": len(perEmployee)})
}
