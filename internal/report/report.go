package report

import (
	"fmt"
	"time"

	"clientwatch/internal/model"
	"clientwatch/internal/stats"
	"clientwatch/pkg/logger/interfaces"
)

// Settings политика ежедневных отчетов
type Settings interface {
	DailyReportsEnabled() bool
	DailyReportTime() string
}

// Stats читающий контракт сервиса статистики
type Stats interface {
	EmployeeStatsForPeriod(employee model.Employee, period string) (stats.EmployeeStats, error)
	DashboardOverview(period string) (stats.Overview, error)
}

// Employees список сотрудников для рассылки
type Employees interface {
	ListEmployees(onlyActive bool) ([]model.Employee, error)
}

// Notifier исходящий канал отчетов
type Notifier interface {
	SendDailyReport(employee *model.Employee, st stats.EmployeeStats) error
	SendAdminReport(adminTelegramID int64, overview stats.Overview, perEmployee []stats.EmployeeStats) error
}

// Manager рассылает ежедневные отчеты в настроенное время
type Manager struct {
	settings  Settings
	stats     Stats
	employees Employees
	notifier  Notifier
	log       interfaces.SimpleLogger
}

// New создает менеджер ежедневных отчетов
func New(settings Settings, statsService Stats, employees Employees, notifier Notifier, log interfaces.SimpleLogger) *Manager {
	return &Manager{
		settings:  settings,
		stats:     statsService,
		employees: employees,
		notifier:  notifier,
		log:       log,
	}
}

// StartDailyReports бесконечный цикл рассылки. Время следующего запуска
// перечитывается из настроек на каждой итерации, смена времени в админке
// подхватывается со следующего дня без перезапуска.
func (m *Manager) StartDailyReports() {
	for {
		at, err := nextRunAfter(time.Now(), m.settings.DailyReportTime())
		if err != nil {
			m.log.Errorf("Некорректное время ежедневного отчета, откат на 18:00: %v", err)
			at, _ = nextRunAfter(time.Now(), "18:00")
		}

		m.log.Infof("Следующий ежедневный отчет: %s", at.Format("02.01.2006 15:04"))
		time.Sleep(time.Until(at))

		if !m.settings.DailyReportsEnabled() {
			m.log.Info("Ежедневные отчеты отключены, рассылка пропущена")
			continue
		}

		m.sendReports()
	}
}

// nextRunAfter возвращает ближайший момент hhmm после now
func nextRunAfter(now time.Time, hhmm string) (time.Time, error) {
	var hour, min int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &min); err != nil {
		return time.Time{}, fmt.Errorf("не удалось разобрать время %q: %w", hhmm, err)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return time.Time{}, fmt.Errorf("время %q вне суток", hhmm)
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// sendReports рассылает личные отчеты активным сотрудникам и сводку админам
func (m *Manager) sendReports() {
	employees, err := m.employees.ListEmployees(false)
	if err != nil {
		m.log.Errorf("Не удалось получить список сотрудников для отчетов: %v", err)
		return
	}

	var perEmployee []stats.EmployeeStats
	for i := range employees {
		e := employees[i]
		if !e.IsActive {
			continue
		}

		st, err := m.stats.EmployeeStatsForPeriod(e, stats.PeriodToday)
		if err != nil {
			m.log.Errorf("Статистика сотрудника %d не посчитана: %v", e.ID, err)
			continue
		}
		perEmployee = append(perEmployee, st)

		if err := m.notifier.SendDailyReport(&e, st); err != nil {
			m.log.Errorf("Отчет сотруднику %d не отправлен: %v", e.ID, err)
		}
	}

	overview, err := m.stats.DashboardOverview(stats.PeriodToday)
	if err != nil {
		m.log.Errorf("Сводная статистика не посчитана: %v", err)
		return
	}

	for _, e := range employees {
		if !e.IsAdmin {
			continue
		}
		if err := m.notifier.SendAdminReport(e.TelegramID, overview, perEmployee); err != nil {
			m.log.Errorf("Сводный отчет админу %d не отправлен: %v", e.ID, err)
		}
	}

	m.log.Infof("Ежедневные отчеты разосланы: %d сотрудников", len(perEmployee))
}
