package stats

import (
	"fmt"
	"time"

	"clientwatch/internal/model"
	"clientwatch/pkg/logger/interfaces"
)

// Периоды выборки статистики
const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// EmployeeStats показатели одного сотрудника за период
type EmployeeStats struct {
	EmployeeID             uint    `json:"employee_id"`
	FullName               string  `json:"full_name"`
	Total                  int     `json:"total"`
	RespondedByMe          int     `json:"responded_by_me"`
	Deleted                int     `json:"deleted"`
	AnsweredByOthers       int     `json:"answered_by_others"`
	Deferred               int     `json:"deferred"`
	Missed                 int     `json:"missed"`
	AvgResponseTimeMinutes float64 `json:"avg_response_time_minutes"`
	UniqueClients          int     `json:"unique_clients"`
	Exceeded1              int     `json:"exceeded_1"`
	Exceeded2              int     `json:"exceeded_2"`
	Exceeded3              int     `json:"exceeded_3"`
	EfficiencyPercent      float64 `json:"efficiency_percent"`
}

// Overview сводные показатели по всем сотрудникам для дашборда.
// Считается по логическим сообщениям, а не по копиям.
type Overview struct {
	Total                  int     `json:"total"`
	Responded              int     `json:"responded"`
	Deleted                int     `json:"deleted"`
	Missed                 int     `json:"missed"`
	UniqueClients          int     `json:"unique_clients"`
	AvgResponseTimeMinutes float64 `json:"avg_response_time_minutes"`
	EfficiencyPercent      float64 `json:"efficiency_percent"`
}

// Store читающие операции хранилища
type Store interface {
	MessagesForEmployeeInPeriod(employeeID uint, from, to time.Time) ([]model.Message, error)
	MessagesInPeriod(from, to time.Time) ([]model.Message, error)
	ListEmployees(onlyActive bool) ([]model.Employee, error)
}

// Thresholds пороговые задержки для счетчиков превышений
type Thresholds interface {
	DelayMinutes() (int, int, int)
}

// Service вычисляет статистику поверх хранилища. Только чтение, никаких мутаций.
type Service struct {
	store  Store
	policy Thresholds
	log    interfaces.SimpleLogger

	now func() time.Time // подменяется в тестах
}

// New создает сервис статистики
func New(store Store, policy Thresholds, log interfaces.SimpleLogger) *Service {
	return &Service{
		store:  store,
		policy: policy,
		log:    log,
		now:    time.Now,
	}
}

// PeriodBounds возвращает границы окна [from, to) для периода
func (s *Service) PeriodBounds(period string) (time.Time, time.Time, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch period {
	case PeriodToday:
		return today, today.AddDate(0, 0, 1), nil
	case PeriodWeek:
		// Неделя с понедельника
		weekday := int(today.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := today.AddDate(0, 0, -(weekday - 1))
		return start, today.AddDate(0, 0, 1), nil
	case PeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, today.AddDate(0, 0, 1), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("неизвестный период: %s", period)
	}
}

// EmployeeStatsForPeriod считает показатели сотрудника за период
func (s *Service) EmployeeStatsForPeriod(employee model.Employee, period string) (EmployeeStats, error) {
	from, to, err := s.PeriodBounds(period)
	if err != nil {
		return EmployeeStats{}, err
	}
	return s.EmployeeStatsForWindow(employee, from, to)
}

// EmployeeStatsForWindow считает показатели сотрудника в окне [from, to)
func (s *Service) EmployeeStatsForWindow(employee model.Employee, from, to time.Time) (EmployeeStats, error) {
	messages, err := s.store.MessagesForEmployeeInPeriod(employee.ID, from, to)
	if err != nil {
		return EmployeeStats{}, err
	}

	d1, d2, d3 := s.policy.DelayMinutes()
	return s.calculate(employee, messages, d1, d2, d3), nil
}

// calculate сводит копии сотрудника в показатели
func (s *Service) calculate(employee model.Employee, messages []model.Message, d1, d2, d3 int) EmployeeStats {
	st := EmployeeStats{
		EmployeeID: employee.ID,
		FullName:   employee.FullName,
		Total:      len(messages),
	}

	clients := make(map[int64]struct{})
	var responseSum float64

	// Счетчики намеренно пересекаются: удаленная копия может одновременно
	// быть отвеченной, отложенная входит в отвеченные мной. Итог сводит
	// формула пропущенных с полом в ноль.
	for _, m := range messages {
		clients[m.ClientTelegramID] = struct{}{}

		if m.IsDeleted {
			st.Deleted++
		}

		if m.AnsweredByEmployeeID == nil {
			continue
		}

		if *m.AnsweredByEmployeeID != employee.ID {
			st.AnsweredByOthers++
			continue
		}

		st.RespondedByMe++
		if m.IsDeferred {
			st.Deferred++
		}
		if m.ResponseTimeMinutes != nil {
			rt := *m.ResponseTimeMinutes
			responseSum += rt
			if rt > float64(d1) {
				st.Exceeded1++
			}
			if rt > float64(d2) {
				st.Exceeded2++
			}
			if rt > float64(d3) {
				st.Exceeded3++
			}
		}
	}

	st.UniqueClients = len(clients)

	missed := st.Total - st.RespondedByMe - st.Deleted - st.AnsweredByOthers - st.Deferred
	if missed < 0 {
		// Гонки атрибуции могут увести счетчик в минус, срабатывание пола видно в логе
		s.log.Warnf("Счетчик пропущенных у сотрудника %d ушел в минус (%d), обрезан в ноль", employee.ID, missed)
		missed = 0
	}
	st.Missed = missed

	if st.RespondedByMe > 0 {
		st.AvgResponseTimeMinutes = responseSum / float64(st.RespondedByMe)
	}

	if st.Total > 0 {
		eff := float64(st.RespondedByMe+st.Deleted+st.AnsweredByOthers) / float64(st.Total) * 100
		if eff < 0 {
			eff = 0
		}
		if eff > 100 {
			eff = 100
		}
		st.EfficiencyPercent = eff
	}

	return st
}

// AllEmployeeStats считает показатели всех сотрудников за период
func (s *Service) AllEmployeeStats(period string, onlyActive bool) ([]EmployeeStats, error) {
	employees, err := s.store.ListEmployees(onlyActive)
	if err != nil {
		return nil, err
	}

	out := make([]EmployeeStats, 0, len(employees))
	for _, e := range employees {
		st, err := s.EmployeeStatsForPeriod(e, period)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// DashboardOverview сводит все копии периода к логическим сообщениям по ключу
// (чат, ID сообщения): прямое сложение копий завышало бы счетчики в разы
// из-за веерной раздачи по сотрудникам.
func (s *Service) DashboardOverview(period string) (Overview, error) {
	from, to, err := s.PeriodBounds(period)
	if err != nil {
		return Overview{}, err
	}

	messages, err := s.store.MessagesInPeriod(from, to)
	if err != nil {
		return Overview{}, err
	}

	type logicalKey struct {
		chatID    int64
		messageID int64
	}
	type logicalState struct {
		responded    bool
		allDeleted   bool
		responseTime float64
		hasTime      bool
	}

	logical := make(map[logicalKey]*logicalState)
	clients := make(map[int64]struct{})

	for _, m := range messages {
		clients[m.ClientTelegramID] = struct{}{}

		key := logicalKey{chatID: m.ChatID, messageID: m.MessageID}
		state, ok := logical[key]
		if !ok {
			state = &logicalState{allDeleted: true}
			logical[key] = state
		}

		if !m.IsDeleted {
			state.allDeleted = false
		}
		if m.RespondedAt != nil {
			state.responded = true
			if m.ResponseTimeMinutes != nil && !state.hasTime {
				state.responseTime = *m.ResponseTimeMinutes
				state.hasTime = true
			}
		}
	}

	var overview Overview
	overview.Total = len(logical)
	overview.UniqueClients = len(clients)

	var responseSum float64
	var timed int
	for _, state := range logical {
		switch {
		case state.responded:
			overview.Responded++
			if state.hasTime {
				responseSum += state.responseTime
				timed++
			}
		case state.allDeleted:
			overview.Deleted++
		default:
			overview.Missed++
		}
	}

	if timed > 0 {
		overview.AvgResponseTimeMinutes = responseSum / float64(timed)
	}
	if overview.Total > 0 {
		overview.EfficiencyPercent = float64(overview.Responded+overview.Deleted) / float64(overview.Total) * 100
	}

	return overview, nil
}
