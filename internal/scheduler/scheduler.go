package scheduler

import (
	"sync"
	"time"

	"clientwatch/internal/model"
	"clientwatch/pkg/logger/interfaces"
)

// DelayProvider выдает политику напоминаний
type DelayProvider interface {
	NotificationsEnabled() bool
	GetDelays() (workHours bool, delay1, delay2, delay3 int)
}

// Store доступ к данным, нужный таймерам при срабатывании
type Store interface {
	GetMessage(id uint) (*model.Message, error)
	EmployeeByID(id uint) (*model.Employee, error)
	CreateNotification(n *model.Notification) error
}

// Notifier исходящий канал напоминаний
type Notifier interface {
	SendReminder(employee *model.Employee, msg *model.Message, notificationType string) error
}

// warningTimer одно запланированное напоминание. Закрытие канала cancel
// будит таймер досрочно, без отправки.
type warningTimer struct {
	notificationType string
	cancel           chan struct{}
	cancelOnce       sync.Once
}

// Scheduler владеет наборами таймеров напоминаний по копиям сообщений.
// Таймеры живут только в памяти процесса: перезапуск молча теряет все
// запланированные напоминания.
type Scheduler struct {
	settings DelayProvider
	store    Store
	notifier Notifier
	log      interfaces.SimpleLogger

	mu     sync.Mutex
	timers map[uint][]*warningTimer

	// delayUnit единица измерения задержек из настроек, в тестах уменьшается
	delayUnit time.Duration
}

// New создает планировщик напоминаний
func New(settings DelayProvider, store Store, notifier Notifier, log interfaces.SimpleLogger) *Scheduler {
	return &Scheduler{
		settings:  settings,
		store:     store,
		notifier:  notifier,
		log:       log,
		timers:    make(map[uint][]*warningTimer),
		delayUnit: time.Second,
	}
}

// ScheduleWarnings планирует три эскалирующих напоминания для копии сообщения.
// При выключенных уведомлениях ничего не делает.
func (s *Scheduler) ScheduleWarnings(messageID uint, employeeID uint, chatID int64) {
	if !s.settings.NotificationsEnabled() {
		s.log.Debug("Уведомления выключены, напоминания не планируются")
		return
	}

	workHours, d1, d2, d3 := s.settings.GetDelays()
	s.log.Infof("Планирование напоминаний для копии %d (сотрудник %d, чат %d), рабочее время: %v, задержки: %d/%d/%d",
		messageID, employeeID, chatID, workHours, d1, d2, d3)

	tiers := []struct {
		notificationType string
		delay            int
	}{
		{model.NotificationWarning1, d1},
		{model.NotificationWarning2, d2},
		{model.NotificationWarning3, d3},
	}

	s.mu.Lock()
	for _, tier := range tiers {
		t := &warningTimer{
			notificationType: tier.notificationType,
			cancel:           make(chan struct{}),
		}
		s.timers[messageID] = append(s.timers[messageID], t)
		go s.run(messageID, t, time.Duration(tier.delay)*s.delayUnit)
	}
	s.mu.Unlock()
}

// Cancel кооперативно будит все таймеры копии. Записи из карты таймеры
// убирают сами на своем пути завершения, здесь их трогать нельзя:
// таймер может прямо сейчас находиться в собственной очистке.
// Срез под мьютексом копируется поэлементно: remove сдвигает общий
// массив на месте, чтение заголовка среза без копии гонится с ним.
func (s *Scheduler) Cancel(messageID uint) {
	s.mu.Lock()
	timers := append([]*warningTimer(nil), s.timers[messageID]...)
	s.mu.Unlock()

	for _, t := range timers {
		t.cancelOnce.Do(func() { close(t.cancel) })
	}
}

// run ждет задержку и при отсутствии отмены пытается отправить напоминание.
// В любом исходе таймер сам убирает себя из набора.
func (s *Scheduler) run(messageID uint, t *warningTimer, delay time.Duration) {
	select {
	case <-time.After(delay):
		s.fire(messageID, t.notificationType)
	case <-t.cancel:
	}
	s.remove(messageID, t)
}

// fire перечитывает копию и отправляет напоминание, только если копия все еще
// активна, не отложена и сотрудник активен. Любой другой исход — молчаливый
// пропуск без повторов.
func (s *Scheduler) fire(messageID uint, notificationType string) {
	msg, err := s.store.GetMessage(messageID)
	if err != nil {
		s.log.Debugf("Напоминание %s: копия %d не найдена: %v", notificationType, messageID, err)
		return
	}
	if !msg.IsActiveCopy() || msg.IsDeferred {
		s.log.Debugf("Напоминание %s: копия %d уже закрыта или отложена", notificationType, messageID)
		return
	}

	employee, err := s.store.EmployeeByID(msg.EmployeeID)
	if err != nil {
		s.log.Errorf("Напоминание %s: сотрудник %d не найден: %v", notificationType, msg.EmployeeID, err)
		return
	}
	if !employee.IsActive {
		s.log.Debugf("Напоминание %s: сотрудник %d неактивен", notificationType, employee.ID)
		return
	}

	if err := s.notifier.SendReminder(employee, msg, notificationType); err != nil {
		s.log.Errorf("Не удалось отправить напоминание %s сотруднику %d: %v", notificationType, employee.ID, err)
		return
	}

	err = s.store.CreateNotification(&model.Notification{
		MessageID:        messageID,
		EmployeeID:       employee.ID,
		NotificationType: notificationType,
		SentAt:           time.Now(),
	})
	if err != nil {
		s.log.Errorf("Не удалось записать уведомление %s по копии %d: %v", notificationType, messageID, err)
	}
}

// remove убирает таймер из набора копии, пустой набор удаляется целиком
func (s *Scheduler) remove(messageID uint, t *warningTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timers := s.timers[messageID]
	for i, candidate := range timers {
		if candidate == t {
			timers = append(timers[:i], timers[i+1:]...)
			break
		}
	}

	if len(timers) == 0 {
		delete(s.timers, messageID)
	} else {
		s.timers[messageID] = timers
	}
}

// pendingCount количество незавершенных таймеров копии
func (s *Scheduler) pendingCount(messageID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers[messageID])
}
