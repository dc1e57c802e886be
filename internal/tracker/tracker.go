package tracker

import (
	"errors"
	"time"

	"clientwatch/internal/model"
	"clientwatch/pkg/logger/interfaces"
)

var (
	// ErrUnknownMessage ответ или команда ссылаются на сообщение, которого нет в БД
	ErrUnknownMessage = errors.New("сообщение не отслеживается")
	// ErrNothingToDefer у сотрудника нет активных копий по этому клиенту
	ErrNothingToDefer = errors.New("нет активного сообщения для откладывания")
	// ErrDeferredInactive отложенная запись уже обработана
	ErrDeferredInactive = errors.New("отложенная запись уже неактивна")
)

// ClientMessageEvent входящее сообщение клиента в групповом чате.
// Контекст ответа переносится для полноты журнала: клиентские ответы
// отслеживаются так же, как обычные сообщения.
type ClientMessageEvent struct {
	ChatID           int64
	MessageID        int64
	ClientTelegramID int64
	ClientUserName   string
	ClientName       string
	Text             string
	IsReply          bool
	ReplyToMessageID int64
}

// EmployeeReplyEvent ответ сотрудника на сообщение клиента
type EmployeeReplyEvent struct {
	ChatID           int64
	MessageID        int64
	ReplyToMessageID int64
}

// DeleteCommand админская команда пометить сообщение удаленным
type DeleteCommand struct {
	ChatID    int64
	MessageID int64
}

// ForwardToSelfEvent пересылка сообщения клиента сотрудником самому себе.
// ClientTelegramID может быть нулевым, если клиент скрыл аккаунт в пересылках,
// тогда поиск идет по отображаемому имени.
type ForwardToSelfEvent struct {
	EmployeeID       uint
	ClientTelegramID int64
	ClientName       string
	Text             string
}

// Store операции хранилища, нужные трекеру
type Store interface {
	CreateMessage(msg *model.Message) (uint, error)
	FindActiveCopiesForClient(chatID, clientTelegramID int64, employeeID uint) ([]model.Message, error)
	FindCopiesByChatAndMessageID(chatID, messageID int64) ([]model.Message, error)
	ActiveCopiesByClient(employeeID uint, clientTelegramID int64) ([]model.Message, error)
	ActiveCopiesByClientName(employeeID uint, clientName string) ([]model.Message, error)
	MarkResponded(ids []uint, respondedAt time.Time, answeredBy uint, responseTimeMinutes float64) error
	MarkDeleted(ids []uint, deletedAt time.Time) error
	CloseSessionAndDefer(ids []uint, respondedAt time.Time, answeredBy uint, responseTimeMinutes float64, d *model.DeferredMessage) (uint, error)
	ReactivateDeferred(deferredID uint, originalMessageID *uint, receivedAt time.Time) error
	DeleteHard(ids []uint) error
	GetDeferred(id uint) (*model.DeferredMessage, error)
	DeactivateDeferred(id uint) error
	DeactivateDeferredForClient(clientTelegramID int64) error
}

// EligibleChatStatus статусы участника, при которых сотрудник считается
// состоящим в чате и получает копии. Только выход и исключение прекращают
// раздачу, ограниченный участник продолжает получать копии.
func EligibleChatStatus(status string) bool {
	switch status {
	case "left", "kicked":
		return false
	}
	return true
}

// Reminders планировщик напоминаний
type Reminders interface {
	ScheduleWarnings(messageID uint, employeeID uint, chatID int64)
	Cancel(messageID uint)
}

// Tracker машина состояний клиентской сессии: последовательности неотвеченных
// сообщений одного клиента в одном чате. Оркестрирует хранилище и планировщик.
type Tracker struct {
	store     Store
	reminders Reminders
	log       interfaces.SimpleLogger

	now func() time.Time // подменяется в тестах
}

// New создает трекер сообщений
func New(store Store, reminders Reminders, log interfaces.SimpleLogger) *Tracker {
	return &Tracker{
		store:     store,
		reminders: reminders,
		log:       log,
		now:       time.Now,
	}
}

// TrackMessage сохраняет копию входящего сообщения для сотрудника.
// Напоминания планируются только если у сотрудника еще нет открытой сессии
// по этому клиенту: таймеры первого сообщения остаются главными, чтобы серия
// сообщений подряд не порождала лавину напоминаний. Копия в БД создается всегда.
func (t *Tracker) TrackMessage(ev ClientMessageEvent, employeeID uint) (uint, error) {
	existing, err := t.store.FindActiveCopiesForClient(ev.ChatID, ev.ClientTelegramID, employeeID)
	if err != nil {
		return 0, err
	}

	msg := &model.Message{
		EmployeeID:       employeeID,
		ChatID:           ev.ChatID,
		MessageID:        ev.MessageID,
		ClientTelegramID: ev.ClientTelegramID,
		ClientUserName:   ev.ClientUserName,
		ClientName:       ev.ClientName,
		MessageText:      ev.Text,
		ReceivedAt:       t.now(),
	}

	id, err := t.store.CreateMessage(msg)
	if err != nil {
		return 0, err
	}

	if ev.IsReply {
		t.log.Debugf("Сообщение %d клиента %d является ответом на %d", ev.MessageID, ev.ClientTelegramID, ev.ReplyToMessageID)
	}

	if len(existing) > 0 {
		t.log.Debugf("Сессия клиента %d у сотрудника %d уже открыта, напоминания для копии %d не планируются",
			ev.ClientTelegramID, employeeID, id)
		return id, nil
	}

	t.reminders.ScheduleWarnings(id, employeeID, ev.ChatID)
	return id, nil
}

// MarkAsResponded закрывает сессию клиента по ответу сотрудника.
// Закрываются активные копии всех сотрудников чата, а не только отвечавшего:
// клиенту ответили, остальным напоминать больше не о чем. Время реакции
// считается один раз от самой ранней активной копии отвечавшего сотрудника
// и записывается во все закрываемые копии.
func (t *Tracker) MarkAsResponded(ev EmployeeReplyEvent, employee *model.Employee) error {
	replied, err := t.store.FindCopiesByChatAndMessageID(ev.ChatID, ev.ReplyToMessageID)
	if err != nil {
		return err
	}
	if len(replied) == 0 {
		t.log.Debugf("Ответ в чате %d на неотслеживаемое сообщение %d", ev.ChatID, ev.ReplyToMessageID)
		return ErrUnknownMessage
	}

	clientID := replied[0].ClientTelegramID

	active, err := t.store.FindActiveCopiesForClient(ev.ChatID, clientID, 0)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		// Сессия уже закрыта кем-то другим, осталось погасить отложенные записи
		return t.store.DeactivateDeferredForClient(clientID)
	}

	respondedAt := t.now()
	responseTime := t.responseTimeMinutes(active, employee.ID, respondedAt)

	ids := make([]uint, 0, len(active))
	for _, c := range active {
		ids = append(ids, c.ID)
	}

	if err := t.store.MarkResponded(ids, respondedAt, employee.ID, responseTime); err != nil {
		return err
	}
	if err := t.store.DeactivateDeferredForClient(clientID); err != nil {
		return err
	}

	for _, id := range ids {
		t.reminders.Cancel(id)
	}

	t.log.Infof("Сотрудник %d закрыл сессию клиента %d в чате %d: %d копий, время реакции %.1f мин",
		employee.ID, clientID, ev.ChatID, len(ids), responseTime)
	return nil
}

// responseTimeMinutes возвращает время реакции от самой ранней активной копии
// отвечающего сотрудника. Если своих копий у него нет (ответил чужому клиенту),
// берется самая ранняя копия среди всех. Отрицательные значения от рассинхрона
// часов обрезаются в ноль.
func (t *Tracker) responseTimeMinutes(active []model.Message, employeeID uint, respondedAt time.Time) float64 {
	var earliest time.Time
	found := false
	for _, c := range active {
		if c.EmployeeID == employeeID && (!found || c.ReceivedAt.Before(earliest)) {
			earliest = c.ReceivedAt
			found = true
		}
	}
	if !found {
		for _, c := range active {
			if earliest.IsZero() || c.ReceivedAt.Before(earliest) {
				earliest = c.ReceivedAt
			}
		}
	}

	minutes := respondedAt.Sub(earliest).Minutes()
	if minutes < 0 {
		return 0
	}
	return minutes
}

// MarkAsDeleted помечает все копии логического сообщения удаленными.
// Удаленные копии исключаются из пропущенных, но остаются в общем счете.
func (t *Tracker) MarkAsDeleted(cmd DeleteCommand) (int, error) {
	copies, err := t.store.FindCopiesByChatAndMessageID(cmd.ChatID, cmd.MessageID)
	if err != nil {
		return 0, err
	}
	if len(copies) == 0 {
		return 0, ErrUnknownMessage
	}

	ids := make([]uint, 0, len(copies))
	for _, c := range copies {
		if !c.IsDeleted {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := t.store.MarkDeleted(ids, t.now()); err != nil {
		return 0, err
	}

	for _, id := range ids {
		t.reminders.Cancel(id)
	}

	t.log.Infof("Сообщение %d в чате %d помечено удаленным: %d копий", cmd.MessageID, cmd.ChatID, len(ids))
	return len(ids), nil
}

// Defer откладывает клиента по пересылке сотрудником себе в личку.
// Активные копии клиента закрываются как отвеченные этим сотрудником,
// самая ранняя его собственная копия получает флаг отложенности, и на нее
// создается отложенная запись. Отложенное не считается пропущенным.
// Закрытие копий, флаг и запись выполняются одной транзакцией хранилища:
// обрыв посередине оставил бы сессию закрытой без следа отложенности,
// и повторное откладывание стало бы невозможным.
func (t *Tracker) Defer(ev ForwardToSelfEvent) (uint, error) {
	own, err := t.findOwnActiveCopies(ev)
	if err != nil {
		return 0, err
	}
	if len(own) == 0 {
		return 0, ErrNothingToDefer
	}

	original := own[0]

	active, err := t.store.FindActiveCopiesForClient(original.ChatID, original.ClientTelegramID, 0)
	if err != nil {
		return 0, err
	}

	respondedAt := t.now()
	responseTime := t.responseTimeMinutes(active, ev.EmployeeID, respondedAt)

	ids := make([]uint, 0, len(active))
	for _, c := range active {
		ids = append(ids, c.ID)
	}

	deferredID, err := t.store.CloseSessionAndDefer(ids, respondedAt, ev.EmployeeID, responseTime, &model.DeferredMessage{
		EmployeeID:        ev.EmployeeID,
		OriginalMessageID: &original.ID,
		ClientTelegramID:  original.ClientTelegramID,
		ClientName:        original.ClientName,
		ChatID:            original.ChatID,
		Text:              original.MessageText,
		IsActive:          true,
		CreatedAt:         respondedAt,
	})
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		t.reminders.Cancel(id)
	}

	t.log.Infof("Сотрудник %d отложил клиента %d: копия %d, отложенная запись %d",
		ev.EmployeeID, original.ClientTelegramID, original.ID, deferredID)
	return deferredID, nil
}

// findOwnActiveCopies ищет активные копии сотрудника по клиенту из пересылки.
// Сначала по ID клиента, при скрытом аккаунте по отображаемому имени.
func (t *Tracker) findOwnActiveCopies(ev ForwardToSelfEvent) ([]model.Message, error) {
	if ev.ClientTelegramID != 0 {
		return t.store.ActiveCopiesByClient(ev.EmployeeID, ev.ClientTelegramID)
	}
	if ev.ClientName != "" {
		return t.store.ActiveCopiesByClientName(ev.EmployeeID, ev.ClientName)
	}
	return nil, nil
}

// Undefer возвращает отложенное сообщение в работу. Исходная копия сбрасывается
// в состояние свежеполученной: без ответа, без автора, с новым временем получения.
// Деактивация записи и сброс копии идут одной транзакцией хранилища.
func (t *Tracker) Undefer(deferredID uint) (*model.DeferredMessage, error) {
	d, err := t.store.GetDeferred(deferredID)
	if err != nil {
		return nil, ErrUnknownMessage
	}
	if !d.IsActive {
		return nil, ErrDeferredInactive
	}

	if err := t.store.ReactivateDeferred(d.ID, d.OriginalMessageID, t.now()); err != nil {
		return nil, err
	}

	t.log.Infof("Отложенная запись %d возвращена в работу сотрудником %d", d.ID, d.EmployeeID)
	return d, nil
}

// DeleteDeferred полностью удаляет отложенное сообщение вместе с исходной
// копией и связанными с ней записями
func (t *Tracker) DeleteDeferred(deferredID uint) error {
	d, err := t.store.GetDeferred(deferredID)
	if err != nil {
		return ErrUnknownMessage
	}

	if d.OriginalMessageID != nil {
		t.reminders.Cancel(*d.OriginalMessageID)
		if err := t.store.DeleteHard([]uint{*d.OriginalMessageID}); err != nil {
			return err
		}
		return nil
	}

	return t.store.DeactivateDeferred(d.ID)
}
