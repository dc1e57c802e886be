package tracker

import (
	"errors"
	"sort"
	"testing"
	"time"

	"clientwatch/internal/model"
	pkglogger "clientwatch/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memStore struct {
	messages map[uint]*model.Message
	deferred map[uint]*model.DeferredMessage
	nextID   uint

	failDefer      bool // CloseSessionAndDefer возвращает ошибку, ничего не меняя
	failReactivate bool // ReactivateDeferred возвращает ошибку, ничего не меняя
}

func newMemStore() *memStore {
	return &memStore{
		messages: make(map[uint]*model.Message),
		deferred: make(map[uint]*model.DeferredMessage),
	}
}

func (s *memStore) CreateMessage(msg *model.Message) (uint, error) {
	s.nextID++
	msg.ID = s.nextID
	stored := *msg
	s.messages[msg.ID] = &stored
	return msg.ID, nil
}

func (s *memStore) active(filter func(*model.Message) bool) []model.Message {
	var out []model.Message
	for _, m := range s.messages {
		if m.RespondedAt == nil && !m.IsDeleted && filter(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

func (s *memStore) FindActiveCopiesForClient(chatID, clientTelegramID int64, employeeID uint) ([]model.Message, error) {
	return s.active(func(m *model.Message) bool {
		if m.ChatID != chatID || m.ClientTelegramID != clientTelegramID {
			return false
		}
		return employeeID == 0 || m.EmployeeID == employeeID
	}), nil
}

func (s *memStore) FindCopiesByChatAndMessageID(chatID, messageID int64) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.messages {
		if m.ChatID == chatID && m.MessageID == messageID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) ActiveCopiesByClient(employeeID uint, clientTelegramID int64) ([]model.Message, error) {
	return s.active(func(m *model.Message) bool {
		return m.EmployeeID == employeeID && m.ClientTelegramID == clientTelegramID
	}), nil
}

func (s *memStore) ActiveCopiesByClientName(employeeID uint, clientName string) ([]model.Message, error) {
	return s.active(func(m *model.Message) bool {
		return m.EmployeeID == employeeID && m.ClientName == clientName
	}), nil
}

func (s *memStore) MarkResponded(ids []uint, respondedAt time.Time, answeredBy uint, responseTimeMinutes float64) error {
	for _, id := range ids {
		m := s.messages[id]
		at := respondedAt
		rt := responseTimeMinutes
		by := answeredBy
		m.RespondedAt = &at
		m.ResponseTimeMinutes = &rt
		m.AnsweredByEmployeeID = &by
	}
	return nil
}

func (s *memStore) MarkDeleted(ids []uint, deletedAt time.Time) error {
	for _, id := range ids {
		at := deletedAt
		s.messages[id].IsDeleted = true
		s.messages[id].DeletedAt = &at
	}
	return nil
}

func (s *memStore) CloseSessionAndDefer(ids []uint, respondedAt time.Time, answeredBy uint, responseTimeMinutes float64, d *model.DeferredMessage) (uint, error) {
	if s.failDefer {
		return 0, errors.New("обрыв соединения с БД")
	}
	if err := s.MarkResponded(ids, respondedAt, answeredBy, responseTimeMinutes); err != nil {
		return 0, err
	}
	if d.OriginalMessageID != nil {
		s.messages[*d.OriginalMessageID].IsDeferred = true
	}
	s.nextID++
	d.ID = s.nextID
	stored := *d
	s.deferred[d.ID] = &stored
	return d.ID, nil
}

func (s *memStore) ReactivateDeferred(deferredID uint, originalMessageID *uint, receivedAt time.Time) error {
	if s.failReactivate {
		return errors.New("обрыв соединения с БД")
	}
	s.deferred[deferredID].IsActive = false
	if originalMessageID != nil {
		m := s.messages[*originalMessageID]
		m.RespondedAt = nil
		m.AnsweredByEmployeeID = nil
		m.ResponseTimeMinutes = nil
		m.IsDeferred = false
		m.IsMissed = false
		m.ReceivedAt = receivedAt
	}
	return nil
}

func (s *memStore) DeleteHard(ids []uint) error {
	for _, id := range ids {
		delete(s.messages, id)
		for dID, d := range s.deferred {
			if d.OriginalMessageID != nil && *d.OriginalMessageID == id {
				delete(s.deferred, dID)
			}
		}
	}
	return nil
}

func (s *memStore) GetDeferred(id uint) (*model.DeferredMessage, error) {
	d, ok := s.deferred[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *d
	return &copied, nil
}

func (s *memStore) DeactivateDeferred(id uint) error {
	s.deferred[id].IsActive = false
	return nil
}

func (s *memStore) DeactivateDeferredForClient(clientTelegramID int64) error {
	for _, d := range s.deferred {
		if d.ClientTelegramID == clientTelegramID && d.IsActive {
			d.IsActive = false
			if d.OriginalMessageID != nil {
				if m, ok := s.messages[*d.OriginalMessageID]; ok {
					m.IsDeferred = false
				}
			}
		}
	}
	return nil
}

type fakeReminders struct {
	scheduled []uint
	cancelled []uint
}

func (f *fakeReminders) ScheduleWarnings(messageID uint, employeeID uint, chatID int64) {
	f.scheduled = append(f.scheduled, messageID)
}

func (f *fakeReminders) Cancel(messageID uint) {
	f.cancelled = append(f.cancelled, messageID)
}

func newTestTracker(t *testing.T) (*Tracker, *memStore, *fakeReminders) {
	t.Helper()
	lg, err := pkglogger.New(pkglogger.Config{})
	require.NoError(t, err)

	store := newMemStore()
	reminders := &fakeReminders{}
	return New(store, reminders, lg), store, reminders
}

func clientMessage(messageID int64) ClientMessageEvent {
	return ClientMessageEvent{
		ChatID:           -100,
		MessageID:        messageID,
		ClientTelegramID: 9000,
		ClientUserName:   "client",
		ClientName:       "Клиент Тестовый",
		Text:             "Добрый день, есть вопрос",
	}
}

func TestTrackMessageSchedulesOnlyFirstOfSession(t *testing.T) {
	tr, store, reminders := newTestTracker(t)

	id1, err := tr.TrackMessage(clientMessage(1), 7)
	require.NoError(t, err)
	id2, err := tr.TrackMessage(clientMessage(2), 7)
	require.NoError(t, err)

	// Обе копии сохранены, но напоминания только у первой
	assert.Len(t, store.messages, 2)
	assert.Equal(t, []uint{id1}, reminders.scheduled)
	assert.NotEqual(t, id1, id2)
}

func TestTrackMessageSchedulesPerEmployee(t *testing.T) {
	tr, _, reminders := newTestTracker(t)

	id1, err := tr.TrackMessage(clientMessage(1), 7)
	require.NoError(t, err)
	id2, err := tr.TrackMessage(clientMessage(1), 8)
	require.NoError(t, err)

	// У каждого сотрудника своя сессия и свой набор таймеров
	assert.ElementsMatch(t, []uint{id1, id2}, reminders.scheduled)
}

func TestMarkAsRespondedClosesWholeFleet(t *testing.T) {
	tr, store, reminders := newTestTracker(t)

	base := time.Now().Add(-30 * time.Minute)
	tr.now = func() time.Time { return base }
	id1, _ := tr.TrackMessage(clientMessage(1), 7)

	tr.now = func() time.Time { return base.Add(10 * time.Minute) }
	id2, _ := tr.TrackMessage(clientMessage(1), 8)

	respondedAt := base.Add(25 * time.Minute)
	tr.now = func() time.Time { return respondedAt }

	employee := &model.Employee{ID: 8, TelegramID: 888, FullName: "Петров Петр", IsActive: true}
	err := tr.MarkAsResponded(EmployeeReplyEvent{ChatID: -100, MessageID: 50, ReplyToMessageID: 1}, employee)
	require.NoError(t, err)

	// Закрыты обе копии, автор и время реакции общие
	for _, id := range []uint{id1, id2} {
		m := store.messages[id]
		require.NotNil(t, m.RespondedAt)
		assert.Equal(t, uint(8), *m.AnsweredByEmployeeID)
		// Время считается от самой ранней копии отвечавшего (сотрудник 8, +10 мин)
		assert.InDelta(t, 15.0, *m.ResponseTimeMinutes, 0.01)
	}
	assert.ElementsMatch(t, []uint{id1, id2}, reminders.cancelled)
}

func TestMarkAsRespondedUnknownMessage(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	employee := &model.Employee{ID: 8}
	err := tr.MarkAsResponded(EmployeeReplyEvent{ChatID: -100, MessageID: 50, ReplyToMessageID: 404}, employee)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestMarkAsRespondedClampsNegativeResponseTime(t *testing.T) {
	tr, store, _ := newTestTracker(t)

	base := time.Now()
	tr.now = func() time.Time { return base }
	id, _ := tr.TrackMessage(clientMessage(1), 7)

	// Рассинхрон часов: ответ "раньше" получения
	tr.now = func() time.Time { return base.Add(-5 * time.Minute) }
	employee := &model.Employee{ID: 7}
	err := tr.MarkAsResponded(EmployeeReplyEvent{ChatID: -100, MessageID: 51, ReplyToMessageID: 1}, employee)
	require.NoError(t, err)

	assert.Equal(t, 0.0, *store.messages[id].ResponseTimeMinutes)
}

func TestMarkAsRespondedDeactivatesDeferred(t *testing.T) {
	tr, store, _ := newTestTracker(t)

	id, _ := tr.TrackMessage(clientMessage(1), 7)
	defID, err := tr.Defer(ForwardToSelfEvent{EmployeeID: 7, ClientTelegramID: 9000})
	require.NoError(t, err)
	require.True(t, store.deferred[defID].IsActive)

	// Новое сообщение клиента открывает сессию заново, ответ гасит отложенную запись
	id2, _ := tr.TrackMessage(clientMessage(5), 7)
	employee := &model.Employee{ID: 7}
	err = tr.MarkAsResponded(EmployeeReplyEvent{ChatID: -100, MessageID: 52, ReplyToMessageID: 5}, employee)
	require.NoError(t, err)

	assert.False(t, store.deferred[defID].IsActive)
	assert.False(t, store.messages[id].IsDeferred)
	require.NotNil(t, store.messages[id2].RespondedAt)
}

func TestMarkAsDeleted(t *testing.T) {
	tr, store, reminders := newTestTracker(t)

	id1, _ := tr.TrackMessage(clientMessage(1), 7)
	id2, _ := tr.TrackMessage(clientMessage(1), 8)

	count, err := tr.MarkAsDeleted(DeleteCommand{ChatID: -100, MessageID: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, count)
	assert.True(t, store.messages[id1].IsDeleted)
	assert.True(t, store.messages[id2].IsDeleted)
	assert.NotNil(t, store.messages[id1].DeletedAt)
	assert.ElementsMatch(t, []uint{id1, id2}, reminders.cancelled)

	// Повторная команда ничего не делает
	count, err = tr.MarkAsDeleted(DeleteCommand{ChatID: -100, MessageID: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMarkAsDeletedUnknown(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	_, err := tr.MarkAsDeleted(DeleteCommand{ChatID: -100, MessageID: 404})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestDeferClosesCopiesAndCreatesRecord(t *testing.T) {
	tr, store, reminders := newTestTracker(t)

	id1, _ := tr.TrackMessage(clientMessage(1), 7)
	id2, _ := tr.TrackMessage(clientMessage(1), 8)

	defID, err := tr.Defer(ForwardToSelfEvent{EmployeeID: 7, ClientTelegramID: 9000, Text: "Добрый день, есть вопрос"})
	require.NoError(t, err)

	// Все активные копии закрыты как отвеченные откладывающим сотрудником
	for _, id := range []uint{id1, id2} {
		m := store.messages[id]
		require.NotNil(t, m.RespondedAt)
		assert.Equal(t, uint(7), *m.AnsweredByEmployeeID)
	}

	// Флаг отложенности только на собственной копии сотрудника
	assert.True(t, store.messages[id1].IsDeferred)
	assert.False(t, store.messages[id2].IsDeferred)

	d := store.deferred[defID]
	require.NotNil(t, d)
	assert.True(t, d.IsActive)
	assert.Equal(t, uint(7), d.EmployeeID)
	require.NotNil(t, d.OriginalMessageID)
	assert.Equal(t, id1, *d.OriginalMessageID)

	assert.ElementsMatch(t, []uint{id1, id2}, reminders.cancelled)
}

func TestDeferWithoutActiveCopies(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	_, err := tr.Defer(ForwardToSelfEvent{EmployeeID: 7, ClientTelegramID: 9000})
	assert.ErrorIs(t, err, ErrNothingToDefer)
}

func TestDeferFallsBackToClientName(t *testing.T) {
	tr, store, _ := newTestTracker(t)

	id, _ := tr.TrackMessage(clientMessage(1), 7)

	// Клиент скрыл аккаунт в пересылках, ищем по имени
	defID, err := tr.Defer(ForwardToSelfEvent{EmployeeID: 7, ClientName: "Клиент Тестовый"})
	require.NoError(t, err)

	assert.True(t, store.messages[id].IsDeferred)
	assert.NotZero(t, defID)
}

func TestUndeferResetsOriginalCopy(t *testing.T) {
	tr, store, _ := newTestTracker(t)

	base := time.Now().Add(-time.Hour)
	tr.now = func() time.Time { return base }
	id, _ := tr.TrackMessage(clientMessage(1), 7)
	defID, err := tr.Defer(ForwardToSelfEvent{EmployeeID: 7, ClientTelegramID: 9000})
	require.NoError(t, err)

	resetAt := time.Now()
	tr.now = func() time.Time { return resetAt }

	d, err := tr.Undefer(defID)
	require.NoError(t, err)
	assert.Equal(t, defID, d.ID)

	m := store.messages[id]
	assert.Nil(t, m.RespondedAt)
	assert.Nil(t, m.AnsweredByEmployeeID)
	assert.Nil(t, m.ResponseTimeMinutes)
	assert.False(t, m.IsDeferred)
	assert.Equal(t, resetAt, m.ReceivedAt)
	assert.False(t, store.deferred[defID].IsActive)

	// Повторный возврат невозможен
	_, err = tr.Undefer(defID)
	assert.ErrorIs(t, err, ErrDeferredInactive)
}

func TestTrackMessageKeepsReplyContext(t *testing.T) {
	tr, store, reminders := newTestTracker(t)

	// Ответ клиента на более раннее сообщение отслеживается как обычное
	ev := clientMessage(3)
	ev.IsReply = true
	ev.ReplyToMessageID = 1

	id, err := tr.TrackMessage(ev, 7)
	require.NoError(t, err)

	assert.Contains(t, store.messages, id)
	assert.Equal(t, []uint{id}, reminders.scheduled)
}

func TestDeferStoreFailureKeepsSessionOpen(t *testing.T) {
	tr, store, reminders := newTestTracker(t)

	id, _ := tr.TrackMessage(clientMessage(1), 7)

	store.failDefer = true
	_, err := tr.Defer(ForwardToSelfEvent{EmployeeID: 7, ClientTelegramID: 9000})
	require.Error(t, err)

	// Откат целиком: копия активна, записи нет, напоминания не отменены
	m := store.messages[id]
	assert.Nil(t, m.RespondedAt)
	assert.False(t, m.IsDeferred)
	assert.Empty(t, store.deferred)
	assert.Empty(t, reminders.cancelled)

	// После восстановления хранилища повтор проходит
	store.failDefer = false
	defID, err := tr.Defer(ForwardToSelfEvent{EmployeeID: 7, ClientTelegramID: 9000})
	require.NoError(t, err)
	assert.True(t, store.deferred[defID].IsActive)
}

func TestUndeferStoreFailureKeepsDeferredActive(t *testing.T) {
	tr, store, _ := newTestTracker(t)

	id, _ := tr.TrackMessage(clientMessage(1), 7)
	defID, err := tr.Defer(ForwardToSelfEvent{EmployeeID: 7, ClientTelegramID: 9000})
	require.NoError(t, err)

	store.failReactivate = true
	_, err = tr.Undefer(defID)
	require.Error(t, err)

	// Запись активна, копия не сброшена, повтор после восстановления проходит
	assert.True(t, store.deferred[defID].IsActive)
	require.NotNil(t, store.messages[id].RespondedAt)

	store.failReactivate = false
	d, err := tr.Undefer(defID)
	require.NoError(t, err)
	assert.Equal(t, defID, d.ID)
	assert.Nil(t, store.messages[id].RespondedAt)
}

func TestEligibleChatStatus(t *testing.T) {
	for _, status := range []string{"creator", "administrator", "member", "restricted"} {
		assert.True(t, EligibleChatStatus(status), status)
	}
	for _, status := range []string{"left", "kicked"} {
		assert.False(t, EligibleChatStatus(status), status)
	}
}

func TestDeleteDeferredCascades(t *testing.T) {
	tr, store, _ := newTestTracker(t)

	id, _ := tr.TrackMessage(clientMessage(1), 7)
	defID, err := tr.Defer(ForwardToSelfEvent{EmployeeID: 7, ClientTelegramID: 9000})
	require.NoError(t, err)

	err = tr.DeleteDeferred(defID)
	require.NoError(t, err)

	assert.NotContains(t, store.messages, id)
	assert.NotContains(t, store.deferred, defID)
}
