package settings

import (
	"strconv"
	"time"

	"clientwatch/internal/model"
	"clientwatch/pkg/logger/interfaces"

	"github.com/patrickmn/go-cache"
)

// Ключи настроек в таблице system_settings
const (
	KeyDelay1              = "notification_delay_1"
	KeyDelay2              = "notification_delay_2"
	KeyDelay3              = "notification_delay_3"
	KeyNotificationsOn     = "notifications_enabled"
	KeyDailyReportsOn      = "daily_reports_enabled"
	KeyDailyReportsTime    = "daily_reports_time"
	KeyWorkHoursOnly       = "work_hours_only"
	settingsCacheKey       = "system_settings"
	settingsCacheTTL       = 5 * time.Minute
	workDayStartHour       = 9
	workDayEndHour         = 19
)

// defaults значения по умолчанию. Используются при недоступности БД
// и для отсутствующих ключей, чтобы обработка сообщений никогда не блокировалась.
var defaults = map[string]string{
	KeyDelay1:           "15",
	KeyDelay2:           "30",
	KeyDelay3:           "60",
	KeyNotificationsOn:  "true",
	KeyDailyReportsOn:   "true",
	KeyDailyReportsTime: "18:00",
	KeyWorkHoursOnly:    "true",
}

// Source источник строк настроек
type Source interface {
	AllSettings() ([]model.SystemSetting, error)
}

// Manager кэширующий менеджер настроек. Держит полную карту ключ-значение
// в кэше с TTL 5 минут, при изменении настроек кэш сбрасывается вручную.
type Manager struct {
	source Source
	cache  *cache.Cache
	moscow *time.Location
	log    interfaces.SimpleLogger

	now func() time.Time // подменяется в тестах
}

// New создает менеджер настроек поверх источника
func New(source Source, log interfaces.SimpleLogger) *Manager {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		log.Errorf("Не удалось загрузить часовой пояс Москвы: %v", err)
		loc = time.Local
	}

	return &Manager{
		source: source,
		cache:  cache.New(settingsCacheTTL, 10*time.Minute),
		moscow: loc,
		log:    log,
		now:    time.Now,
	}
}

// settingsMap возвращает карту всех настроек, дополненную значениями по умолчанию.
// При ошибке чтения из БД возвращает только значения по умолчанию.
func (m *Manager) settingsMap() map[string]string {
	if cached, ok := m.cache.Get(settingsCacheKey); ok {
		return cached.(map[string]string)
	}

	result := make(map[string]string, len(defaults))
	for k, v := range defaults {
		result[k] = v
	}

	rows, err := m.source.AllSettings()
	if err != nil {
		m.log.Errorf("Ошибка при получении настроек, используются значения по умолчанию: %v", err)
		return result
	}

	for _, row := range rows {
		result[row.Key] = row.Value
	}

	m.cache.Set(settingsCacheKey, result, cache.DefaultExpiration)
	m.log.Infof("Настройки обновлены из БД: %d параметров", len(rows))
	return result
}

// Invalidate сбрасывает кэш. Вызывается после изменения настроек из админки.
func (m *Manager) Invalidate() {
	m.cache.Delete(settingsCacheKey)
}

func (m *Manager) boolSetting(key string) bool {
	return m.settingsMap()[key] == "true"
}

func (m *Manager) intSetting(key string) int {
	v, err := strconv.Atoi(m.settingsMap()[key])
	if err != nil {
		v, _ = strconv.Atoi(defaults[key])
	}
	return v
}

// DelayMinutes возвращает три пороговых задержки в минутах без учета рабочего времени.
// Используется статистикой для порогов превышения.
func (m *Manager) DelayMinutes() (int, int, int) {
	return m.intSetting(KeyDelay1), m.intSetting(KeyDelay2), m.intSetting(KeyDelay3)
}

// GetDelays возвращает признак рабочего времени и три задержки эскалации в секундах.
// Вне рабочего окна (9:00-19:00 Москвы) и при включенном режиме work_hours_only
// задержки отсчитываются от ближайшего открытия окна: первое напоминание придет
// через настроенные минуты после 9:00, а не по прошедшему ночному времени.
func (m *Manager) GetDelays() (workHours bool, delay1, delay2, delay3 int) {
	d1, d2, d3 := m.DelayMinutes()

	workHours = m.isWorkingHoursMoscow()
	if workHours || !m.boolSetting(KeyWorkHoursOnly) {
		return workHours, d1 * 60, d2 * 60, d3 * 60
	}

	shift := m.secondsUntilWorkStart()
	return false, shift + d1*60, shift + d2*60, shift + d3*60
}

// NotificationsEnabled включены ли напоминания о неотвеченных сообщениях
func (m *Manager) NotificationsEnabled() bool {
	return m.boolSetting(KeyNotificationsOn)
}

// DailyReportsEnabled включены ли ежедневные отчеты
func (m *Manager) DailyReportsEnabled() bool {
	return m.boolSetting(KeyDailyReportsOn)
}

// DailyReportTime время отправки ежедневного отчета в формате "HH:MM"
func (m *Manager) DailyReportTime() string {
	return m.settingsMap()[KeyDailyReportsTime]
}

// isWorkingHoursMoscow проверяет период 9:00-19:00 по Москве
func (m *Manager) isWorkingHoursMoscow() bool {
	now := m.now().In(m.moscow)
	hour := now.Hour()
	return hour >= workDayStartHour && hour < workDayEndHour
}

// secondsUntilWorkStart возвращает количество секунд до ближайших 9:00 по Москве
func (m *Manager) secondsUntilWorkStart() int {
	now := m.now().In(m.moscow)

	start := time.Date(now.Year(), now.Month(), now.Day(), workDayStartHour, 0, 0, 0, m.moscow)
	if !now.Before(start) {
		start = start.AddDate(0, 0, 1)
	}

	return int(start.Sub(now).Seconds())
}
