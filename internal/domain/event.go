package domain

import "time"

// Category — класс нарушения, по которому ведется отдельный счетчик.
// Строковое значение категории одновременно является event_type на проводе.
type Category string

const (
	CategoryTabSwitch        Category = "tab_switch"        // Уход со вкладки (visibility: hidden)
	CategoryFullscreenExit   Category = "fullscreen_exit"   // Выход из полноэкранного режима
	CategoryCopy             Category = "copy"              // Попытка копирования
	CategoryPaste            Category = "paste"             // Попытка вставки
	CategorySelectAll        Category = "select_all"        // Ctrl+A вне полей ввода
	CategoryRightClick       Category = "right_click"       // Контекстное меню
	CategoryDevtoolsShortcut Category = "devtools_shortcut" // F12, Ctrl+Shift+I/J/C, Ctrl+U
)

// Categories возвращает полный список в стабильном порядке (метрики, отчеты).
func Categories() []Category {
	return []Category{
		CategoryTabSwitch,
		CategoryFullscreenExit,
		CategoryCopy,
		CategoryPaste,
		CategorySelectAll,
		CategoryRightClick,
		CategoryDevtoolsShortcut,
	}
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// События вне категорийных счетчиков. Фиксируются, но не эскалируют.
const (
	EventSessionStart       = "session_start"
	EventSessionEnd         = "session_end"
	EventTabReturn          = "tab_return"          // Возврат на вкладку, metadata: hidden_seconds
	EventWindowBlur         = "window_blur"
	EventWindowFocus        = "window_focus"        // metadata: away_seconds
	EventFullscreenRestored = "fullscreen_restored" // Успешный принудительный возврат
	EventDevtoolsOpen       = "devtools_open"       // Детект по эвристикам, не по хоткею
	EventCameraDisabled     = "camera_disabled"     // Трек умер посреди сессии
	EventCameraDenied       = "camera_denied"       // Пользователь не дал разрешение
	EventProbeFailed        = "probe_failed"
	EventDisqualified       = "disqualified"
)

// Event — то, что движок отдает в телеметрию. Timestamp ставит источник
// (браузерное событие), а не момент отправки: очередь может отставать.
type Event struct {
	Type     string                 `json:"event_type"`
	Severity Severity               `json:"severity"`
	At       time.Time              `json:"timestamp"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SnapshotKind — источник кадра.
type SnapshotKind string

const (
	SnapshotWebcam SnapshotKind = "webcam"
	SnapshotScreen SnapshotKind = "screen"
)

// TriggerPeriodic — значение trigger для кадров по таймеру.
// Для событийных кадров в trigger пишется event_type нарушения.
const TriggerPeriodic = "periodic"
