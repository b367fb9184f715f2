package proctor

import (
	"time"

	"github.com/xela07ax/examguard/internal/domain"
	"github.com/xela07ax/examguard/internal/infra"
)

// Rule описывает реакцию движка на одну категорию нарушений.
type Rule struct {
	Disqualifying bool
	MaxAllowed    int // N-е событие дисквалифицирует (только при Disqualifying)
	ShotEvery     int // 1 — кадр на каждую сработку, 3 — на каждую третью, 0 — никогда
}

// Policy — полный набор правил эскалации для сессии.
// Дисквалифицирующий набор категорий задается конфигом, в коде нет
// захардкоженных санкций.
type Policy struct {
	Rules           map[domain.Category]Rule
	AwayWarning     time.Duration // Отсутствие дольше порога повышает severity возврата
	RestoreAttempts uint          // Сколько раз пытаемся вернуть fullscreen
}

// DefaultPolicy — поведение из коробки: дисквалифицирует только
// fullscreen_exit, третий выход терминален.
func DefaultPolicy() Policy {
	return Policy{
		Rules: map[domain.Category]Rule{
			domain.CategoryTabSwitch:        {ShotEvery: 1},
			domain.CategoryFullscreenExit:   {Disqualifying: true, MaxAllowed: 3, ShotEvery: 1},
			domain.CategoryCopy:             {ShotEvery: 3},
			domain.CategoryPaste:            {ShotEvery: 3},
			domain.CategorySelectAll:        {ShotEvery: 3},
			domain.CategoryRightClick:       {ShotEvery: 3},
			domain.CategoryDevtoolsShortcut: {ShotEvery: 3},
		},
		AwayWarning:     30 * time.Second,
		RestoreAttempts: 3,
	}
}

// PolicyFromConfig накладывает AgentConfig на дефолты.
// category_limits описывает дисквалифицирующий набор целиком: категории
// вне списка перестают быть дисквалифицирующими.
func PolicyFromConfig(cfg infra.AgentConfig) Policy {
	p := DefaultPolicy()

	if cfg.AwayWarning > 0 {
		p.AwayWarning = cfg.AwayWarning
	}
	if cfg.RestoreAttempts > 0 {
		p.RestoreAttempts = cfg.RestoreAttempts
	}
	if cfg.ScreenshotEvery > 0 {
		for cat, rule := range p.Rules {
			if rule.ShotEvery > 1 {
				rule.ShotEvery = cfg.ScreenshotEvery
				p.Rules[cat] = rule
			}
		}
	}
	if len(cfg.CategoryLimits) > 0 {
		for cat, rule := range p.Rules {
			limit, ok := cfg.CategoryLimits[string(cat)]
			rule.Disqualifying = ok
			rule.MaxAllowed = limit
			p.Rules[cat] = rule
		}
	}
	return p
}
