package proctor

import (
	"strings"

	"github.com/xela07ax/examguard/internal/browser"
	"github.com/xela07ax/examguard/internal/domain"
)

/*
Классификация ввода.

Копирование и вставка учитываются ТОЛЬКО через clipboard-события:
Ctrl+C на keydown все равно породит нативный copy, и считать оба пути —
значит удваивать счетчик за одно действие. Keydown ловит то, что
clipboard-событий не порождает: хоткеи DevTools, view-source и Ctrl+A.
*/

// HandleKeyDown возвращает true, если событие нужно погасить.
func (e *Engine) HandleKeyDown(ev browser.KeyEvent) bool {
	cat, ok := classifyKey(ev)
	if !ok {
		return false
	}
	if cat == domain.CategorySelectAll && ev.Target.Editable {
		// Выделение внутри поля ввода — легитимное действие
		return false
	}
	e.Violation(cat, ev.At, map[string]interface{}{"combo": keyCombo(ev)})
	return true
}

// HandleClipboard обрабатывает нативные copy/paste.
func (e *Engine) HandleClipboard(ev browser.ClipboardEvent) bool {
	if ev.Target.Editable {
		// Поля ответов: буфер обмена разрешен
		return false
	}
	cat := domain.CategoryCopy
	if ev.Op == browser.ClipPaste {
		cat = domain.CategoryPaste
	}
	e.Violation(cat, ev.At, map[string]interface{}{"target": ev.Target.Tag})
	return true
}

// HandleContextMenu глушит правый клик безусловно.
func (e *Engine) HandleContextMenu(ev browser.PointerEvent) bool {
	e.Violation(domain.CategoryRightClick, ev.At, map[string]interface{}{"target": ev.Target.Tag})
	return true
}

func classifyKey(ev browser.KeyEvent) (domain.Category, bool) {
	key := strings.ToLower(ev.Key)
	mod := ev.Ctrl || ev.Meta // Cmd на macOS эквивалентен Ctrl

	switch {
	case ev.Key == "F12":
		return domain.CategoryDevtoolsShortcut, true
	case mod && ev.Shift && (key == "i" || key == "j" || key == "c"):
		// Ctrl+Shift+I/J/C — инспектор, консоль, выбор элемента
		return domain.CategoryDevtoolsShortcut, true
	case mod && !ev.Shift && key == "u":
		// Ctrl+U — просмотр исходника
		return domain.CategoryDevtoolsShortcut, true
	case mod && !ev.Shift && key == "a":
		return domain.CategorySelectAll, true
	}
	return "", false
}

func keyCombo(ev browser.KeyEvent) string {
	var parts []string
	if ev.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if ev.Meta {
		parts = append(parts, "Meta")
	}
	if ev.Shift {
		parts = append(parts, "Shift")
	}
	if ev.Alt {
		parts = append(parts, "Alt")
	}
	parts = append(parts, ev.Key)
	return strings.Join(parts, "+")
}
