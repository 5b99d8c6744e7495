// Package inputdispatch turns physical key-press/release events into PTY
// byte sequences, tracking the sticky modifier keys (shift, ctrl, sym,
// fn, lang, lang-lock) a five-way/keypad device needs in place of a full
// keyboard's simultaneous-key-press hardware.
//
// Grounded on launchpad.c's process_term: the same press/repeat/release
// branches, the same modifier-then-fn-then-sym-then-lang-then-default
// precedence, and the same scrollback/help-overlay side effects.
package inputdispatch

import (
	"github.com/inkterm/inkterm/internal/keymap"
)

// Target receives the bytes a dispatched key produces and answers the
// questions that depend on the currently active session. The Target is
// responsible for the ESC-[-to-ESC-O cursor-key rewrite when application
// mode is active (launchpad's KeyIn does it from the session's mode flag);
// InputDispatch only produces the normal-mode byte sequence.
type Target interface {
	KeyIn(b []byte)
	HasCurrent() bool
}

// ScrollController receives scrollback browsing requests and help-overlay
// visibility changes.
type ScrollController interface {
	ScrollBy(delta int)
	ScrollReset()
	RequestRefresh()
	SetHelpVisible(visible bool)
}

// EndAction is invoked when the end/"close terminal" key is released
// without a help overlay showing.
type EndAction func()

// Config holds the modifier key codes and symbol overlays read from
// [Settings], matching launchpad.c's TermShift/TermCtrl/.../LangSymbols
// keys.
type Config struct {
	ShiftCode, CtrlCode, SymCode, FnCode uint8
	LangCode, EndCode, EscCode, HomeCode uint8
	ScrollUpCode, ScrollDownCode         uint8
	Symbols                              string
	LangSymbols, ShiftLangSymbols        string
}

// symbolRow is the fixed 28-character layout row terminal.c's
// process_term indexes into user symbol strings by position.
const symbolRow = "qwertyuiopasdfghjklDzxcvbnm."

// fnTable maps symbolRow's 28 base characters to function-key and
// punctuation-overlay sequences, matching launchpad.c's fnk[]: F1-F10 and
// the backtick/%/^/</>/[/]/= overlay follow the top two rows, F11/F12 are
// bound to 'l' and 'D' (Del), and the bottom row (z,x,c,v,b,n,m,.) maps to
// tab/punctuation.
var fnTable = map[byte]string{
	'q': "\x1b[11~", 'w': "\x1b[12~", 'e': "\x1b[13~", 'r': "\x1b[14~", 't': "\x1b[15~",
	'y': "\x1b[17~", 'u': "\x1b[18~", 'i': "\x1b[19~", 'o': "\x1b[20~", 'p': "\x1b[21~",
	'a': "`", 's': "%", 'd': "^", 'f': "<", 'g': ">", 'h': "[", 'j': "]", 'k': "=",
	'l': "\x1b[23~", 'D': "\x1b[24~",
	'z': "\t", 'x': ";", 'c': ",", 'v': "(", 'b': ")", 'n': "{", 'm': "}", '.': ",",
}

// Dispatcher tracks sticky modifier state across press/release events.
type Dispatcher struct {
	cfg Config
	km  *keymap.Map

	shift, ctrl, sym, fn, lang, langLock bool
	help, helpWasShown                   bool

	target  Target
	scroll  ScrollController
	onClose EndAction
}

// New returns a Dispatcher bound to km for name lookups and cfg for
// modifier/overlay configuration.
func New(cfg Config, km *keymap.Map, target Target, scroll ScrollController, onClose EndAction) *Dispatcher {
	return &Dispatcher{cfg: cfg, km: km, target: target, scroll: scroll, onClose: onClose}
}

// Dispatch processes one physical key event. value follows the Linux
// input_event convention: 0=release, 1=press, 2=repeat.
func (d *Dispatcher) Dispatch(code uint8, value int32) {
	if value == 0 {
		d.release(code)
		return
	}
	d.pressOrRepeat(code)
}

func (d *Dispatcher) pressOrRepeat(code uint8) {
	switch code {
	case d.cfg.EndCode:
		if d.anyModifierHeld() {
			d.help = !d.help
			d.scroll.SetHelpVisible(d.help)
			d.scroll.RequestRefresh()
		} else {
			d.help = false
			d.scroll.SetHelpVisible(false)
		}
		return
	case d.cfg.ShiftCode:
		d.shift = true
		return
	case d.cfg.CtrlCode:
		d.ctrl = true
		return
	case d.cfg.SymCode:
		d.sym = true
		return
	case d.cfg.FnCode:
		d.fn = true
		return
	case d.cfg.LangCode:
		if d.shift {
			d.langLock = !d.langLock
		} else {
			d.lang = true
		}
		return
	case d.cfg.ScrollUpCode:
		d.scroll.ScrollBy(+1)
		d.scroll.RequestRefresh()
		return
	case d.cfg.ScrollDownCode:
		d.scroll.ScrollBy(-1)
		d.scroll.RequestRefresh()
		return
	}

	entry := d.km.ByCode(code)
	if entry == nil {
		return
	}

	var out []byte
	switch {
	case code == d.cfg.HomeCode:
		if d.shift {
			out = []byte("\x1bOF")
		} else {
			out = []byte("\x1bOH")
		}
	case d.fn:
		out = d.mapViaTable(entry.Name, fnTable, true)
	case d.sym:
		out = d.mapViaOverlay(entry.Name, d.cfg.Symbols, true)
	case d.lang || d.langLock:
		overlay := d.cfg.LangSymbols
		if d.shift {
			overlay = d.cfg.ShiftLangSymbols
		}
		out = d.mapViaOverlay(entry.Name, overlay, false)
	default:
		out = d.mapDefault(entry.Name)
	}

	if len(out) == 0 {
		return
	}
	if d.scroll != nil {
		d.scroll.ScrollReset()
	}
	if d.target != nil && d.target.HasCurrent() {
		d.target.KeyIn(out)
	}
}

func (d *Dispatcher) release(code uint8) {
	switch code {
	case d.cfg.EndCode:
		if d.help {
			d.help = false
			d.scroll.SetHelpVisible(false)
			d.scroll.RequestRefresh()
		} else if d.onClose != nil {
			d.onClose()
		}
		d.help = false
	case d.cfg.ShiftCode:
		d.shift = false
	case d.cfg.CtrlCode:
		d.ctrl = false
	case d.cfg.SymCode:
		d.sym = false
	case d.cfg.FnCode:
		d.fn = false
	case d.cfg.LangCode:
		d.lang = false
	}
}

func (d *Dispatcher) anyModifierHeld() bool {
	return d.shift || d.ctrl || d.sym || d.fn || d.lang
}

// mapViaTable maps a single-character base name through a fixed overlay
// table, honoring the shared backtab special case (Tab base key + shift
// => ESC [ Z) before falling back to the table.
func (d *Dispatcher) mapViaTable(name string, table map[byte]string, backtabAware bool) []byte {
	if backtabAware && name == "Tab" && d.shift {
		return []byte("\x1b[Z")
	}
	if len(name) != 1 {
		return nil
	}
	if seq, ok := table[name[0]]; ok {
		return []byte(seq)
	}
	return nil
}

// mapViaOverlay maps a base character through symbolRow's position into
// the corresponding index of the user symbol/language overlay string,
// matching process_term's row-index lookup (only indices <= 27 are
// valid, matching the 28-entry row).
func (d *Dispatcher) mapViaOverlay(name, overlay string, backtabAware bool) []byte {
	if backtabAware && name == "Tab" && d.shift {
		return []byte("\x1b[Z")
	}
	if len(name) != 1 {
		return nil
	}
	idx := indexInRow(name[0])
	if idx < 0 || idx > 27 || idx >= len(overlay) {
		return nil
	}
	return []byte{overlay[idx]}
}

func indexInRow(c byte) int {
	for i := 0; i < len(symbolRow); i++ {
		if symbolRow[i] == c {
			return i
		}
	}
	return -1
}

// mapDefault implements the base (no modifier-overlay) key mapping:
// letters/digits/editing keys per process_term's default branch.
func (d *Dispatcher) mapDefault(name string) []byte {
	switch name {
	case "Enter":
		return []byte{13}
	case "Esc":
		return []byte{0x1B}
	case "Space":
		return []byte{' '}
	case "Del":
		return []byte{0x7F}
	case "Up":
		if d.shift {
			return []byte("\x1b[5~")
		}
		return []byte("\x1b[A")
	case "Down":
		if d.shift {
			return []byte("\x1b[6~")
		}
		return []byte("\x1b[B")
	case "Right":
		return []byte("\x1b[C")
	case "Left":
		return []byte("\x1b[D")
	}
	if len(name) != 1 {
		return nil
	}
	c := name[0]
	switch {
	case c >= 'a' && c <= 'z':
		if d.shift {
			return []byte{c - 'a' + 'A'}
		}
		if d.ctrl {
			return []byte{c + 1 - 'a'}
		}
		return []byte{c}
	case c >= '0' && c <= '9':
		if d.shift {
			shifted := ")!@#$%^&*("
			return []byte{shifted[c-'0']}
		}
		return []byte{c}
	}
	return nil
}
