// Package launchpad holds the process-wide context: the event loop, the
// set of live sessions, the current (displayed) session, the framebuffer,
// and the loaded configuration. It is the explicit struct spec.md's
// Design Notes call for in place of a global singleton; the only true
// process-wide mutable state left outside it is the signal-state flag.
//
// Grounded on launchpad.c's struct lp_state / launchpad_init / curterm_end
// / shell_find / handle_launchpad, restructured as Go methods on an
// explicit context value instead of C globals.
package launchpad

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inkterm/inkterm/internal/config"
	"github.com/inkterm/inkterm/internal/eventloop"
	"github.com/inkterm/inkterm/internal/fbdevice"
	"github.com/inkterm/inkterm/internal/grid"
	"github.com/inkterm/inkterm/internal/inputdevice"
	"github.com/inkterm/inkterm/internal/keymap"
	"github.com/inkterm/inkterm/internal/renderer"
	"github.com/inkterm/inkterm/internal/session"
)

// SignalState is the only true process-wide mutable state, matching
// launchpad.c's got_signal: a flag set by a signal handler and polled
// once per loop iteration.
type SignalState int32

const (
	SignalNone SignalState = iota
	SignalReload
	SignalExit
)

// Settings is the subset of [Settings] config keys the launchpad itself
// consumes (sessions read their own Shell/ProfileEnv via session.Options).
type Settings struct {
	RefreshDelay          time.Duration
	ScrollbackLines       int
	FontHeight, FontWidth int
	XOffset, YOffset      int
	Shell, ProfileEnv     string
}

// Launchpad is the process-wide context struct.
type Launchpad struct {
	Loop     *eventloop.Loop
	FB       fbdevice.Framebuffer
	Font     fbdevice.Font
	Blitter  fbdevice.PixmapBlitter
	KeyMap   *keymap.Map
	Config   *config.Config
	Settings Settings
	Log      *slog.Logger

	// ConfigPath, KeymapSections and BuildSettings are consulted by a
	// SIGHUP/fsnotify reload: re-read ConfigPath, rebuild the KeyMap
	// from KeymapSections, and, if BuildSettings is set, rederive
	// Settings from the freshly loaded Config. Left zero-valued, reload
	// just clears the signal flag (matches the pre-CLI-wiring no-op).
	ConfigPath     string
	KeymapSections []string
	BuildSettings  func(cfg *config.Config) Settings

	sessions    map[string]*session.Session
	current     *session.Session
	savedPixmap []byte

	// inputDevices are every keypad-class device opened via
	// WatchKeyDevice; EnterTerminal grabs them all exclusively, and
	// EndCurrent/Shutdown release that grab, matching spec.md §5's
	// "acquired when entering terminal mode and released on exit and on
	// shutdown, with guaranteed release on all exit paths".
	inputDevices []*inputdevice.Device

	scrollbackPos  int
	scrollbackStep int
	helpVisible    bool

	refreshDue time.Time
	dirty      bool

	signalState atomic.Int32
	watcher     *fsnotify.Watcher
}

// New builds a Launchpad from loaded configuration and devices. fb/font/
// blitter may be the fbdevice Null* implementations when no physical
// display is present; the renderer then degrades to a no-op per spec.md 7.
func New(cfg *config.Config, km *keymap.Map, fb fbdevice.Framebuffer, font fbdevice.Font, blitter fbdevice.PixmapBlitter, settings Settings, log *slog.Logger) *Launchpad {
	if log == nil {
		log = slog.Default()
	}
	if settings.ScrollbackLines < 0 {
		settings.ScrollbackLines = 0
	}
	step := 1
	if font != nil && font.CellHeight() > 0 && fb != nil && fb.Height() > 0 {
		rows := (fb.Height() - 2*settings.YOffset) / font.CellHeight()
		step = rows / 2
		if step < 1 {
			step = 1
		}
	}
	return &Launchpad{
		Loop:           eventloop.New(log),
		FB:             fb,
		Font:           font,
		Blitter:        blitter,
		KeyMap:         km,
		Config:         cfg,
		Settings:       settings,
		Log:            log,
		sessions:       make(map[string]*session.Session),
		scrollbackStep: step,
	}
}

// SignalState returns the current signal flag (SignalNone/Reload/Exit).
func (l *Launchpad) SignalState() SignalState {
	return SignalState(l.signalState.Load())
}

// WatchSignals installs SIGHUP/SIGINT/SIGTERM handlers that set the
// atomic signal flag, matching launchpad.c's hup_handler/int_handler.
// Returns a function to stop watching.
func (l *Launchpad) WatchSignals() func() {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				switch sig {
				case syscall.SIGHUP:
					l.signalState.Store(int32(SignalReload))
				case syscall.SIGINT, syscall.SIGTERM:
					l.signalState.Store(int32(SignalExit))
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// WatchConfigFile optionally watches the file at path with fsnotify and
// sets SignalReload on write/create events, as an additive convenience
// alongside SIGHUP (not a replacement for it).
func (l *Launchpad) WatchConfigFile(path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("launchpad: fsnotify: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return fmt.Errorf("launchpad: fsnotify watch %s: %w", path, err)
	}
	l.watcher = w
	l.ConfigPath = path
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					l.signalState.Store(int32(SignalReload))
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// AttachOrCreate finds an existing session named name, or spawns a new
// one sized to the framebuffer's cell grid, matching launchpad.c's
// shell_find.
func (l *Launchpad) AttachOrCreate(name string) (*session.Session, error) {
	if s, ok := l.sessions[name]; ok {
		return s, nil
	}
	rows, cols := l.geometryFromFramebuffer()
	s, err := session.New(name, session.Options{
		Shell:           l.Settings.Shell,
		ProfileEnv:      l.Settings.ProfileEnv,
		Rows:            rows,
		Cols:            cols,
		ScrollbackLines: l.Settings.ScrollbackLines,
		Log:             l.Log,
	}, l.onSessionDeath)
	if err != nil {
		return nil, err
	}
	l.sessions[name] = s
	l.Loop.Stage(&sessionParticipant{s: s, refreshDelay: l.Settings.RefreshDelay, onDirty: l.requestRefresh})
	return s, nil
}

func (l *Launchpad) geometryFromFramebuffer() (rows, cols int) {
	if l.FB == nil || l.Font == nil || l.FB.Height() == 0 {
		return 0, 0
	}
	rows = (l.FB.Height() - 2*l.Settings.YOffset) / l.Font.CellHeight()
	cols = (l.FB.Width() - l.Settings.XOffset) / l.Font.CellWidth()
	return rows, cols
}

// reloadConfig re-parses ConfigPath and rebuilds the KeyMap (and, if
// BuildSettings is set, Settings) from it, matching spec.md §5's "SIGHUP
// requests a config-reload restart (preserve sessions)". A parse
// failure is non-fatal: the prior Config/KeyMap/Settings are kept,
// matching spec.md §7's ConfigParse-on-reload policy.
func (l *Launchpad) reloadConfig() {
	if l.ConfigPath == "" {
		return
	}
	newCfg, err := config.Load(l.ConfigPath)
	if err != nil {
		l.Log.Warn("launchpad: config reload failed, keeping old state", "path", l.ConfigPath, "err", err)
		return
	}
	l.Config = newCfg
	l.KeyMap = keymap.Load(newCfg, l.KeymapSections...)
	if l.BuildSettings != nil {
		l.Settings = l.BuildSettings(newCfg)
	}
	l.requestRefresh()
}

func (l *Launchpad) onSessionDeath(s *session.Session) {
	delete(l.sessions, s.Name)
	if l.current == s {
		l.EndCurrent()
	}
}

// requestRefresh marks the display dirty, arming a coalesced refresh
// deadline of now+RefreshDelay if one isn't already pending, matching
// handle_launchpad's "timersetmin" refresh-coalescing behavior.
func (l *Launchpad) requestRefresh() {
	l.dirty = true
	if l.refreshDue.IsZero() {
		l.refreshDue = time.Now().Add(l.Settings.RefreshDelay)
	}
}

// Fd implements eventloop.Participant; the launchpad itself is not
// pollable, only timer-driven, so it registers no read/write interest.
func (l *Launchpad) Fd() int { return -1 }

// Prepare implements eventloop.Participant: if the current session is
// dirty and no refresh is already pending, arm one (other sessions arm it
// through their participant's onDirty); contribute that deadline (and
// the signal-state poll, which needs no deadline) to the loop's wait.
func (l *Launchpad) Prepare(now time.Time) eventloop.Interest {
	if l.current != nil && l.current.Modified(false) {
		l.requestRefresh()
	}
	return eventloop.Interest{Due: l.refreshDue}
}

// Run implements eventloop.Participant: handle a pending signal, then
// render if the coalesced refresh deadline has passed. The launchpad
// never reports itself dying.
func (l *Launchpad) Run(now time.Time, readable, writable bool) bool {
	switch l.SignalState() {
	case SignalExit:
		l.Shutdown()
	case SignalReload:
		l.reloadConfig()
		l.signalState.Store(int32(SignalNone))
	}
	if l.dirty && !l.refreshDue.IsZero() && !now.Before(l.refreshDue) {
		l.Render()
		if l.current != nil {
			l.current.Modified(true)
		}
		l.dirty = false
		l.refreshDue = time.Time{}
	}
	return false
}

// EnterTerminal makes s the current, visible session: it saves the
// framebuffer's current pixel contents for later restoration, grabs
// exclusive input capture, and arms an immediate refresh. Matches the
// special-device "open the framebuffer ... save the current framebuffer
// contents" path of process_event(mode==-3).
func (l *Launchpad) EnterTerminal(s *session.Session) {
	if l.FB != nil {
		l.savedPixmap = l.FB.Snapshot()
	}
	l.grabInputDevices(true)
	l.current = s
	l.scrollbackPos = 0
	l.dirty = true
	l.refreshDue = time.Now()
}

// grabInputDevices acquires or releases exclusive capture on every
// opened keypad-class device. A failure to grab/release one device is
// logged and does not stop the others, matching spec.md §7's tolerance
// for individual device failures.
func (l *Launchpad) grabInputDevices(capture bool) {
	for _, dev := range l.inputDevices {
		if err := dev.Grab(capture); err != nil {
			l.Log.Warn("launchpad: input device grab failed", "device", dev.Name, "capture", capture, "err", err)
		}
	}
}

// Current returns the currently displayed session, or nil.
func (l *Launchpad) Current() *session.Session { return l.current }

// HasCurrent implements inputdispatch.Target.
func (l *Launchpad) HasCurrent() bool { return l.current != nil }

// KeyIn implements inputdispatch.Target, forwarding to the current
// session with the application-cursor-key rewrite terminal.c's
// term_keyin performs.
func (l *Launchpad) KeyIn(b []byte) {
	if l.current == nil {
		return
	}
	b = rewriteCursorKeysIfAppMode(l.current, b)
	l.current.KeyIn(b)
}

func rewriteCursorKeysIfAppMode(s *session.Session, b []byte) []byte {
	if len(b) < 3 || b[0] != 0x1B || b[1] != '[' {
		return b
	}
	switch b[2] {
	case 'A', 'B', 'C', 'D':
	default:
		return b
	}
	if !s.Grid().HasFlag(grid.FlagCursorKeysApp) {
		return b
	}
	out := append([]byte(nil), b...)
	out[1] = 'O'
	return out
}

// ScrollBy implements inputdispatch.ScrollController.
func (l *Launchpad) ScrollBy(delta int) {
	l.scrollbackPos += delta * l.scrollbackStep
	if l.scrollbackPos < 0 {
		l.scrollbackPos = 0
	}
	if l.current != nil {
		top := l.current.Grid().ScrollbackTop()
		if l.scrollbackPos > top {
			l.scrollbackPos = top
		}
	}
}

// ScrollReset implements inputdispatch.ScrollController: if the view is
// scrolled back, it returns to the live page and requests a refresh.
func (l *Launchpad) ScrollReset() {
	if l.scrollbackPos > 0 {
		l.scrollbackPos = 0
		l.requestRefresh()
	}
}

// RequestRefresh implements inputdispatch.ScrollController.
func (l *Launchpad) RequestRefresh() { l.requestRefresh() }

// SetHelpVisible implements inputdispatch.ScrollController: toggling the
// help overlay replaces the next Render with print_keymap's reference
// screen instead of the live session page.
func (l *Launchpad) SetHelpVisible(visible bool) { l.helpVisible = visible }

// Render draws either the help overlay or the current session, using
// the configured renderer collaborators.
func (l *Launchpad) Render() {
	if l.FB == nil {
		return
	}
	r := &renderer.Renderer{
		FB: l.FB, Font: l.Font, Blitter: l.Blitter,
		XOffset: l.Settings.XOffset, YOffset: l.Settings.YOffset,
		Fg: 0xF0, Bg: 0x10,
	}
	if l.helpVisible {
		r.RenderHelp(l.KeyMap)
		return
	}
	if l.current == nil {
		return
	}
	r.Draw(l.current.Grid().Snapshot(), renderer.ScrollbackPos(l.scrollbackPos))
}

// EndCurrent restores the saved framebuffer image and releases input
// capture, matching curterm_end.
func (l *Launchpad) EndCurrent() {
	if l.FB != nil && l.savedPixmap != nil {
		l.FB.Restore(l.savedPixmap)
		l.FB.UpdateArea(fbdevice.Rect{X1: 0, Y1: 0, X2: l.FB.Width(), Y2: l.FB.Height()})
	}
	l.grabInputDevices(false)
	l.current = nil
	l.savedPixmap = nil
}

// Shutdown kills every session's child process, releases input capture
// and closes every input device, and releases the framebuffer, matching
// free_terminals/launchpad_deinit(restart=0). Capture release here is
// the guaranteed-release backstop for the SIGINT/SIGTERM exit path even
// if EndCurrent was never called.
func (l *Launchpad) Shutdown() {
	l.EndCurrent()
	for _, s := range l.sessions {
		_ = s.Close()
	}
	l.grabInputDevices(false)
	for _, dev := range l.inputDevices {
		_ = dev.Close()
	}
	if l.watcher != nil {
		l.watcher.Close()
	}
	if l.FB != nil {
		_ = l.FB.Close()
	}
}
