// Package session wraps one child shell: its PTY, its Grid, and the
// bounded input/output byte queues the event loop drains each iteration.
//
// Grounded on terminal.c's struct my_sess and term_new/term_keyin/
// term_screen/term_keyboard, adapted to Go's exec/pty idiom the way
// dcosson-h2's internal/session/virtualterminal wraps creack/pty, and to
// the spec's PTY-spawn contract (geometry clamps, ENV override, bounded
// queues with silent-drop backpressure).
package session

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/google/shlex"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/inkterm/inkterm/internal/grid"
	"github.com/inkterm/inkterm/internal/vtparse"
)

// Geometry clamps, matching term_new's rows∈[4,80]/cols∈[10,160]. A value
// outside its range is clamped to the nearest bound; the 25x80 default
// applies only to a value <= 0 (unset).
const (
	MinRows, MaxRows, DefaultRows = 4, 80, 25
	MinCols, MaxCols, DefaultCols = 10, 160, 80

	// keyQueueCap bounds the keyboard-output queue (KMAX in terminal.c).
	keyQueueCap = 256
	// readBufSize is the per-iteration PTY read chunk size.
	readBufSize = 4096
	// pendingCap bounds the carried-over unconsumed parser suffix (SMAX
	// in terminal.c), guarding against a pathological unbounded escape
	// prefix.
	pendingCap = 4096
)

// ClampRows returns rows clamped into [MinRows, MaxRows], or DefaultRows
// if rows is <= 0 (treated as "unset").
func ClampRows(rows int) int { return clamp(rows, MinRows, MaxRows, DefaultRows) }

// ClampCols returns cols clamped into [MinCols, MaxCols], or DefaultCols
// if cols is <= 0.
func ClampCols(cols int) int { return clamp(cols, MinCols, MaxCols, DefaultCols) }

func clamp(v, lo, hi, def int) int {
	if v <= 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DeathFunc is called exactly once when a session dies, so its owner
// (the launchpad) can unlink it and release any framebuffer it held.
type DeathFunc func(s *Session)

// Session is one child shell attached to a PTY, driven by the event loop.
type Session struct {
	ID   string
	Name string

	mu       sync.Mutex
	cmd      *exec.Cmd
	ptmx     *os.File
	grid     *grid.Grid
	parser   *vtparse.Parser
	keyQueue []byte
	pending  []byte
	modified bool
	dying    bool
	death    DeathFunc
	log      *slog.Logger
}

// Options configures New.
type Options struct {
	Shell      string // shell command line, split with shlex (default "/bin/sh")
	ProfileEnv string // value assigned to ENV= in the child's environment
	Rows, Cols int
	ScrollbackLines int
	Log        *slog.Logger
}

// New spawns command under a PTY of the requested geometry (clamped) and
// returns a ready Session. The child's environment is the parent's plus
// ENV=opts.ProfileEnv (default left unset if empty), matching term_new's
// putenv("ENV=...") override.
func New(name string, opts Options, death DeathFunc) (*Session, error) {
	rows, cols := ClampRows(opts.Rows), ClampCols(opts.Cols)
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	shellLine := opts.Shell
	if shellLine == "" {
		shellLine = "/bin/sh"
	}
	argv, err := shlex.Split(shellLine)
	if err != nil || len(argv) == 0 {
		return nil, fmt.Errorf("session: invalid shell command %q: %w", shellLine, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	if opts.ProfileEnv != "" {
		cmd.Env = append(cmd.Env, "ENV="+opts.ProfileEnv)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("session: start pty: %w", err)
	}
	if err := unix.SetNonblock(int(ptmx.Fd()), true); err != nil {
		ptmx.Close()
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("session: set nonblock: %w", err)
	}

	s := &Session{
		ID:     uuid.NewString(),
		Name:   name,
		cmd:    cmd,
		ptmx:   ptmx,
		grid:   grid.New(rows, cols, opts.ScrollbackLines),
		parser: vtparse.New(log),
		death:  death,
		log:    log.With("session", name),
	}
	return s, nil
}

// Fd returns the PTY master fd, for poll registration.
func (s *Session) Fd() int { return int(s.ptmx.Fd()) }

// Grid returns the session's Grid. Callers must not mutate it outside
// the session's own step methods; renderers should take a Snapshot.
func (s *Session) Grid() *grid.Grid { return s.grid }

// Modified reports and optionally clears the dirty flag, matching
// term_state's TS_MOD option.
func (s *Session) Modified(reset bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.modified
	if reset {
		s.modified = false
	}
	return m
}

// Dying reports whether the session has been marked for reaping.
func (s *Session) Dying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dying
}

// WantsWrite reports whether the key queue has bytes pending.
func (s *Session) WantsWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keyQueue) > 0
}

// KeyIn enqueues bytes for writing to the PTY, matching term_keyin. The
// application-mode cursor-key rewrite ("ESC O" in place of "ESC [") is
// done by the caller (launchpad's KeyIn) before the bytes reach here;
// KeyIn only enforces the bounded-queue backpressure policy (silent drop
// on overflow).
func (s *Session) KeyIn(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := keyQueueCap - len(s.keyQueue)
	if room <= 0 {
		return
	}
	if len(b) > room {
		b = b[:room]
	}
	s.keyQueue = append(s.keyQueue, b...)
}

// Kill sends sig to the child process.
func (s *Session) Kill(sig syscall.Signal) error {
	if s.cmd.Process == nil {
		return nil
	}
	return s.cmd.Process.Signal(sig)
}

// StepRead is called by the event loop when the PTY fd is readable. It
// reads available bytes, feeds them (prefixed by any carried-over
// partial sequence) through the VT parser, and retains the unconsumed
// suffix for next time. Returns an error only on a fatal fd error, in
// which case it has already marked the session dying.
func (s *Session) StepRead() error {
	buf := make([]byte, readBufSize)
	n, err := s.ptmx.Read(buf)
	if n > 0 {
		s.mu.Lock()
		s.pending = append(s.pending, buf[:n]...)
		if len(s.pending) > pendingCap {
			// A pathological unbounded escape prefix; drop the oldest
			// bytes rather than growing without bound.
			s.pending = s.pending[len(s.pending)-pendingCap:]
		}
		consumed := s.parser.Feed(s.grid, s.pending)
		s.pending = append([]byte(nil), s.pending[consumed:]...)
		s.modified = true
		s.mu.Unlock()
	}
	if err != nil {
		if isTransientReadErr(err) {
			return nil
		}
		s.markDying()
		return fmt.Errorf("session %s: pty read: %w", s.Name, err)
	}
	return nil
}

// StepWrite is called by the event loop when the PTY fd is writable and
// the key queue is non-empty. It writes as much as possible and compacts
// the queue, matching term_keyboard's write+strcpy-compact pattern.
func (s *Session) StepWrite() error {
	s.mu.Lock()
	if len(s.keyQueue) == 0 {
		s.mu.Unlock()
		return nil
	}
	pending := s.keyQueue
	s.mu.Unlock()

	n, err := s.ptmx.Write(pending)
	s.mu.Lock()
	if n > 0 {
		s.keyQueue = append([]byte(nil), s.keyQueue[n:]...)
	}
	s.mu.Unlock()
	if err != nil && !isTransientWriteErr(err) {
		s.markDying()
		return fmt.Errorf("session %s: pty write: %w", s.Name, err)
	}
	return nil
}

func (s *Session) markDying() {
	s.mu.Lock()
	already := s.dying
	s.dying = true
	s.mu.Unlock()
	if !already && s.death != nil {
		s.death(s)
	}
}

// Resize updates the session's geometry, clamping as New does, and
// propagates to the PTY.
func (s *Session) Resize(rows, cols int) error {
	rows, cols = ClampRows(rows), ClampCols(cols)
	s.mu.Lock()
	s.grid = grid.New(rows, cols, s.grid.ScrollbackLines())
	s.mu.Unlock()
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Close releases the PTY master and signals the child to terminate.
func (s *Session) Close() error {
	_ = s.Kill(syscall.SIGHUP)
	return s.ptmx.Close()
}

func isTransientReadErr(err error) bool {
	return isEAGAIN(err)
}

func isTransientWriteErr(err error) bool {
	return isEAGAIN(err)
}

func isEAGAIN(err error) bool {
	var errno syscall.Errno
	if pe, ok := err.(*os.PathError); ok {
		if e, ok := pe.Err.(syscall.Errno); ok {
			errno = e
		}
	}
	return errno == syscall.EAGAIN
}
