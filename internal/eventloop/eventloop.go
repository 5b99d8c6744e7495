// Package eventloop implements the single-threaded, cooperative,
// readiness-polling scheduler that drives every session and input device
// in the process. One iteration does exactly what myts.c's mainloop
// does: merge staged sessions, run a prepare pass, wait for readiness
// (capped at 100s, floored at 0), reap zombies, then run a run pass that
// may unlink dying participants.
//
// Grounded on myts.c's mainloop/timeradd_ms/timersetmin/timerdue, ported
// from its select()/fd_set model onto golang.org/x/sys/unix.Poll the way
// ehrlich-b-wingthing uses raw unix syscalls for its event plumbing.
package eventloop

import (
	"log/slog"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Interest describes what a Participant wants the loop to watch for on
// its next readiness wait.
type Interest struct {
	Read, Write bool
	// Due, if non-zero, contributes a deadline to the loop's wait
	// timeout (the earliest Due across all participants wins), matching
	// timersetmin's "keep the earliest due time" behavior.
	Due time.Time
}

// Participant is the capability set the loop needs from a session or
// input device: a pollable fd, a prepare step that registers interest,
// and a run step that performs I/O and reports whether it has died.
type Participant interface {
	Fd() int
	Prepare(now time.Time) Interest
	Run(now time.Time, readable, writable bool) (dying bool)
}

// maxWait is the select()/poll() timeout cap from myts.c's mainloop
// (tv_sec clamped to [0,100]).
const maxWait = 100 * time.Second

// Loop is the cooperative scheduler. It owns no knowledge of what a
// Participant actually is beyond the interface above, matching spec.md
// 4.8's "main-loop owns no knowledge of session type beyond the
// callback".
type Loop struct {
	active  []Participant
	staging []Participant
	log     *slog.Logger

	// Stop is polled once per iteration; set it (e.g. from a signal
	// handler via an atomic flag wrapper) to end Run after the current
	// iteration completes.
	Stop func() bool
}

// New returns an empty Loop.
func New(log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{log: log}
}

// Stage queues p to join the active list at the start of the next
// iteration, avoiding a mutation of the active list mid-iteration.
func (l *Loop) Stage(p Participant) {
	l.staging = append(l.staging, p)
}

// mergeStaging prepends staged participants to the active list, matching
// mainloop's tail-link-then-swap merge.
func (l *Loop) mergeStaging() {
	if len(l.staging) == 0 {
		return
	}
	l.active = append(l.staging, l.active...)
	l.staging = nil
}

// RunOnce executes exactly one scheduler iteration: merge, prepare,
// wait, reap, run. It returns the list of participants that died this
// iteration (already removed from the active list), so callers can
// invoke any death/cleanup logic that lives outside the Participant
// interface itself (e.g. releasing a framebuffer).
func (l *Loop) RunOnce() []Participant {
	l.mergeStaging()

	now := time.Now()
	due := now.Add(maxWait)

	pollfds := make([]unix.PollFd, 0, len(l.active))
	fdIndex := make([]int, 0, len(l.active))
	for i, p := range l.active {
		interest := p.Prepare(now)
		if !interest.Due.IsZero() && interest.Due.Before(due) {
			due = interest.Due
		}
		if !interest.Read && !interest.Write {
			continue
		}
		var events int16
		if interest.Read {
			events |= unix.POLLIN
		}
		if interest.Write {
			events |= unix.POLLOUT
		}
		pollfds = append(pollfds, unix.PollFd{Fd: int32(p.Fd()), Events: events})
		fdIndex = append(fdIndex, i)
	}

	timeout := due.Sub(now)
	if timeout < 0 {
		timeout = 0
	}
	if timeout > maxWait {
		timeout = maxWait
	}

	n, err := unix.Poll(pollfds, int(timeout/time.Millisecond))
	if err != nil && err != unix.EINTR {
		l.log.Debug("eventloop: poll error", "err", err)
	}
	_ = n

	reapZombies()

	now = time.Now()
	readable := make(map[int]bool, len(pollfds))
	writable := make(map[int]bool, len(pollfds))
	for i, pfd := range pollfds {
		if pfd.Revents&unix.POLLIN != 0 {
			readable[fdIndex[i]] = true
		}
		if pfd.Revents&(unix.POLLOUT) != 0 {
			writable[fdIndex[i]] = true
		}
	}

	var dead []Participant
	survivors := l.active[:0]
	for i, p := range l.active {
		if p.Run(now, readable[i], writable[i]) {
			dead = append(dead, p)
			continue
		}
		survivors = append(survivors, p)
	}
	l.active = survivors
	return dead
}

// Run executes RunOnce in a loop until Stop reports true (or forever if
// Stop is nil). onDead, if non-nil, is called with each iteration's dead
// participants.
func (l *Loop) Run(onDead func([]Participant)) {
	for {
		if l.Stop != nil && l.Stop() {
			return
		}
		dead := l.RunOnce()
		if onDead != nil && len(dead) > 0 {
			onDead(dead)
		}
	}
}

// reapZombies non-blockingly reaps any exited child processes, matching
// mainloop's `for (n=0; wait3(NULL, WNOHANG, NULL)>0; n++)`.
func reapZombies() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
	}
}
