package launchpad

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/inkterm/inkterm/internal/eventloop"
)

// specialDeviceParticipant reads session-selection packets from the
// configured special-input channel: a byte 'A' followed by a single
// session-name byte selects (creating if needed) that session and makes
// it current. Matches launchpad.c's process_event(mode==-3) path.
type specialDeviceParticipant struct {
	f   *os.File
	lp  *Launchpad
	buf []byte
}

func (p *specialDeviceParticipant) Fd() int { return int(p.f.Fd()) }

func (p *specialDeviceParticipant) Prepare(now time.Time) eventloop.Interest {
	return eventloop.Interest{Read: true}
}

func (p *specialDeviceParticipant) Run(now time.Time, readable, writable bool) bool {
	if !readable {
		return false
	}
	for {
		n, err := p.f.Read(p.buf)
		if err != nil || n < 2 {
			return false
		}
		if p.buf[0] != 'A' {
			continue
		}
		name := string(p.buf[1])
		s, err := p.lp.AttachOrCreate(name)
		if err != nil {
			p.lp.Log.Warn("launchpad: special-device attach failed", "name", name, "err", err)
			continue
		}
		p.lp.EnterTerminal(s)
		p.lp.requestRefresh()
	}
}

// WatchSpecialDevice opens path as the special.fdin session-select
// channel and stages a participant for it. A failure to open is
// tolerated by the caller: this feature is optional (spec.md 4.6).
func (l *Launchpad) WatchSpecialDevice(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return err
	}
	l.Loop.Stage(&specialDeviceParticipant{f: f, lp: l, buf: make([]byte, 64)})
	return nil
}
