package launchpad

import (
	"time"

	"github.com/inkterm/inkterm/internal/eventloop"
	"github.com/inkterm/inkterm/internal/session"
)

// sessionParticipant adapts a *session.Session to eventloop.Participant:
// it always wants to read, wants to write only when the key queue is
// non-empty, and reports dying once the session itself is dying.
// Matches handle_shell's prepare/run split in launchpad.c.
type sessionParticipant struct {
	s            *session.Session
	refreshDelay time.Duration
	onDirty      func()
}

func (p *sessionParticipant) Fd() int { return p.s.Fd() }

func (p *sessionParticipant) Prepare(now time.Time) eventloop.Interest {
	return eventloop.Interest{Read: true, Write: p.s.WantsWrite()}
}

func (p *sessionParticipant) Run(now time.Time, readable, writable bool) bool {
	if writable {
		_ = p.s.StepWrite()
	}
	if readable {
		_ = p.s.StepRead()
		if p.onDirty != nil && p.s.Modified(false) {
			p.onDirty()
		}
	}
	return p.s.Dying()
}
