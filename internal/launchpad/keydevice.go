package launchpad

import (
	"time"

	"github.com/inkterm/inkterm/internal/eventloop"
	"github.com/inkterm/inkterm/internal/inputdevice"
	"github.com/inkterm/inkterm/internal/inputdispatch"
)

// keyDeviceParticipant adapts an inputdevice.Device reading kpad/fw/vol
// style input_event records into eventloop.Participant, forwarding each
// EV_KEY event to a Dispatcher. Matches launchpad.c's handle_launchpad
// per-fd read loop for keypad-class devices.
type keyDeviceParticipant struct {
	dev        *inputdevice.Device
	dispatcher *inputdispatch.Dispatcher
}

func (p *keyDeviceParticipant) Fd() int { return p.dev.Fd() }

func (p *keyDeviceParticipant) Prepare(now time.Time) eventloop.Interest {
	return eventloop.Interest{Read: true}
}

// Run drains every event currently queued on the device (the socket is
// non-blocking, so ReadEvent returning ErrWouldBlock just ends this
// iteration's drain); a key device never reports itself dying, matching
// spec.md 7's "individual input-device open failures are tolerated".
func (p *keyDeviceParticipant) Run(now time.Time, readable, writable bool) bool {
	if !readable {
		return false
	}
	for {
		ev, err := p.dev.ReadEvent()
		if err != nil {
			return false
		}
		if ev.Type != inputdevice.EV_KEY {
			continue
		}
		p.dispatcher.Dispatch(uint8(ev.Code), ev.Value)
	}
}

// WatchKeyDevice opens path as a keypad-class input device and stages a
// participant that dispatches its events through dispatcher. A failure
// to open is returned to the caller to decide tolerance, per spec.md 7
// ("if all three keypad-class devices are absent, startup fails"). The
// device is not grabbed here: exclusive capture is acquired on
// EnterTerminal and released on EndCurrent/Shutdown (spec.md §5).
func (l *Launchpad) WatchKeyDevice(path string, dispatcher *inputdispatch.Dispatcher) error {
	dev, err := inputdevice.Open(path)
	if err != nil {
		return err
	}
	l.inputDevices = append(l.inputDevices, dev)
	l.Loop.Stage(&keyDeviceParticipant{dev: dev, dispatcher: dispatcher})
	return nil
}
