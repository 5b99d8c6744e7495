// Package inputdevice reads Linux input-event records from /dev/input
// style character devices and supports exclusive capture via EVIOCGRAB.
//
// Grounded on launchpad.c's iodesc/handle_launchpad read loop (two
// input_event structs read per fd per iteration) and capture_input's
// EVIOCGRAB ioctl, ported onto golang.org/x/sys/unix the way
// ehrlich-b-wingthing uses it for raw syscalls.
package inputdevice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// EV_KEY is the Linux input-event type for keyboard/button events; only
// this type is processed, matching spec.md 6's "only type==EV_KEY is
// processed".
const EV_KEY = 0x01

// recordSize is the on-wire size of struct input_event: one struct
// timeval (tv_sec and tv_usec, each a C long of the platform word size),
// then type/code (uint16 each), then a 4-byte value. That is 16 bytes on
// 32-bit Linux and 24 bytes on 64-bit Linux. This matches the layout
// handle_launchpad reads with a single read(2) per event.
const recordSize = 2*int(unsafe.Sizeof(uintptr(0))) + 8

// Event is a decoded input-event record.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// Device wraps one opened, non-blocking input-event character device.
type Device struct {
	Name string
	f    *os.File
	buf  []byte
}

// Open opens path read-only and non-blocking. A failure to open one
// device is tolerated by the caller (spec.md 7: DeviceUnavailable),
// which is why this returns a plain error rather than panicking.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("inputdevice: open %s: %w", path, err)
	}
	return &Device{Name: path, f: f, buf: make([]byte, recordSize)}, nil
}

// Fd returns the underlying file descriptor, for poll registration.
func (d *Device) Fd() int { return int(d.f.Fd()) }

// Close releases the device.
func (d *Device) Close() error { return d.f.Close() }

// ErrWouldBlock is returned by ReadEvent when no event is currently
// available on a non-blocking device.
var ErrWouldBlock = errors.New("inputdevice: would block")

// ReadEvent reads one input_event record. It returns ErrWouldBlock if the
// device is non-blocking and no data is ready.
func (d *Device) ReadEvent() (Event, error) {
	n, err := d.f.Read(d.buf)
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return Event{}, err
		}
		if pe, ok := err.(*os.PathError); ok && errors.Is(pe.Err, unix.EAGAIN) {
			return Event{}, ErrWouldBlock
		}
		return Event{}, err
	}
	if n < recordSize {
		return Event{}, ErrWouldBlock
	}
	return decodeEvent(d.buf), nil
}

func decodeEvent(b []byte) Event {
	// layout: timeval, then type(2) code(2) value(4) in the last 8 bytes
	off := recordSize - 8
	typ := binary.LittleEndian.Uint16(b[off : off+2])
	code := binary.LittleEndian.Uint16(b[off+2 : off+4])
	value := int32(binary.LittleEndian.Uint32(b[off+4 : off+8]))
	return Event{Type: typ, Code: code, Value: value}
}

// Grab acquires (or releases) exclusive access to the device via
// EVIOCGRAB, matching launchpad.c's capture_input. Failure is tolerated
// by the caller (best-effort, per spec.md 6/7).
func (d *Device) Grab(capture bool) error {
	var v int32
	if capture {
		v = 1
	}
	// EVIOCGRAB = _IOW('E', 0x90, int)
	const eviocgrab = 0x40044590
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), eviocgrab, uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return fmt.Errorf("inputdevice: EVIOCGRAB %s: %w", d.Name, errno)
	}
	return nil
}
