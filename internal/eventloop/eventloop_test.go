package eventloop

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeParticipant struct {
	fd          int
	wantRead    bool
	dieAfterRun int
	runCount    int
	ran         bool
}

func (f *fakeParticipant) Fd() int { return f.fd }
func (f *fakeParticipant) Prepare(now time.Time) Interest {
	return Interest{Read: f.wantRead}
}
func (f *fakeParticipant) Run(now time.Time, readable, writable bool) bool {
	f.ran = true
	f.runCount++
	return f.dieAfterRun > 0 && f.runCount >= f.dieAfterRun
}

func TestStagedParticipantJoinsActiveList(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	l := New(nil)
	p := &fakeParticipant{fd: int(r.Fd())}
	l.Stage(p)
	require.Empty(t, l.active)

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	p.wantRead = true
	l.RunOnce()

	require.True(t, p.ran)
	require.Len(t, l.active, 1)
}

func TestDyingParticipantIsUnlinked(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	l := New(nil)
	p := &fakeParticipant{fd: int(r.Fd()), dieAfterRun: 1}
	l.Stage(p)
	dead := l.RunOnce()

	require.Len(t, dead, 1)
	require.Empty(t, l.active)
}

func TestRunOnceSurvivesWithNoReadyFds(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	l := New(nil)
	p := &fakeParticipant{fd: int(r.Fd())}
	l.Stage(p)
	l.RunOnce() // merges, runs once

	dead := l.RunOnce()
	require.Empty(t, dead)
	require.Len(t, l.active, 1)
}
