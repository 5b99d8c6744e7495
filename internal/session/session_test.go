package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClampRowsCols(t *testing.T) {
	require.Equal(t, DefaultRows, ClampRows(0))
	require.Equal(t, MinRows, ClampRows(1))
	require.Equal(t, MaxRows, ClampRows(1000))
	require.Equal(t, 40, ClampRows(40))

	require.Equal(t, DefaultCols, ClampCols(0))
	require.Equal(t, MinCols, ClampCols(1))
	require.Equal(t, MaxCols, ClampCols(1000))
	require.Equal(t, 100, ClampCols(100))
}

func TestKeyInDropsOnOverflow(t *testing.T) {
	s, err := New("test", Options{Shell: "/bin/cat", Rows: 4, Cols: 10}, nil)
	require.NoError(t, err)
	defer s.Close()

	big := make([]byte, keyQueueCap+100)
	for i := range big {
		big[i] = 'x'
	}
	s.KeyIn(big)
	require.LessOrEqual(t, len(s.keyQueue), keyQueueCap)
}

func TestEchoRoundTrip(t *testing.T) {
	s, err := New("echo", Options{Shell: "/bin/cat", Rows: 4, Cols: 20}, nil)
	require.NoError(t, err)
	defer s.Close()

	s.KeyIn([]byte("hi\n"))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = s.StepWrite()
		_ = s.StepRead()
		if s.Modified(false) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap := s.Grid().Snapshot()
	require.Equal(t, byte('h'), byte(snap.Chars[0]))
	require.Equal(t, byte('i'), byte(snap.Chars[1]))
}

func TestResizeRebuildsGrid(t *testing.T) {
	s, err := New("resize", Options{Shell: "/bin/cat", Rows: 4, Cols: 10}, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Resize(6, 30))
	require.Equal(t, 6, s.Grid().Rows())
	require.Equal(t, 30, s.Grid().Cols())
}

func TestDeathCallbackFiresOnFatalWriteError(t *testing.T) {
	var died bool
	s, err := New("dying", Options{Shell: "/bin/cat", Rows: 4, Cols: 10}, func(*Session) {
		died = true
	})
	require.NoError(t, err)
	s.Close() // closes the ptmx out from under the session
	s.KeyIn([]byte("x"))
	_ = s.StepWrite() // writing to the closed *os.File fails with os.ErrClosed
	require.True(t, died)
}
