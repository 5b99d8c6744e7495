package launchpad

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkterm/inkterm/internal/config"
	"github.com/inkterm/inkterm/internal/fbdevice"
	"github.com/inkterm/inkterm/internal/grid"
	"github.com/inkterm/inkterm/internal/inputdevice"
	"github.com/inkterm/inkterm/internal/keymap"
)

func newTestLaunchpad(t *testing.T) *Launchpad {
	t.Helper()
	cfg := config.New()
	km := &keymap.Map{}
	lp := New(cfg, km, fbdevice.NullFramebuffer{}, fbdevice.NullFont{}, fbdevice.NullBlitter{}, Settings{
		RefreshDelay: 10 * time.Millisecond,
		Shell:        "/bin/cat",
	}, nil)
	return lp
}

func TestAttachOrCreateReusesExistingSession(t *testing.T) {
	lp := newTestLaunchpad(t)
	s1, err := lp.AttachOrCreate("main")
	require.NoError(t, err)
	defer s1.Close()

	s2, err := lp.AttachOrCreate("main")
	require.NoError(t, err)
	require.Same(t, s1, s2)
}

func TestEnterAndEndCurrentSetsAndClearsCurrent(t *testing.T) {
	lp := newTestLaunchpad(t)
	s, err := lp.AttachOrCreate("main")
	require.NoError(t, err)
	defer s.Close()

	lp.EnterTerminal(s)
	require.Equal(t, s, lp.Current())
	lp.EndCurrent()
	require.Nil(t, lp.Current())
}

func TestScrollByClampsAtZeroAndScrollbackTop(t *testing.T) {
	lp := newTestLaunchpad(t)
	lp.scrollbackStep = 1
	s, err := lp.AttachOrCreate("main")
	require.NoError(t, err)
	defer s.Close()
	lp.EnterTerminal(s)

	lp.ScrollBy(-5)
	require.Equal(t, 0, lp.scrollbackPos)

	lp.ScrollBy(1000)
	require.Equal(t, s.Grid().ScrollbackTop(), lp.scrollbackPos)
}

func TestRewriteCursorKeysOnlyWhenAppModeSet(t *testing.T) {
	lp := newTestLaunchpad(t)
	s, err := lp.AttachOrCreate("main")
	require.NoError(t, err)
	defer s.Close()
	lp.EnterTerminal(s)

	out := rewriteCursorKeysIfAppMode(s, []byte("\x1b[A"))
	require.Equal(t, []byte("\x1b[A"), out)

	s.Grid().SetFlag(grid.FlagCursorKeysApp)
	out = rewriteCursorKeysIfAppMode(s, []byte("\x1b[A"))
	require.Equal(t, []byte("\x1bOA"), out)
}

func TestRequestRefreshCoalescesUntilDeadline(t *testing.T) {
	lp := newTestLaunchpad(t)
	lp.requestRefresh()
	due1 := lp.refreshDue
	lp.requestRefresh()
	require.Equal(t, due1, lp.refreshDue, "second request before deadline must not move it")
}

func TestSignalStateDefaultsToNone(t *testing.T) {
	lp := newTestLaunchpad(t)
	require.Equal(t, SignalNone, lp.SignalState())
}

func TestReloadConfigKeepsOldStateOnParseFailure(t *testing.T) {
	lp := newTestLaunchpad(t)
	oldCfg, oldKM := lp.Config, lp.KeyMap
	lp.ConfigPath = filepath.Join(t.TempDir(), "does-not-exist.ini")

	lp.reloadConfig()

	require.Same(t, oldCfg, lp.Config)
	require.Same(t, oldKM, lp.KeyMap)
}

func TestReloadConfigRebuildsKeymapAndSettings(t *testing.T) {
	lp := newTestLaunchpad(t)
	dir := t.TempDir()
	p := filepath.Join(dir, "main.ini")
	require.NoError(t, os.WriteFile(p, []byte("[Settings]\nRefreshDelay = 250\n[inkeys]\n30 = a\n"), 0o644))

	lp.ConfigPath = p
	lp.KeymapSections = []string{"inkeys"}
	lp.BuildSettings = func(cfg *config.Config) Settings {
		s := lp.Settings
		if v, ok := cfg.Value("Settings", "RefreshDelay"); ok {
			require.Equal(t, "250", v)
		}
		s.RefreshDelay = 250 * time.Millisecond
		return s
	}

	lp.reloadConfig()

	require.Equal(t, 250*time.Millisecond, lp.Settings.RefreshDelay)
	require.NotNil(t, lp.KeyMap.ByCode(30))
}

func TestEnterTerminalGrabsAndShutdownReleasesInputDevices(t *testing.T) {
	lp := newTestLaunchpad(t)
	dev, err := inputdevice.Open("/dev/null")
	require.NoError(t, err)
	lp.inputDevices = append(lp.inputDevices, dev)

	s, err := lp.AttachOrCreate("main")
	require.NoError(t, err)
	defer s.Close()

	require.NotPanics(t, func() { lp.EnterTerminal(s) })
	require.NotPanics(t, func() { lp.EndCurrent() })
	require.NotPanics(t, func() { lp.Shutdown() })
}
