// Command inkterm is the e-ink terminal emulator's process entry point:
// it loads the INI-like configuration, builds the key map, wires the
// physical input devices and framebuffer into a Launchpad, and runs the
// cooperative event loop until a signal requests shutdown.
//
// Grounded on launchpad.c's main()/launchpad_init(), restructured around
// a cobra root command the way dcosson-h2 and ehrlich-b-wingthing wire
// their CLIs.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkterm/inkterm/internal/config"
	"github.com/inkterm/inkterm/internal/fbdevice"
	"github.com/inkterm/inkterm/internal/inputdispatch"
	"github.com/inkterm/inkterm/internal/keymap"
	"github.com/inkterm/inkterm/internal/launchpad"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var verbosity int

	cmd := &cobra.Command{
		Use:   "inkterm",
		Short: "Terminal emulator for an e-ink keypad device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, verbosity)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&cfgPath, "cfg", "/etc/inkterm/inkterm.ini", "path to configuration file")
	cmd.Flags().CountVarP(&verbosity, "verbose", "v", "increase logging verbosity (repeatable)")
	return cmd
}

func newLogger(verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// run implements the launchpad_init/main-loop lifecycle: load config
// (fatal on failure per spec.md 7's ConfigNotFound/ConfigParse), build
// the key map, construct a Launchpad with no-op framebuffer/font/blitter
// (concrete implementations are an out-of-scope external collaborator
// per spec.md 1), wire input devices and signals, and run until exit.
func run(cfgPath string, verbosity int) error {
	log := newLogger(verbosity)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("inkterm: load config: %w", err)
	}

	keySection := probeKeymapSection(cfg, log)
	km := keymap.Load(cfg, "inkeys", keySection)

	settings := loadSettings(cfg)

	lp := launchpad.New(cfg, km, fbdevice.NullFramebuffer{}, fbdevice.NullFont{}, fbdevice.NullBlitter{}, settings, log)
	lp.ConfigPath = cfgPath
	lp.KeymapSections = []string{"inkeys", keySection}
	lp.BuildSettings = loadSettings

	stopSignals := lp.WatchSignals()
	defer stopSignals()

	if err := lp.WatchConfigFile(cfgPath); err != nil {
		log.Warn("inkterm: config hot-reload watch unavailable", "err", err)
	}

	dispatchCfg := dispatcherConfigFromSettings(cfg, km)
	dispatcher := inputdispatch.New(dispatchCfg, km, lp, lp, func() {
		lp.EndCurrent()
	})

	openedAny := false
	for _, key := range []string{"KpadIn", "FwIn", "VolIn"} {
		path, ok := cfg.Value("Settings", key)
		if !ok || path == "" {
			continue
		}
		if err := lp.WatchKeyDevice(path, dispatcher); err != nil {
			log.Warn("inkterm: input device unavailable", "device", key, "path", path, "err", err)
			continue
		}
		openedAny = true
	}
	if !openedAny {
		return fmt.Errorf("inkterm: no keypad-class input device available")
	}

	if path, ok := cfg.Value("Settings", "SpecialIn"); ok && path != "" {
		if err := lp.WatchSpecialDevice(path); err != nil {
			log.Warn("inkterm: special device unavailable", "path", path, "err", err)
		}
	}

	if name, ok := cfg.Value("Settings", "DefaultSession"); ok && name != "" {
		if s, err := lp.AttachOrCreate(name); err == nil {
			lp.EnterTerminal(s)
		} else {
			log.Warn("inkterm: default session spawn failed", "name", name, "err", err)
		}
	}

	lp.Loop.Stage(lp)
	lp.Loop.Stop = func() bool { return lp.SignalState() == launchpad.SignalExit }
	lp.Loop.Run(nil)

	return nil
}

// probeKeymapSection decides between [inkeys-k3] and [inkeys-dx] by which
// section the config contains: k3 if present, else dx, else only the
// platform-independent [inkeys] section is used. Input-device
// availability is not probed.
func probeKeymapSection(cfg *config.Config, log *slog.Logger) string {
	if _, ok := cfg.GetSection("inkeys-k3"); ok {
		return "inkeys-k3"
	}
	if _, ok := cfg.GetSection("inkeys-dx"); ok {
		return "inkeys-dx"
	}
	log.Debug("inkterm: no platform-specific inkeys section found")
	return ""
}

func loadSettings(cfg *config.Config) launchpad.Settings {
	return launchpad.Settings{
		RefreshDelay:    time.Duration(intValue(cfg, "RefreshDelay", 100)) * time.Millisecond,
		ScrollbackLines: intValue(cfg, "ScrollbackLines", 0),
		FontHeight:      intValue(cfg, "FontHeight", 16),
		FontWidth:       intValue(cfg, "FontWidth", 8),
		XOffset:         intValue(cfg, "XOffset", 0),
		YOffset:         intValue(cfg, "YOffset", 40),
		Shell:           stringValue(cfg, "Shell", "/bin/sh"),
		ProfileEnv:      stringValue(cfg, "ProfileEnv", "/mnt/us/myts/profile"),
	}
}

func dispatcherConfigFromSettings(cfg *config.Config, km *keymap.Map) inputdispatch.Config {
	codeFor := func(key string) uint8 {
		name, ok := cfg.Value("Settings", key)
		if !ok {
			return 0
		}
		if e := km.LookupByName(name); e != nil {
			return e.Code
		}
		return 0
	}
	return inputdispatch.Config{
		ShiftCode:        codeFor("TermShift"),
		CtrlCode:         codeFor("TermCtrl"),
		SymCode:          codeFor("TermSym"),
		FnCode:           codeFor("TermFn"),
		LangCode:         codeFor("TermLang"),
		EndCode:          codeFor("TermEnd"),
		EscCode:          codeFor("TermEsc"),
		HomeCode:         codeFor("TermHome"),
		ScrollUpCode:     codeFor("TermScrollUp"),
		ScrollDownCode:   codeFor("TermScrollDown"),
		Symbols:          stringValue(cfg, "Symbols", ""),
		LangSymbols:      stringValue(cfg, "LangSymbols", ""),
		ShiftLangSymbols: stringValue(cfg, "ShiftLangSymbols", ""),
	}
}

func intValue(cfg *config.Config, key string, def int) int {
	v, ok := cfg.Value("Settings", key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func stringValue(cfg *config.Config, key, def string) string {
	v, ok := cfg.Value("Settings", key)
	if !ok || v == "" {
		return def
	}
	return v
}
