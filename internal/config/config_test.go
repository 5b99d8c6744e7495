package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseSectionsAndKeys(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "main.ini", `
; comment line
[Settings]
RefreshDelay = 100
Font = unifont.hex ; trailing comment

[inkeys]
65 = a b c
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := cfg.Value("Settings", "RefreshDelay")
	if !ok || v != "100" {
		t.Fatalf("RefreshDelay = %q,%v", v, ok)
	}
	v, ok = cfg.Value("Settings", "Font")
	if !ok || v != "unifont.hex" {
		t.Fatalf("Font = %q,%v", v, ok)
	}
	v, ok = cfg.Value("inkeys", "65")
	if !ok || v != "a b c" {
		t.Fatalf("inkeys/65 = %q,%v", v, ok)
	}
}

func TestSectionLookupCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "main.ini", "[Settings]\nFoo=bar\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, ok := cfg.Value("settings", "FOO"); !ok || v != "bar" {
		t.Fatalf("case-insensitive lookup failed: %q,%v", v, ok)
	}
}

func TestQuotedValueProtectsSeparator(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "main.ini", `[Settings]
Symbols = "!@#$%^&*()*+#-_()&!?~$|/\\\"':"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := cfg.Value("Settings", "Symbols")
	if !ok {
		t.Fatalf("Symbols not found")
	}
	if v == "" {
		t.Fatalf("Symbols value empty")
	}
}

func TestIncludeMergesWithoutCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "extra.ini", "[Settings]\nFontHeight = 16\n")
	p := writeFile(t, dir, "main.ini", "[Settings]\nRefreshDelay = 100\ninclude = extra.ini\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, ok := cfg.Value("Settings", "RefreshDelay"); !ok || v != "100" {
		t.Fatalf("RefreshDelay = %q,%v", v, ok)
	}
	if v, ok := cfg.Value("Settings", "FontHeight"); !ok || v != "16" {
		t.Fatalf("FontHeight from include = %q,%v", v, ok)
	}
}

func TestMissingFileReturnsErrNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestBackslashEscapeInValue(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "main.ini", `[inkeys]
65 = a\ b c
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := cfg.Value("inkeys", "65")
	if !ok {
		t.Fatalf("not found")
	}
	if v != "a b c" {
		t.Fatalf("got %q, want escaped space preserved as 'a b c'", v)
	}
}
