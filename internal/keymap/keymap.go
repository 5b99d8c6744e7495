// Package keymap loads the physical-key-code tables that translate raw
// input-event codes into names and PTY byte sequences. Grounded on
// launchpad.c's key_entry table, build_seq, ecmp/ecmp1, and lookup_key.
package keymap

import (
	"sort"
	"strconv"
	"strings"

	"github.com/inkterm/inkterm/internal/config"
)

// Type is the closed set of key-entry kinds, matching launchpad.c's
// k_type enum order (KT_SEND, KT_FW, KT_VOL, KT_SHIFT, KT_ALT, KT_SYM).
type Type uint8

const (
	Send Type = iota
	FW
	Vol
	Shift
	Alt
	Sym
)

// Entry is one row of the key map: a name bound to a physical key code,
// with an entry type and (for Sym entries) a ysteps value recording which
// row of the symbol overlay it belongs to.
type Entry struct {
	Name   string
	Type   Type
	Code   uint8
	YSteps uint8
}

// Map is the loaded, sorted key table plus its direct-address code index.
type Map struct {
	entries []Entry
	byCode  [256]*Entry
}

// Load reads the named config sections (in order; later sections'
// entries are appended before the final sort/dedup pass, matching
// launchpad_init's "inkeys" then "inkeys-k3"/"inkeys-dx" sequence) and
// builds a sorted, deduplicated key map.
func Load(cfg *config.Config, sections ...string) *Map {
	m := &Map{}
	for _, secName := range sections {
		sec, ok := cfg.GetSection(secName)
		if !ok {
			continue
		}
		for _, kv := range sec.Keys() {
			m.entries = append(m.entries, buildSeq(kv.Key, kv.Value)...)
		}
	}
	m.sortAndDedup()
	m.buildByCode()
	return m
}

// buildSeq expands one `key = value` config line into one Entry per
// whitespace-separated token in value, matching launchpad.c's build_seq:
// the key's prefix selects the entry type and starting code, and each
// subsequent token's code is the previous token's code plus one.
func buildSeq(key, value string) []Entry {
	typ, code := parseKeySpec(key)
	tokens := strings.Fields(value)
	entries := make([]Entry, 0, len(tokens))
	for i, tok := range tokens {
		entries = append(entries, Entry{
			Name:   unescapeToken(tok),
			Type:   typ,
			Code:   code + uint8(i),
			YSteps: yStepsFor(typ, key),
		})
	}
	return entries
}

func yStepsFor(typ Type, key string) uint8 {
	if typ != Sym {
		return 0
	}
	n, _ := strconv.Atoi(key[3:])
	return uint8(n)
}

// parseKeySpec interprets a config key's prefix per launchpad.c's
// build_seq: `s`/`f`/`v` select SHIFT/FW/VOL with the numeric suffix as
// the starting code; a case-insensitive `row` prefix selects SYM with
// code 0; anything else is a plain decimal SEND code.
func parseKeySpec(key string) (Type, uint8) {
	lower := strings.ToLower(key)
	switch {
	case strings.HasPrefix(lower, "row") && len(key) > 3:
		return Sym, 0
	case strings.HasPrefix(key, "s") && len(key) > 1 && isDigits(key[1:]):
		n, _ := strconv.Atoi(key[1:])
		return Shift, uint8(n)
	case strings.HasPrefix(key, "f") && len(key) > 1 && isDigits(key[1:]):
		n, _ := strconv.Atoi(key[1:])
		return FW, uint8(n)
	case strings.HasPrefix(key, "v") && len(key) > 1 && isDigits(key[1:]):
		n, _ := strconv.Atoi(key[1:])
		return Vol, uint8(n)
	default:
		n, _ := strconv.Atoi(key)
		return Send, uint8(n)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// unescapeToken resolves a single backslash-escape of the following byte,
// matching build_seq's `if (*s=='\\') { s++; l--; }`.
func unescapeToken(tok string) string {
	var b strings.Builder
	for i := 0; i < len(tok); i++ {
		if tok[i] == '\\' && i+1 < len(tok) {
			i++
		}
		b.WriteByte(tok[i])
	}
	return b.String()
}

// ecmp orders entries by (length, case-folded name), matching
// launchpad.c's ecmp.
func ecmp(a, b *Entry) int {
	if len(a.Name) != len(b.Name) {
		if len(a.Name) < len(b.Name) {
			return -1
		}
		return 1
	}
	af, bf := strings.ToLower(a.Name), strings.ToLower(b.Name)
	return strings.Compare(af, bf)
}

func (m *Map) sortAndDedup() {
	sort.SliceStable(m.entries, func(i, j int) bool {
		c := ecmp(&m.entries[i], &m.entries[j])
		if c != 0 {
			return c < 0
		}
		return m.entries[i].Type < m.entries[j].Type
	})
	out := m.entries[:0]
	for i := 0; i < len(m.entries); {
		j := i + 1
		for j < len(m.entries) && ecmp(&m.entries[i], &m.entries[j]) == 0 {
			j++
		}
		// entries[i:j] share (length, case-folded name); keep smallest type,
		// matching launchpad.c's dedup pass.
		best := m.entries[i]
		for k := i + 1; k < j; k++ {
			if m.entries[k].Type < best.Type {
				best = m.entries[k]
			}
		}
		out = append(out, best)
		i = j
	}
	m.entries = out
}

func (m *Map) buildByCode() {
	for i := range m.entries {
		e := &m.entries[i]
		if e.Type == Send || e.Type == FW {
			m.byCode[e.Code] = e
		}
	}
}

// ByCode returns the entry directly addressed by code (SEND/FW entries
// only), or nil.
func (m *Map) ByCode(code uint8) *Entry {
	return m.byCode[code]
}

// LookupByName binary-searches the sorted table by (length, case-folded
// name). A single space character is special-cased to look up "Space",
// matching launchpad.c's lookup_key.
func (m *Map) LookupByName(name string) *Entry {
	if name == " " {
		name = "Space"
	}
	target := Entry{Name: name}
	i := sort.Search(len(m.entries), func(i int) bool {
		return ecmp(&m.entries[i], &target) >= 0
	})
	if i < len(m.entries) && ecmp(&m.entries[i], &target) == 0 {
		return &m.entries[i]
	}
	return nil
}

// Entries returns the sorted, deduplicated table (for diagnostics / help
// overlay rendering).
func (m *Map) Entries() []Entry {
	return m.entries
}
