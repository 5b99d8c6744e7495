package vtparse

import (
	"bytes"
	"testing"

	"github.com/inkterm/inkterm/internal/grid"
)

func newTestGrid(rows, cols int) *grid.Grid {
	return grid.New(rows, cols, 0)
}

func rowString(g *grid.Grid, row int) string {
	snap := g.Snapshot()
	return string(snap.Chars[row*g.Cols() : row*g.Cols()+g.Cols()])
}

func TestScenarioHelloCRLF(t *testing.T) {
	g := newTestGrid(25, 80)
	p := New(nil)
	n := p.Feed(g, []byte("Hello\r\n"))
	if n != len("Hello\r\n") {
		t.Fatalf("consumed %d, want full input", n)
	}
	want := "Hello" + string(bytes.Repeat([]byte{' '}, 75))
	if got := rowString(g, 0); got != want {
		t.Fatalf("row 0 = %q, want %q", got, want)
	}
	row, col := g.CursorRC()
	if row != 1 || col != 0 {
		t.Fatalf("cursor = (%d,%d), want (1,0)", row, col)
	}
}

func TestScenarioEraseAndCursorPosition(t *testing.T) {
	g := newTestGrid(25, 80)
	p := New(nil)
	p.Feed(g, []byte("garbage to clear"))
	p.Feed(g, []byte("\x1b[2J\x1b[5;10HX"))
	row, col := g.CursorRC()
	if row != 4 || col != 10 {
		t.Fatalf("cursor = (%d,%d), want (4,10)", row, col)
	}
	snap := g.Snapshot()
	if snap.Chars[4*80+9] != 'X' {
		t.Fatalf("expected X at row 4 col 9")
	}
	for i, c := range snap.Chars {
		if i == 4*80+9 {
			continue
		}
		if c != ' ' {
			t.Fatalf("cell %d = %q, want space (grid should be blank apart from X)", i, c)
		}
	}
}

func TestScenarioSGRColors(t *testing.T) {
	g := newTestGrid(25, 80)
	p := New(nil)
	p.Feed(g, []byte("\x1b[31;40mA\x1b[0mB"))
	snap := g.Snapshot()
	if snap.Chars[0] != 'A' {
		t.Fatalf("chars[0] = %q, want A", snap.Chars[0])
	}
	fg := snap.Attrs[0] & 0x07
	bg := (snap.Attrs[0] & 0x38) >> 3
	if fg != 6 {
		t.Fatalf("fg index = %d, want 6", fg)
	}
	if bg != 7 {
		t.Fatalf("bg index = %d, want 7", bg)
	}
	if snap.Chars[1] != 'B' || snap.Attrs[1] != 0 {
		t.Fatalf("chars[1]=%q attrs[1]=%d, want B/0", snap.Chars[1], snap.Attrs[1])
	}
}

func TestScenarioScrollRegion(t *testing.T) {
	g := newTestGrid(25, 80)
	g.SetCursorRC(3, 1) // row 2, col 0 0-based
	p := New(nil)
	p.Feed(g, []byte("\x1b[1;3r"))
	for i := 0; i < 5; i++ {
		p.Feed(g, []byte("\n"))
	}
	row, _ := g.CursorRC()
	top, bottom := g.ScrollRegion()
	if top != 0 || bottom != 3 {
		t.Fatalf("scroll region = [%d,%d), want [0,3)", top, bottom)
	}
	if row < top || row >= bottom {
		t.Fatalf("cursor row %d outside scroll region [%d,%d)", row, top, bottom)
	}
}

func TestScenarioAutowrap(t *testing.T) {
	g := newTestGrid(2, 80)
	g.SetCursorLinear(79)
	p := New(nil)
	p.Feed(g, []byte("AB"))
	snap := g.Snapshot()
	if snap.Chars[79] != 'A' {
		t.Fatalf("chars[79] = %q, want A", snap.Chars[79])
	}
	if snap.Chars[80] != 'B' {
		t.Fatalf("chars[80] (row1 col0) = %q, want B", snap.Chars[80])
	}
	row, col := g.CursorRC()
	if row != 1 || col != 1 {
		t.Fatalf("cursor = (%d,%d), want (1,1)", row, col)
	}
}

func TestScenarioGraphicsSubstitution(t *testing.T) {
	g := newTestGrid(1, 10)
	p := New(nil)
	p.Feed(g, []byte("\x1b(0"))
	p.Feed(g, []byte{0x0E}) // SO
	p.Feed(g, []byte{0x71}) // 'q' -> 0x11 index -> horizontal line
	snap := g.Snapshot()
	if snap.Chars[0] != 0x2500 {
		t.Fatalf("chars[0] = %U, want U+2500", snap.Chars[0])
	}
}

func TestInvariantCursorWithinPagelenAfterEveryByte(t *testing.T) {
	g := newTestGrid(5, 10)
	p := New(nil)
	input := []byte("Hello\r\nworld\x1b[2Jfoo\x1b[10;10Hbar\x1b[1;3rbaz\n\n\n\n\n")
	for i := range input {
		p.Feed(g, input[i:i+1])
		if g.Cursor() < 0 || g.Cursor() > g.Pagelen() {
			t.Fatalf("cursor %d out of [0,%d] after byte %d", g.Cursor(), g.Pagelen(), i)
		}
	}
}

func TestInvariantScrollDiscardsTopRows(t *testing.T) {
	g := newTestGrid(5, 10)
	p := New(nil)
	for i := 0; i < 5+3; i++ {
		p.Feed(g, []byte("\n"))
	}
	row, _ := g.CursorRC()
	if row != 4 {
		t.Fatalf("cursor row = %d, want 4 (rows-1)", row)
	}
}

func TestIdempotentFullErase(t *testing.T) {
	g1 := newTestGrid(5, 10)
	g2 := newTestGrid(5, 10)
	p := New(nil)
	p.Feed(g1, []byte("hello\x1b[2J"))
	p.Feed(g2, []byte("hello\x1b[2J\x1b[2J"))
	s1, s2 := g1.Snapshot(), g2.Snapshot()
	if string(s1.Chars) != string(s2.Chars) {
		t.Fatalf("single vs double full-erase differ")
	}
}

func TestPartialSequenceChunking(t *testing.T) {
	whole := []byte("\x1b[5;10HX\x1b[31;40mY")
	gWhole := newTestGrid(25, 80)
	p1 := New(nil)
	p1.Feed(gWhole, whole)

	gChunked := newTestGrid(25, 80)
	p2 := New(nil)
	var pending []byte
	for i := 0; i < len(whole); i++ {
		pending = append(pending, whole[i])
		n := p2.Feed(gChunked, pending)
		pending = pending[n:]
	}
	// flush any remaining (should be none once input is exhausted and complete)
	p2.Feed(gChunked, pending)

	sw, sc := gWhole.Snapshot(), gChunked.Snapshot()
	if string(sw.Chars) != string(sc.Chars) {
		t.Fatalf("chunked feed diverged from whole feed (chars)")
	}
	if string(sw.Attrs) != string(sc.Attrs) {
		t.Fatalf("chunked feed diverged from whole feed (attrs)")
	}
	if gWhole.Cursor() != gChunked.Cursor() {
		t.Fatalf("chunked feed diverged from whole feed (cursor): %d vs %d", gWhole.Cursor(), gChunked.Cursor())
	}
}

func TestCursorMovesClearAutowrapPending(t *testing.T) {
	cases := []struct {
		name string
		seq  string
	}{
		{"CUU", "\x1b[A"},
		{"CUD", "\x1b[B"},
		{"VPA", "\x1b[1d"},
		{"CHA", "\x1b[1G"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGrid(5, 4)
			p := New(nil)
			p.Feed(g, []byte("AAAA")) // fill row 0, set autowrap_pending
			if !g.HasFlag(grid.FlagAutowrapPending) {
				t.Fatalf("setup: expected autowrap_pending set after filling the row")
			}
			p.Feed(g, []byte(tc.seq))
			if g.HasFlag(grid.FlagAutowrapPending) {
				t.Fatalf("%s must clear autowrap_pending, per spec.md 4.3", tc.name)
			}
		})
	}
}

func TestDECSET7lLeavesAutowrapUnchanged(t *testing.T) {
	g := newTestGrid(2, 4)
	p := New(nil)
	// autowrap is enabled by default (FlagNoWrap clear); disabling via ?7l
	// must be a no-op per the documented open-question decision.
	p.Feed(g, []byte("\x1b[?7l"))
	if g.HasFlag(grid.FlagNoWrap) {
		t.Fatalf("?7l must not set FlagNoWrap (open question: left unchanged)")
	}
}
