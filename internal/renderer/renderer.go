// Package renderer blits a grid.Snapshot onto a fbdevice.Framebuffer,
// drawing scrollback rows first when the session is scrolled back, then
// live rows for the remainder, one cell per glyph lookup and blit.
//
// Grounded on launchpad.c's process_screen/print_buf: scrollback rows
// are drawn from the top of the visible area when scrollback_pos > 0,
// clamped to the screen height, and the live page fills whatever rows
// remain.
package renderer

import (
	"fmt"

	"github.com/inkterm/inkterm/internal/fbdevice"
	"github.com/inkterm/inkterm/internal/grid"
	"github.com/inkterm/inkterm/internal/keymap"
)

// Renderer draws grid snapshots using a Font and PixmapBlitter onto a
// Framebuffer, at a fixed pixel origin (xOffset, yOffset).
type Renderer struct {
	FB      fbdevice.Framebuffer
	Font    fbdevice.Font
	Blitter fbdevice.PixmapBlitter
	XOffset int
	YOffset int
	// Fg/Bg are the two greyscale levels drawn for every cell (swapped on
	// the cursor cell); the attribute byte's colour indices are not
	// mapped to other levels. True-color rendition is a non-goal (spec.md 1).
	Fg, Bg uint8
}

// ScrollbackPos is how far back (in rows) the view is scrolled; 0 means
// "showing the live page". Draw takes it explicitly since it belongs to
// the dispatcher's scroll state, not the grid.
type ScrollbackPos int

// Draw renders snap at scrollback position pos and pushes the affected
// rectangle to the physical display. A nil/zero-sized Framebuffer (the
// FramebufferUnavailable case) makes Draw a no-op, per spec.md 7.
func (r *Renderer) Draw(snap grid.Snapshot, pos ScrollbackPos) {
	if r.FB == nil || r.FB.Width() == 0 || r.FB.Height() == 0 {
		return
	}
	cw, ch := r.Font.CellWidth(), r.Font.CellHeight()
	row := 0

	sbRows := int(pos)
	if sbRows > snap.ScrollbackTop {
		sbRows = snap.ScrollbackTop
	}
	if sbRows > snap.Rows {
		sbRows = snap.Rows
	}
	// The ring's occupied entries sit at the tail of ScrollbackChars
	// (oldest at len-ScrollbackTop); the most recent sbRows of those are
	// what a scrollback_pos of sbRows should reveal above the live page.
	base := len(snap.ScrollbackChars) - sbRows
	for i := 0; i < sbRows; i++ {
		r.drawRow(row, snap.ScrollbackChars[base+i], snap.ScrollbackAttrs[base+i], -1)
		row++
	}

	liveStart := 0
	for row < snap.Rows {
		col0 := liveStart * snap.Cols
		chars := snap.Chars[col0 : col0+snap.Cols]
		attrs := snap.Attrs[col0 : col0+snap.Cols]
		cursorCol := -1
		if !snap.CursorHidden && snap.Cursor/snap.Cols == liveStart {
			cursorCol = snap.Cursor % snap.Cols
		}
		r.drawRow(row, chars, attrs, cursorCol)
		row++
		liveStart++
	}

	r.FB.UpdateArea(fbdevice.Rect{
		X1: r.XOffset, Y1: r.YOffset,
		X2: r.XOffset + snap.Cols*cw, Y2: r.YOffset + snap.Rows*ch,
	})
}

func (r *Renderer) drawRow(row int, chars []rune, attrs []uint8, cursorCol int) {
	cw, ch := r.Font.CellWidth(), r.Font.CellHeight()
	for col, c := range chars {
		glyph, ok := r.Font.Glyph(c)
		if !ok {
			glyph, _ = r.Font.Glyph(' ')
		}
		fg, bg := r.Fg, r.Bg
		if col == cursorCol {
			fg, bg = bg, fg
		}
		x := r.XOffset + col*cw
		y := r.YOffset + row*ch
		r.Blitter.Blit(r.FB, x, y, glyph, cw, ch, fg, bg)
	}
	_ = attrs // color-index-to-greyscale mapping is a follow-on of the
	// default-colors-only rendering this module implements; true color
	// is an explicit non-goal (spec.md 1).
}

// RenderHelp draws a static text grid listing every key-map entry (all
// types), one per line as the name padded to 12 columns followed by the
// code, blanks the remaining rows, and pushes the drawn cell area as a
// single update. Grounded on launchpad.c's print_keymap,
// which paints the same kind of reference screen while a modifier is
// held down with TermEnd.
func (r *Renderer) RenderHelp(km *keymap.Map) {
	if r.FB == nil || r.FB.Width() == 0 || r.FB.Height() == 0 {
		return
	}
	cw, ch := r.Font.CellWidth(), r.Font.CellHeight()
	cols := (r.FB.Width() - r.XOffset) / cw
	rows := (r.FB.Height() - 2*r.YOffset) / ch
	if cols <= 0 || rows <= 0 {
		return
	}

	entries := km.Entries()
	row := 0
	for _, e := range entries {
		if row >= rows {
			break
		}
		line := fmt.Sprintf("%-12s %3d", e.Name, e.Code)
		r.drawRow(row, padOrTruncate(line, cols), blankAttrs(cols), -1)
		row++
	}
	for ; row < rows; row++ {
		r.drawRow(row, padOrTruncate("", cols), blankAttrs(cols), -1)
	}

	r.FB.UpdateArea(fbdevice.Rect{
		X1: r.XOffset, Y1: r.YOffset,
		X2: r.XOffset + cols*cw, Y2: r.YOffset + rows*ch,
	})
}

func padOrTruncate(s string, width int) []rune {
	out := make([]rune, width)
	runes := []rune(s)
	for i := range out {
		if i < len(runes) {
			out[i] = runes[i]
		} else {
			out[i] = ' '
		}
	}
	return out
}

func blankAttrs(width int) []uint8 {
	return make([]uint8, width)
}
