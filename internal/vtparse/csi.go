package vtparse

import "github.com/inkterm/inkterm/internal/grid"

// stepCSI parses "ESC [" followed by an optional private marker, up to
// three semicolon-separated decimal parameters, and a final byte, then
// dispatches to the matching command. Returns 0 if the sequence is not
// yet complete in buf.
func (p *Parser) stepCSI(g *grid.Grid, buf []byte) int {
	// buf[0]==ESC, buf[1]=='['
	i := 2
	var marker byte
	if i < len(buf) && isPrivateMarker(buf[i]) {
		marker = buf[i]
		i++
	}
	params := make([]int, 0, 3)
	cur := -1 // -1 means "no digits seen for this param yet"
	for {
		if i >= len(buf) {
			return 0
		}
		c := buf[i]
		if c >= '0' && c <= '9' {
			if cur < 0 {
				cur = 0
			}
			cur = cur*10 + int(c-'0')
			i++
			continue
		}
		if c == ';' {
			if len(params) < 3 {
				params = append(params, cur)
			}
			cur = -1
			i++
			continue
		}
		if isFinalByte(c) {
			if len(params) < 3 {
				params = append(params, cur)
			}
			p.dispatchCSI(g, marker, params, c)
			return i + 1
		}
		// Any other byte in the parameter area is not part of this
		// grammar; treat the sequence as malformed and resync past it.
		return i + 1
	}
}

func isPrivateMarker(b byte) bool {
	return b == '<' || b == '=' || b == '>' || b == '?'
}

func isFinalByte(b byte) bool {
	return b >= 0x40 && b <= 0x7E
}

// param returns the i-th parameter (0-based) or def if absent/empty.
func param(params []int, i, def int) int {
	if i >= len(params) || params[i] < 0 {
		return def
	}
	return params[i]
}

func (p *Parser) dispatchCSI(g *grid.Grid, marker byte, params []int, final byte) {
	cols, rows := g.Cols(), g.Rows()
	cursor := g.Cursor()
	curRow := cursor / cols
	curCol := cursor % cols

	switch final {
	case 'A': // CUU
		n := param(params, 0, 1)
		newRow := curRow - n
		if newRow < 0 {
			newRow = 0
		}
		g.SetCursorLinear(newRow*cols + curCol)
		g.ClearFlag(grid.FlagAutowrapPending)
	case 'B': // CUD
		n := param(params, 0, 1)
		newRow := curRow + n
		if newRow > rows-1 {
			newRow = rows - 1
		}
		g.SetCursorLinear(newRow*cols + curCol)
		g.ClearFlag(grid.FlagAutowrapPending)
	case 'C': // CUF
		n := param(params, 0, 1)
		newCol := curCol + n
		if newCol > cols-1 {
			newCol = cols - 1
		}
		g.SetCursorLinear(curRow*cols + newCol)
		g.ClearFlag(grid.FlagAutowrapPending)
	case 'D': // CUB
		n := param(params, 0, 1)
		newCol := curCol - n
		if newCol < 0 {
			newCol = 0
		}
		g.SetCursorLinear(curRow*cols + newCol)
		g.ClearFlag(grid.FlagAutowrapPending)
	case 'd': // VPA
		n := param(params, 0, 1)
		row := n - 1
		top, bottom := g.ScrollRegion()
		if row < top || row >= bottom {
			g.SetScrollRegion(0, rows)
		}
		if row < 0 {
			row = 0
		}
		if row > rows-1 {
			row = rows - 1
		}
		g.SetCursorLinear(row*cols + curCol)
		g.ClearFlag(grid.FlagAutowrapPending)
	case 'G', '`': // CHA
		n := param(params, 0, 1)
		col := n - 1
		if col < 0 {
			col = 0
		}
		if col > cols-1 {
			col = cols - 1
		}
		g.SetCursorLinear(curRow*cols + col)
		g.ClearFlag(grid.FlagAutowrapPending)
	case 'H', 'f': // CUP
		row := param(params, 0, 1)
		col := param(params, 1, 1)
		g.SetCursorRC(row, col)
		g.ClearFlag(grid.FlagAutowrapPending)
	case 'J': // ED
		mode := param(params, 0, 0)
		switch mode {
		case 0:
			g.Erase(cursor, g.Pagelen()-cursor)
		case 1:
			g.Erase(0, cursor+1)
		case 2:
			g.Erase(0, g.Pagelen())
		}
	case 'K': // EL
		mode := param(params, 0, 0)
		rowStart := curRow * cols
		switch mode {
		case 0:
			g.Erase(cursor, cols-curCol)
		case 1:
			g.Erase(rowStart, curCol+1)
		case 2:
			g.Erase(rowStart, cols)
		}
	case 'L': // IL
		n := param(params, 0, 1)
		g.InsertLines(curRow, n)
	case 'M': // DL
		n := param(params, 0, 1)
		g.DeleteLines(curRow, n)
	case 'P': // DCH
		n := param(params, 0, 1)
		g.DeleteChars(n)
	case 'X': // ECH
		n := param(params, 0, 1)
		g.EraseChars(n)
	case 'g': // TBC - ignored
	case 'h', 'l':
		set := final == 'h'
		if marker == '?' {
			applyDECPrivateMode(g, param(params, 0, 0), set, rows)
		}
		// non-marked SM/RM (insert mode `4`) is explicitly ignored.
	case 'm': // SGR
		applySGR(g, params)
	case 'r': // DECSTBM
		a1 := param(params, 0, 1)
		a2 := param(params, 1, rows)
		if a1 < 1 {
			a1 = 1
		}
		if a2 > rows {
			a2 = rows
		}
		g.SetScrollRegion(a1-1, a2)
		g.SetCursorLinear((a1 - 1) * cols)
	case 't': // window ops - ignored
	default:
		p.Log.Debug("vtparse: unknown CSI command", "final", string(final), "params", params)
	}
}

// applyDECPrivateMode implements the `?`-marked DECSET/DECRST subset.
func applyDECPrivateMode(g *grid.Grid, mode int, set bool, rows int) {
	switch mode {
	case 1: // DECCKM
		if set {
			g.SetFlag(grid.FlagCursorKeysApp)
		} else {
			g.ClearFlag(grid.FlagCursorKeysApp)
		}
	case 3: // 132-column mode: clear page and home cursor (column switch itself is out of scope)
		g.SetCursorLinear(0)
		g.Erase(0, g.Pagelen())
	case 6: // DECOM
		if set {
			g.SetFlag(grid.FlagOriginMode)
			top, _ := g.ScrollRegion()
			g.SetCursorLinear(top * g.Cols())
		} else {
			g.ClearFlag(grid.FlagOriginMode)
			g.SetCursorLinear(0)
		}
	case 7: // DECAWM
		// Open question (see DESIGN.md): the ?7l (disable) branch is a
		// no-op, matching the commented-out line in the original C
		// source; autowrap is left however it was. Only ?7h is honored.
		if set {
			g.ClearFlag(grid.FlagNoWrap)
		}
	case 25: // DECTCEM
		if set {
			g.ClearFlag(grid.FlagCursorHidden)
		} else {
			g.SetFlag(grid.FlagCursorHidden)
		}
	}
}

// applySGR implements Select Graphic Rendition. Only colour selection is
// persisted into the attribute byte; the other accepted codes (1, 4, 5, 7,
// 22, 24, 25, 27) are recognized but have no attribute-bit representation
// in this design, matching spec.md 4.3/4.1.
func applySGR(g *grid.Grid, params []int) {
	if len(params) == 0 {
		params = []int{0}
	}
	attr := g.CurrentAttr()
	for _, code := range params {
		if code < 0 {
			code = 0
		}
		switch {
		case code == 0:
			attr = 0
		case code == 1, code == 4, code == 5, code == 7, code == 22, code == 24, code == 25, code == 27:
			// accepted, no attribute-bit effect
		case code >= 30 && code <= 37:
			// Deliberately retained colour inversion (see DESIGN.md open
			// question): foreground index is 37-code, matching
			// terminal.c's ka_fg assignment, for visual compatibility.
			attr = (attr &^ 0x07) | uint8(37-code)
		case code == 39:
			attr = attr &^ 0x07
		case code >= 40 && code <= 47:
			attr = (attr &^ 0x38) | uint8(47-code)<<3
		case code == 49:
			attr = attr &^ 0x38
		}
	}
	g.SetCurrentAttr(attr)
}
