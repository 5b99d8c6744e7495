// Package debugpng is a development aid, not the production render path:
// it drives internal/renderer with an in-memory fbdevice.Framebuffer and
// golang.org/x/image/font/basicfont, then dumps the result as a PNG for
// visual inspection of grid/vtparse output without real e-ink hardware.
package debugpng

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	xfont "golang.org/x/image/math/fixed"

	"github.com/inkterm/inkterm/internal/fbdevice"
	"github.com/inkterm/inkterm/internal/grid"
	"github.com/inkterm/inkterm/internal/renderer"
)

// MemFramebuffer is an in-memory fbdevice.Framebuffer backed by a
// grayscale image, sized for one PNG dump; UpdateArea is a no-op since
// there is no physical display to push to.
type MemFramebuffer struct {
	Img *image.Gray
}

// NewMemFramebuffer allocates a w*h grayscale surface.
func NewMemFramebuffer(w, h int) *MemFramebuffer {
	return &MemFramebuffer{Img: image.NewGray(image.Rect(0, 0, w, h))}
}

func (m *MemFramebuffer) Width() int  { return m.Img.Rect.Dx() }
func (m *MemFramebuffer) Height() int { return m.Img.Rect.Dy() }
func (m *MemFramebuffer) SetPixel(x, y int, value uint8) {
	m.Img.SetGray(x, y, color.Gray{Y: value})
}
func (m *MemFramebuffer) Snapshot() []byte { return append([]byte(nil), m.Img.Pix...) }
func (m *MemFramebuffer) Restore(data []byte) {
	copy(m.Img.Pix, data)
}
func (m *MemFramebuffer) UpdateArea(fbdevice.Rect) {}
func (m *MemFramebuffer) Close() error             { return nil }

// BasicFont adapts golang.org/x/image/font/basicfont.Face7x13 to
// fbdevice.Font, rasterizing each glyph into a greyscale cell once and
// caching it.
type BasicFont struct {
	face  font.Face
	cache map[rune][]uint8
	w, h  int
}

// NewBasicFont returns a Font backed by basicfont.Face7x13.
func NewBasicFont() *BasicFont {
	face := basicfont.Face7x13
	return &BasicFont{face: face, cache: make(map[rune][]uint8), w: face.Width, h: face.Height}
}

func (f *BasicFont) CellWidth() int  { return f.w }
func (f *BasicFont) CellHeight() int { return f.h }

func (f *BasicFont) Glyph(r rune) ([]uint8, bool) {
	if g, ok := f.cache[r]; ok {
		return g, true
	}
	dst := image.NewGray(image.Rect(0, 0, f.w, f.h))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: f.face,
		Dot:  xfont.P(0, f.h-4),
	}
	d.DrawString(string(r))
	pix := append([]uint8(nil), dst.Pix...)
	f.cache[r] = pix
	return pix, true
}

// NearestBlitter copies a font glyph's greyscale pixels directly onto the
// framebuffer, treating any pixel above the midpoint as foreground.
type NearestBlitter struct{}

func (NearestBlitter) Blit(fb fbdevice.Framebuffer, x, y int, glyph []uint8, cw, ch int, fg, bg uint8) {
	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			v := glyph[row*cw+col]
			px := bg
			if v > 128 {
				px = fg
			}
			fb.SetPixel(x+col, y+row, px)
		}
	}
}

// Dump renders snap at scrollback position pos and returns a PNG-encoded
// image for debugging.
func Dump(snap grid.Snapshot, pos renderer.ScrollbackPos) ([]byte, error) {
	font := NewBasicFont()
	fb := NewMemFramebuffer(snap.Cols*font.CellWidth(), snap.Rows*font.CellHeight())
	r := &renderer.Renderer{
		FB:      fb,
		Font:    font,
		Blitter: NearestBlitter{},
		Fg:      0xF0,
		Bg:      0x10,
	}
	r.Draw(snap, pos)

	var buf bytes.Buffer
	if err := png.Encode(&buf, fb.Img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
