// Package fbdevice defines the out-of-scope collaborators the renderer
// depends on but this module does not implement: framebuffer I/O, glyph
// rasterization, and pixmap blitting. Concrete production implementations
// live outside this module's scope (fb ioctls, font loading); Null*
// no-op implementations let the rest of the system run headless
// (cmd/inkterm and the launchpad tests use them). internal/renderer/debugpng
// brings its own in-memory Framebuffer instead.
//
// Grounded on the teacher repo's functional-no-op "provider" pattern
// (providers.go: RecordingProvider/ShellIntegrationProvider/SizeProvider),
// generalized to the e-ink framebuffer/font/pixmap collaborators named in
// the spec's external interfaces.
package fbdevice

// Rect is an inclusive-exclusive pixel rectangle, {x1,y1,x2,y2} in the
// naming of the e-ink FBIO_EINK_UPDATE_DISPLAY_AREA ioctl struct.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// Framebuffer is the mmap-ed, nibble-packed display surface plus its
// region-update primitive. Implementations wrap the Linux fb ioctls
// (FBIOGET_FSCREENINFO/FBIOGET_VSCREENINFO) and the e-ink-specific
// FBIO_EINK_UPDATE_DISPLAY_AREA call.
type Framebuffer interface {
	// Width and Height return the surface dimensions in pixels.
	Width() int
	Height() int
	// SetPixel sets a single 4-bit greyscale nibble at (x, y).
	SetPixel(x, y int, value uint8)
	// Snapshot returns a copy of the surface contents, for save/restore
	// around entering and leaving terminal mode.
	Snapshot() []byte
	// Restore overwrites the surface contents from a prior Snapshot.
	Restore(data []byte)
	// UpdateArea pushes r to the physical display.
	UpdateArea(r Rect)
	// Close releases the mmap and any open fd.
	Close() error
}

// Font rasterizes code points into glyph bitmaps at a fixed cell size.
type Font interface {
	CellWidth() int
	CellHeight() int
	// Glyph returns a CellWidth()*CellHeight() slice of 4-bit greyscale
	// nibbles for r, or ok=false if r has no glyph (caller should fall
	// back to a replacement glyph).
	Glyph(r rune) (pixels []uint8, ok bool)
}

// PixmapBlitter copies a rasterized glyph onto a Framebuffer at a pixel
// origin, applying a foreground/background color pair.
type PixmapBlitter interface {
	Blit(fb Framebuffer, x, y int, glyph []uint8, cellW, cellH int, fg, bg uint8)
}

// NullFramebuffer discards all writes; Width/Height report 0, so callers
// that size themselves off it naturally render nothing. Used when no
// framebuffer device is available (spec.md 7: "FramebufferUnavailable ...
// entering terminal mode becomes a no-op").
type NullFramebuffer struct{}

func (NullFramebuffer) Width() int            { return 0 }
func (NullFramebuffer) Height() int           { return 0 }
func (NullFramebuffer) SetPixel(int, int, uint8) {}
func (NullFramebuffer) Snapshot() []byte      { return nil }
func (NullFramebuffer) Restore([]byte)        {}
func (NullFramebuffer) UpdateArea(Rect)       {}
func (NullFramebuffer) Close() error          { return nil }

// NullFont reports a 1x1 cell and never has a glyph, so a renderer driven
// by it degrades to doing nothing rather than panicking on a missing
// font.
type NullFont struct{}

func (NullFont) CellWidth() int                { return 1 }
func (NullFont) CellHeight() int               { return 1 }
func (NullFont) Glyph(rune) ([]uint8, bool)     { return nil, false }

// NullBlitter is a no-op PixmapBlitter.
type NullBlitter struct{}

func (NullBlitter) Blit(Framebuffer, int, int, []uint8, int, int, uint8, uint8) {}
