package motion

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
)

// Mask is a binary exclusion region in frame pixel space, applied
// identically to every frame's feature detection. A set bit excludes the
// pixel from producing features.
type Mask struct {
	Width, Height int
	bits          []bool
}

// NewMask returns an empty (all-pass) mask of the given size.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, bits: make([]bool, width*height)}
}

// Set marks (x, y) as excluded.
func (m *Mask) Set(x, y int) {
	if x >= 0 && x < m.Width && y >= 0 && y < m.Height {
		m.bits[y*m.Width+x] = true
	}
}

// Excluded reports whether (x, y) must not generate features.
// Out-of-bounds coordinates are excluded.
func (m *Mask) Excluded(x, y int) bool {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return true
	}
	return m.bits[y*m.Width+x]
}

// Validate checks the mask against the working zone's frame size. A
// mismatch fails the run before any stage starts.
func (m *Mask) Validate(frameWidth, frameHeight int) error {
	if m.Width != frameWidth || m.Height != frameHeight {
		return fmt.Errorf("%w: mask is %dx%d, frames are %dx%d",
			ErrMaskSizeMismatch, m.Width, m.Height, frameWidth, frameHeight)
	}
	return nil
}

// LoadMask reads an exclusion mask from an image file. Pixels with nonzero
// luma are excluded. Load failures are resource errors reported to the
// caller before a run starts.
func LoadMask(path string) (*Mask, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open mask file: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode mask file %s: %w", path, err)
	}
	gray := toGray(img)
	b := gray.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y > 0 {
				m.Set(x, y)
			}
		}
	}
	return m, nil
}
