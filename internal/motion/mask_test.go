package motion

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestMaskSetAndExcluded(t *testing.T) {
	m := NewMask(8, 6)
	if m.Excluded(3, 3) {
		t.Error("fresh mask excludes (3,3)")
	}
	m.Set(3, 3)
	if !m.Excluded(3, 3) {
		t.Error("set pixel not excluded")
	}
	if m.Excluded(4, 3) || m.Excluded(3, 4) {
		t.Error("neighbouring pixels excluded")
	}

	// Out-of-bounds lookups exclude; out-of-bounds sets are dropped.
	if !m.Excluded(-1, 0) || !m.Excluded(8, 0) || !m.Excluded(0, 6) {
		t.Error("out-of-bounds coordinates must be excluded")
	}
	m.Set(-1, -1)
	m.Set(100, 100)
}

func TestMaskValidate(t *testing.T) {
	m := NewMask(64, 48)
	if err := m.Validate(64, 48); err != nil {
		t.Errorf("matching size rejected: %v", err)
	}
	err := m.Validate(64, 64)
	if err == nil {
		t.Fatal("size mismatch accepted")
	}
	if !errors.Is(err, ErrMaskSizeMismatch) {
		t.Errorf("error %v does not wrap ErrMaskSizeMismatch", err)
	}
}

func TestLoadMask(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 8))
	img.SetGray(2, 3, color.Gray{Y: 255})
	img.SetGray(7, 1, color.Gray{Y: 1})

	path := filepath.Join(t.TempDir(), "mask.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	m, err := LoadMask(path)
	if err != nil {
		t.Fatalf("LoadMask: %v", err)
	}
	if m.Width != 10 || m.Height != 8 {
		t.Fatalf("mask size %dx%d, want 10x8", m.Width, m.Height)
	}
	if !m.Excluded(2, 3) || !m.Excluded(7, 1) {
		t.Error("nonzero pixels not excluded")
	}
	if m.Excluded(0, 0) || m.Excluded(9, 7) {
		t.Error("zero pixels excluded")
	}
}

func TestLoadMaskErrors(t *testing.T) {
	if _, err := LoadMask(filepath.Join(t.TempDir(), "absent.png")); err == nil {
		t.Error("missing file accepted")
	}

	path := filepath.Join(t.TempDir(), "garbage.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMask(path); err == nil {
		t.Error("undecodable file accepted")
	}
}
