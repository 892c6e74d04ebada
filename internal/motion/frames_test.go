package motion

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSliceSource(t *testing.T) {
	src := &SliceSource{
		Images:     []*image.Gray{image.NewGray(image.Rect(0, 0, 4, 4)), nil},
		Timestamps: []int64{100, 200},
	}
	if src.FrameCount() != 2 {
		t.Fatalf("FrameCount = %d", src.FrameCount())
	}
	img, ts, err := src.FrameAt(0)
	if err != nil || img == nil || ts != 100 {
		t.Errorf("FrameAt(0) = %v, %d, %v", img, ts, err)
	}
	if _, ts, err := src.FrameAt(1); err == nil || ts != 200 {
		t.Errorf("nil image must error and still carry its timestamp, got ts %d err %v", ts, err)
	}
	if _, _, err := src.FrameAt(5); err == nil {
		t.Error("out-of-range index accepted")
	}
}

func TestDirectorySourceOrderingAndTimestamps(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	writePNG(t, filepath.Join(dir, "frame_010.png"), img)
	writePNG(t, filepath.Join(dir, "frame_002.png"), img)
	writePNG(t, filepath.Join(dir, "frame_007.png"), img)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewDirectorySource(dir, 10)
	if err != nil {
		t.Fatalf("NewDirectorySource: %v", err)
	}
	if src.FrameCount() != 3 {
		t.Fatalf("FrameCount = %d, want 3", src.FrameCount())
	}
	wantTS := []int64{20, 70, 100}
	for i, want := range wantTS {
		_, ts, err := src.FrameAt(i)
		if err != nil {
			t.Fatalf("FrameAt(%d): %v", i, err)
		}
		if ts != want {
			t.Errorf("FrameAt(%d) ts = %d, want %d", i, ts, want)
		}
	}
}

func TestDirectorySourceNoTrailingInt(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	writePNG(t, filepath.Join(dir, "alpha.png"), img)
	writePNG(t, filepath.Join(dir, "beta.png"), img)

	src, err := NewDirectorySource(dir, 0)
	if err != nil {
		t.Fatalf("NewDirectorySource: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, ts, err := src.FrameAt(i)
		if err != nil {
			t.Fatalf("FrameAt(%d): %v", i, err)
		}
		if want := int64(i) * DefaultFrameIntervalNanos; ts != want {
			t.Errorf("FrameAt(%d) ts = %d, want %d", i, ts, want)
		}
	}
}

func TestDirectorySourceEmptyAndMissing(t *testing.T) {
	if _, err := NewDirectorySource(t.TempDir(), 0); err == nil {
		t.Error("empty directory accepted")
	}
	if _, err := NewDirectorySource(filepath.Join(t.TempDir(), "absent"), 0); err == nil {
		t.Error("missing directory accepted")
	}
}

func TestDirectorySourceSkipsEscapingSymlinks(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, "frames")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	writePNG(t, filepath.Join(dir, "frame_001.png"), img)

	outside := filepath.Join(tmp, "secret.png")
	writePNG(t, outside, img)
	if err := os.Symlink(outside, filepath.Join(dir, "frame_002.png")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	src, err := NewDirectorySource(dir, 0)
	if err != nil {
		t.Fatalf("NewDirectorySource: %v", err)
	}
	if src.FrameCount() != 1 {
		t.Errorf("FrameCount = %d, want 1 with the escaping symlink skipped", src.FrameCount())
	}
}

func TestDirectorySourceConvertsColor(t *testing.T) {
	dir := t.TempDir()
	rgba := image.NewRGBA(image.Rect(0, 0, 3, 3))
	rgba.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	writePNG(t, filepath.Join(dir, "frame_001.png"), rgba)

	src, err := NewDirectorySource(dir, 0)
	if err != nil {
		t.Fatalf("NewDirectorySource: %v", err)
	}
	img, _, err := src.FrameAt(0)
	if err != nil {
		t.Fatalf("FrameAt: %v", err)
	}
	if img.GrayAt(1, 1).Y == 0 {
		t.Error("white pixel lost in grayscale conversion")
	}
	if img.GrayAt(0, 0).Y != 0 {
		t.Errorf("black pixel = %d", img.GrayAt(0, 0).Y)
	}
}

func TestTrailingInt(t *testing.T) {
	cases := []struct {
		path string
		n    int64
		ok   bool
	}{
		{"frame_000123.png", 123, true},
		{"/a/b/shot42.jpg", 42, true},
		{"7.png", 7, true},
		{"frame.png", 0, false},
		{"123abc.png", 0, false},
	}
	for _, c := range cases {
		n, ok := trailingInt(c.path)
		if n != c.n || ok != c.ok {
			t.Errorf("trailingInt(%q) = %d, %v; want %d, %v", c.path, n, ok, c.n, c.ok)
		}
	}
}

func TestToGrayReusesGray(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 2, 2))
	if toGray(g) != g {
		t.Error("grayscale input should be returned as-is")
	}
}
