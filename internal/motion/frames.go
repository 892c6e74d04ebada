package motion

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	// Frame and mask files are PNG or JPEG.
	_ "image/jpeg"
	_ "image/png"

	"github.com/banshee-data/egomotion.report/internal/security"
)

// FrameSource supplies the ordered working zone. The count is stable and
// known before a run starts. FrameAt may fail for individual frames (e.g. a
// corrupt file); the pipeline absorbs that by leaving the frame featureless.
type FrameSource interface {
	FrameCount() int
	// FrameAt returns the decoded grayscale image and external timestamp
	// (unix ns) for position i. Timestamps must be strictly increasing.
	FrameAt(i int) (*image.Gray, int64, error)
}

// SliceSource is an in-memory FrameSource over already-decoded frames.
type SliceSource struct {
	Images     []*image.Gray
	Timestamps []int64
}

// FrameCount returns the number of frames.
func (s *SliceSource) FrameCount() int { return len(s.Images) }

// FrameAt returns frame i. A nil image is reported as an error so the
// pipeline exercises its per-frame skip path.
func (s *SliceSource) FrameAt(i int) (*image.Gray, int64, error) {
	if i < 0 || i >= len(s.Images) {
		return nil, 0, fmt.Errorf("frame index %d out of range [0,%d)", i, len(s.Images))
	}
	ts := int64(i)
	if i < len(s.Timestamps) {
		ts = s.Timestamps[i]
	}
	if s.Images[i] == nil {
		return nil, ts, fmt.Errorf("frame %d is unreadable", i)
	}
	return s.Images[i], ts, nil
}

// DirectorySource reads frames from image files in a directory, ordered
// lexicographically by file name. When a file name carries a trailing
// integer (frame_000123.png), that integer scaled by Interval becomes the
// timestamp; otherwise the position does.
type DirectorySource struct {
	paths    []string
	interval int64
}

// DefaultFrameIntervalNanos spaces synthetic timestamps at 25 fps.
const DefaultFrameIntervalNanos = int64(40_000_000)

// NewDirectorySource scans dir for .png/.jpg/.jpeg files. interval is the
// timestamp spacing in ns; zero selects DefaultFrameIntervalNanos.
func NewDirectorySource(dir string, interval int64) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}
	if interval <= 0 {
		interval = DefaultFrameIntervalNanos
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			p := filepath.Join(dir, e.Name())
			if err := security.ValidatePathWithinDirectory(p, dir); err != nil {
				diagf("[Frames] Skipping %s: %v", e.Name(), err)
				continue
			}
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	sort.Strings(paths)
	return &DirectorySource{paths: paths, interval: interval}, nil
}

// FrameCount returns the number of image files found.
func (s *DirectorySource) FrameCount() int { return len(s.paths) }

// FrameAt decodes file i and derives its timestamp.
func (s *DirectorySource) FrameAt(i int) (*image.Gray, int64, error) {
	if i < 0 || i >= len(s.paths) {
		return nil, 0, fmt.Errorf("frame index %d out of range [0,%d)", i, len(s.paths))
	}
	ts := int64(i) * s.interval
	if n, ok := trailingInt(s.paths[i]); ok {
		ts = n * s.interval
	}
	f, err := os.Open(s.paths[i])
	if err != nil {
		return nil, ts, fmt.Errorf("open frame %s: %w", s.paths[i], err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, ts, fmt.Errorf("decode frame %s: %w", s.paths[i], err)
	}
	return toGray(img), ts, nil
}

// trailingInt extracts the integer suffix of a file's base name, e.g.
// "frame_000123" -> 123.
func trailingInt(path string) (int64, bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	end := len(base)
	start := end
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.ParseInt(base[start:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// toGray converts any decoded image to *image.Gray, reusing the buffer when
// the source already is one.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
