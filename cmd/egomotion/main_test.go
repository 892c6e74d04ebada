package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/banshee-data/egomotion.report/internal/fsutil"
	"github.com/banshee-data/egomotion.report/internal/motion"
)

func testFrame() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 20; y < 44; y++ {
		for x := 20; x < 44; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

func completedPipeline(t *testing.T) *motion.Pipeline {
	t.Helper()
	p := motion.NewPipeline(motion.PipelineConfig{
		Source: &motion.SliceSource{
			Images:     []*image.Gray{testFrame(), testFrame(), testFrame()},
			Timestamps: []int64{100, 200, 300},
		},
		Params: motion.DefaultParams(),
	})
	handle, err := p.Run(context.Background(), motion.StepAll)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := handle.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return p
}

func TestExportResults(t *testing.T) {
	p := completedPipeline(t)
	fs := fsutil.NewMemoryFileSystem()

	if err := exportResults(fs, "/out", p); err != nil {
		t.Fatalf("exportResults: %v", err)
	}

	want := []string{"/out/chain.csv", "/out/drift.png", "/out/tracks.csv", "/out/tracks.html"}
	got := fs.Paths()
	if len(got) != len(want) {
		t.Fatalf("exported %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("exported %v, want %v", got, want)
			break
		}
	}

	chain, err := fs.ReadFile("/out/chain.csv")
	if err != nil {
		t.Fatalf("reading chain.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(chain)), "\n")
	if len(lines) != 3 {
		t.Errorf("chain.csv has %d lines, want header plus 2 pairs", len(lines))
	}
	if !strings.HasPrefix(lines[0], "pair,valid,") {
		t.Errorf("chain.csv header = %q", lines[0])
	}

	drift, err := fs.ReadFile("/out/drift.png")
	if err != nil {
		t.Fatalf("reading drift.png: %v", err)
	}
	if !bytes.HasPrefix(drift, []byte("\x89PNG")) {
		t.Error("drift.png is not a PNG")
	}

	html, err := fs.ReadFile("/out/tracks.html")
	if err != nil {
		t.Fatalf("reading tracks.html: %v", err)
	}
	if !bytes.Contains(html, []byte("echarts")) {
		t.Error("tracks.html does not embed a chart")
	}
}

func TestExportResultsNoResults(t *testing.T) {
	p := motion.NewPipeline(motion.PipelineConfig{})
	fs := fsutil.NewMemoryFileSystem()
	if err := exportResults(fs, "/out", p); err != nil {
		t.Fatalf("exportResults: %v", err)
	}
	if got := fs.Paths(); len(got) != 0 {
		t.Errorf("exported %v for an empty pipeline", got)
	}
}
