package monitor

import (
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// DriftData supplies per-pair reprojection errors. *motion.Pipeline
// satisfies it.
type DriftData interface {
	PairDrift() (before, after []float64)
}

// WriteDriftPlot renders the mean inlier reprojection error per frame pair
// before and after refinement as a PNG. Pairs with holes are skipped.
func WriteDriftPlot(w io.Writer, src DriftData) error {
	before, after := src.PairDrift()
	if len(before) == 0 {
		return fmt.Errorf("no transform chain to plot")
	}

	pl := plot.New()
	pl.Title.Text = "Per-Pair Reprojection Error"
	pl.X.Label.Text = "frame pair"
	pl.Y.Label.Text = "mean inlier error (px)"

	beforeLine, err := plotter.NewLine(driftXYs(before))
	if err != nil {
		return fmt.Errorf("building before-refinement line: %w", err)
	}
	beforeLine.Width = vg.Points(1)
	pl.Add(beforeLine)
	pl.Legend.Add("before refinement", beforeLine)

	if len(after) > 0 {
		afterLine, err := plotter.NewLine(driftXYs(after))
		if err != nil {
			return fmt.Errorf("building after-refinement line: %w", err)
		}
		afterLine.Width = vg.Points(1)
		afterLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		pl.Add(afterLine)
		pl.Legend.Add("after refinement", afterLine)
	}

	pl.Legend.Top = true
	pl.Legend.Left = false

	wt, err := pl.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("rendering drift plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing drift plot: %w", err)
	}
	return nil
}

// SaveDriftPlot writes the drift chart to a PNG file.
func SaveDriftPlot(path string, src DriftData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating drift plot %s: %w", path, err)
	}
	defer f.Close()
	return WriteDriftPlot(f, src)
}

func driftXYs(vals []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: v})
	}
	return pts
}
