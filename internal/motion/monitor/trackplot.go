// Package monitor renders post-run reports: track trajectory charts and
// refinement drift plots. It reads pipeline results through narrow data
// interfaces so reports can be generated from live pipelines or stored
// runs alike.
package monitor

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/egomotion.report/internal/motion"
)

// TrackData supplies completed tracks for plotting. *motion.Pipeline
// satisfies it.
type TrackData interface {
	GetTracks() []motion.Track
	FrameCount() int
}

// maxPlottedTracks caps the number of series so the chart stays
// responsive for dense scenes.
const maxPlottedTracks = 200

// WriteTrackPlot renders the tracks as an HTML scatter chart in frame
// pixel space, one series per track.
func WriteTrackPlot(w io.Writer, src TrackData) error {
	tracks := src.GetTracks()

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Track Trajectories",
			Theme:     "dark",
			Width:     "1000px",
			Height:    "750px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Track Trajectories",
			Subtitle: fmt.Sprintf("tracks=%d frames=%d", len(tracks), src.FrameCount()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
	)

	plotted := 0
	for _, t := range tracks {
		if plotted >= maxPlottedTracks {
			break
		}
		data := make([]opts.ScatterData, 0, len(t.Points))
		for _, tp := range t.Points {
			data = append(data, opts.ScatterData{Value: []interface{}{tp.X, tp.Y}})
		}
		scatter.AddSeries(fmt.Sprintf("track %d", t.ID), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
		plotted++
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("rendering track plot: %w", err)
	}
	return nil
}

// SaveTrackPlot writes the track chart to an HTML file.
func SaveTrackPlot(path string, src TrackData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating track plot %s: %w", path, err)
	}
	defer f.Close()
	return WriteTrackPlot(f, src)
}
