package motion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteTracksCSV writes the pipeline's tracks as a flat CSV table, one row
// per track point. Rows are ordered by track ID then frame index, so the
// output is deterministic for a deterministic run.
func (p *Pipeline) WriteTracksCSV(w io.Writer) error {
	tracks := p.GetTracks()

	cw := csv.NewWriter(w)
	header := []string{"track_id", "frame_index", "timestamp_ns", "x", "y"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, t := range tracks {
		for i, tp := range t.Points {
			fi := int(t.StartIndex) + i
			row := []string{
				strconv.FormatInt(t.ID, 10),
				strconv.Itoa(fi),
				strconv.FormatInt(tp.Timestamp, 10),
				strconv.FormatFloat(tp.X, 'f', 3, 64),
				strconv.FormatFloat(tp.Y, 'f', 3, 64),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing CSV row for track %d: %w", t.ID, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteChainCSV writes the per-pair homography chain with its mean inlier
// reprojection error before and after refinement. Holes are emitted with
// valid=false and empty coefficient columns.
func (p *Pipeline) WriteChainCSV(w io.Writer) error {
	chain := p.TransformChain()
	before, after := p.PairDrift()

	cw := csv.NewWriter(w)
	header := []string{"pair", "valid", "inliers", "err_before_px", "err_after_px",
		"h00", "h01", "h02", "h10", "h11", "h12", "h20", "h21", "h22"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, h := range chain {
		row := make([]string, 0, len(header))
		row = append(row,
			strconv.Itoa(i),
			strconv.FormatBool(h.Valid),
			strconv.Itoa(h.Inliers),
			formatDrift(before, i),
			formatDrift(after, i),
		)
		for j := 0; j < 9; j++ {
			if h.Valid {
				row = append(row, strconv.FormatFloat(h.H[j], 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row for pair %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatDrift(vals []float64, i int) string {
	if i >= len(vals) {
		return ""
	}
	v := vals[i]
	if v != v { // NaN for holes
		return ""
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
