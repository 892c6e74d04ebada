package motion

import (
	"bytes"
	"encoding/csv"
	"math"
	"strconv"
	"testing"
)

func TestWriteTracksCSV(t *testing.T) {
	p := syntheticPipeline(4)
	mustRun(t, p, StepAll)

	var buf bytes.Buffer
	if err := p.WriteTracksCSV(&buf); err != nil {
		t.Fatalf("WriteTracksCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing output: %v", err)
	}
	if want := 1 + len(spreadPoints)*4; len(rows) != want {
		t.Fatalf("got %d rows, want %d", len(rows), want)
	}
	if rows[0][0] != "track_id" || rows[0][4] != "y" {
		t.Errorf("header = %v", rows[0])
	}

	// First track: frame indices 0..3 with the frame timestamps.
	wantTS := []string{"100", "200", "300", "400"}
	for i := 0; i < 4; i++ {
		row := rows[1+i]
		if row[0] != "1" {
			t.Errorf("row %d track_id = %s", i, row[0])
		}
		if row[1] != strconv.Itoa(i) {
			t.Errorf("row %d frame_index = %s, want %d", i, row[1], i)
		}
		if row[2] != wantTS[i] {
			t.Errorf("row %d timestamp = %s, want %s", i, row[2], wantTS[i])
		}
	}
}

func TestWriteChainCSV(t *testing.T) {
	p := syntheticPipeline(4)
	mustRun(t, p, StepAll)

	var buf bytes.Buffer
	if err := p.WriteChainCSV(&buf); err != nil {
		t.Fatalf("WriteChainCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing output: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}
	if rows[0][0] != "pair" || rows[0][5] != "h00" || rows[0][13] != "h22" {
		t.Errorf("header = %v", rows[0])
	}
	for i, row := range rows[1:] {
		if row[0] != strconv.Itoa(i) || row[1] != "true" {
			t.Errorf("row %d: pair %s valid %s", i, row[0], row[1])
		}
		if row[3] == "" {
			t.Errorf("row %d missing err_before_px", i)
		}
		h02, err := strconv.ParseFloat(row[7], 64)
		if err != nil || math.Abs(h02-5) > 1e-6 {
			t.Errorf("row %d h02 = %s, want 5", i, row[7])
		}
		if row[13] != "1" {
			t.Errorf("row %d h22 = %s, want 1", i, row[13])
		}
	}
}

func TestWriteChainCSVHoles(t *testing.T) {
	p := &Pipeline{arena: newResultArena(3)}
	p.frames = make([]Frame, 3)
	p.arena.chain[0] = Homography{H: [9]float64{1, 0, 2, 0, 1, 3, 0, 0, 1}, Valid: true, Inliers: 7}
	p.arena.pairErrBefore[0] = 0.25
	p.arena.pairErrBefore[1] = math.NaN()
	p.stageDone[StepFindHomographies] = true

	var buf bytes.Buffer
	if err := p.WriteChainCSV(&buf); err != nil {
		t.Fatalf("WriteChainCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[1][1] != "true" || rows[1][2] != "7" || rows[1][3] != "0.2500" {
		t.Errorf("valid row = %v", rows[1])
	}
	hole := rows[2]
	if hole[1] != "false" || hole[3] != "" || hole[4] != "" {
		t.Errorf("hole row = %v", hole)
	}
	for col := 5; col < 14; col++ {
		if hole[col] != "" {
			t.Errorf("hole coefficient column %d = %q, want empty", col, hole[col])
		}
	}
}

func TestWriteTracksCSVEmpty(t *testing.T) {
	p := NewPipeline(PipelineConfig{})
	var buf bytes.Buffer
	if err := p.WriteTracksCSV(&buf); err != nil {
		t.Fatalf("WriteTracksCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil || len(rows) != 1 {
		t.Errorf("empty pipeline: %d rows, err %v", len(rows), err)
	}
}
