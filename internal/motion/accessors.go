package motion

// Read-side API of the Pipeline. All accessors are safe to call
// concurrently with an active run; they return copies of snapshots of
// whatever stages have committed, never partial stage output.

// State returns the pipeline's lifecycle state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// HasResults reports whether a run completed through the requested step
// since the last invalidation.
func (p *Pipeline) HasResults() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasResults
}

// FrameCount returns the number of frames in the loaded working zone, 0
// before the first run.
func (p *Pipeline) FrameCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.frames)
}

// FrameIndexOf maps a frame timestamp to its index in the working zone.
func (p *Pipeline) FrameIndexOf(ts int64) (FrameIndex, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx, ok := p.tsIndex[ts]
	return idx, ok
}

// CollectTimeVector flattens every track point's timestamp into a single
// slice, tracks in ID order, points in frame order within each track. The
// result aligns element-wise with CollectData.
func (p *Pipeline) CollectTimeVector() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.stageDone[StepBuildTracks] {
		return nil
	}
	var out []int64
	for _, t := range p.arena.tracks {
		for _, tp := range t.Points {
			out = append(out, tp.Timestamp)
		}
	}
	return out
}

// GetFeatures returns the detected feature positions for the frame with
// the given timestamp. Empty when the frame is unknown, featureless, or
// detection has not committed yet.
func (p *Pipeline) GetFeatures(ts int64) []Point {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx, ok := p.tsIndex[ts]
	if !ok || !p.stageDone[StepFindFeatures] {
		return nil
	}
	fs := p.arena.features[idx]
	out := make([]Point, len(fs))
	for i, f := range fs {
		out[i] = Point{X: f.X, Y: f.Y}
	}
	return out
}

// GetMatches returns the correspondences between the frame with the given
// timestamp and its successor. Empty for the last frame, unknown
// timestamps, or before matching has committed.
func (p *Pipeline) GetMatches(ts int64) []Match {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx, ok := p.tsIndex[ts]
	if !ok || !p.stageDone[StepMatchFeatures] || int(idx) >= len(p.arena.matches) {
		return nil
	}
	return append([]Match(nil), p.arena.matches[idx]...)
}

// TransformChain returns the per-pair homography chain, length N-1 for N
// frames, holes included as invalid entries. Empty before estimation has
// committed.
func (p *Pipeline) TransformChain() []Homography {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.stageDone[StepFindHomographies] {
		return nil
	}
	return append([]Homography(nil), p.arena.chain...)
}

// GetTracks returns a deep copy of the multi-frame tracks. Empty before
// track building has committed.
func (p *Pipeline) GetTracks() []Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.stageDone[StepBuildTracks] {
		return nil
	}
	out := make([]Track, len(p.arena.tracks))
	for i, t := range p.arena.tracks {
		out[i] = Track{
			ID:         t.ID,
			StartIndex: t.StartIndex,
			Points:     append([]TrackPoint(nil), t.Points...),
		}
	}
	return out
}

// CollectData flattens every track point into a single slice, tracks in ID
// order, points in frame order within each track.
func (p *Pipeline) CollectData() []Point {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.stageDone[StepBuildTracks] {
		return nil
	}
	var out []Point
	for _, t := range p.arena.tracks {
		for _, tp := range t.Points {
			out = append(out, Point{X: tp.X, Y: tp.Y})
		}
	}
	return out
}

// PairDrift returns the mean inlier reprojection error per pair before and
// after refinement. Entries for holes are NaN. The after slice is nil when
// refinement has not committed.
func (p *Pipeline) PairDrift() (before, after []float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stageDone[StepFindHomographies] {
		before = append([]float64(nil), p.arena.pairErrBefore...)
	}
	if p.stageDone[StepBundleAdjustment] {
		after = append([]float64(nil), p.arena.pairErrAfter...)
	}
	return before, after
}

// Stats summarises the currently cached stage outputs.
func (p *Pipeline) Stats() RunStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.statsLocked()
}

func (p *Pipeline) statsLocked() RunStats {
	s := RunStats{Frames: len(p.frames)}
	for _, fs := range p.arena.features {
		s.Features += len(fs)
	}
	for _, ms := range p.arena.matches {
		s.Candidates += len(ms)
		for _, m := range ms {
			if m.Inlier {
				s.Inliers++
			}
		}
	}
	if p.stageDone[StepFindHomographies] {
		for _, h := range p.arena.chain {
			if h.Valid {
				s.Transforms++
			} else {
				s.Holes++
			}
		}
	}
	if p.stageDone[StepBundleAdjustment] {
		s.RefinedTransforms = s.Transforms
	}
	s.Tracks = len(p.arena.tracks)
	return s
}
