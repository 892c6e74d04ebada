// Package sqlite persists analysis runs and their tracks. Each pipeline
// run is recorded with the full parameter set that produced it so results
// stay reproducible and comparable across tuning changes.
package sqlite

import (
	"encoding/json"
	"time"

	"github.com/banshee-data/egomotion.report/internal/motion"
)

// AnalysisRun represents a complete pipeline run with parameters.
type AnalysisRun struct {
	RunID        string    `json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
	SourcePath   string    `json:"source_path"`
	FrameCount   int       `json:"frame_count"`
	ParamsJSON   []byte    `json:"params_json"`
	Status       string    `json:"status"` // running, completed, cancelled, failed
	ErrorMessage string    `json:"error_message,omitempty"`
}

// AnalysisStats holds the final counters written when a run terminates.
type AnalysisStats struct {
	DurationMs      int64 `json:"duration_ms"`
	TotalFeatures   int   `json:"total_features"`
	TotalCandidates int   `json:"total_candidates"`
	TotalInliers    int   `json:"total_inliers"`
	TotalTransforms int   `json:"total_transforms"`
	ChainHoles      int   `json:"chain_holes"`
	TotalTracks     int   `json:"total_tracks"`
}

// RunParams is the JSON-serializable form of the engine parameters, stored
// with each run.
type RunParams struct {
	FeatureBudget        int     `json:"feature_budget"`
	FASTThreshold        int     `json:"fast_threshold"`
	MatchMaxHamming      int     `json:"match_max_hamming"`
	UseOptimalAssignment bool    `json:"use_optimal_assignment"`
	MinMatches           int     `json:"min_matches"`
	RANSACIterations     int     `json:"ransac_iterations"`
	InlierThresholdPx    float64 `json:"inlier_threshold_px"`
	MinInliers           int     `json:"min_inliers"`
	BAIterations         int     `json:"ba_iterations"`
	BAChainedWeight      float64 `json:"ba_chained_weight"`
}

// FromParams converts engine parameters to their storable form.
func FromParams(p motion.Params) RunParams {
	return RunParams{
		FeatureBudget:        p.FeatureBudget,
		FASTThreshold:        p.FASTThreshold,
		MatchMaxHamming:      p.MatchMaxHamming,
		UseOptimalAssignment: p.UseOptimalAssignment,
		MinMatches:           p.MinMatches,
		RANSACIterations:     p.RANSACIterations,
		InlierThresholdPx:    p.InlierThresholdPx,
		MinInliers:           p.MinInliers,
		BAIterations:         p.BAIterations,
		BAChainedWeight:      p.BAChainedWeight,
	}
}

// ToJSON serializes the parameters for storage.
func (p RunParams) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// RunTrack is one persisted track within an analysis run.
type RunTrack struct {
	RunID      string `json:"run_id"`
	TrackID    int64  `json:"track_id"`
	StartIndex int    `json:"start_index"`
	Length     int    `json:"length"`
	PointsJSON []byte `json:"points_json"`
}

// RunTrackFromTrack flattens an engine track into its persisted form.
func RunTrackFromTrack(runID string, t motion.Track) (RunTrack, error) {
	points, err := json.Marshal(t.Points)
	if err != nil {
		return RunTrack{}, err
	}
	return RunTrack{
		RunID:      runID,
		TrackID:    t.ID,
		StartIndex: int(t.StartIndex),
		Length:     len(t.Points),
		PointsJSON: points,
	}, nil
}
