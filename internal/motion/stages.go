package motion

// Stage interfaces define the boundaries between the pipeline's processing
// stages. The pipeline ships with default implementations; tests and
// callers with special needs inject their own through Stages.

// FeatureStage produces the feature set for one frame. A nil result is a
// legitimately featureless frame, not an error; an error marks the frame
// unreadable and the pipeline skips it.
type FeatureStage interface {
	DetectFeatures(frame Frame, mask *Mask, params Params) ([]Feature, error)
}

// MatchStage pairs features between two adjacent frames and classifies
// each pair as inlier or outlier via robust geometric consensus.
type MatchStage interface {
	MatchPair(prev, next []Feature, pairIdx int, params Params) []Match
}

// EstimateStage fits one planar transform per frame pair from its inlier
// matches, returning an invalid homography (a hole) when support is thin.
type EstimateStage interface {
	EstimatePair(matches []Match, params Params) Homography
}

// RefineStage jointly adjusts the transform chain to reduce accumulated
// drift and may revise inlier classification. Both slices are updated in
// place. refined reports how many transforms were adjusted (zero means
// nothing to refine).
type RefineStage interface {
	Refine(chain []Homography, matches [][]Match, params Params) (refined int)
}

// TrackStage chains inlier matches across frame pairs into persistent
// tracks.
type TrackStage interface {
	BuildTracks(frames []Frame, matches [][]Match, params Params) []Track
}

// Stages bundles the stage implementations used by a pipeline. Zero-value
// fields fall back to the defaults.
type Stages struct {
	Features FeatureStage
	Matcher  MatchStage
	Estimate EstimateStage
	Refine   RefineStage
	Tracks   TrackStage
}

func (s Stages) withDefaults() Stages {
	if s.Features == nil {
		s.Features = fastDetector{}
	}
	if s.Matcher == nil {
		s.Matcher = consensusMatcher{}
	}
	if s.Estimate == nil {
		s.Estimate = dltEstimator{}
	}
	if s.Refine == nil {
		s.Refine = bundleRefiner{}
	}
	if s.Tracks == nil {
		s.Tracks = contiguityTrackBuilder{}
	}
	return s
}
