package motion

import (
	"github.com/banshee-data/egomotion.report/internal/config"
)

// Default tunables. Chosen for 8-bit grayscale video at typical working
// zone sizes; all are overridable through TuningConfig.
const (
	DefaultFeatureBudget     = 2048
	DefaultFASTThreshold     = 20
	DefaultMatchMaxHamming   = 64
	DefaultMinMatches        = 4
	DefaultMinInliers        = 4
	DefaultRANSACIterations  = 500
	DefaultInlierThresholdPx = 3.0
	DefaultBAIterations      = 10
	DefaultBAChainedWeight   = 0.5
)

// Params is the immutable-per-run pipeline configuration. Changing it
// invalidates every cached stage output from feature detection onward.
type Params struct {
	// FeatureBudget caps detected features per frame. Detectors may return
	// fewer on low-texture frames.
	FeatureBudget int
	// FASTThreshold is the minimum absolute intensity difference for the
	// segment test.
	FASTThreshold int
	// MatchMaxHamming is the descriptor distance cutoff for candidate
	// correspondences. Zero admits exact matches only; negative selects
	// the default.
	MatchMaxHamming int
	// UseOptimalAssignment switches candidate proposal from mutual-nearest
	// cross-checking to Hungarian one-to-one assignment.
	UseOptimalAssignment bool
	// MinMatches is the minimum viable candidate count for a frame pair;
	// below it the pair yields an empty match set.
	MinMatches int
	// MinInliers is the minimum inlier support to fit a pair's transform;
	// below it the chain keeps a hole at that index.
	MinInliers int
	// RANSACIterations bounds the consensus sampling loop.
	RANSACIterations int
	// InlierThresholdPx is the reprojection distance separating inliers
	// from outliers.
	InlierThresholdPx float64
	// BAIterations bounds the joint refinement loop.
	BAIterations int
	// BAChainedWeight weighs multi-frame (chained) residuals against
	// pairwise residuals during refinement. Zero disables chained
	// residuals; negative selects the default.
	BAChainedWeight float64
	// StepByStep makes Run execute only the requested stage even when
	// earlier stages are already cached, instead of the full prefix.
	StepByStep bool
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		FeatureBudget:     DefaultFeatureBudget,
		FASTThreshold:     DefaultFASTThreshold,
		MatchMaxHamming:   DefaultMatchMaxHamming,
		MinMatches:        DefaultMinMatches,
		MinInliers:        DefaultMinInliers,
		RANSACIterations:  DefaultRANSACIterations,
		InlierThresholdPx: DefaultInlierThresholdPx,
		BAIterations:      DefaultBAIterations,
		BAChainedWeight:   DefaultBAChainedWeight,
	}
}

// ParamsFromTuning builds pipeline params from a loaded TuningConfig.
func ParamsFromTuning(cfg *config.TuningConfig) Params {
	return Params{
		FeatureBudget:        cfg.GetFeatureBudget(),
		FASTThreshold:        cfg.GetFASTThreshold(),
		MatchMaxHamming:      cfg.GetMatchMaxHamming(),
		UseOptimalAssignment: cfg.GetUseOptimalAssignment(),
		MinMatches:           cfg.GetMinMatches(),
		MinInliers:           cfg.GetMinInliers(),
		RANSACIterations:     cfg.GetRANSACIterations(),
		InlierThresholdPx:    cfg.GetInlierThresholdPx(),
		BAIterations:         cfg.GetBAIterations(),
		BAChainedWeight:      cfg.GetBAChainedWeight(),
		StepByStep:           cfg.GetStepByStep(),
	}
}
