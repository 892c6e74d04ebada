package motion

import (
	"math/rand"
)

// consensusConfig tunes the random-sample-consensus loop that separates
// geometrically consistent candidate matches from outliers.
type consensusConfig struct {
	Iterations  int
	ThresholdPx float64
	MinInliers  int
	Seed        int64
}

// estimateConsensus runs RANSAC over candidate matches: draw minimal
// samples, fit an exact homography, score by inlier count, and keep the
// best consensus set. The returned flags parallel the candidates slice.
// ok is false when no model reached MinInliers; callers then leave every
// candidate an outlier.
//
// The sampling sequence is fully determined by cfg.Seed, and the best model
// is replaced only on a strictly better score, so the result is identical
// run to run.
func estimateConsensus(candidates []Match, cfg consensusConfig) ([]bool, bool) {
	n := len(candidates)
	if n < minHomographyPoints {
		return nil, false
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultRANSACIterations
	}
	if cfg.ThresholdPx <= 0 {
		cfg.ThresholdPx = DefaultInlierThresholdPx
	}
	if cfg.MinInliers < minHomographyPoints {
		cfg.MinInliers = minHomographyPoints
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	sampleSrc := make([]Point, minHomographyPoints)
	sampleDst := make([]Point, minHomographyPoints)
	idx := make([]int, minHomographyPoints)

	bestCount := 0
	var bestFlags []bool
	flags := make([]bool, n)

	for iter := 0; iter < cfg.Iterations; iter++ {
		sampleDistinct(rng, n, idx)
		for k, i := range idx {
			sampleSrc[k] = candidates[i].Src
			sampleDst[k] = candidates[i].Dst
		}
		h, err := fitHomography(sampleSrc, sampleDst)
		if err != nil {
			// Degenerate(ish) sample, e.g. three collinear points.
			continue
		}
		count := 0
		for i, m := range candidates {
			in := reprojectionError(h, m) <= cfg.ThresholdPx
			flags[i] = in
			if in {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			if bestFlags == nil {
				bestFlags = make([]bool, n)
			}
			copy(bestFlags, flags)
		}
	}

	if bestCount < cfg.MinInliers {
		return nil, false
	}
	return bestFlags, true
}

// sampleDistinct fills idx with distinct values in [0, n).
func sampleDistinct(rng *rand.Rand, n int, idx []int) {
	for k := range idx {
		for {
			v := rng.Intn(n)
			dup := false
			for _, prev := range idx[:k] {
				if prev == v {
					dup = true
					break
				}
			}
			if !dup {
				idx[k] = v
				break
			}
		}
	}
}
