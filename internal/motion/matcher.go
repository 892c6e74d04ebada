package motion

import (
	"math/bits"
)

// consensusMatcher is the default MatchStage. It proposes candidate
// correspondences by descriptor similarity and classifies each candidate as
// inlier or outlier with a robust planar consensus fit.
type consensusMatcher struct{}

// HammingDistance counts differing bits between two descriptors.
func HammingDistance(a, b Descriptor) int {
	d := 0
	for i := range a {
		d += bits.OnesCount64(a[i] ^ b[i])
	}
	return d
}

// MatchPair matches the feature sets of frames pairIdx and pairIdx+1.
// Candidate proposal is mutual-nearest by Hamming distance (cross-check)
// with a distance cutoff, or optimal one-to-one assignment when
// UseOptimalAssignment is set. Equal-distance ties resolve to the
// lower-index target, so the result is reproducible. A pair with fewer than
// MinMatches candidates yields an empty match set.
func (consensusMatcher) MatchPair(prev, next []Feature, pairIdx int, params Params) []Match {
	if len(prev) == 0 || len(next) == 0 {
		return nil
	}
	// Zero is a valid cutoff (exact descriptor matches only); only a
	// negative value falls back to the default.
	maxDist := params.MatchMaxHamming
	if maxDist < 0 {
		maxDist = DefaultMatchMaxHamming
	}

	dist := make([][]int, len(prev))
	for i := range prev {
		dist[i] = make([]int, len(next))
		for j := range next {
			dist[i][j] = HammingDistance(prev[i].Desc, next[j].Desc)
		}
	}

	var candidates []Match
	if params.UseOptimalAssignment {
		candidates = assignOptimal(prev, next, dist, maxDist)
	} else {
		candidates = assignCrossCheck(prev, next, dist, maxDist)
	}

	minMatches := params.MinMatches
	if minMatches <= 0 {
		minMatches = DefaultMinMatches
	}
	if len(candidates) < minMatches {
		tracef("[Matcher] Pair %d: %d candidates below minimum %d, emitting empty match set",
			pairIdx, len(candidates), minMatches)
		return nil
	}

	// Robust consensus: fit a homography by random sampling over the
	// candidates and flag the geometrically consistent ones. The seed is
	// derived from the pair index so repeated runs are byte-identical.
	flags, ok := estimateConsensus(candidates, consensusConfig{
		Iterations:  params.RANSACIterations,
		ThresholdPx: params.InlierThresholdPx,
		MinInliers:  minMatches,
		Seed:        consensusSeed(pairIdx),
	})
	if ok {
		for i := range candidates {
			candidates[i].Inlier = flags[i]
		}
	}
	return candidates
}

// consensusSeed derives the deterministic RANSAC seed for a frame pair.
func consensusSeed(pairIdx int) int64 {
	return 0x6d6f74696f6e + int64(pairIdx)*0x9e3779b9
}

// assignCrossCheck keeps pairs that are mutual nearest neighbours. Argmin
// scans ascend in index, so ties prefer the lower-index target.
func assignCrossCheck(prev, next []Feature, dist [][]int, maxDist int) []Match {
	fwd := make([]int, len(prev))  // argmin per source row
	back := make([]int, len(next)) // argmin per target column
	for i := range prev {
		best := 0
		for j := 1; j < len(next); j++ {
			if dist[i][j] < dist[i][best] {
				best = j
			}
		}
		fwd[i] = best
	}
	for j := range next {
		best := 0
		for i := 1; i < len(prev); i++ {
			if dist[i][j] < dist[best][j] {
				best = i
			}
		}
		back[j] = best
	}
	var matches []Match
	for i := range prev {
		j := fwd[i]
		if back[j] != i || dist[i][j] > maxDist {
			continue
		}
		matches = append(matches, Match{
			SrcIdx:      i,
			DstIdx:      j,
			Src:         Point{X: prev[i].X, Y: prev[i].Y},
			Dst:         Point{X: next[j].X, Y: next[j].Y},
			HammingDist: dist[i][j],
		})
	}
	return matches
}

// assignOptimal resolves the full assignment problem over the distance
// matrix, forbidding pairs beyond the cutoff.
func assignOptimal(prev, next []Feature, dist [][]int, maxDist int) []Match {
	cost := make([][]float64, len(prev))
	for i := range prev {
		cost[i] = make([]float64, len(next))
		for j := range next {
			if dist[i][j] > maxDist {
				cost[i][j] = hungarianForbidden
			} else {
				cost[i][j] = float64(dist[i][j])
			}
		}
	}
	assignment := hungarianAssign(cost)
	var matches []Match
	for i, j := range assignment {
		if j < 0 {
			continue
		}
		matches = append(matches, Match{
			SrcIdx:      i,
			DstIdx:      j,
			Src:         Point{X: prev[i].X, Y: prev[i].Y},
			Dst:         Point{X: next[j].X, Y: next[j].Y},
			HammingDist: dist[i][j],
		})
	}
	return matches
}
