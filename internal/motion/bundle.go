package motion

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// bundleRefiner is the default RefineStage. Pairwise estimation fits each
// homography independently, so error compounds monotonically along the
// chain; the refiner minimises total reprojection error across the whole
// chain at once with a Levenberg-Marquardt loop, redistributing drift
// instead of letting it accumulate.
//
// Two residual families are used: pairwise (each inlier match against its
// own transform) and chained (correspondences followed through two
// consecutive pairs against the composed transform). The chained terms are
// what couples neighbouring transforms; their weight is tunable.
type bundleRefiner struct{}

// pairObs is an inlier correspondence within one frame pair.
type pairObs struct {
	slot     int
	src, dst Point
}

// chainObs follows a feature through pairs a and a+1: src observed in
// frame a, dst observed in frame a+2.
type chainObs struct {
	slotA, slotB int
	src, dst     Point
}

// Refine jointly adjusts every non-hole transform and re-thresholds inlier
// flags against the refined chain. Returns the number of transforms
// adjusted; zero means there was nothing to refine.
func (bundleRefiner) Refine(chain []Homography, matches [][]Match, params Params) int {
	iters := params.BAIterations
	if iters <= 0 {
		iters = DefaultBAIterations
	}
	thr := params.InlierThresholdPx
	if thr <= 0 {
		thr = DefaultInlierThresholdPx
	}
	// Zero is a valid weight (pairwise residuals only); only a negative
	// value falls back to the default.
	weight := params.BAChainedWeight
	if weight < 0 {
		weight = DefaultBAChainedWeight
	}

	// Collect the adjustable transforms.
	slots := make([]int, 0, len(chain)) // slot -> pair index
	slotOf := make(map[int]int, len(chain))
	for i := range chain {
		if chain[i].Valid {
			slotOf[i] = len(slots)
			slots = append(slots, i)
		}
	}
	if len(slots) == 0 {
		diagf("[Refine] No transforms in chain, nothing to refine")
		return 0
	}

	// Parameter vector: 8 values per transform, h22 fixed at 1.
	theta := make([]float64, 8*len(slots))
	for s, pairIdx := range slots {
		copy(theta[8*s:8*s+8], chain[pairIdx].H[:8])
	}

	pairRes, chainRes := collectObservations(matches, slotOf)
	if len(pairRes) == 0 {
		diagf("[Refine] No inlier observations, nothing to refine")
		return 0
	}
	tracef("[Refine] %d transforms, %d pairwise + %d chained observations",
		len(slots), len(pairRes), len(chainRes))

	dim := len(theta)
	lambda := 1e-3
	prevCost := totalCost(theta, pairRes, chainRes, weight)
	for it := 0; it < iters; it++ {
		jtj := mat.NewDense(dim, dim, nil)
		jtr := make([]float64, dim)
		accumulateNormalEquations(theta, pairRes, chainRes, weight, jtj, jtr)

		// Damped step: (JtJ + lambda*I) delta = Jt r.
		for d := 0; d < dim; d++ {
			jtj.Set(d, d, jtj.At(d, d)+lambda)
		}
		var delta mat.VecDense
		if err := delta.SolveVec(jtj, mat.NewVecDense(dim, jtr)); err != nil {
			lambda *= 10
			continue
		}

		trial := make([]float64, dim)
		for d := 0; d < dim; d++ {
			trial[d] = theta[d] - delta.AtVec(d)
		}
		cost := totalCost(trial, pairRes, chainRes, weight)
		if cost < prevCost {
			theta = trial
			improvement := prevCost - cost
			prevCost = cost
			lambda = math.Max(lambda*0.5, 1e-9)
			if improvement < 1e-9 {
				break
			}
		} else {
			lambda *= 10
			if lambda > 1e12 {
				break
			}
		}
	}

	// Write the refined transforms back.
	for s, pairIdx := range slots {
		var h [9]float64
		copy(h[:8], theta[8*s:8*s+8])
		h[8] = 1
		chain[pairIdx].H = h
	}

	// Revise inlier classification against the refined chain: candidates
	// can flip in both directions.
	flipped := 0
	for pairIdx := range matches {
		if !chain[pairIdx].Valid {
			continue
		}
		inliers := 0
		for k := range matches[pairIdx] {
			in := reprojectionError(chain[pairIdx], matches[pairIdx][k]) <= thr
			if in != matches[pairIdx][k].Inlier {
				flipped++
			}
			matches[pairIdx][k].Inlier = in
			if in {
				inliers++
			}
		}
		chain[pairIdx].Inliers = inliers
	}
	if flipped > 0 {
		diagf("[Refine] Revised %d inlier flags after joint adjustment", flipped)
	}
	return len(slots)
}

// collectObservations gathers pairwise inlier residual sources and chained
// two-pair residual sources (a match in pair i continued by a match in
// pair i+1 through the shared middle feature).
func collectObservations(matches [][]Match, slotOf map[int]int) ([]pairObs, []chainObs) {
	var pairRes []pairObs
	var chainRes []chainObs
	for pairIdx, slot := range slotOf {
		for _, m := range matches[pairIdx] {
			if m.Inlier {
				pairRes = append(pairRes, pairObs{slot: slot, src: m.Src, dst: m.Dst})
			}
		}
		next, ok := slotOf[pairIdx+1]
		if !ok || pairIdx+1 >= len(matches) {
			continue
		}
		// Index the next pair's inlier matches by source feature.
		bySrc := make(map[int]Match, len(matches[pairIdx+1]))
		for _, m2 := range matches[pairIdx+1] {
			if m2.Inlier {
				bySrc[m2.SrcIdx] = m2
			}
		}
		for _, m1 := range matches[pairIdx] {
			if !m1.Inlier {
				continue
			}
			if m2, ok := bySrc[m1.DstIdx]; ok {
				chainRes = append(chainRes, chainObs{
					slotA: slot, slotB: next,
					src: m1.Src, dst: m2.Dst,
				})
			}
		}
	}
	// Map iteration order is random; sort for a deterministic system.
	sortPairObs(pairRes)
	sortChainObs(chainRes)
	return pairRes, chainRes
}

// evalTheta maps pt through the 8-parameter homography at theta[8s:8s+8],
// returning the projected point and the homogeneous denominators needed by
// the analytic Jacobian.
func evalTheta(theta []float64, slot int, pt Point) (proj Point, u, v, w float64) {
	p := theta[8*slot : 8*slot+8]
	u = p[0]*pt.X + p[1]*pt.Y + p[2]
	v = p[3]*pt.X + p[4]*pt.Y + p[5]
	w = p[6]*pt.X + p[7]*pt.Y + 1
	if w == 0 {
		return Point{}, u, v, 1
	}
	return Point{X: u / w, Y: v / w}, u, v, w
}

// projJacobian fills the 2x8 Jacobian of the projection at pt with respect
// to the transform's own parameters.
func projJacobian(pt Point, u, v, w float64, jx, jy *[8]float64) {
	inv := 1 / w
	jx[0], jx[1], jx[2] = pt.X*inv, pt.Y*inv, inv
	jx[6], jx[7] = -u*pt.X*inv*inv, -u*pt.Y*inv*inv
	jy[3], jy[4], jy[5] = pt.X*inv, pt.Y*inv, inv
	jy[6], jy[7] = -v*pt.X*inv*inv, -v*pt.Y*inv*inv
}

// pointJacobian fills the 2x2 Jacobian of the projection at pt with
// respect to the input point coordinates.
func pointJacobian(theta []float64, slot int, pt Point, u, v, w float64) (dxx, dxy, dyx, dyy float64) {
	p := theta[8*slot : 8*slot+8]
	inv := 1 / w
	dxx = (p[0] - p[6]*u*inv) * inv
	dxy = (p[1] - p[7]*u*inv) * inv
	dyx = (p[3] - p[6]*v*inv) * inv
	dyy = (p[4] - p[7]*v*inv) * inv
	return
}

// accumulateNormalEquations builds JtJ and Jt r from the analytic per
// residual gradients, exploiting block sparsity: a pairwise residual
// touches one transform's 8 parameters, a chained residual touches two.
func accumulateNormalEquations(theta []float64, pairRes []pairObs, chainRes []chainObs, weight float64, jtj *mat.Dense, jtr []float64) {
	var jx, jy [8]float64
	for _, o := range pairRes {
		proj, u, v, w := evalTheta(theta, o.slot, o.src)
		jx, jy = [8]float64{}, [8]float64{}
		projJacobian(o.src, u, v, w, &jx, &jy)
		rx := proj.X - o.dst.X
		ry := proj.Y - o.dst.Y
		base := 8 * o.slot
		for a := 0; a < 8; a++ {
			jtr[base+a] += jx[a]*rx + jy[a]*ry
			for b := 0; b < 8; b++ {
				jtj.Set(base+a, base+b, jtj.At(base+a, base+b)+jx[a]*jx[b]+jy[a]*jy[b])
			}
		}
	}

	var jxA, jyA, jxB, jyB [8]float64
	for _, o := range chainRes {
		mid, uA, vA, wA := evalTheta(theta, o.slotA, o.src)
		proj, uB, vB, wB := evalTheta(theta, o.slotB, mid)

		// Gradient w.r.t. the second transform's parameters.
		jxB, jyB = [8]float64{}, [8]float64{}
		projJacobian(mid, uB, vB, wB, &jxB, &jyB)

		// Gradient w.r.t. the first transform via the chain rule: the
		// second projection's sensitivity to its input point times the
		// first projection's parameter Jacobian.
		dxx, dxy, dyx, dyy := pointJacobian(theta, o.slotB, mid, uB, vB, wB)
		jxA, jyA = [8]float64{}, [8]float64{}
		var jmx, jmy [8]float64
		projJacobian(o.src, uA, vA, wA, &jmx, &jmy)
		for a := 0; a < 8; a++ {
			jxA[a] = dxx*jmx[a] + dxy*jmy[a]
			jyA[a] = dyx*jmx[a] + dyy*jmy[a]
		}

		rx := proj.X - o.dst.X
		ry := proj.Y - o.dst.Y
		baseA := 8 * o.slotA
		baseB := 8 * o.slotB
		grads := [2]struct {
			base   int
			gx, gy *[8]float64
		}{
			{baseA, &jxA, &jyA},
			{baseB, &jxB, &jyB},
		}
		for _, ga := range grads {
			for a := 0; a < 8; a++ {
				jtr[ga.base+a] += weight * ((*ga.gx)[a]*rx + (*ga.gy)[a]*ry)
			}
		}
		for _, ga := range grads {
			for _, gb := range grads {
				for a := 0; a < 8; a++ {
					for b := 0; b < 8; b++ {
						jtj.Set(ga.base+a, gb.base+b,
							jtj.At(ga.base+a, gb.base+b)+
								weight*((*ga.gx)[a]*(*gb.gx)[b]+(*ga.gy)[a]*(*gb.gy)[b]))
					}
				}
			}
		}
	}
}

// totalCost is the weighted sum of squared residuals at theta.
func totalCost(theta []float64, pairRes []pairObs, chainRes []chainObs, weight float64) float64 {
	var cost float64
	for _, o := range pairRes {
		proj, _, _, _ := evalTheta(theta, o.slot, o.src)
		dx := proj.X - o.dst.X
		dy := proj.Y - o.dst.Y
		cost += dx*dx + dy*dy
	}
	for _, o := range chainRes {
		mid, _, _, _ := evalTheta(theta, o.slotA, o.src)
		proj, _, _, _ := evalTheta(theta, o.slotB, mid)
		dx := proj.X - o.dst.X
		dy := proj.Y - o.dst.Y
		cost += weight * (dx*dx + dy*dy)
	}
	return cost
}

func sortPairObs(obs []pairObs) {
	sort.Slice(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]
		if a.slot != b.slot {
			return a.slot < b.slot
		}
		if a.src.X != b.src.X {
			return a.src.X < b.src.X
		}
		return a.src.Y < b.src.Y
	})
}

func sortChainObs(obs []chainObs) {
	sort.Slice(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]
		if a.slotA != b.slotA {
			return a.slotA < b.slotA
		}
		if a.src.X != b.src.X {
			return a.src.X < b.src.X
		}
		return a.src.Y < b.src.Y
	})
}
