package motion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// minHomographyPoints is the minimum correspondence count for a projective
// fit: four point pairs pin down the eight degrees of freedom exactly.
const minHomographyPoints = 4

// dltEstimator is the default EstimateStage: a normalised direct linear
// transform fit over the inlier subset of a pair's match set.
type dltEstimator struct{}

// EstimatePair fits one homography from the pair's inlier matches. Too few
// inliers leaves a hole; that is the expected degrade-gracefully outcome,
// not an error.
func (dltEstimator) EstimatePair(matches []Match, params Params) Homography {
	minInliers := params.MinInliers
	if minInliers < minHomographyPoints {
		minInliers = minHomographyPoints
	}
	src := make([]Point, 0, len(matches))
	dst := make([]Point, 0, len(matches))
	for _, m := range matches {
		if m.Inlier {
			src = append(src, m.Src)
			dst = append(dst, m.Dst)
		}
	}
	if len(src) < minInliers {
		return Homography{}
	}
	h, err := fitHomography(src, dst)
	if err != nil {
		tracef("[Estimator] DLT fit failed on %d inliers: %v", len(src), err)
		return Homography{}
	}
	h.Inliers = len(src)
	return h
}

// fitHomography computes the least-squares planar projective map sending
// src[i] to dst[i], with Hartley normalisation for conditioning. Requires
// at least four correspondences in general position.
func fitHomography(src, dst []Point) (Homography, error) {
	n := len(src)
	if n < minHomographyPoints || len(dst) != n {
		return Homography{}, fmt.Errorf("need >= %d point pairs, have %d/%d", minHomographyPoints, len(src), len(dst))
	}

	tSrc, nSrc := normalizePoints(src)
	tDst, nDst := normalizePoints(dst)

	// Build the 2n x 8 DLT system with h22 fixed to 1.
	a := mat.NewDense(2*n, 8, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := 0; i < n; i++ {
		X, Y := nSrc[i].X, nSrc[i].Y
		x, y := nDst[i].X, nDst[i].Y
		r := 2 * i
		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)
		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return Homography{}, fmt.Errorf("solve DLT system: %w", err)
	}
	hn := [9]float64{
		sol.AtVec(0), sol.AtVec(1), sol.AtVec(2),
		sol.AtVec(3), sol.AtVec(4), sol.AtVec(5),
		sol.AtVec(6), sol.AtVec(7), 1,
	}

	// Denormalise: H = inv(Tdst) * Hn * Tsrc.
	out := mul3(invSimilarity(tDst), hn, tSrc.matrix())
	if out[8] == 0 || math.IsNaN(out[8]) || math.IsInf(out[8], 0) {
		return Homography{}, fmt.Errorf("degenerate homography")
	}
	for i := range out {
		out[i] /= out[8]
	}
	return Homography{H: out, Valid: true}, nil
}

// similarity is a normalising transform: translate the centroid to the
// origin, scale mean distance to sqrt(2). Encoded as sx, sy only through a
// uniform s plus translation, row-major 3x3.
type similarity struct {
	s, tx, ty float64
}

func normalizePoints(pts []Point) (similarity, []Point) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))
	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= float64(len(pts))
	s := 1.0
	if meanDist > 0 {
		s = math.Sqrt2 / meanDist
	}
	t := similarity{s: s, tx: -s * cx, ty: -s * cy}
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: s*p.X + t.tx, Y: s*p.Y + t.ty}
	}
	return t, out
}

func (t similarity) matrix() [9]float64 {
	return [9]float64{t.s, 0, t.tx, 0, t.s, t.ty, 0, 0, 1}
}

func invSimilarity(t similarity) [9]float64 {
	inv := 1 / t.s
	return [9]float64{inv, 0, -t.tx * inv, 0, inv, -t.ty * inv, 0, 0, 1}
}

func mul3(a [9]float64, b ...[9]float64) [9]float64 {
	out := a
	for _, m := range b {
		var c [9]float64
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				var sum float64
				for k := 0; k < 3; k++ {
					sum += out[row*3+k] * m[k*3+col]
				}
				c[row*3+col] = sum
			}
		}
		out = c
	}
	return out
}

// reprojectionError is the Euclidean distance between the match's observed
// destination and its source mapped through h.
func reprojectionError(h Homography, m Match) float64 {
	p := h.Apply(m.Src)
	return math.Hypot(p.X-m.Dst.X, p.Y-m.Dst.Y)
}

// meanInlierError returns the mean reprojection error over inlier matches,
// or NaN when the pair has no usable transform or no inliers.
func meanInlierError(h Homography, matches []Match) float64 {
	if !h.Valid {
		return math.NaN()
	}
	var sum float64
	var n int
	for _, m := range matches {
		if m.Inlier {
			sum += reprojectionError(h, m)
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
