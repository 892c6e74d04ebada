package motion

import (
	"image"
	"sort"
)

// circleOffsets is the 16-point Bresenham circle of radius 3 used by the
// segment test, clockwise from (0,-3).
var circleOffsets = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// fastBorder keeps the segment-test circle and the descriptor patch inside
// the image.
const fastBorder = briefPatchSize/2 + 1

// fastDetector is the default FeatureStage: a FAST-style segment-test
// corner detector with non-maximum suppression, corner-score ranking to
// honor the per-frame budget, and binary descriptors sampled around each
// keypoint.
type fastDetector struct{}

// DetectFeatures finds up to params.FeatureBudget corners in the frame,
// skipping pixels under the mask. Fewer corners than the budget is a normal
// outcome on low-texture frames. The result is ordered by descending corner
// score, ties broken by (y, x), so repeated runs are identical.
func (fastDetector) DetectFeatures(frame Frame, mask *Mask, params Params) ([]Feature, error) {
	img := frame.Image
	if img == nil {
		return nil, nil
	}
	if img.Bounds().Min != (image.Point{}) {
		img = normalizeGray(img)
	}
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w <= 2*fastBorder || h <= 2*fastBorder {
		return nil, nil
	}

	threshold := params.FASTThreshold
	if threshold <= 0 {
		threshold = DefaultFASTThreshold
	}

	// Segment test with per-pixel corner score. scores is dense to make
	// non-maximum suppression a plain window scan.
	scores := make([]float64, w*h)
	for y := fastBorder; y < h-fastBorder; y++ {
		for x := fastBorder; x < w-fastBorder; x++ {
			if mask != nil && mask.Excluded(x, y) {
				continue
			}
			if s, ok := segmentTest(img, x, y, threshold); ok {
				scores[y*w+x] = s
			}
		}
	}

	// 3x3 non-maximum suppression. Ties keep the earlier (smaller y, then
	// smaller x) pixel so suppression is order-independent.
	var kept []image.Point
	for y := fastBorder; y < h-fastBorder; y++ {
		for x := fastBorder; x < w-fastBorder; x++ {
			s := scores[y*w+x]
			if s == 0 {
				continue
			}
			if isLocalMax(scores, w, x, y, s) {
				kept = append(kept, image.Point{X: x, Y: y})
			}
		}
	}

	// Rank by score and truncate to the budget.
	sort.Slice(kept, func(i, j int) bool {
		si := scores[kept[i].Y*w+kept[i].X]
		sj := scores[kept[j].Y*w+kept[j].X]
		if si != sj {
			return si > sj
		}
		if kept[i].Y != kept[j].Y {
			return kept[i].Y < kept[j].Y
		}
		return kept[i].X < kept[j].X
	})
	if params.FeatureBudget > 0 && len(kept) > params.FeatureBudget {
		kept = kept[:params.FeatureBudget]
	}

	blurred := boxBlur(img)
	features := make([]Feature, 0, len(kept))
	for _, p := range kept {
		features = append(features, Feature{
			X:     float64(p.X),
			Y:     float64(p.Y),
			Score: scores[p.Y*w+p.X],
			Desc:  briefDescriptor(blurred, p),
		})
	}
	return features, nil
}

// segmentTest checks for >= 9 contiguous circle pixels all brighter than
// center+t or all darker than center-t, and returns the corner score (sum
// of absolute differences over the qualifying arc's polarity).
func segmentTest(img *image.Gray, x, y, t int) (float64, bool) {
	center := int(img.GrayAt(x, y).Y)
	var brighter, darker [16]bool
	for i, off := range circleOffsets {
		v := int(img.GrayAt(x+off[0], y+off[1]).Y)
		brighter[i] = v >= center+t
		darker[i] = v <= center-t
	}
	if !hasContiguousArc(brighter) && !hasContiguousArc(darker) {
		return 0, false
	}
	var score float64
	for _, off := range circleOffsets {
		v := int(img.GrayAt(x+off[0], y+off[1]).Y)
		d := v - center
		if d < 0 {
			d = -d
		}
		if d > t {
			score += float64(d - t)
		}
	}
	return score, true
}

// hasContiguousArc reports whether at least 9 contiguous entries of the
// circular flag slice are set.
func hasContiguousArc(flags [16]bool) bool {
	const needed = 9
	run := 0
	// Scan twice around the circle to handle wrap-around runs.
	for i := 0; i < 32; i++ {
		if flags[i%16] {
			run++
			if run >= needed {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func isLocalMax(scores []float64, w, x, y int, s float64) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*w+(x+dx)]
			if n > s {
				return false
			}
			if n == s && (dy < 0 || (dy == 0 && dx < 0)) {
				return false
			}
		}
	}
	return true
}

// normalizeGray re-bases an image whose bounds do not start at the origin.
func normalizeGray(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Pix[y*out.Stride+x] = img.GrayAt(b.Min.X+x, b.Min.Y+y).Y
		}
	}
	return out
}

// boxBlur is a 3x3 mean filter applied before descriptor sampling to make
// the binary comparisons less noise-sensitive. Border pixels are copied.
func boxBlur(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	copy(out.Pix, img.Pix)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var sum int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += int(img.GrayAt(b.Min.X+x+dx, b.Min.Y+y+dy).Y)
				}
			}
			out.Pix[y*out.Stride+x] = uint8(sum / 9)
		}
	}
	return out
}
