package motion

import "image"

//
// 0) Frames & the working zone
//

// FrameIndex is the 0-based, sequential position of a frame within the
// working zone. The Timestamp -> FrameIndex mapping is a bijection that is
// established once per run and never changes until Reset.
type FrameIndex int

// Frame is one image of the working zone plus its external timestamp.
// Image may be nil when the source failed to decode the frame; the feature
// stage skips such frames and leaves them featureless.
type Frame struct {
	Index     FrameIndex
	Timestamp int64 // unix ns, strictly increasing with Index
	Image     *image.Gray
}

//
// 1) Features
//

// DescriptorWords is the number of uint64 words in a binary descriptor
// (256 sample pairs).
const DescriptorWords = 4

// Descriptor is a 256-bit binary descriptor. Similarity is Hamming distance.
type Descriptor [DescriptorWords]uint64

// Feature is a detected interest point in one frame. It has no identity
// beyond its frame; cross-frame identity only exists through Matches and
// Tracks.
type Feature struct {
	X, Y  float64
	Score float64 // corner response used for budget ranking
	Desc  Descriptor
}

// Point is a 2D position in frame pixel space.
type Point struct {
	X, Y float64
}

//
// 2) Matches
//

// Match is a proposed correspondence between a feature in frame i (Src) and
// a feature in frame i+1 (Dst). The matcher sets Inlier from robust
// consensus; the refinement stage may revise it.
type Match struct {
	SrcIdx, DstIdx int // indices into the two frames' feature sets
	Src, Dst       Point
	HammingDist    int
	Inlier         bool
}

//
// 3) Transforms
//

// Homography is a planar projective map from frame i coordinates to frame
// i+1 coordinates. H is row-major 3x3 with H[8] normalised to 1. Valid is
// false for a hole: a pair whose inlier support was too thin to fit a
// stable transform.
type Homography struct {
	H       [9]float64
	Valid   bool
	Inliers int
}

// Apply maps p through the homography. Callers must not apply an invalid
// homography; Apply on a hole returns p unchanged.
func (h Homography) Apply(p Point) Point {
	if !h.Valid {
		return p
	}
	w := h.H[6]*p.X + h.H[7]*p.Y + h.H[8]
	if w == 0 {
		return Point{}
	}
	return Point{
		X: (h.H[0]*p.X + h.H[1]*p.Y + h.H[2]) / w,
		Y: (h.H[3]*p.X + h.H[4]*p.Y + h.H[5]) / w,
	}
}

// Compose returns the homography equivalent to applying a first, then b,
// i.e. the map from a's source frame to b's destination frame. Composition
// through a hole is undefined and yields an invalid homography.
func Compose(a, b Homography) Homography {
	if !a.Valid || !b.Valid {
		return Homography{}
	}
	var c [9]float64
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += b.H[row*3+k] * a.H[k*3+col]
			}
			c[row*3+col] = sum
		}
	}
	if c[8] != 0 {
		for i := range c {
			c[i] /= c[8]
		}
	}
	return Homography{H: c, Valid: true, Inliers: min(a.Inliers, b.Inliers)}
}

//
// 4) Tracks
//

// TrackPoint is one time-keyed observation of a persistent feature.
type TrackPoint struct {
	Timestamp int64 // unix ns
	X, Y      float64
}

// Track is the trajectory of one persistent feature across a contiguous run
// of frames. Timestamps are strictly increasing and the covered frame
// indices have no gaps; chaining breaks on the first missed match. IDs are
// sequential in creation order so repeated runs produce identical tracks.
type Track struct {
	ID         int64
	StartIndex FrameIndex
	Points     []TrackPoint
}

// EndIndex returns the frame index of the track's last observation.
func (t *Track) EndIndex() FrameIndex {
	return t.StartIndex + FrameIndex(len(t.Points)) - 1
}

//
// 5) The result arena
//

// resultArena owns all derived per-run state. Feature sets and the
// transform chain are fixed-size slices indexed by FrameIndex / pair index
// with explicit absence (nil feature set, Valid=false homography), which
// keeps reset and determinism trivial.
type resultArena struct {
	features [][]Feature  // len = frame count; nil = not detected / skipped
	matches  [][]Match    // len = frame count - 1, indexed by pair
	chain    []Homography // len = frame count - 1, Valid=false marks holes
	tracks   []Track

	// Per-pair mean reprojection error over inliers, captured before and
	// after refinement for drift reporting. NaN where undefined.
	pairErrBefore []float64
	pairErrAfter  []float64
}

func newResultArena(frameCount int) *resultArena {
	pairs := 0
	if frameCount > 1 {
		pairs = frameCount - 1
	}
	return &resultArena{
		features:      make([][]Feature, frameCount),
		matches:       make([][]Match, pairs),
		chain:         make([]Homography, pairs),
		pairErrBefore: make([]float64, pairs),
		pairErrAfter:  make([]float64, pairs),
	}
}
