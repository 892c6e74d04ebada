package motion

import (
	"image"
	"math/rand"
)

// briefPatchSize is the square patch around a keypoint sampled by the
// binary descriptor.
const briefPatchSize = 31

// briefSampleSeed fixes the sampling pattern. The pattern is generated once
// per process and identical across processes, which the determinism
// contract depends on.
const briefSampleSeed = 0x5eed

// briefPairs holds the 256 point pairs compared to build a descriptor.
var briefPairs = generateSamplePairs()

type samplePair struct {
	x0, y0, x1, y1 int
}

// generateSamplePairs draws point pairs uniformly inside the patch using a
// fixed-seed source.
func generateSamplePairs() [256]samplePair {
	rng := rand.New(rand.NewSource(briefSampleSeed))
	half := briefPatchSize / 2
	var pairs [256]samplePair
	for i := range pairs {
		pairs[i] = samplePair{
			x0: rng.Intn(briefPatchSize) - half,
			y0: rng.Intn(briefPatchSize) - half,
			x1: rng.Intn(briefPatchSize) - half,
			y1: rng.Intn(briefPatchSize) - half,
		}
	}
	return pairs
}

// briefDescriptor computes the 256-bit binary descriptor for a keypoint on
// a pre-blurred image. Keypoints are detected at least fastBorder pixels
// from the edge, so all samples fall inside the image.
func briefDescriptor(blurred *image.Gray, kp image.Point) Descriptor {
	var desc Descriptor
	for i, sp := range briefPairs {
		v0 := blurred.GrayAt(kp.X+sp.x0, kp.Y+sp.y0).Y
		v1 := blurred.GrayAt(kp.X+sp.x1, kp.Y+sp.y1).Y
		if v0 > v1 {
			desc[i/64] |= 1 << (i % 64)
		}
	}
	return desc
}
