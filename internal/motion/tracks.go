package motion

import "sort"

// contiguityTrackBuilder is the default TrackStage. It chains inlier
// matches across consecutive frame pairs into tracks with strictly
// contiguous coverage: a single missed match closes the track, no gap
// tolerance.
type contiguityTrackBuilder struct{}

// BuildTracks scans frame pairs in order. An inlier match whose source
// feature is the tail of an open track extends it; any other inlier match
// opens a new track seeded with both endpoints. Track IDs are sequential
// in creation order, and matches are visited in ascending source index, so
// output is identical across runs.
//
// Transform-chain holes do not break tracks: chaining depends only on the
// match sets.
func (contiguityTrackBuilder) BuildTracks(frames []Frame, matches [][]Match, params Params) []Track {
	var tracks []Track
	var nextID int64 = 1

	// open maps a feature index in the current tail frame to the position
	// of its track in tracks.
	open := make(map[int]int)

	for pairIdx := range matches {
		srcTS := frames[pairIdx].Timestamp
		dstTS := frames[pairIdx+1].Timestamp

		inliers := make([]Match, 0, len(matches[pairIdx]))
		for _, m := range matches[pairIdx] {
			if m.Inlier {
				inliers = append(inliers, m)
			}
		}
		sort.Slice(inliers, func(i, j int) bool { return inliers[i].SrcIdx < inliers[j].SrcIdx })

		// Tracks not continued by any inlier of this pair close here.
		next := make(map[int]int, len(inliers))
		for _, m := range inliers {
			if ti, ok := open[m.SrcIdx]; ok {
				tracks[ti].Points = append(tracks[ti].Points, TrackPoint{
					Timestamp: dstTS, X: m.Dst.X, Y: m.Dst.Y,
				})
				next[m.DstIdx] = ti
				continue
			}
			tracks = append(tracks, Track{
				ID:         nextID,
				StartIndex: FrameIndex(pairIdx),
				Points: []TrackPoint{
					{Timestamp: srcTS, X: m.Src.X, Y: m.Src.Y},
					{Timestamp: dstTS, X: m.Dst.X, Y: m.Dst.Y},
				},
			})
			next[m.DstIdx] = len(tracks) - 1
			nextID++
		}
		open = next
	}
	return tracks
}
