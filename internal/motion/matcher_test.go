package motion

import "testing"

// pairDesc returns a descriptor unique to i with Hamming distance 4 to
// every other pairDesc.
func pairDesc(i int) Descriptor {
	var d Descriptor
	d[i/32] = 3 << uint(2*(i%32))
	return d
}

// featurePair builds two feature sets where feature i in each frame shares
// a descriptor and the second frame is the first shifted by (dx, dy).
func featurePair(src []Point, dx, dy float64) (prev, next []Feature) {
	prev = make([]Feature, len(src))
	next = make([]Feature, len(src))
	for i, s := range src {
		prev[i] = Feature{X: s.X, Y: s.Y, Desc: pairDesc(i)}
		next[i] = Feature{X: s.X + dx, Y: s.Y + dy, Desc: pairDesc(i)}
	}
	return prev, next
}

func TestHammingDistance(t *testing.T) {
	var a, b Descriptor
	if d := HammingDistance(a, b); d != 0 {
		t.Errorf("distance of equal descriptors = %d", d)
	}
	b[0] = 0xFF
	b[3] = 1 << 63
	if d := HammingDistance(a, b); d != 9 {
		t.Errorf("distance = %d, want 9", d)
	}
	for i := range a {
		a[i] = ^uint64(0)
	}
	b = Descriptor{}
	if d := HammingDistance(a, b); d != 256 {
		t.Errorf("distance = %d, want 256", d)
	}
}

func TestMatchPairTranslation(t *testing.T) {
	prev, next := featurePair(spreadPoints, 5, 3)
	// A descriptor-identical pair whose geometry disagrees with the
	// dominant translation.
	outlierIdx := len(prev)
	prev = append(prev, Feature{X: 60, Y: 60, Desc: pairDesc(outlierIdx)})
	next = append(next, Feature{X: 150, Y: 12, Desc: pairDesc(outlierIdx)})

	matches := consensusMatcher{}.MatchPair(prev, next, 0, DefaultParams())
	if len(matches) != len(prev) {
		t.Fatalf("got %d matches, want %d", len(matches), len(prev))
	}
	for _, m := range matches {
		if m.SrcIdx != m.DstIdx {
			t.Errorf("match %d -> %d, want index-paired", m.SrcIdx, m.DstIdx)
		}
		if m.HammingDist != 0 {
			t.Errorf("match %d: HammingDist = %d, want 0", m.SrcIdx, m.HammingDist)
		}
		wantInlier := m.SrcIdx != outlierIdx
		if m.Inlier != wantInlier {
			t.Errorf("match %d: Inlier = %v, want %v", m.SrcIdx, m.Inlier, wantInlier)
		}
	}
}

func TestMatchPairOptimalAssignment(t *testing.T) {
	prev, next := featurePair(spreadPoints, 5, 3)
	params := DefaultParams()
	params.UseOptimalAssignment = true
	matches := consensusMatcher{}.MatchPair(prev, next, 0, params)
	if len(matches) != len(prev) {
		t.Fatalf("got %d matches, want %d", len(matches), len(prev))
	}
	for _, m := range matches {
		if m.SrcIdx != m.DstIdx {
			t.Errorf("match %d -> %d, want index-paired", m.SrcIdx, m.DstIdx)
		}
		if !m.Inlier {
			t.Errorf("match %d not flagged inlier", m.SrcIdx)
		}
	}
}

func TestMatchPairBelowMinimum(t *testing.T) {
	prev, next := featurePair(spreadPoints[:2], 1, 1)
	if m := (consensusMatcher{}).MatchPair(prev, next, 0, DefaultParams()); m != nil {
		t.Errorf("2 candidates below MinMatches should yield nil, got %d", len(m))
	}
	if m := (consensusMatcher{}).MatchPair(nil, next, 0, DefaultParams()); m != nil {
		t.Error("empty prev frame should yield nil")
	}
}

func TestMatchPairHammingCutoff(t *testing.T) {
	prev, next := featurePair(spreadPoints, 2, 2)
	// Corrupt one target descriptor past the acceptance cutoff. Its
	// mutual-nearest partner survives only under the distance gate.
	for w := range next[2].Desc {
		next[2].Desc[w] = ^next[2].Desc[w]
	}
	params := DefaultParams()
	matches := consensusMatcher{}.MatchPair(prev, next, 0, params)
	for _, m := range matches {
		if m.SrcIdx == 2 || m.DstIdx == 2 {
			t.Errorf("match %d -> %d exceeds Hamming cutoff", m.SrcIdx, m.DstIdx)
		}
	}
	if len(matches) != len(spreadPoints)-1 {
		t.Errorf("got %d matches, want %d", len(matches), len(spreadPoints)-1)
	}
}

func TestMatchPairZeroCutoffIsExactOnly(t *testing.T) {
	prev, next := featurePair(spreadPoints, 2, 2)
	// One flipped bit keeps index 2 mutual-nearest but no longer exact.
	next[2].Desc[0] ^= 1

	params := DefaultParams()
	params.MatchMaxHamming = 0
	matches := (consensusMatcher{}).MatchPair(prev, next, 0, params)
	for _, m := range matches {
		if m.SrcIdx == 2 || m.DstIdx == 2 {
			t.Errorf("match %d -> %d survived a zero cutoff", m.SrcIdx, m.DstIdx)
		}
		if m.HammingDist != 0 {
			t.Errorf("match %d -> %d has distance %d under zero cutoff", m.SrcIdx, m.DstIdx, m.HammingDist)
		}
	}
	if len(matches) != len(spreadPoints)-1 {
		t.Errorf("got %d matches, want %d", len(matches), len(spreadPoints)-1)
	}
}

func TestMatchPairDeterministic(t *testing.T) {
	prev, next := featurePair(spreadPoints, 4, -2)
	first := consensusMatcher{}.MatchPair(prev, next, 3, DefaultParams())
	second := consensusMatcher{}.MatchPair(prev, next, 3, DefaultParams())
	if len(first) != len(second) {
		t.Fatalf("match counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("match %d differs between identical runs", i)
		}
	}
}

func TestConsensusSeedPerPair(t *testing.T) {
	seen := make(map[int64]int)
	for pair := 0; pair < 64; pair++ {
		s := consensusSeed(pair)
		if prior, dup := seen[s]; dup {
			t.Fatalf("pairs %d and %d share seed %d", prior, pair, s)
		}
		seen[s] = pair
	}
	if consensusSeed(0) != 0x6d6f74696f6e {
		t.Errorf("seed base = %#x", consensusSeed(0))
	}
}

func TestAssignCrossCheckTieBreak(t *testing.T) {
	// Two identical targets: the lower index must win the tie, and the
	// loser stays unmatched.
	prev := []Feature{{X: 1, Y: 1, Desc: pairDesc(0)}}
	next := []Feature{
		{X: 2, Y: 2, Desc: pairDesc(0)},
		{X: 3, Y: 3, Desc: pairDesc(0)},
	}
	dist := [][]int{{0, 0}}
	matches := assignCrossCheck(prev, next, dist, 64)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].DstIdx != 0 {
		t.Errorf("DstIdx = %d, want lower-index tie winner 0", matches[0].DstIdx)
	}
	if matches[0].Src.X != 1 || matches[0].Dst.X != 2 {
		t.Errorf("match endpoints %v -> %v", matches[0].Src, matches[0].Dst)
	}
}
