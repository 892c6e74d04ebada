package motion

import (
	"math"
	"testing"
)

func TestHomographyApply(t *testing.T) {
	h := Homography{H: [9]float64{2, 0, 1, 0, 2, -1, 0, 0, 1}, Valid: true}
	got := h.Apply(Point{X: 3, Y: 4})
	if got.X != 7 || got.Y != 7 {
		t.Errorf("Apply = %v, want (7, 7)", got)
	}

	hole := Homography{H: [9]float64{2, 0, 1, 0, 2, -1, 0, 0, 1}}
	p := Point{X: 3, Y: 4}
	if got := hole.Apply(p); got != p {
		t.Errorf("hole Apply = %v, want input unchanged", got)
	}
}

func TestCompose(t *testing.T) {
	a := Homography{H: [9]float64{1, 0, 5, 0, 1, 3, 0, 0, 1}, Valid: true, Inliers: 8}
	b := Homography{H: [9]float64{1, 0, -2, 0, 1, 4, 0, 0, 1}, Valid: true, Inliers: 6}

	c := Compose(a, b)
	if !c.Valid {
		t.Fatal("composition of valid transforms invalid")
	}
	if c.Inliers != 6 {
		t.Errorf("Inliers = %d, want 6", c.Inliers)
	}
	p := Point{X: 10, Y: 20}
	got := c.Apply(p)
	want := b.Apply(a.Apply(p))
	if math.Hypot(got.X-want.X, got.Y-want.Y) > 1e-12 {
		t.Errorf("Compose(a,b).Apply = %v, want %v", got, want)
	}

	if Compose(a, Homography{}).Valid || Compose(Homography{}, b).Valid {
		t.Error("composition through a hole must be invalid")
	}
}

func TestComposeProjectiveNormalises(t *testing.T) {
	a := Homography{H: [9]float64{1, 0, 2, 0, 1, 3, 1e-3, 0, 1}, Valid: true}
	b := Homography{H: [9]float64{1.1, 0, -1, 0, 0.9, 2, 0, 2e-3, 1}, Valid: true}
	c := Compose(a, b)
	if c.H[8] != 1 {
		t.Errorf("H[8] = %v, want 1", c.H[8])
	}
	p := Point{X: 40, Y: 25}
	got := c.Apply(p)
	want := b.Apply(a.Apply(p))
	if math.Hypot(got.X-want.X, got.Y-want.Y) > 1e-9 {
		t.Errorf("Compose.Apply = %v, want %v", got, want)
	}
}

func TestTrackEndIndex(t *testing.T) {
	tr := Track{StartIndex: 3, Points: []TrackPoint{{}, {}, {}}}
	if got := tr.EndIndex(); got != 5 {
		t.Errorf("EndIndex = %d, want 5", got)
	}
}

func TestNewResultArenaSizes(t *testing.T) {
	a := newResultArena(5)
	if len(a.features) != 5 || len(a.matches) != 4 || len(a.chain) != 4 {
		t.Errorf("arena sizes %d/%d/%d for 5 frames", len(a.features), len(a.matches), len(a.chain))
	}
	empty := newResultArena(0)
	if len(empty.features) != 0 || len(empty.matches) != 0 {
		t.Error("zero-frame arena not empty")
	}
	single := newResultArena(1)
	if len(single.matches) != 0 || len(single.chain) != 0 {
		t.Error("single-frame arena must have no pair slots")
	}
}
