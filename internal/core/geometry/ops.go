package geometry

import (
	"math"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// SignedArea is the shoelace formula over the implicitly closed ring.
// Positive for counter-clockwise winding.
func SignedArea(ring model.Ring) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return sum / 2
}

// Area is the absolute planar area of the ring.
func Area(ring model.Ring) float64 {
	return math.Abs(SignedArea(ring))
}

// Centroid is the area centroid of the ring.
func Centroid(ring model.Ring) model.Point {
	n := len(ring)
	a := SignedArea(ring)
	if n == 0 {
		return model.Point{}
	}
	if math.Abs(a) < 1e-12 {
		// Fall back to the vertex mean for (near-)degenerate rings.
		var c model.Point
		for _, p := range ring {
			c.X += p.X
			c.Y += p.Y
		}
		c.X /= float64(n)
		c.Y /= float64(n)
		return c
	}
	var cx, cy float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
		cx += (ring[i].X + ring[j].X) * cross
		cy += (ring[i].Y + ring[j].Y) * cross
	}
	return model.Point{X: cx / (6 * a), Y: cy / (6 * a)}
}

// BoundingBox returns the min and max corners of the ring.
func BoundingBox(ring model.Ring) (min, max model.Point) {
	min = model.Point{X: math.Inf(1), Y: math.Inf(1)}
	max = model.Point{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, p := range ring {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
	}
	return min, max
}

// Contains reports whether the point lies inside the ring (ray casting,
// boundary points counted as inside on one side only).
func Contains(ring model.Ring, p model.Point) bool {
	n := len(ring)
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := ring[i], ring[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			x := vj.X + (p.Y-vj.Y)/(vi.Y-vj.Y)*(vi.X-vj.X)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

func orient2d(a, b, c model.Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// properCrossing reports a strict interior crossing of segments pq and rs.
// Shared endpoints and collinear touches do not count.
func properCrossing(p, q, r, s model.Point) bool {
	d1 := orient2d(p, q, r)
	d2 := orient2d(p, q, s)
	d3 := orient2d(r, s, p)
	d4 := orient2d(r, s, q)
	return d1*d2 < 0 && d3*d4 < 0
}

// crossingPoint assumes a proper crossing and returns the intersection.
func crossingPoint(p, q, r, s model.Point) model.Point {
	denom := (q.X-p.X)*(s.Y-r.Y) - (q.Y-p.Y)*(s.X-r.X)
	t := ((r.X-p.X)*(s.Y-r.Y) - (r.Y-p.Y)*(s.X-r.X)) / denom
	return model.Point{X: p.X + t*(q.X-p.X), Y: p.Y + t*(q.Y-p.Y)}
}

// findCrossing locates the first pair of non-adjacent edges that properly
// cross, scanning edges in ring order so the result is deterministic.
func findCrossing(ring model.Ring) (int, int, bool) {
	n := len(ring)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if properCrossing(ring[i], ring[(i+1)%n], ring[j], ring[(j+1)%n]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// IsSimple reports whether the ring has no self-crossings.
func IsSimple(ring model.Ring) bool {
	_, _, found := findCrossing(ring)
	return !found
}

// repair removes self-crossings by splitting the ring at each crossing and
// keeping the larger-area simple loop. Deterministic: crossings are resolved
// in edge-scan order. Returns false when the ring collapses below 3 vertices
// before becoming simple.
func repair(ring model.Ring) (model.Ring, bool) {
	for pass := 0; pass <= len(ring); pass++ {
		i, j, found := findCrossing(ring)
		if !found {
			return ring, true
		}
		x := crossingPoint(ring[i], ring[(i+1)%len(ring)], ring[j], ring[(j+1)%len(ring)])

		// Splitting edges i and j at x yields two closed loops.
		loopA := model.Ring{x}
		loopA = append(loopA, ring[i+1:j+1]...)
		loopB := model.Ring{x}
		loopB = append(loopB, ring[j+1:]...)
		loopB = append(loopB, ring[:i+1]...)

		if Area(loopA) >= Area(loopB) {
			ring = loopA
		} else {
			ring = loopB
		}
		if len(ring) < 3 {
			return nil, false
		}
	}
	return nil, false
}
