package geometry

import "github.com/gregorizeidler/IPTU-Checker/internal/core/model"

// Clip intersects the subject ring with the clip ring using
// Sutherland–Hodgman: the subject is cut against the half-plane left of each
// directed clip edge in turn. The clip ring must be wound counter-clockwise,
// which normalization guarantees. Returns the (possibly empty) intersection
// ring.
func Clip(subject, clip model.Ring) model.Ring {
	out := subject.Clone()
	n := len(clip)
	for i := 0; i < n && len(out) > 0; i++ {
		a := clip[i]
		b := clip[(i+1)%n]

		in := out
		out = nil
		for j := 0; j < len(in); j++ {
			cur := in[j]
			prev := in[(j+len(in)-1)%len(in)]
			curInside := orient2d(a, b, cur) >= 0
			prevInside := orient2d(a, b, prev) >= 0

			switch {
			case curInside && prevInside:
				out = append(out, cur)
			case curInside && !prevInside:
				out = append(out, lineCut(a, b, prev, cur), cur)
			case !curInside && prevInside:
				out = append(out, lineCut(a, b, prev, cur))
			}
		}
	}
	if len(out) < 3 {
		return nil
	}
	return out
}

// lineCut intersects segment pq with the infinite line through ab. The
// signed distance to the line is linear along the segment, so the crossing
// parameter falls out of the two orientation values directly.
func lineCut(a, b, p, q model.Point) model.Point {
	dp := orient2d(a, b, p)
	dq := orient2d(a, b, q)
	if dp == dq {
		return q
	}
	u := dp / (dp - dq)
	return model.Point{X: p.X + u*(q.X-p.X), Y: p.Y + u*(q.Y-p.Y)}
}

// IntersectionArea is the area of the Sutherland–Hodgman intersection of the
// two rings. Zero when they do not overlap.
func IntersectionArea(a, b model.Ring) float64 {
	return Area(Clip(a, b))
}
