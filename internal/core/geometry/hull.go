package geometry

import (
	"sort"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// ConvexHull computes the convex hull of the points (Andrew's monotone
// chain), returned as a counter-clockwise ring. Returns nil for fewer than 3
// non-collinear points.
func ConvexHull(points []model.Point) model.Ring {
	if len(points) < 3 {
		return nil
	}

	pts := make([]model.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	var lower, upper []model.Point
	for _, p := range pts {
		for len(lower) >= 2 && orient2d(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && orient2d(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	if len(hull) < 3 {
		return nil
	}
	return model.Ring(hull)
}
