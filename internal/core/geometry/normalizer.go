package geometry

import (
	"fmt"
	"math"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// vertexTolerance is the distance (meters, in the target frame) under which
// two vertices are considered collapsed.
const vertexTolerance = 1e-6

// minArea guards against rings that survive all checks but enclose
// effectively nothing.
const minArea = 1e-9

// Normalizer projects raw rings into one metric frame and repairs minor
// topological defects. Pure: no method mutates its inputs.
type Normalizer struct {
	frame Frame
}

func NewNormalizer(frame Frame) *Normalizer {
	return &Normalizer{frame: frame}
}

// Normalize reprojects the ring from sourceCRS into the frame, deduplicates
// collapsed vertices, repairs self-crossings deterministically, and fixes
// winding to counter-clockwise.
func (n *Normalizer) Normalize(ring model.Ring, sourceCRS string) (model.NormalizedPolygon, error) {
	if len(ring) < 3 {
		return model.NormalizedPolygon{}, fmt.Errorf("ring has %d vertices: %w", len(ring), model.ErrInvalidGeometry)
	}

	planar, err := n.frame.ToPlane(ring, sourceCRS)
	if err != nil {
		return model.NormalizedPolygon{}, err
	}

	planar = dedupe(planar, vertexTolerance)
	if len(planar) < 3 {
		return model.NormalizedPolygon{}, fmt.Errorf("ring collapsed under reprojection: %w", model.ErrDegenerateGeometry)
	}

	planar, ok := repair(planar)
	if !ok {
		return model.NormalizedPolygon{}, fmt.Errorf("self-intersection repair failed: %w", model.ErrDegenerateGeometry)
	}

	if Area(planar) < minArea {
		return model.NormalizedPolygon{}, fmt.Errorf("ring area below tolerance: %w", model.ErrDegenerateGeometry)
	}

	if SignedArea(planar) < 0 {
		reversed := make(model.Ring, len(planar))
		for i, p := range planar {
			reversed[len(planar)-1-i] = p
		}
		planar = reversed
	}

	return model.NormalizedPolygon{Ring: planar}, nil
}

// dedupe drops vertices within tol of their predecessor, including the wrap
// from last back to first.
func dedupe(ring model.Ring, tol float64) model.Ring {
	out := make(model.Ring, 0, len(ring))
	for _, p := range ring {
		if len(out) > 0 && dist(out[len(out)-1], p) <= tol {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && dist(out[0], out[len(out)-1]) <= tol {
		out = out[:len(out)-1]
	}
	return out
}

func dist(a, b model.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
