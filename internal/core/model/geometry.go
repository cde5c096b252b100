package model

import "math"

// Point is a 2-D coordinate. For geographic CRS tags X is longitude and Y is
// latitude (degrees); after normalization both are meters in the local plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ring is an ordered, implicitly closed sequence of vertices. The closing
// vertex is not repeated; constructors strip it if present.
type Ring []Point

// NewRing validates a raw vertex sequence: every coordinate finite, and at
// least 3 distinct vertices after removing consecutive duplicates and a
// repeated closing vertex. The input slice is copied, never retained.
func NewRing(vertices []Point) (Ring, error) {
	for _, v := range vertices {
		if math.IsNaN(v.X) || math.IsInf(v.X, 0) || math.IsNaN(v.Y) || math.IsInf(v.Y, 0) {
			return nil, ErrInvalidGeometry
		}
	}

	ring := make(Ring, 0, len(vertices))
	for _, v := range vertices {
		if len(ring) > 0 && ring[len(ring)-1] == v {
			continue
		}
		ring = append(ring, v)
	}
	// Drop a repeated closing vertex (GeoJSON-style rings close explicitly).
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}

	if len(ring) < 3 {
		return nil, ErrInvalidGeometry
	}
	return ring, nil
}

// Clone returns an independent copy of the ring.
func (r Ring) Clone() Ring {
	out := make(Ring, len(r))
	copy(out, r)
	return out
}

// NormalizedPolygon is a ring in the common metric plane. Invariant: the ring
// is simple and wound counter-clockwise. Only the geometry package constructs
// values of this type.
type NormalizedPolygon struct {
	Ring Ring `json:"ring"`
}
