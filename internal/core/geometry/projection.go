package geometry

import (
	"fmt"
	"math"
	"strings"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

const (
	earthRadiusM = 6378137.0
	metersPerDeg = earthRadiusM * math.Pi / 180
)

// Frame is a local tangent plane (meters) anchored at a per-jurisdiction
// origin. Geographic coordinates are projected equirectangularly: east/north
// offsets from the origin, with longitude scaled by cos(origin latitude).
// Area distortion is negligible at parcel scale.
type Frame struct {
	OriginLat float64
	OriginLng float64
	cosLat    float64
}

func NewFrame(originLat, originLng float64) Frame {
	return Frame{
		OriginLat: originLat,
		OriginLng: originLng,
		cosLat:    math.Cos(originLat * math.Pi / 180),
	}
}

// IsGeographic reports whether the CRS tag carries (lng, lat) degrees.
// Metric tags are already planar meters (e.g. SIRGAS 2000 UTM zones used by
// Brazilian cadastres) and pass through projection unchanged.
func IsGeographic(crs string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(crs)) {
	case "", "EPSG:4326", "WGS84", "CRS:84", "CRS84":
		return true, nil
	case "LOCAL", "EPSG:31982", "EPSG:31983", "EPSG:31984", "EPSG:31985":
		return false, nil
	default:
		return false, fmt.Errorf("unsupported CRS %q: %w", crs, model.ErrInvalidGeometry)
	}
}

// ToPlane reprojects a ring from sourceCRS into the frame. The input is not
// mutated.
func (f Frame) ToPlane(ring model.Ring, sourceCRS string) (model.Ring, error) {
	geographic, err := IsGeographic(sourceCRS)
	if err != nil {
		return nil, err
	}
	if !geographic {
		return ring.Clone(), nil
	}

	out := make(model.Ring, len(ring))
	for i, p := range ring {
		out[i] = model.Point{
			X: (p.X - f.OriginLng) * metersPerDeg * f.cosLat,
			Y: (p.Y - f.OriginLat) * metersPerDeg,
		}
	}
	return out, nil
}
