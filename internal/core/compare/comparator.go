package compare

import (
	"fmt"
	"math"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/geometry"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// Comparator computes area and overlap metrics between the registered and
// observed polygons. Stateless and pure.
type Comparator struct{}

func New() *Comparator {
	return &Comparator{}
}

// Compare measures the observed polygon against the registered one.
// registeredArea is the declared cadastral figure (m²) under audit: the
// percent delta is relative to what the owner declared, while IoU and
// boundary deviation come from the two polygon geometries. Fails only with
// ErrZeroRegisteredArea.
func (c *Comparator) Compare(registered model.NormalizedPolygon, registeredArea float64, observed model.NormalizedPolygon) (model.ComparisonMetrics, error) {
	if registeredArea <= 0 {
		return model.ComparisonMetrics{}, fmt.Errorf("declared area %v: %w", registeredArea, model.ErrZeroRegisteredArea)
	}

	regPolyArea := geometry.Area(registered.Ring)
	obsArea := geometry.Area(observed.Ring)

	intersection := geometry.IntersectionArea(observed.Ring, registered.Ring)
	union := regPolyArea + obsArea - intersection

	iou := 0.0
	boundaryDeviation := 1.0
	if union > 0 {
		iou = intersection / union
		boundaryDeviation = (union - intersection) / union
	}

	delta := obsArea - registeredArea
	return model.ComparisonMetrics{
		RegisteredArea:    registeredArea,
		ObservedArea:      obsArea,
		AreaDelta:         math.Abs(delta),
		PercentDelta:      delta / registeredArea * 100,
		IoU:               iou,
		BoundaryDeviation: boundaryDeviation,
	}, nil
}
