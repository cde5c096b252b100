package classify

import (
	"math"

	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// Classifier is a pure decision table over comparison metrics. Thresholds
// are injected, never read from ambient state.
type Classifier struct {
	// ToleranceBandPct: |percent delta| at or under this is consistent.
	ToleranceBandPct float64
	// MinIoU: overlap below this means the boundary evidence is too weak.
	MinIoU float64
	// ConfidenceFloor: confidence below this means the same.
	ConfidenceFloor float64
}

func New(toleranceBandPct, minIoU, confidenceFloor float64) *Classifier {
	return &Classifier{
		ToleranceBandPct: toleranceBandPct,
		MinIoU:           minIoU,
		ConfidenceFloor:  confidenceFloor,
	}
}

// Classify evaluates the label rules in order, first match winning, and
// attenuates the confidence by the boundary deviation: poor boundary
// agreement lowers trust even when the areas happen to match.
func (c *Classifier) Classify(metrics model.ComparisonMetrics, confidence float64) (model.Label, float64) {
	adjusted := confidence * (1 - metrics.BoundaryDeviation)
	adjusted = math.Max(0, math.Min(1, adjusted))

	switch {
	case confidence < c.ConfidenceFloor || metrics.IoU < c.MinIoU:
		return model.LabelInsufficientConfidence, adjusted
	case math.Abs(metrics.PercentDelta) <= c.ToleranceBandPct:
		return model.LabelConsistent, adjusted
	case metrics.PercentDelta > c.ToleranceBandPct:
		return model.LabelUnderDeclared, adjusted
	default:
		return model.LabelOverDeclared, adjusted
	}
}
