package model

import "time"

// AggregatedObservation is the consensus of one or more observations.
// Confidence is non-increasing in the disagreement among contributors.
type AggregatedObservation struct {
	Polygon    NormalizedPolygon `json:"polygon"`
	Confidence float64           `json:"confidence"`
	Count      int               `json:"count"`
}

// Label classifies the discrepancy between declared and observed area.
type Label string

const (
	// LabelInsufficientConfidence: boundary evidence too weak to trust any
	// comparison, regardless of the area delta.
	LabelInsufficientConfidence Label = "insufficient_confidence"
	// LabelConsistent: observed area within the tolerance band.
	LabelConsistent Label = "consistent"
	// LabelUnderDeclared: observed larger than declared (evasion signal).
	LabelUnderDeclared Label = "under_declared"
	// LabelOverDeclared: observed smaller than declared (overpayment signal).
	LabelOverDeclared Label = "over_declared"
)

// ComparisonMetrics are the comparator's outputs. RegisteredArea is the
// declared cadastral figure under audit; ObservedArea is the planar area of
// the consensus polygon.
type ComparisonMetrics struct {
	RegisteredArea    float64 `json:"registered_area"`
	ObservedArea      float64 `json:"observed_area"`
	AreaDelta         float64 `json:"area_delta"`    // absolute, m²
	PercentDelta      float64 `json:"percent_delta"` // signed, (observed-registered)/registered*100
	IoU               float64 `json:"iou"`
	BoundaryDeviation float64 `json:"boundary_deviation"` // symmetric difference / union
}

// DiscrepancyRecord is the engine's sole output. Ownership passes to the
// caller on return; the engine never persists it.
type DiscrepancyRecord struct {
	UUID         string            `json:"uuid"`
	ParcelID     string            `json:"parcel_id"`
	Metrics      ComparisonMetrics `json:"metrics"`
	Label        Label             `json:"label"`
	Confidence   float64           `json:"confidence"`
	ReconciledAt time.Time         `json:"reconciled_at"`
}
