package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gregorizeidler/IPTU-Checker/internal/config"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/aggregate"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/classify"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/compare"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/geometry"
	"github.com/gregorizeidler/IPTU-Checker/internal/core/model"
)

// Engine is the reconciliation orchestrator: normalize the registered ring,
// aggregate the observations, compare, classify, emit one DiscrepancyRecord.
// Reconcile is pure apart from the record uuid and timestamp, holds no shared
// mutable state, and is safe for any number of concurrent callers.
type Engine struct {
	Aggregator *aggregate.Aggregator
	Comparator *compare.Comparator
	Classifier *classify.Classifier

	projection config.ProjectionConfig
}

func NewEngine(cfg *config.Config, logger zerolog.Logger) *Engine {
	e := cfg.Engine
	return &Engine{
		Aggregator: aggregate.New(e.RecencyHalfLifeDays, e.DisagreementThreshold, e.UnreliableConfidence, e.ConsensusGridSize, logger),
		Comparator: compare.New(),
		Classifier: classify.New(e.ToleranceBandPct, e.MinIoU, e.ConfidenceFloor),
		projection: cfg.Projection,
	}
}

// Reconcile produces exactly one DiscrepancyRecord for the parcel, or a
// taxonomy error surfaced unchanged from the failing stage. No record is
// emitted on failure.
func (e *Engine) Reconcile(parcel model.Parcel, observations []model.Observation) (*model.DiscrepancyRecord, error) {
	norm := geometry.NewNormalizer(e.frameFor(parcel))

	registered, err := norm.Normalize(parcel.Ring, parcel.CRS)
	if err != nil {
		return nil, fmt.Errorf("parcel %s registered polygon: %w", parcel.ID, err)
	}
	// Normalization claims simple + CCW; a violation here is a programming
	// error, not a data-quality condition.
	if geometry.SignedArea(registered.Ring) <= 0 || !geometry.IsSimple(registered.Ring) {
		return nil, fmt.Errorf("parcel %s: normalized registered polygon violates simple/CCW invariant", parcel.ID)
	}

	aggregated, err := e.Aggregator.Aggregate(norm, observations)
	if err != nil {
		return nil, fmt.Errorf("parcel %s observations: %w", parcel.ID, err)
	}

	metrics, err := e.Comparator.Compare(registered, parcel.DeclaredArea, aggregated.Polygon)
	if err != nil {
		return nil, fmt.Errorf("parcel %s: %w", parcel.ID, err)
	}

	label, confidence := e.Classifier.Classify(metrics, aggregated.Confidence)

	return &model.DiscrepancyRecord{
		UUID:         uuid.New().String(),
		ParcelID:     parcel.ID,
		Metrics:      metrics,
		Label:        label,
		Confidence:   confidence,
		ReconciledAt: time.Now().UTC(),
	}, nil
}

// frameFor picks the metric plane: the configured jurisdiction origin, or
// the parcel's own vertex mean when none is configured. Both the registered
// ring and every observation share the one frame per run.
func (e *Engine) frameFor(parcel model.Parcel) geometry.Frame {
	if e.projection.OriginLat != 0 || e.projection.OriginLng != 0 {
		return geometry.NewFrame(e.projection.OriginLat, e.projection.OriginLng)
	}
	var lat, lng float64
	for _, p := range parcel.Ring {
		lng += p.X
		lat += p.Y
	}
	n := float64(len(parcel.Ring))
	return geometry.NewFrame(lat/n, lng/n)
}
